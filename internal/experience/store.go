package experience

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

// Store is the append-only collection of trade experiences. It supports
// concurrent readers with a single-writer append discipline; appends are
// atomic with respect to count, so a reader never observes a partially
// written record. Persistence happens through the repository at the append
// boundary; queries are served from memory.
type Store struct {
	mu     sync.RWMutex
	logger ports.Logger
	repo   ports.ExperienceRepository // nil means memory-only (replay scratch runs)

	experiences []domain.Experience
	nextID      int64
}

// NewStore creates an experience store. repo may be nil for runs that do not
// persist outcomes.
func NewStore(logger ports.Logger, repo ports.ExperienceRepository) (*Store, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for experience store")
	}
	return &Store{logger: logger, repo: repo, nextID: 1}, nil
}

// Load reads every persisted experience through the repository and migrates
// each row to the current schema. Called once at startup, before any reader.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	rows, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load experiences: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiences = make([]domain.Experience, 0, len(rows))
	for _, row := range rows {
		exp, ok := MigrateRecord(ctx, row, s.logger)
		if !ok {
			continue
		}
		s.experiences = append(s.experiences, exp)
		if exp.ID >= s.nextID {
			s.nextID = exp.ID + 1
		}
	}
	s.logger.Info(ctx, "Experience store loaded", map[string]interface{}{
		"rows": len(rows), "usable": len(s.experiences)})
	return nil
}

// Append records one experience. The record is persisted first, then made
// visible to readers in a single step; identity is insertion order.
func (s *Store) Append(ctx context.Context, exp domain.Experience) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp.ID = s.nextID
	if s.repo != nil {
		id, err := s.repo.Append(ctx, &exp)
		if err != nil {
			return 0, fmt.Errorf("failed to persist experience: %w", err)
		}
		if id > 0 {
			exp.ID = id
		}
	}
	s.nextID = exp.ID + 1
	s.experiences = append(s.experiences, exp)
	return exp.ID, nil
}

// Count returns the number of recorded experiences.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.experiences)
}

// All returns a copy of every recorded experience in insertion order.
func (s *Store) All() []domain.Experience {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Experience, len(s.experiences))
	copy(out, s.experiences)
	return out
}

// FindSimilar returns up to k experiences nearest to the query state, ordered
// nearest first with ties broken most-recent-first. Only experiences recorded
// for the query's side are considered; cross-side comparison is out of scope.
func (s *Store) FindSimilar(state domain.MarketState, k int) []domain.Experience {
	if k <= 0 {
		return nil
	}

	s.mu.RLock()
	type scored struct {
		exp  domain.Experience
		dist float64
	}
	matches := make([]scored, 0, len(s.experiences))
	for _, exp := range s.experiences {
		if exp.State.Side != state.Side {
			continue
		}
		matches = append(matches, scored{exp: exp, dist: Distance(state, exp.State)})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].exp.ID > matches[j].exp.ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	result := make([]domain.Experience, len(matches))
	for i, m := range matches {
		result[i] = m.exp
	}
	return result
}

// Feature weighting for the nearest-neighbor distance: a weighted, normalized
// Euclidean metric. Each feature difference is divided by a fixed scale so
// features with different units contribute comparably, then weighted by how
// much it historically mattered to outcome similarity. Hour and day-of-week
// use circular distance. A regime mismatch inflates the whole distance
// instead of excluding the record (soft filter).
var (
	weightRSI      = 2.0
	weightVWAPDist = 2.0
	weightATR      = 1.0
	weightVolume   = 1.0
	weightHour     = 1.0
	weightDay      = 0.5
	weightPNL      = 0.5
	weightStreak   = 0.5

	scaleRSI      = 50.0 // RSI spans 0-100
	scaleVWAPDist = 0.02 // 2% from VWAP is a large excursion
	scaleVolume   = 2.0
	scaleStreak   = 5.0

	regimeMismatchPenalty = 1.25
)

// Distance computes the similarity metric between two market states of the
// same side. Smaller is more similar.
func Distance(a, b domain.MarketState) float64 {
	var sum float64

	sum += weightRSI * sq((a.RSI-b.RSI)/scaleRSI)
	sum += weightVWAPDist * sq((a.VWAPDistance-b.VWAPDistance)/scaleVWAPDist)
	sum += weightATR * sq(relDiff(a.ATR, b.ATR))
	sum += weightVolume * sq((a.VolumeRatio-b.VolumeRatio)/scaleVolume)
	sum += weightHour * sq(circularDiff(a.Hour, b.Hour, 24)/12.0)
	sum += weightDay * sq(circularDiff(a.DayOfWeek, b.DayOfWeek, 7)/3.5)
	sum += weightPNL * sq(relDiff(a.RecentPNL, b.RecentPNL))
	sum += weightStreak * sq(float64(a.Streak-b.Streak)/scaleStreak)

	dist := math.Sqrt(sum)
	if a.Regime != b.Regime {
		dist *= regimeMismatchPenalty
	}
	return dist
}

func sq(x float64) float64 { return x * x }

// relDiff scales a difference by the larger magnitude of the pair, bounding
// the contribution of unbounded features like ATR and recent PNL.
func relDiff(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return (a - b) / denom
}

// circularDiff returns the wrap-around distance between two cyclic values.
func circularDiff(a, b, period int) float64 {
	d := a - b
	if d < 0 {
		d = -d
	}
	if period-d < d {
		d = period - d
	}
	return float64(d)
}
