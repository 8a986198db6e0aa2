package confidence

import (
	"context"
	"fmt"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/experience"
	"meanRevBot/internal/ports"
)

// EngineConfig holds the decision thresholds for the confidence engine.
type EngineConfig struct {
	Threshold     float64 // Take the trade at or above this confidence
	MinSampleSize int     // Below this many neighbors, the baseline applies
	NeighborCount int     // k for similarity retrieval
	Baseline      float64 // Neutral confidence when the sample is too small
}

// Engine scores candidate signals against the experience store. It is the
// single place the take/skip decision is made: the threshold is applied here
// exactly once, and the returned TakeTrade boolean is final.
type Engine struct {
	cfg    EngineConfig
	logger ports.Logger
	store  *experience.Store
}

var _ ports.ConfidenceAnalyzer = (*Engine)(nil)

// NewEngine creates a confidence engine backed by the local experience store.
func NewEngine(cfg EngineConfig, store *experience.Store, logger ports.Logger) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for confidence engine")
	}
	if store == nil {
		return nil, fmt.Errorf("experience store is required for confidence engine")
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be in (0, 1]")
	}
	if cfg.MinSampleSize < 1 {
		return nil, fmt.Errorf("minimum sample size must be at least 1")
	}
	if cfg.NeighborCount < 1 {
		return nil, fmt.Errorf("neighbor count must be at least 1")
	}
	if cfg.Baseline < 0 || cfg.Baseline > 1 {
		return nil, fmt.Errorf("baseline confidence must be in [0, 1]")
	}
	return &Engine{cfg: cfg, logger: logger, store: store}, nil
}

// Analyze retrieves the nearest same-side experiences and derives the
// take/skip decision. When fewer than MinSampleSize neighbors exist, the
// configured neutral baseline is returned with TakeTrade=false, which is
// distinct from "no matches means reject".
func (e *Engine) Analyze(ctx context.Context, state domain.MarketState) (domain.TradeDecision, error) {
	matched := e.store.FindSimilar(state, e.cfg.NeighborCount)

	if len(matched) < e.cfg.MinSampleSize {
		e.logger.Debug(ctx, "Insufficient experience sample, returning neutral baseline",
			map[string]interface{}{
				"matched":   len(matched),
				"minSample": e.cfg.MinSampleSize,
				"baseline":  e.cfg.Baseline,
			})
		return domain.TradeDecision{
			TakeTrade:  false,
			Confidence: e.cfg.Baseline,
			SampleSize: len(matched),
			Neutral:    true,
		}, nil
	}

	winners := 0
	var pnlSum float64
	for _, exp := range matched {
		if exp.IsWinner() {
			winners++
		}
		pnlSum += exp.PNL
	}
	conf := float64(winners) / float64(len(matched))
	avgPNL := pnlSum / float64(len(matched))

	decision := domain.TradeDecision{
		TakeTrade:  conf >= e.cfg.Threshold && avgPNL > 0,
		Confidence: conf,
		SampleSize: len(matched),
		AvgPNL:     avgPNL,
	}

	e.logger.Info(ctx, "Confidence decision", map[string]interface{}{
		"side":       state.Side,
		"takeTrade":  decision.TakeTrade,
		"confidence": conf,
		"sampleSize": decision.SampleSize,
		"avgPNL":     avgPNL,
	})
	return decision, nil
}
