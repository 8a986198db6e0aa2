package market

import (
	"context"
	"fmt"
	"time"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

// AggregatorConfig holds configuration for the two-granularity bar aggregator.
type AggregatorConfig struct {
	Symbol         string
	FineInterval   string        // e.g., "1m"
	CoarseInterval string        // e.g., "15m"
	FineDuration   time.Duration // Parsed FineInterval
	CoarseDuration time.Duration // Parsed CoarseInterval, whole multiple of FineDuration
	Depth          int           // Ring buffer depth per granularity
}

// BarHandler receives every finalized bar, fine and coarse, in close order.
type BarHandler func(ctx context.Context, bar *domain.Bar)

// Aggregator converts a stream of timestamped ticks or pre-built fine bars
// into finalized OHLCV bars at fine and coarse granularities. Bars for a
// symbol are strictly ordered by open time; out-of-order or duplicate
// delivery is rejected, never reordered. Gaps are not interpolated.
type Aggregator struct {
	cfg     AggregatorConfig
	logger  ports.Logger
	handler BarHandler

	fineBars   []*domain.Bar
	coarseBars []*domain.Bar

	lastFineOpen time.Time
	building     *domain.Bar // In-progress fine bar built from ticks

	pending    []*domain.Bar // Fine bars of the in-progress coarse period
	coarseOpen time.Time     // Open time of the in-progress coarse period
}

// NewAggregator creates a bar aggregator.
func NewAggregator(cfg AggregatorConfig, logger ports.Logger) (*Aggregator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for aggregator")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required for aggregator")
	}
	if cfg.FineDuration <= 0 || cfg.CoarseDuration <= 0 {
		return nil, fmt.Errorf("bar durations must be positive")
	}
	if cfg.CoarseDuration%cfg.FineDuration != 0 || cfg.CoarseDuration <= cfg.FineDuration {
		return nil, fmt.Errorf("coarse interval must be a whole multiple of the fine interval")
	}
	if cfg.Depth <= 0 {
		return nil, fmt.Errorf("buffer depth must be positive")
	}
	return &Aggregator{
		cfg:        cfg,
		logger:     logger,
		fineBars:   make([]*domain.Bar, 0, cfg.Depth),
		coarseBars: make([]*domain.Bar, 0, cfg.Depth),
	}, nil
}

// OnBarClose registers the handler invoked for every finalized bar. The fine
// bar is always delivered before the coarse bar it completes.
func (a *Aggregator) OnBarClose(handler BarHandler) {
	a.handler = handler
}

// IngestBar accepts a pre-built fine bar. In-progress updates (IsFinal=false)
// are ignored; finalized bars are ordered, appended and emitted.
func (a *Aggregator) IngestBar(ctx context.Context, bar *domain.Bar) error {
	if bar == nil {
		return fmt.Errorf("nil bar: %w", ports.ErrInvalidRequest)
	}
	if !bar.IsFinal {
		return nil
	}
	open := bar.OpenTime.Truncate(a.cfg.FineDuration)
	if !a.lastFineOpen.IsZero() {
		if open.Equal(a.lastFineOpen) {
			return fmt.Errorf("bar open %s already ingested: %w", open, ports.ErrDuplicateBar)
		}
		if open.Before(a.lastFineOpen) {
			return fmt.Errorf("bar open %s precedes last open %s: %w", open, a.lastFineOpen, ports.ErrBarOutOfOrder)
		}
	}

	finalized := *bar
	finalized.Symbol = a.cfg.Symbol
	finalized.Interval = a.cfg.FineInterval
	finalized.OpenTime = open
	finalized.CloseTime = open.Add(a.cfg.FineDuration)
	a.closeFine(ctx, &finalized)
	return nil
}

// IngestTick folds one trade tick into the in-progress fine bar, closing and
// emitting it when the tick crosses the bar boundary. Ticks during a gap of
// more than one period simply open a new bar; missing bars are not synthesized.
func (a *Aggregator) IngestTick(ctx context.Context, ts time.Time, price, volume float64) error {
	if price <= 0 || volume < 0 {
		return fmt.Errorf("invalid tick price=%f volume=%f: %w", price, volume, ports.ErrInvalidRequest)
	}
	open := ts.Truncate(a.cfg.FineDuration)
	if !a.lastFineOpen.IsZero() && open.Before(a.lastFineOpen) {
		return fmt.Errorf("tick at %s precedes last bar open %s: %w", ts, a.lastFineOpen, ports.ErrBarOutOfOrder)
	}

	if a.building != nil {
		if open.Before(a.building.OpenTime) {
			return fmt.Errorf("tick at %s precedes in-progress bar open %s: %w", ts, a.building.OpenTime, ports.ErrBarOutOfOrder)
		}
		if open.After(a.building.OpenTime) {
			done := a.building
			done.IsFinal = true
			a.building = nil
			a.closeFine(ctx, done)
		}
	}

	if a.building == nil {
		if !a.lastFineOpen.IsZero() && !open.After(a.lastFineOpen) {
			return fmt.Errorf("tick at %s belongs to an already finalized bar: %w", ts, ports.ErrBarOutOfOrder)
		}
		a.building = &domain.Bar{
			OpenTime:  open,
			CloseTime: open.Add(a.cfg.FineDuration),
			Symbol:    a.cfg.Symbol,
			Interval:  a.cfg.FineInterval,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    volume,
		}
		return nil
	}

	if price > a.building.High {
		a.building.High = price
	}
	if price < a.building.Low {
		a.building.Low = price
	}
	a.building.Close = price
	a.building.Volume += volume
	return nil
}

// closeFine appends a finalized fine bar, emits it, and rolls the coarse
// period forward when its boundary is crossed.
func (a *Aggregator) closeFine(ctx context.Context, bar *domain.Bar) {
	a.lastFineOpen = bar.OpenTime
	a.fineBars = appendBounded(a.fineBars, bar, a.cfg.Depth)

	barCoarseOpen := bar.OpenTime.Truncate(a.cfg.CoarseDuration)
	if len(a.pending) > 0 && !barCoarseOpen.Equal(a.coarseOpen) {
		// The incoming bar starts a new coarse period; finalize the previous
		// one from whatever constituent bars actually arrived.
		a.closeCoarse(ctx)
	}
	a.coarseOpen = barCoarseOpen
	a.pending = append(a.pending, bar)

	if a.handler != nil {
		a.handler(ctx, bar)
	}

	// The coarse bar closes exactly when its last constituent fine bar does.
	if bar.CloseTime.Sub(barCoarseOpen) == a.cfg.CoarseDuration {
		a.closeCoarse(ctx)
	}
}

func (a *Aggregator) closeCoarse(ctx context.Context) {
	if len(a.pending) == 0 {
		return
	}
	coarse := BuildCoarse(a.pending)
	coarse.Symbol = a.cfg.Symbol
	coarse.Interval = a.cfg.CoarseInterval
	coarse.OpenTime = a.coarseOpen
	coarse.CloseTime = a.coarseOpen.Add(a.cfg.CoarseDuration)
	a.pending = a.pending[:0]

	a.coarseBars = appendBounded(a.coarseBars, coarse, a.cfg.Depth)
	if a.handler != nil {
		a.handler(ctx, coarse)
	}
}

// BuildCoarse aggregates a slice of finalized fine bars into one coarse bar:
// open=first open, high=max high, low=min low, close=last close, volume=sum.
// Returns nil for an empty slice.
func BuildCoarse(fine []*domain.Bar) *domain.Bar {
	if len(fine) == 0 {
		return nil
	}
	coarse := &domain.Bar{
		Open:    fine[0].Open,
		High:    fine[0].High,
		Low:     fine[0].Low,
		Close:   fine[len(fine)-1].Close,
		IsFinal: true,
	}
	for _, b := range fine {
		if b.High > coarse.High {
			coarse.High = b.High
		}
		if b.Low < coarse.Low {
			coarse.Low = b.Low
		}
		coarse.Volume += b.Volume
	}
	return coarse
}

// FineHistory returns the buffered fine bars, oldest first. The slice is
// shared; callers must treat it as read-only.
func (a *Aggregator) FineHistory() []*domain.Bar {
	return a.fineBars
}

// CoarseHistory returns the buffered coarse bars, oldest first.
func (a *Aggregator) CoarseHistory() []*domain.Bar {
	return a.coarseBars
}

// appendBounded appends to a ring-like slice, evicting the oldest entry once
// the depth is exceeded.
func appendBounded(bars []*domain.Bar, bar *domain.Bar, depth int) []*domain.Bar {
	bars = append(bars, bar)
	if len(bars) > depth {
		copy(bars, bars[1:])
		bars = bars[:len(bars)-1]
	}
	return bars
}
