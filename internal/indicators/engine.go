package indicators

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

// EngineConfig holds the indicator parameters and the session anchor.
type EngineConfig struct {
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64
	ATRPeriod     int
	VolumeWindow  int
	SessionStart  time.Duration // Offset from midnight UTC at which VWAP resets
}

// Engine recomputes the full indicator snapshot on every fine bar close.
// VWAP is maintained incrementally and session-anchored; RSI, ATR and the
// volume ratio are pure functions of the buffered bar window.
type Engine struct {
	cfg    EngineConfig
	logger ports.Logger

	vwap       *SessionVWAP
	sessionDay time.Time // Identifies the session the accumulators belong to
	rsi        *RSI
	atr        *ATR
	volRatio   *VolumeRatio
}

// NewEngine creates an indicator engine.
func NewEngine(cfg EngineConfig, logger ports.Logger) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for indicator engine")
	}
	if cfg.RSIPeriod <= 0 || cfg.ATRPeriod <= 0 || cfg.VolumeWindow <= 0 {
		return nil, fmt.Errorf("indicator periods must be positive")
	}
	if cfg.RSIOverbought <= cfg.RSIOversold {
		return nil, fmt.Errorf("RSI overbought threshold must exceed oversold threshold")
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		vwap:     NewSessionVWAP(),
		rsi:      NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: cfg.RSIPeriod}, Overbought: cfg.RSIOverbought, Oversold: cfg.RSIOversold}),
		atr:      NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: cfg.ATRPeriod}}),
		volRatio: NewVolumeRatio(VolumeRatioConfig{IndicatorConfig: IndicatorConfig{Period: cfg.VolumeWindow}}),
	}, nil
}

// RequiredDataPoints returns the bar window every indicator needs to be ready.
func (e *Engine) RequiredDataPoints() int {
	max := e.rsi.RequiredDataPoints()
	if n := e.atr.RequiredDataPoints(); n > max {
		max = n
	}
	if n := e.volRatio.RequiredDataPoints(); n > max {
		max = n
	}
	return max
}

// sessionFor returns the session day a timestamp belongs to. Sessions run
// from SessionStart to SessionStart of the next day.
func (e *Engine) sessionFor(t time.Time) time.Time {
	return t.UTC().Add(-e.cfg.SessionStart).Truncate(24 * time.Hour)
}

// OnBarClose folds a finalized fine bar into the session accumulators and
// recomputes the snapshot from the buffered history (oldest first, ending
// with the bar just closed). A snapshot with Ready=false is returned while
// any indicator is still inside its warmup window; numeric fields must not
// be read in that case.
func (e *Engine) OnBarClose(ctx context.Context, bar *domain.Bar, history []*domain.Bar) (domain.IndicatorSnapshot, error) {
	if !bar.IsFinal {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator engine received in-progress bar: %w", ports.ErrBarNotFinal)
	}

	session := e.sessionFor(bar.OpenTime)
	if !session.Equal(e.sessionDay) {
		if !e.sessionDay.IsZero() {
			e.logger.Debug(ctx, "Session boundary crossed, resetting VWAP accumulators",
				map[string]interface{}{"previous": e.sessionDay, "session": session})
		}
		e.vwap.Reset()
		e.sessionDay = session
	}
	e.vwap.Update(bar)

	bands, err := e.vwap.Bands()
	if err != nil {
		if errors.Is(err, ports.ErrIndicatorNotReady) {
			return domain.IndicatorSnapshot{}, nil
		}
		return domain.IndicatorSnapshot{}, err
	}

	rsi, err := e.rsi.Calculate(ctx, history)
	if err != nil {
		return e.notReady(ctx, err)
	}
	atr, err := e.atr.Calculate(ctx, history)
	if err != nil {
		return e.notReady(ctx, err)
	}
	volRatio, err := e.volRatio.Calculate(ctx, history)
	if err != nil {
		return e.notReady(ctx, err)
	}

	return domain.IndicatorSnapshot{
		VWAP:       bands.VWAP,
		VWAPUpper1: bands.Upper1,
		VWAPUpper2: bands.Upper2,
		VWAPUpper3: bands.Upper3,
		VWAPLower1: bands.Lower1,
		VWAPLower2: bands.Lower2,
		VWAPLower3: bands.Lower3,
		RSI:        rsi,
		ATR:        atr,
		VolRatio:   volRatio,
		Ready:      true,
	}, nil
}

// notReady maps warmup shortfalls to a not-ready snapshot; anything else is a
// real failure and propagates.
func (e *Engine) notReady(ctx context.Context, err error) (domain.IndicatorSnapshot, error) {
	if errors.Is(err, ports.ErrIndicatorNotReady) {
		e.logger.Debug(ctx, "Indicators not ready", map[string]interface{}{"reason": err.Error()})
		return domain.IndicatorSnapshot{}, nil
	}
	return domain.IndicatorSnapshot{}, err
}

// SessionBars returns how many bars the current VWAP session has absorbed.
func (e *Engine) SessionBars() int {
	return e.vwap.BarCount()
}
