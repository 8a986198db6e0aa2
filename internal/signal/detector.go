package signal

import (
	"context"
	"fmt"
	"time"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

// DetectorConfig holds the entry-rule thresholds and time-of-day eligibility.
type DetectorConfig struct {
	RSIOversold    float64
	RSIOverbought  float64
	EntryCutoff    time.Duration // No entries at or after this offset from midnight UTC
	FlattenAt      time.Duration // Start of the daily maintenance window
	MaintenanceEnd time.Duration // End of the daily maintenance window
}

// BarContext carries everything one evaluation needs: the previous and
// current closed bars, their indicator snapshots, and the running trade
// bookkeeping the pipeline owns. The detector itself is stateless per bar.
type BarContext struct {
	Prev      *domain.Bar
	Cur       *domain.Bar
	PrevSnap  domain.IndicatorSnapshot
	CurSnap   domain.IndicatorSnapshot
	Regime    domain.Regime
	RecentPNL float64
	Streak    int
}

// Detector evaluates bar-close state against the mean-reversion entry rules
// and emits candidate signals with a market-state snapshot. It applies no
// confidence or probability filtering; take/skip is exclusively the
// confidence engine's call.
type Detector struct {
	cfg    DetectorConfig
	logger ports.Logger
}

// NewDetector creates a signal detector.
func NewDetector(cfg DetectorConfig, logger ports.Logger) (*Detector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for signal detector")
	}
	if cfg.RSIOverbought <= cfg.RSIOversold {
		return nil, fmt.Errorf("RSI overbought threshold must exceed oversold threshold")
	}
	if cfg.EntryCutoff <= 0 {
		return nil, fmt.Errorf("entry cutoff must be set")
	}
	return &Detector{cfg: cfg, logger: logger}, nil
}

// Evaluate checks both entry rules against the closed bar pair. At most one
// signal fires per bar per side; long and short can both fire on the same bar
// and are emitted as independent candidates.
func (d *Detector) Evaluate(ctx context.Context, bc BarContext) []domain.CandidateSignal {
	if bc.Prev == nil || bc.Cur == nil {
		return nil
	}
	// Never fire on not-ready indicators; a placeholder RSI would corrupt the
	// signal statistics every later decision learns from.
	if !bc.PrevSnap.Ready || !bc.CurSnap.Ready {
		return nil
	}
	if !d.entryWindowOpen(bc.Cur.CloseTime) {
		return nil
	}

	var candidates []domain.CandidateSignal

	// LONG: previous bar tagged the lower 2-sigma band, current bar reversed
	// upward, and momentum is oversold. RSI exactly at the threshold is out.
	if bc.Prev.Low <= bc.PrevSnap.VWAPLower2 &&
		bc.Cur.Close > bc.Prev.Close &&
		bc.CurSnap.RSI < d.cfg.RSIOversold {
		candidates = append(candidates, d.candidate(bc, domain.SideLong))
	}

	// SHORT mirrors with the upper band and overbought momentum.
	if bc.Prev.High >= bc.PrevSnap.VWAPUpper2 &&
		bc.Cur.Close < bc.Prev.Close &&
		bc.CurSnap.RSI > d.cfg.RSIOverbought {
		candidates = append(candidates, d.candidate(bc, domain.SideShort))
	}

	for _, c := range candidates {
		d.logger.Info(ctx, "Entry signal detected", map[string]interface{}{
			"symbol": c.Symbol,
			"side":   c.Side,
			"price":  c.EntryPrice,
			"rsi":    c.State.RSI,
			"regime": c.State.Regime,
		})
	}
	return candidates
}

// entryWindowOpen reports whether new entries are allowed at the given
// decision time: before the daily cutoff and outside the maintenance window.
func (d *Detector) entryWindowOpen(t time.Time) bool {
	tod := timeOfDay(t)
	if tod >= d.cfg.EntryCutoff {
		return false
	}
	if tod >= d.cfg.FlattenAt && tod < d.cfg.MaintenanceEnd {
		return false
	}
	return true
}

func (d *Detector) candidate(bc BarContext, side domain.Side) domain.CandidateSignal {
	closeTime := bc.Cur.CloseTime.UTC()
	return domain.CandidateSignal{
		Timestamp:  bc.Cur.CloseTime,
		Symbol:     bc.Cur.Symbol,
		Side:       side,
		EntryPrice: bc.Cur.Close,
		State: domain.MarketState{
			RSI:          bc.CurSnap.RSI,
			VWAPDistance: (bc.Cur.Close - bc.CurSnap.VWAP) / bc.CurSnap.VWAP,
			ATR:          bc.CurSnap.ATR,
			VolumeRatio:  bc.CurSnap.VolRatio,
			Hour:         closeTime.Hour(),
			DayOfWeek:    int(closeTime.Weekday()),
			RecentPNL:    bc.RecentPNL,
			Streak:       bc.Streak,
			Side:         side,
			Regime:       bc.Regime,
		},
	}
}

// timeOfDay returns the offset from midnight UTC.
func timeOfDay(t time.Time) time.Duration {
	u := t.UTC()
	return time.Duration(u.Hour())*time.Hour +
		time.Duration(u.Minute())*time.Minute +
		time.Duration(u.Second())*time.Second
}
