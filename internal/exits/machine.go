package exits

import (
	"context"
	"fmt"
	"time"

	"meanRevBot/config"
	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

// MachineConfig holds the exit-rule parameters. Everything numeric comes from
// configuration; the machine itself only encodes the transition structure.
type MachineConfig struct {
	TickSize          float64
	BreakevenTicks    int
	TrailTicks        int
	PartialMilestones []float64 // Ascending R-multiples
	PartialExitPct    float64   // Fraction of remaining quantity closed per milestone
	SidewaysTimeout   time.Duration
	UnderwaterTimeout time.Duration
	SidewaysMinMoveR  float64
	FlattenAt         time.Duration // Daily hard force-close boundary (offset from midnight UTC)
	Regimes           map[domain.Regime]config.RegimeParams
}

// AdvanceResult reports what one bar close did to the position.
type AdvanceResult struct {
	Closed   bool
	Partials []domain.PartialExit // Milestones that fired on this bar
}

// Machine owns the lifecycle of one accepted position from open to flat. One
// instance per open position; Advance is called exactly once per fine bar
// close, strictly sequentially. All transitions are level-triggered on
// bar-close values; the machine never consults a wall clock.
type Machine struct {
	cfg    MachineConfig
	logger ports.Logger
	pos    *domain.Position

	milestoneFired []bool
	breakevenOn    bool
	trailingOn     bool
	maxExcursion   float64 // Best favorable excursion seen, in price units
}

// Open creates a position and its exit machine from an accepted candidate.
// The initial stop and target derive from the entry ATR and the multiplier
// record of the regime active at entry.
func Open(cfg MachineConfig, logger ports.Logger, sig domain.CandidateSignal, quantity float64) (*Machine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for exit machine")
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("position quantity must be positive")
	}
	if sig.State.ATR <= 0 {
		return nil, fmt.Errorf("entry ATR must be positive")
	}
	params, ok := cfg.Regimes[sig.State.Regime]
	if !ok {
		return nil, fmt.Errorf("no multiplier record for regime %s: %w", sig.State.Regime, ports.ErrUnknownRegime)
	}

	stopDist := sig.State.ATR * params.StopATRMult
	targetDist := stopDist * params.RiskReward
	pos := &domain.Position{
		Symbol:          sig.Symbol,
		Side:            sig.Side,
		Quantity:        quantity,
		InitialQuantity: quantity,
		EntryPrice:      sig.EntryPrice,
		EntryTime:       sig.Timestamp,
		EntryATR:        sig.State.ATR,
		RegimeAtEntry:   sig.State.Regime,
		Regime:          sig.State.Regime,
		State:           domain.StateOpen,
		EntryState:      sig.State,
	}
	if sig.Side == domain.SideLong {
		pos.InitialStop = sig.EntryPrice - stopDist
		pos.Target = sig.EntryPrice + targetDist
	} else {
		pos.InitialStop = sig.EntryPrice + stopDist
		pos.Target = sig.EntryPrice - targetDist
	}
	pos.CurrentStop = pos.InitialStop

	return &Machine{
		cfg:            cfg,
		logger:         logger,
		pos:            pos,
		milestoneFired: make([]bool, len(cfg.PartialMilestones)),
	}, nil
}

// Position returns the managed position. Owned by the machine until flat.
func (m *Machine) Position() *domain.Position {
	return m.pos
}

// Advance applies one finalized fine bar to the open position. Evaluation
// order: forced flatten, regime update, stop touch, target touch, partial
// milestones, breakeven, trailing, timeouts.
func (m *Machine) Advance(ctx context.Context, bar *domain.Bar, regime domain.Regime) (AdvanceResult, error) {
	if !m.pos.IsOpen() {
		return AdvanceResult{}, fmt.Errorf("advance on a flat position: %w", ports.ErrInvalidRequest)
	}
	if !bar.IsFinal {
		return AdvanceResult{}, fmt.Errorf("advance on in-progress bar: %w", ports.ErrBarNotFinal)
	}

	var res AdvanceResult

	if timeOfDay(bar.CloseTime) >= m.cfg.FlattenAt {
		m.close(ctx, bar.Close, bar.CloseTime, domain.CloseReasonForcedFlatten)
		res.Closed = true
		return res, nil
	}

	if regime != m.pos.Regime {
		if err := m.applyRegimeChange(ctx, bar, regime); err != nil {
			return res, err
		}
	}

	if excursion := m.pos.FavorableExcursion(bar.Close); excursion > m.maxExcursion {
		m.maxExcursion = excursion
	}

	if m.stopTouched(bar) {
		reason := domain.CloseReasonStopLoss
		if m.trailingOn {
			reason = domain.CloseReasonTrailingStop
		}
		m.close(ctx, m.pos.CurrentStop, bar.CloseTime, reason)
		res.Closed = true
		return res, nil
	}

	if m.targetTouched(bar) {
		m.close(ctx, m.pos.Target, bar.CloseTime, domain.CloseReasonTarget)
		res.Closed = true
		return res, nil
	}

	res.Partials = m.firePartials(ctx, bar)

	m.updateBreakeven(ctx, bar)
	m.updateTrailing(ctx, bar)

	if closed := m.checkTimeouts(ctx, bar); closed {
		res.Closed = true
		return res, nil
	}

	return res, nil
}

// applyRegimeChange recomputes stop and target from the new regime's
// multipliers against the ATR captured at entry. The target follows the new
// regime freely; the stop may only move away from entry, and regime-driven
// recomputes stop entirely once breakeven has armed.
func (m *Machine) applyRegimeChange(ctx context.Context, bar *domain.Bar, regime domain.Regime) error {
	params, ok := m.cfg.Regimes[regime]
	if !ok {
		return fmt.Errorf("no multiplier record for regime %s: %w", regime, ports.ErrUnknownRegime)
	}
	m.pos.RegimeHistory = append(m.pos.RegimeHistory, domain.RegimeChange{
		Time: bar.CloseTime, From: m.pos.Regime, To: regime})
	prior := m.pos.Regime
	m.pos.Regime = regime

	stopDist := m.pos.EntryATR * params.StopATRMult
	targetDist := stopDist * params.RiskReward
	var proposedStop, proposedTarget float64
	if m.pos.Side == domain.SideLong {
		proposedStop = m.pos.EntryPrice - stopDist
		proposedTarget = m.pos.EntryPrice + targetDist
	} else {
		proposedStop = m.pos.EntryPrice + stopDist
		proposedTarget = m.pos.EntryPrice - targetDist
	}
	m.pos.Target = proposedTarget

	if m.breakevenOn {
		// The stop is already at or past entry; a regime stop would pull it
		// back toward (or through) entry.
		return nil
	}
	if !m.fartherFromEntry(proposedStop) {
		m.logger.Warn(ctx, "Rejected regime stop update: would move toward entry", map[string]interface{}{
			"symbol":      m.pos.Symbol,
			"side":        m.pos.Side,
			"currentStop": m.pos.CurrentStop,
			"proposed":    proposedStop,
			"from":        prior,
			"to":          regime,
			"reason":      ports.ErrStopTighten.Error(),
		})
		return nil
	}
	m.pos.CurrentStop = proposedStop
	m.logger.Info(ctx, "Regime change widened stop", map[string]interface{}{
		"symbol": m.pos.Symbol, "from": prior, "to": regime, "stop": proposedStop, "target": proposedTarget})
	return nil
}

// fartherFromEntry reports whether the proposed stop sits strictly farther
// from the entry price than the current stop, on the losing side.
func (m *Machine) fartherFromEntry(proposed float64) bool {
	if m.pos.Side == domain.SideLong {
		return proposed < m.pos.CurrentStop
	}
	return proposed > m.pos.CurrentStop
}

func (m *Machine) stopTouched(bar *domain.Bar) bool {
	if m.pos.Side == domain.SideLong {
		return bar.Low <= m.pos.CurrentStop
	}
	return bar.High >= m.pos.CurrentStop
}

func (m *Machine) targetTouched(bar *domain.Bar) bool {
	if m.pos.Side == domain.SideLong {
		return bar.High >= m.pos.Target
	}
	return bar.Low <= m.pos.Target
}

// firePartials closes a configured fraction of the remaining quantity at each
// R-multiple milestone the bar close has reached. A milestone fires at most
// once for the life of the position.
func (m *Machine) firePartials(ctx context.Context, bar *domain.Bar) []domain.PartialExit {
	risk := m.pos.RiskPerUnit()
	if risk <= 0 {
		return nil
	}
	rMultiple := m.pos.FavorableExcursion(bar.Close) / risk

	var fired []domain.PartialExit
	for i, milestone := range m.cfg.PartialMilestones {
		if m.milestoneFired[i] || rMultiple < milestone {
			continue
		}
		qty := m.pos.Quantity * m.cfg.PartialExitPct
		pnl := m.slicePNL(bar.Close, qty)
		partial := domain.PartialExit{
			Milestone: milestone,
			Quantity:  qty,
			Price:     bar.Close,
			Time:      bar.CloseTime,
			PNL:       pnl,
		}
		m.milestoneFired[i] = true
		m.pos.Quantity -= qty
		m.pos.RealizedPNL += pnl
		m.pos.PartialExits = append(m.pos.PartialExits, partial)
		m.pos.State = partialState(i)
		fired = append(fired, partial)

		m.logger.Info(ctx, "Partial exit taken", map[string]interface{}{
			"symbol":    m.pos.Symbol,
			"milestone": milestone,
			"quantity":  qty,
			"price":     bar.Close,
			"pnl":       pnl,
			"remaining": m.pos.Quantity,
		})
	}
	return fired
}

func partialState(index int) domain.PositionState {
	switch index {
	case 0:
		return domain.StatePartial1Done
	case 1:
		return domain.StatePartial2Done
	default:
		return domain.StatePartial3Done
	}
}

// updateBreakeven moves the stop to entry once price has traveled the
// configured tick distance in the position's favor. From then on the stop
// never sits on the losing side of entry again.
func (m *Machine) updateBreakeven(ctx context.Context, bar *domain.Bar) {
	if m.breakevenOn {
		return
	}
	trigger := float64(m.cfg.BreakevenTicks) * m.cfg.TickSize
	if m.pos.FavorableExcursion(bar.Close) < trigger {
		return
	}
	m.breakevenOn = true
	if m.profitDirection(m.pos.EntryPrice) {
		m.pos.CurrentStop = m.pos.EntryPrice
	}
	if m.pos.State == domain.StateOpen {
		m.pos.State = domain.StateBreakevenArmed
	}
	m.logger.Info(ctx, "Breakeven armed", map[string]interface{}{
		"symbol": m.pos.Symbol, "stop": m.pos.CurrentStop})
}

// updateTrailing ratchets the stop behind price at the configured tick
// distance once breakeven has armed. The stop is monotonically non-regressing.
func (m *Machine) updateTrailing(ctx context.Context, bar *domain.Bar) {
	if !m.breakevenOn {
		return
	}
	offset := float64(m.cfg.TrailTicks) * m.cfg.TickSize
	var candidate float64
	if m.pos.Side == domain.SideLong {
		candidate = bar.Close - offset
	} else {
		candidate = bar.Close + offset
	}
	if !m.profitDirection(candidate) {
		return
	}
	m.pos.CurrentStop = candidate
	if !m.trailingOn {
		m.trailingOn = true
		m.pos.State = domain.StateTrailingArmed
		m.logger.Info(ctx, "Trailing armed", map[string]interface{}{
			"symbol": m.pos.Symbol, "stop": candidate})
	}
}

// profitDirection reports whether moving the stop to the candidate price is a
// strict improvement in the profit direction.
func (m *Machine) profitDirection(candidate float64) bool {
	if m.pos.Side == domain.SideLong {
		return candidate > m.pos.CurrentStop
	}
	return candidate < m.pos.CurrentStop
}

// checkTimeouts force-flattens stalled or persistently underwater positions.
func (m *Machine) checkTimeouts(ctx context.Context, bar *domain.Bar) bool {
	age := bar.CloseTime.Sub(m.pos.EntryTime)
	risk := m.pos.RiskPerUnit()

	if age >= m.cfg.SidewaysTimeout && risk > 0 && m.maxExcursion/risk < m.cfg.SidewaysMinMoveR {
		m.close(ctx, bar.Close, bar.CloseTime, domain.CloseReasonSidewaysTimeout)
		return true
	}
	if age >= m.cfg.UnderwaterTimeout && m.pos.UnrealizedPNL(bar.Close) < 0 {
		m.close(ctx, bar.Close, bar.CloseTime, domain.CloseReasonUnderwaterExit)
		return true
	}
	return false
}

// close flattens the remaining quantity at the given price and finalizes the
// position. The caller converts the flat position into an Experience.
func (m *Machine) close(ctx context.Context, price float64, at time.Time, reason domain.CloseReason) {
	pnl := m.slicePNL(price, m.pos.Quantity)
	m.pos.RealizedPNL += pnl
	m.pos.Quantity = 0
	m.pos.ExitPrice = price
	m.pos.ExitTime = at
	m.pos.CloseReason = reason
	m.pos.State = domain.StateFlat

	m.logger.Info(ctx, "Position closed", map[string]interface{}{
		"symbol":   m.pos.Symbol,
		"side":     m.pos.Side,
		"reason":   reason,
		"price":    price,
		"pnl":      m.pos.RealizedPNL,
		"duration": at.Sub(m.pos.EntryTime).String(),
	})
}

// slicePNL returns the realized PNL for closing qty at price.
func (m *Machine) slicePNL(price, qty float64) float64 {
	if m.pos.Side == domain.SideLong {
		return (price - m.pos.EntryPrice) * qty
	}
	return (m.pos.EntryPrice - price) * qty
}

// timeOfDay returns the offset from midnight UTC.
func timeOfDay(t time.Time) time.Duration {
	u := t.UTC()
	return time.Duration(u.Hour())*time.Hour +
		time.Duration(u.Minute())*time.Minute +
		time.Duration(u.Second())*time.Second
}
