package domain

import "time"

// PartialExit records one partial close taken at an R-multiple milestone.
type PartialExit struct {
	Milestone float64   // R-multiple that triggered the exit (e.g., 2.0)
	Quantity  float64   // Quantity closed at this milestone
	Price     float64   // Fill price used for the partial close
	Time      time.Time // Bar close time at which the milestone fired
	PNL       float64   // Realized PNL for this slice
}

// RegimeChange records one regime transition observed while a position was open.
type RegimeChange struct {
	Time time.Time
	From Regime
	To   Regime
}

// Position represents an open trade managed by the exit state machine. It is
// owned exclusively by its state machine instance for its lifetime: created on
// a take decision, mutated through exit events, converted to an Experience on
// full flat.
type Position struct {
	Symbol          string
	Side            Side
	Quantity        float64 // Remaining open quantity
	InitialQuantity float64
	EntryPrice      float64
	EntryTime       time.Time
	InitialStop     float64
	CurrentStop     float64
	Target          float64
	EntryATR        float64 // ATR captured at entry; stop/target recomputes use this
	RegimeAtEntry   Regime
	Regime          Regime // Currently active regime
	RegimeHistory   []RegimeChange
	PartialExits    []PartialExit
	State           PositionState
	EntryState      MarketState // Feature snapshot recorded with the closing Experience

	RealizedPNL float64   // Accumulated over partials and final exit
	ExitPrice   float64   // Final exit fill (0 while open)
	ExitTime    time.Time // Zero value while open
	CloseReason CloseReason
}

// IsOpen reports whether the position still has quantity in the market.
func (p *Position) IsOpen() bool {
	return p.State != StateFlat
}

// RiskPerUnit returns the entry-to-initial-stop distance, the denominator of
// every R-multiple computation.
func (p *Position) RiskPerUnit() float64 {
	if p.Side == SideLong {
		return p.EntryPrice - p.InitialStop
	}
	return p.InitialStop - p.EntryPrice
}

// UnrealizedPNL returns the open PNL of the remaining quantity at the given price.
func (p *Position) UnrealizedPNL(price float64) float64 {
	if p.Side == SideLong {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}

// FavorableExcursion returns how far the given price has moved in the
// position's favor, in price units. Negative when the position is underwater.
func (p *Position) FavorableExcursion(price float64) float64 {
	if p.Side == SideLong {
		return price - p.EntryPrice
	}
	return p.EntryPrice - price
}
