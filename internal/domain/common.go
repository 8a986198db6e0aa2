package domain

// Side represents the direction of a signal or position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// IsValid reports whether the side is one of the two known values.
func (s Side) IsValid() bool {
	return s == SideLong || s == SideShort
}

// Regime is a discrete market-condition classification governing exit multipliers.
type Regime string

const (
	RegimeNormal   Regime = "NORMAL"
	RegimeVolatile Regime = "VOLATILE"
	RegimeTrending Regime = "TRENDING"
	RegimeSideways Regime = "SIDEWAYS"
)

// AllRegimes lists every member of the closed regime set. Configuration
// validation iterates this to guarantee the multiplier table is exhaustive.
var AllRegimes = []Regime{RegimeNormal, RegimeVolatile, RegimeTrending, RegimeSideways}

// IsValid reports whether the regime is a member of the closed set.
func (r Regime) IsValid() bool {
	for _, known := range AllRegimes {
		if r == known {
			return true
		}
	}
	return false
}

// PositionState represents the lifecycle stage of an open position.
type PositionState string

const (
	StateOpen           PositionState = "OPEN"
	StateBreakevenArmed PositionState = "BREAKEVEN_ARMED"
	StateTrailingArmed  PositionState = "TRAILING_ARMED"
	StatePartial1Done   PositionState = "PARTIAL_1_DONE"
	StatePartial2Done   PositionState = "PARTIAL_2_DONE"
	StatePartial3Done   PositionState = "PARTIAL_3_DONE"
	StateFlat           PositionState = "FLAT"
)

// CloseReason indicates why a position (or part of it) was closed.
type CloseReason string

const (
	CloseReasonStopLoss        CloseReason = "SL"
	CloseReasonTarget          CloseReason = "TP"
	CloseReasonTrailingStop    CloseReason = "TRAILING_STOP"
	CloseReasonPartial         CloseReason = "PARTIAL"
	CloseReasonSidewaysTimeout CloseReason = "SIDEWAYS_TIMEOUT"
	CloseReasonUnderwaterExit  CloseReason = "UNDERWATER_TIMEOUT"
	CloseReasonSessionEnd      CloseReason = "SESSION_END"
	CloseReasonForcedFlatten   CloseReason = "FORCED_FLATTEN"
	CloseReasonManual          CloseReason = "MANUAL"
)
