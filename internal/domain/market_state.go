package domain

import "time"

// MarketState is the fixed-shape feature vector captured with every candidate
// signal and stored with every experience. It is the unit of comparison for
// similarity search.
type MarketState struct {
	RSI          float64 // Bounded-window RSI at signal time
	VWAPDistance float64 // (close - vwap) / vwap, signed
	ATR          float64 // Average true range in price units
	VolumeRatio  float64 // Bar volume over trailing average volume
	Hour         int     // Hour of day (0-23), from the bar timestamp
	DayOfWeek    int     // Day of week (0=Sunday), from the bar timestamp
	RecentPNL    float64 // Mean realized PNL over the recent closed trades
	Streak       int     // Signed win/loss streak (+n wins, -n losses)
	Side         Side    // Direction of the prospective trade
	Regime       Regime  // Regime classification at signal time
}

// IndicatorSnapshot holds the derived values recomputed at every bar close.
// One live instance per symbol; replaced wholesale on each close.
type IndicatorSnapshot struct {
	VWAP       float64
	VWAPUpper1 float64
	VWAPUpper2 float64
	VWAPUpper3 float64
	VWAPLower1 float64
	VWAPLower2 float64
	VWAPLower3 float64
	RSI        float64
	ATR        float64
	VolRatio   float64

	// Ready is false until every indicator has its full warmup window.
	// Consumers must not read the numeric fields while Ready is false.
	Ready bool
}

// CandidateSignal is an ephemeral entry candidate emitted by the detector and
// consumed immediately by the confidence engine.
type CandidateSignal struct {
	Timestamp  time.Time
	Symbol     string
	Side       Side
	EntryPrice float64
	State      MarketState
}
