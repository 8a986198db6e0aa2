package domain

import "time"

// ExperienceSchemaVersion is the version stamped on newly recorded
// experiences. Older rows are upgraded once at load time.
const ExperienceSchemaVersion = 2

// Experience is a recorded (market state, decision, outcome) tuple used for
// similarity-based decisioning. Append-only; never mutated after append.
// Identity is insertion order.
type Experience struct {
	ID         int64         // Insertion order, assigned by the store
	State      MarketState   // Market state captured at entry
	TookTrade  bool          // Whether the trade was actually taken
	PNL        float64       // Realized profit/loss across all partials and final exit
	Duration   time.Duration // Time from entry to full flat
	RecordedAt time.Time     // Close time of the position that produced this record
}

// IsWinner reports whether the recorded outcome was profitable.
func (e *Experience) IsWinner() bool {
	return e.PNL > 0
}

// TradeDecision is the confidence engine's verdict for one candidate signal.
// TakeTrade is the sole, final entry gate; no downstream stage may re-derive
// a go/no-go decision from Confidence.
type TradeDecision struct {
	TakeTrade  bool
	Confidence float64 // Fraction of similar historical experiences that won
	SampleSize int     // Number of neighbors the decision was computed over
	AvgPNL     float64 // Mean PNL of the matched neighbors
	Neutral    bool    // True when the sample was too small and the baseline applied
}
