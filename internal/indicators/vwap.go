package indicators

import (
	"fmt"
	"math"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

// VWAPBands holds the session VWAP and its standard-deviation bands.
type VWAPBands struct {
	VWAP   float64
	StdDev float64
	Upper1 float64
	Upper2 float64
	Upper3 float64
	Lower1 float64
	Lower2 float64
	Lower3 float64
}

// SessionVWAP maintains session-anchored VWAP accumulators incrementally.
// The variance is tracked via the raw second moment (sum of v*tp^2), which is
// algebraically identical to sum(v*(tp-vwap)^2)/sum(v).
type SessionVWAP struct {
	sumVol   float64 // cumulative volume, invariant: >= 0
	sumPV    float64 // cumulative volume * typical price
	sumPV2   float64 // cumulative volume * typical price squared
	barCount int
}

// NewSessionVWAP creates an empty session accumulator.
func NewSessionVWAP() *SessionVWAP {
	return &SessionVWAP{}
}

// Reset clears the accumulators at a session boundary.
func (v *SessionVWAP) Reset() {
	v.sumVol = 0
	v.sumPV = 0
	v.sumPV2 = 0
	v.barCount = 0
}

// Update folds one finalized bar into the session accumulators.
func (v *SessionVWAP) Update(bar *domain.Bar) {
	tp := bar.TypicalPrice()
	v.sumVol += bar.Volume
	v.sumPV += tp * bar.Volume
	v.sumPV2 += tp * tp * bar.Volume
	v.barCount++
}

// BarCount returns the number of bars folded in since the last reset.
func (v *SessionVWAP) BarCount() int {
	return v.barCount
}

// Bands returns the current VWAP and bands. Errors until the session has
// traded volume, since VWAP is undefined at zero cumulative volume.
func (v *SessionVWAP) Bands() (VWAPBands, error) {
	if v.sumVol <= 0 {
		return VWAPBands{}, fmt.Errorf("no session volume accumulated: %w", ports.ErrIndicatorNotReady)
	}
	vwap := v.sumPV / v.sumVol
	variance := v.sumPV2/v.sumVol - vwap*vwap
	if variance < 0 {
		// Floating point cancellation can push the moment difference a hair
		// below zero; the true variance is never negative.
		variance = 0
	}
	return bandsFrom(vwap, math.Sqrt(variance)), nil
}

// ComputeSessionVWAP recomputes VWAP and bands from scratch over a session's
// bars using the two-pass definition. Incremental and from-scratch values must
// agree within floating tolerance; the tests hold both paths to that.
func ComputeSessionVWAP(bars []*domain.Bar) (VWAPBands, error) {
	var sumVol, sumPV float64
	for _, bar := range bars {
		sumVol += bar.Volume
		sumPV += bar.TypicalPrice() * bar.Volume
	}
	if sumVol <= 0 {
		return VWAPBands{}, fmt.Errorf("no session volume accumulated: %w", ports.ErrIndicatorNotReady)
	}
	vwap := sumPV / sumVol

	var sumSq float64
	for _, bar := range bars {
		diff := bar.TypicalPrice() - vwap
		sumSq += bar.Volume * diff * diff
	}
	return bandsFrom(vwap, math.Sqrt(sumSq/sumVol)), nil
}

func bandsFrom(vwap, stdDev float64) VWAPBands {
	return VWAPBands{
		VWAP:   vwap,
		StdDev: stdDev,
		Upper1: vwap + stdDev,
		Upper2: vwap + 2*stdDev,
		Upper3: vwap + 3*stdDev,
		Lower1: vwap - stdDev,
		Lower2: vwap - 2*stdDev,
		Lower3: vwap - 3*stdDev,
	}
}
