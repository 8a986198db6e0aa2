package indicators

import (
	"context"
	"fmt"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI implements a bounded-window Relative Strength Index. Unlike the classic
// running Wilder RSI, the averages are taken over exactly the last Period
// price changes, so the value is a pure function of the buffered bar window
// and recomputing from scratch always matches the live value.
type RSI struct {
	BaseIndicator
	config RSIConfig
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "RSI"
}

// RequiredDataPoints returns the minimum number of bars needed for calculation.
// RSI needs one bar more than its period to form the first price change.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate computes the RSI value over the last Period closed-bar changes.
func (r *RSI) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	period := r.Config.Period
	if len(bars) < period+1 {
		return 0, fmt.Errorf("not enough data (%d) to calculate RSI for period %d: %w",
			len(bars), period, ports.ErrIndicatorNotReady)
	}

	window := bars[len(bars)-period-1:]

	var avgGain, avgLoss float64
	for i := 1; i < len(window); i++ {
		change := window[i].Close - window[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// An all-gain window pins RSI to its maximum.
	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))

	// Ensure RSI is within bounds
	if rsi > 100 {
		rsi = 100
	} else if rsi < 0 {
		rsi = 0
	}

	return rsi, nil
}

// IsOverbought checks if the RSI value indicates an overbought condition.
// The boundary value itself is not overbought.
func (r *RSI) IsOverbought(value float64) bool {
	return value > r.config.Overbought
}

// IsOversold checks if the RSI value indicates an oversold condition.
// The boundary value itself is not oversold.
func (r *RSI) IsOversold(value float64) bool {
	return value < r.config.Oversold
}
