package indicators

import (
	"context"
	"fmt"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

// VolumeRatioConfig holds configuration for the volume ratio baseline
type VolumeRatioConfig struct {
	IndicatorConfig
}

// VolumeRatio compares the latest bar's volume against the trailing average
// volume of the preceding window. A ratio above 1 means above-baseline volume.
type VolumeRatio struct {
	config VolumeRatioConfig
}

// NewVolumeRatio creates a new volume ratio indicator instance
func NewVolumeRatio(config VolumeRatioConfig) *VolumeRatio {
	return &VolumeRatio{config: config}
}

// Name returns the name of the indicator
func (v *VolumeRatio) Name() string {
	return "VolumeRatio"
}

// RequiredDataPoints returns the minimum number of bars needed for calculation.
// The trailing baseline excludes the current bar, so one extra bar is needed.
func (v *VolumeRatio) RequiredDataPoints() int {
	return v.config.Period + 1
}

// Calculate computes current bar volume over the trailing average volume.
func (v *VolumeRatio) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	period := v.config.Period
	if len(bars) < period+1 {
		return 0, fmt.Errorf("not enough data (%d) to calculate volume ratio for window %d: %w",
			len(bars), period, ports.ErrIndicatorNotReady)
	}

	current := bars[len(bars)-1]
	trailing := bars[len(bars)-1-period : len(bars)-1]

	var sum float64
	for _, bar := range trailing {
		sum += bar.Volume
	}
	avg := sum / float64(period)
	if avg <= 0 {
		// A dead trailing window gives no baseline to compare against.
		return 0, fmt.Errorf("trailing average volume is zero: %w", ports.ErrIndicatorNotReady)
	}

	return current.Volume / avg, nil
}
