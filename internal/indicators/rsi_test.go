package indicators

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

func closesToBars(start time.Time, closes []float64) []*domain.Bar {
	bars := make([]*domain.Bar, 0, len(closes))
	for i, c := range closes {
		at := start.Add(time.Duration(i) * time.Minute)
		bars = append(bars, &domain.Bar{
			OpenTime:  at,
			CloseTime: at.Add(time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
			IsFinal:   true,
		})
	}
	return bars
}

func TestRSI_Calculate(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		period        int
		closes        []float64
		expectedValue float64
		expectError   bool
	}{
		{
			name:   "mixed gains and losses",
			period: 3,
			closes: []float64{100, 102, 101, 103, 102, 104},
			// Last three changes: +2, -1, +2. avgGain=4/3, avgLoss=1/3, RS=4.
			expectedValue: 80.0,
		},
		{
			name:        "insufficient data",
			period:      7,
			closes:      []float64{100, 102, 101, 103, 102, 104},
			expectError: true,
		},
		{
			name:          "all gains pins to 100",
			period:        3,
			closes:        []float64{100, 102, 104, 106},
			expectedValue: 100.0,
		},
		{
			name:          "all losses pins to 0",
			period:        3,
			closes:        []float64{106, 104, 102, 100},
			expectedValue: 0.0,
		},
		{
			name:          "flat closes count as no losses",
			period:        3,
			closes:        []float64{100, 100, 100, 100},
			expectedValue: 100.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: tt.period}, Overbought: 65, Oversold: 35})
			value, err := rsi.Calculate(context.Background(), closesToBars(start, tt.closes))
			if tt.expectError {
				if err == nil {
					t.Fatal("expected an error, got none")
				}
				if !errors.Is(err, ports.ErrIndicatorNotReady) {
					t.Errorf("expected ErrIndicatorNotReady, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(value-tt.expectedValue) > 1e-6 {
				t.Errorf("expected RSI %.6f, got %.6f", tt.expectedValue, value)
			}
		})
	}
}

func TestRSI_BoundedWindowIsReproducible(t *testing.T) {
	// The value from a long history must equal the value recomputed from only
	// the last period+1 bars.
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	closes := []float64{100, 103, 99, 104, 101, 105, 98, 102, 100, 103, 101, 99, 104, 102}
	period := 5

	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: period}, Overbought: 65, Oversold: 35})
	full, err := rsi.Calculate(context.Background(), closesToBars(start, closes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tail, err := rsi.Calculate(context.Background(), closesToBars(start, closes[len(closes)-period-1:]))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(full-tail) > 1e-9 {
		t.Errorf("full history RSI %.9f differs from tail RSI %.9f", full, tail)
	}
}

func TestRSI_ThresholdBoundariesExcluded(t *testing.T) {
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 10}, Overbought: 65, Oversold: 35})

	if rsi.IsOversold(35.0) {
		t.Error("RSI exactly at the oversold threshold must not count as oversold")
	}
	if !rsi.IsOversold(34.999) {
		t.Error("RSI below the oversold threshold must count as oversold")
	}
	if rsi.IsOverbought(65.0) {
		t.Error("RSI exactly at the overbought threshold must not count as overbought")
	}
	if !rsi.IsOverbought(65.001) {
		t.Error("RSI above the overbought threshold must count as overbought")
	}
}
