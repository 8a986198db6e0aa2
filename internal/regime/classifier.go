package regime

import (
	"context"
	"errors"
	"fmt"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/indicators"
	"meanRevBot/internal/ports"
)

// ClassifierConfig holds the thresholds that partition market conditions into
// the closed regime set.
type ClassifierConfig struct {
	ATRPeriod        int     // Window for the short-horizon ATR
	BaselineWindow   int     // Window for the volatility baseline, > ATRPeriod
	VolatileATRRatio float64 // Short ATR / baseline ATR above this: VOLATILE
	SidewaysATRRatio float64 // Ratio below this with low drift: SIDEWAYS
	TrendDriftATRs   float64 // |close drift| above this many ATRs: TRENDING
}

// Classifier maps the coarse bar window to a market regime. Classification is
// a pure function of the bars passed in; a window too short to classify
// defaults to NORMAL rather than guessing.
type Classifier struct {
	cfg      ClassifierConfig
	logger   ports.Logger
	shortATR *indicators.ATR
	longATR  *indicators.ATR
}

// NewClassifier creates a regime classifier.
func NewClassifier(cfg ClassifierConfig, logger ports.Logger) (*Classifier, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for regime classifier")
	}
	if cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("ATR period must be positive")
	}
	if cfg.BaselineWindow <= cfg.ATRPeriod {
		return nil, fmt.Errorf("baseline window must exceed the ATR period")
	}
	if cfg.VolatileATRRatio <= cfg.SidewaysATRRatio {
		return nil, fmt.Errorf("volatile ATR ratio must exceed sideways ATR ratio")
	}
	if cfg.TrendDriftATRs <= 0 {
		return nil, fmt.Errorf("trend drift threshold must be positive")
	}
	return &Classifier{
		cfg:      cfg,
		logger:   logger,
		shortATR: indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ATRPeriod}}),
		longATR:  indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: cfg.BaselineWindow}}),
	}, nil
}

// Classify derives the active regime from the coarse bar window, oldest first.
func (c *Classifier) Classify(ctx context.Context, coarse []*domain.Bar) (domain.Regime, error) {
	if len(coarse) < c.cfg.BaselineWindow+1 {
		// Too early in the run to tell regimes apart.
		return domain.RegimeNormal, nil
	}

	short, err := c.shortATR.Calculate(ctx, coarse)
	if err != nil {
		return domain.RegimeNormal, c.warmupOrFail(err)
	}
	baseline, err := c.longATR.Calculate(ctx, coarse)
	if err != nil {
		return domain.RegimeNormal, c.warmupOrFail(err)
	}
	if baseline <= 0 || short <= 0 {
		return domain.RegimeNormal, nil
	}

	ratio := short / baseline
	lookback := coarse[len(coarse)-1-c.cfg.ATRPeriod]
	drift := coarse[len(coarse)-1].Close - lookback.Close
	trending := drift > c.cfg.TrendDriftATRs*short || drift < -c.cfg.TrendDriftATRs*short

	switch {
	case ratio > c.cfg.VolatileATRRatio:
		return domain.RegimeVolatile, nil
	case trending:
		return domain.RegimeTrending, nil
	case ratio < c.cfg.SidewaysATRRatio:
		return domain.RegimeSideways, nil
	default:
		return domain.RegimeNormal, nil
	}
}

func (c *Classifier) warmupOrFail(err error) error {
	if errors.Is(err, ports.ErrIndicatorNotReady) {
		return nil
	}
	return err
}
