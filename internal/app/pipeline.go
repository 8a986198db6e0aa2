package app

import (
	"context"
	"fmt"
	"time"

	"meanRevBot/config"
	"meanRevBot/internal/domain"
	"meanRevBot/internal/exits"
	"meanRevBot/internal/experience"
	"meanRevBot/internal/indicators"
	"meanRevBot/internal/market"
	"meanRevBot/internal/ports"
	"meanRevBot/internal/regime"
	"meanRevBot/internal/risk"
	"meanRevBot/internal/signal"
)

// Pipeline is the deterministic per-symbol control loop: aggregation,
// indicators, regime classification, signal detection, the confidence gate
// and exit management, driven one finalized fine bar at a time. The live
// service and the replay runner both feed it through HandleBar, so a recorded
// bar sequence reproduces the exact same decisions either way.
//
// Pipeline is not safe for concurrent use; the caller serializes bars.
type Pipeline struct {
	cfg    *config.Config
	logger ports.Logger

	agg        *market.Aggregator
	indEngine  *indicators.Engine
	classifier *regime.Classifier
	detector   *signal.Detector
	store      *experience.Store
	analyzer   ports.ConfidenceAnalyzer
	risk       *risk.Manager

	machine       *exits.Machine
	warming       bool
	currentRegime domain.Regime
	prevBar       *domain.Bar
	prevSnap      domain.IndicatorSnapshot
	lastBarClose  time.Time

	recentPNLs     []float64
	streak         int
	tradesClosed   int
	signalsSkipped int
}

// NewPipeline wires the full decision chain from configuration. The store is
// shared with the caller so closed trades become visible to later confidence
// queries immediately.
func NewPipeline(cfg *config.Config, logger ports.Logger, store *experience.Store, analyzer ports.ConfidenceAnalyzer) (*Pipeline, error) {
	if cfg == nil || logger == nil || store == nil || analyzer == nil {
		return nil, fmt.Errorf("missing required dependencies for Pipeline")
	}
	if cfg.Quantity <= 0 {
		return nil, fmt.Errorf("configuration Quantity must be positive")
	}

	fineDur, err := config.IntervalDuration(cfg.FineInterval)
	if err != nil {
		return nil, fmt.Errorf("fine interval: %w", err)
	}
	coarseDur, err := config.IntervalDuration(cfg.CoarseInterval)
	if err != nil {
		return nil, fmt.Errorf("coarse interval: %w", err)
	}

	agg, err := market.NewAggregator(market.AggregatorConfig{
		Symbol:         cfg.Symbol,
		FineInterval:   cfg.FineInterval,
		CoarseInterval: cfg.CoarseInterval,
		FineDuration:   fineDur,
		CoarseDuration: coarseDur,
		Depth:          cfg.HistoryDepth,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("aggregator: %w", err)
	}

	indEngine, err := indicators.NewEngine(indicators.EngineConfig{
		RSIPeriod:     cfg.RSIPeriod,
		RSIOversold:   cfg.RSIOversold,
		RSIOverbought: cfg.RSIOverbought,
		ATRPeriod:     cfg.ATRPeriod,
		VolumeWindow:  cfg.VolumeWindow,
		SessionStart:  cfg.SessionStart,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("indicator engine: %w", err)
	}

	classifier, err := regime.NewClassifier(regime.ClassifierConfig{
		ATRPeriod:        cfg.ATRPeriod,
		BaselineWindow:   cfg.RegimeBaselineWindow,
		VolatileATRRatio: cfg.VolatileATRRatio,
		SidewaysATRRatio: cfg.SidewaysATRRatio,
		TrendDriftATRs:   cfg.TrendDriftATRs,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("regime classifier: %w", err)
	}

	detector, err := signal.NewDetector(signal.DetectorConfig{
		RSIOversold:    cfg.RSIOversold,
		RSIOverbought:  cfg.RSIOverbought,
		EntryCutoff:    cfg.EntryCutoff,
		FlattenAt:      cfg.FlattenAt,
		MaintenanceEnd: cfg.MaintenanceEnd,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("signal detector: %w", err)
	}

	riskMgr, err := risk.NewManager(risk.Config{
		MaxDailyLoss:         cfg.MaxDailyLoss,
		MaxTradesPerDay:      cfg.MaxTradesPerDay,
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("risk manager: %w", err)
	}

	p := &Pipeline{
		cfg:           cfg,
		logger:        logger,
		agg:           agg,
		indEngine:     indEngine,
		classifier:    classifier,
		detector:      detector,
		store:         store,
		analyzer:      analyzer,
		risk:          riskMgr,
		currentRegime: domain.RegimeNormal,
	}
	agg.OnBarClose(p.onAggregatedBar)
	return p, nil
}

// HandleBar ingests one fine bar. Non-final bars are ignored; finalized bars
// must arrive in strictly increasing time order.
func (p *Pipeline) HandleBar(ctx context.Context, bar *domain.Bar) error {
	return p.agg.IngestBar(ctx, bar)
}

// HandleTick folds a raw trade tick into the in-progress fine bar.
func (p *Pipeline) HandleTick(ctx context.Context, ts time.Time, price, volume float64) error {
	return p.agg.IngestTick(ctx, ts, price, volume)
}

// Warmup replays historical fine bars through the aggregation and indicator
// chain without ever evaluating entries, so the first live bar starts from a
// fully primed state.
func (p *Pipeline) Warmup(ctx context.Context, bars []*domain.Bar) error {
	p.warming = true
	defer func() { p.warming = false }()
	for _, bar := range bars {
		if err := p.agg.IngestBar(ctx, bar); err != nil {
			return fmt.Errorf("warmup bar at %s: %w", bar.OpenTime, err)
		}
	}
	return nil
}

// RequiredDataPoints returns the fine bar count needed before the indicator
// chain produces ready snapshots.
func (p *Pipeline) RequiredDataPoints() int {
	return p.indEngine.RequiredDataPoints()
}

// OpenPosition returns the currently managed position, or nil when flat.
func (p *Pipeline) OpenPosition() *domain.Position {
	if p.machine == nil {
		return nil
	}
	return p.machine.Position()
}

// TradesClosed returns how many positions the pipeline has flattened.
func (p *Pipeline) TradesClosed() int {
	return p.tradesClosed
}

// SignalsSkipped returns how many candidates the confidence gate rejected.
func (p *Pipeline) SignalsSkipped() int {
	return p.signalsSkipped
}

// onAggregatedBar receives every finalized bar from the aggregator. Coarse
// bars refresh the regime; fine bars drive the decision loop.
func (p *Pipeline) onAggregatedBar(ctx context.Context, bar *domain.Bar) {
	if bar.Interval == p.cfg.CoarseInterval {
		p.reclassify(ctx)
		return
	}
	if err := p.onFineBar(ctx, bar); err != nil {
		p.logger.Error(ctx, err, "Fine bar processing failed", map[string]interface{}{
			"symbol": bar.Symbol, "closeTime": bar.CloseTime})
	}
}

func (p *Pipeline) reclassify(ctx context.Context) {
	next, err := p.classifier.Classify(ctx, p.agg.CoarseHistory())
	if err != nil {
		p.logger.Error(ctx, err, "Regime classification failed")
		return
	}
	if next != p.currentRegime {
		p.logger.Info(ctx, "Regime changed", map[string]interface{}{
			"from": p.currentRegime, "to": next})
		p.currentRegime = next
	}
}

// indicatorPass runs the stale-bar guard and indicator update shared by
// warmup and live processing.
func (p *Pipeline) indicatorPass(ctx context.Context, bar *domain.Bar) (domain.IndicatorSnapshot, error) {
	if !p.lastBarClose.IsZero() && !bar.CloseTime.After(p.lastBarClose) {
		return domain.IndicatorSnapshot{}, fmt.Errorf("bar close %s not after %s: %w",
			bar.CloseTime, p.lastBarClose, ports.ErrStaleDecision)
	}
	p.lastBarClose = bar.CloseTime
	return p.indEngine.OnBarClose(ctx, bar, p.agg.FineHistory())
}

func (p *Pipeline) onFineBar(ctx context.Context, bar *domain.Bar) error {
	snap, err := p.indicatorPass(ctx, bar)
	if err != nil {
		return err
	}
	if p.warming {
		p.rotate(bar, snap)
		return nil
	}

	if p.machine != nil {
		res, advErr := p.machine.Advance(ctx, bar, p.currentRegime)
		if advErr != nil {
			return fmt.Errorf("exit machine: %w", advErr)
		}
		if res.Closed {
			if recErr := p.recordClose(ctx); recErr != nil {
				return recErr
			}
		}
		// No entry evaluation on a bar that touched an open position.
		p.rotate(bar, snap)
		return nil
	}

	if riskErr := p.risk.CanOpen(ctx, bar.CloseTime); riskErr != nil {
		p.logger.Debug(ctx, "Entries halted by risk limits", map[string]interface{}{
			"reason": riskErr.Error()})
		p.rotate(bar, snap)
		return nil
	}

	candidates := p.detector.Evaluate(ctx, signal.BarContext{
		Prev:      p.prevBar,
		Cur:       bar,
		PrevSnap:  p.prevSnap,
		CurSnap:   snap,
		Regime:    p.currentRegime,
		RecentPNL: p.recentPNL(),
		Streak:    p.streak,
	})
	p.rotate(bar, snap)

	for _, cand := range candidates {
		decision, anErr := p.analyzer.Analyze(ctx, cand.State)
		if anErr != nil {
			return fmt.Errorf("confidence analysis: %w", anErr)
		}
		p.logger.Info(ctx, "Candidate evaluated", map[string]interface{}{
			"symbol":     cand.Symbol,
			"side":       cand.Side,
			"entryPrice": cand.EntryPrice,
			"confidence": decision.Confidence,
			"samples":    decision.SampleSize,
			"neutral":    decision.Neutral,
			"takeTrade":  decision.TakeTrade,
		})
		if !decision.TakeTrade {
			p.signalsSkipped++
			continue
		}
		if err := p.open(ctx, cand); err != nil {
			return err
		}
		// One position at a time: the first accepted candidate wins the bar.
		break
	}
	return nil
}

func (p *Pipeline) open(ctx context.Context, cand domain.CandidateSignal) error {
	machine, err := exits.Open(exits.MachineConfig{
		TickSize:          p.cfg.TickSize,
		BreakevenTicks:    p.cfg.BreakevenTicks,
		TrailTicks:        p.cfg.TrailTicks,
		PartialMilestones: p.cfg.PartialMilestones,
		PartialExitPct:    p.cfg.PartialExitPct,
		SidewaysTimeout:   p.cfg.SidewaysTimeout,
		UnderwaterTimeout: p.cfg.UnderwaterTimeout,
		SidewaysMinMoveR:  p.cfg.SidewaysMinMoveR,
		FlattenAt:         p.cfg.FlattenAt,
		Regimes:           p.cfg.Regimes,
	}, p.logger, cand, p.cfg.Quantity)
	if err != nil {
		return fmt.Errorf("opening position: %w", err)
	}
	p.machine = machine
	pos := machine.Position()
	p.logger.Info(ctx, "Position opened", map[string]interface{}{
		"symbol": pos.Symbol,
		"side":   pos.Side,
		"entry":  pos.EntryPrice,
		"stop":   pos.CurrentStop,
		"target": pos.Target,
		"regime": pos.RegimeAtEntry,
	})
	return nil
}

// recordClose converts the flat position into exactly one appended
// experience and rolls the recent-performance bookkeeping forward.
func (p *Pipeline) recordClose(ctx context.Context) error {
	pos := p.machine.Position()
	p.machine = nil
	p.tradesClosed++

	exp := domain.Experience{
		State:      pos.EntryState,
		TookTrade:  true,
		PNL:        pos.RealizedPNL,
		Duration:   pos.ExitTime.Sub(pos.EntryTime),
		RecordedAt: pos.ExitTime,
	}
	if _, err := p.store.Append(ctx, exp); err != nil {
		return fmt.Errorf("recording experience: %w", err)
	}

	p.risk.RecordClose(ctx, pos.RealizedPNL, pos.ExitTime)

	p.recentPNLs = append(p.recentPNLs, pos.RealizedPNL)
	if len(p.recentPNLs) > p.cfg.RecentTradeWindow {
		p.recentPNLs = p.recentPNLs[len(p.recentPNLs)-p.cfg.RecentTradeWindow:]
	}
	if pos.RealizedPNL > 0 {
		if p.streak < 0 {
			p.streak = 0
		}
		p.streak++
	} else {
		if p.streak > 0 {
			p.streak = 0
		}
		p.streak--
	}
	return nil
}

// recentPNL averages the realized PNL of the recent closed-trade window.
func (p *Pipeline) recentPNL() float64 {
	if len(p.recentPNLs) == 0 {
		return 0
	}
	var sum float64
	for _, pnl := range p.recentPNLs {
		sum += pnl
	}
	return sum / float64(len(p.recentPNLs))
}

func (p *Pipeline) rotate(bar *domain.Bar, snap domain.IndicatorSnapshot) {
	p.prevBar = bar
	p.prevSnap = snap
}
