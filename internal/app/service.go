package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"meanRevBot/config"
	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

// TradingService orchestrates the live decision loop: it primes the pipeline
// with history, subscribes to the bar stream and serializes every finalized
// bar through the pipeline.
type TradingService struct {
	cfg      *config.Config
	logger   ports.Logger
	feed     ports.MarketFeed
	pipeline *Pipeline

	mu sync.Mutex // Serializes bar events into the pipeline
}

// NewTradingService creates a new application service instance.
func NewTradingService(cfg *config.Config, logger ports.Logger, feed ports.MarketFeed, pipeline *Pipeline) (*TradingService, error) {
	if cfg == nil || logger == nil || feed == nil || pipeline == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	return &TradingService{
		cfg:      cfg,
		logger:   logger,
		feed:     feed,
		pipeline: pipeline,
	}, nil
}

// Start runs the service until the context is canceled or the stream dies.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	if err := s.feed.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Feed connectivity check failed")
		return fmt.Errorf("feed ping: %w", err)
	}
	serverTime, err := s.feed.GetServerTime(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to fetch feed server time")
		return fmt.Errorf("feed server time: %w", err)
	}
	drift := time.Since(serverTime)
	s.logger.Info(ctx, "Feed reachable", map[string]interface{}{
		"serverTime": serverTime, "clockDrift": drift.String()})

	required := s.pipeline.RequiredDataPoints()
	s.logger.Info(ctx, "Loading warmup history", map[string]interface{}{
		"symbol": s.cfg.Symbol, "interval": s.cfg.FineInterval, "requiredPoints": required})
	history, err := s.feed.GetBars(ctx, s.cfg.Symbol, s.cfg.FineInterval, s.cfg.HistoryDepth)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load warmup history")
		return fmt.Errorf("loading warmup history: %w", err)
	}
	if len(history) < required {
		err := fmt.Errorf("warmup history has %d bars, need at least %d", len(history), required)
		s.logger.Error(ctx, err, "Insufficient historical data")
		return err
	}
	if err := s.pipeline.Warmup(ctx, history); err != nil {
		return fmt.Errorf("pipeline warmup: %w", err)
	}
	s.logger.Info(ctx, "Pipeline warmed up", map[string]interface{}{"bars": len(history)})

	doneCh, stopCh, err := s.feed.StreamBars(ctx, s.cfg.Symbol, s.cfg.FineInterval, s.handleBarEvent, s.handleStreamError)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to start bar stream")
		return fmt.Errorf("starting bar stream: %w", err)
	}
	s.logger.Info(ctx, "Bar stream started", map[string]interface{}{
		"symbol": s.cfg.Symbol, "interval": s.cfg.FineInterval})

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Context cancelled, initiating shutdown...")
		select {
		case stopCh <- struct{}{}:
		default:
			s.logger.Warn(ctx, "Failed to send stop signal to stream (already closed?)")
		}
		select {
		case <-doneCh:
			s.logger.Info(ctx, "Bar stream shut down gracefully")
		case <-time.After(5 * time.Second):
			s.logger.Warn(ctx, "Timeout waiting for bar stream to shut down")
		}
	case <-doneCh:
		s.logger.Error(ctx, fmt.Errorf("stream closed"), "Bar stream stopped unexpectedly")
		return fmt.Errorf("bar stream stopped unexpectedly")
	}

	s.logger.Info(ctx, "Trading Service stopped.")
	return nil
}

// handleBarEvent serializes stream bars into the pipeline. In-progress
// updates are dropped at the aggregator; ordering violations are logged and
// the offending bar is discarded.
func (s *TradingService) handleBarEvent(bar *domain.Bar) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pipeline.HandleBar(ctx, bar); err != nil {
		s.logger.Error(ctx, err, "Bar rejected", map[string]interface{}{
			"symbol":    bar.Symbol,
			"openTime":  bar.OpenTime,
			"closeTime": bar.CloseTime,
			"isFinal":   bar.IsFinal,
		})
	}
}

func (s *TradingService) handleStreamError(err error) {
	ctx := context.Background()
	s.logger.Error(ctx, err, "Bar stream error reported")
}
