package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"meanRevBot/config"
	"meanRevBot/internal/adapters/logger"
	"meanRevBot/internal/analytics"
	"meanRevBot/internal/app"
	"meanRevBot/internal/confidence"
	"meanRevBot/internal/experience"
	"meanRevBot/internal/utils"
)

// Replays a recorded fine-bar CSV through the exact pipeline the live service
// runs. Same bars in, same decisions out; the summary at the end comes from
// the experiences the run recorded.
func main() {
	input := flag.String("input", "", "CSV file of fine bars to replay (required)")
	balance := flag.Float64("balance", 10000, "starting balance for the performance summary")
	flag.Parse()
	if *input == "" {
		log.Fatal("FATAL: -input is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	bars, err := utils.ReadBarsFromCSV(*input)
	if err != nil {
		log.Fatalf("FATAL: Failed to load bars: %v", err)
	}
	appLogger.Info(ctx, "Loaded bars for replay", map[string]interface{}{
		"file": *input, "count": len(bars)})

	// Memory-only store: a replay never touches the live database.
	store, err := experience.NewStore(appLogger, nil)
	if err != nil {
		log.Fatalf("FATAL: Failed to create experience store: %v", err)
	}
	analyzer, err := confidence.NewEngine(confidence.EngineConfig{
		Threshold:     cfg.ConfidenceThreshold,
		MinSampleSize: cfg.MinSampleSize,
		NeighborCount: cfg.NeighborCount,
		Baseline:      cfg.BaselineConfidence,
	}, store, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize confidence engine: %v", err)
	}
	pipeline, err := app.NewPipeline(cfg, appLogger, store, analyzer)
	if err != nil {
		log.Fatalf("FATAL: Failed to build decision pipeline: %v", err)
	}

	started := time.Now()
	for _, bar := range bars {
		if err := pipeline.HandleBar(ctx, bar); err != nil {
			appLogger.Warn(ctx, "Bar rejected during replay", map[string]interface{}{
				"openTime": bar.OpenTime, "error": err.Error()})
		}
	}
	appLogger.Info(ctx, "Replay finished", map[string]interface{}{
		"bars": len(bars), "elapsed": time.Since(started).String(),
		"tradesClosed": pipeline.TradesClosed(), "signalsSkipped": pipeline.SignalsSkipped()})

	metrics := analytics.AnalyzePerformance(store.All(), *balance)

	fmt.Println("===== Replay Summary =====")
	fmt.Printf("Bars replayed:        %d\n", len(bars))
	fmt.Printf("Signals skipped:      %d\n", pipeline.SignalsSkipped())
	fmt.Printf("Trades closed:        %d\n", metrics.TotalTrades)
	fmt.Printf("Win rate:             %.1f%%\n", metrics.WinRate*100)
	fmt.Printf("Total profit:         %.2f\n", metrics.TotalProfit)
	fmt.Printf("Average win:          %.2f\n", metrics.AverageWin)
	fmt.Printf("Average loss:         %.2f\n", metrics.AverageLoss)
	fmt.Printf("Expectancy:           %.2f\n", metrics.Expectancy)
	fmt.Printf("Max drawdown:         %.2f%%\n", metrics.MaxDrawdown*100)
	fmt.Printf("Max consecutive wins: %d\n", metrics.MaxConsecutiveWins)
	fmt.Printf("Max consecutive loss: %d\n", metrics.MaxConsecutiveLosses)
	fmt.Printf("Avg trade duration:   %s\n", metrics.AverageTradeDuration)
	for side, sm := range metrics.BySide {
		fmt.Printf("  %-5s trades=%d winRate=%.1f%% pnl=%.2f\n", side, sm.Trades, sm.WinRate*100, sm.PNL)
	}
	for regime, rm := range metrics.ByRegime {
		fmt.Printf("  %-8s trades=%d winRate=%.1f%% pnl=%.2f\n", regime, rm.Trades, rm.WinRate*100, rm.PNL)
	}
	for _, mr := range metrics.GetMonthlyReturns() {
		fmt.Printf("  %s  %+.2f\n", mr.Month.Format("2006-01"), mr.Return)
	}
}
