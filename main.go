package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"meanRevBot/config"
	"meanRevBot/internal/adapters/binanceclient"
	"meanRevBot/internal/adapters/logger"
	"meanRevBot/internal/adapters/sqlite"
	"meanRevBot/internal/app"
	"meanRevBot/internal/confidence"
	"meanRevBot/internal/experience"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Load the Experience Store
	store, err := experience.NewStore(appLogger, repo)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to create experience store")
		log.Fatalf("FATAL: Failed to create experience store: %v", err)
	}
	if err := store.Load(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load experiences")
		log.Fatalf("FATAL: Failed to load experiences: %v", err)
	}
	appLogger.Info(context.Background(), "Experience store loaded", map[string]interface{}{"count": store.Count()})

	// 5. Initialize Confidence Engine
	analyzer, err := confidence.NewEngine(confidence.EngineConfig{
		Threshold:     cfg.ConfidenceThreshold,
		MinSampleSize: cfg.MinSampleSize,
		NeighborCount: cfg.NeighborCount,
		Baseline:      cfg.BaselineConfidence,
	}, store, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize confidence engine")
		log.Fatalf("FATAL: Failed to initialize confidence engine: %v", err)
	}

	// 6. Initialize Market Feed (Binance Adapter)
	feed, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 7. Build the Decision Pipeline
	pipeline, err := app.NewPipeline(cfg, appLogger, store, analyzer)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to build decision pipeline")
		log.Fatalf("FATAL: Failed to build decision pipeline: %v", err)
	}

	// 8. Initialize and Start the Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, feed, pipeline)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	if err := tradingService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
