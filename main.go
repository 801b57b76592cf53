package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"github.com/Viperxl007/TradingStatsDashboard-sub001/config"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/adapters/binanceclient"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/adapters/logger"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/adapters/sqlite"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/app"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/engine"
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
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Price Feed (Binance Adapter)
	feed, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance price feed")
		log.Fatalf("FATAL: Failed to initialize Binance price feed: %v", err)
	}
	appLogger.Info(context.Background(), "Binance price feed initialized")

	// 5. Initialize Lifecycle Controller
	controller, err := engine.NewController(repo, repo, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade lifecycle controller")
		log.Fatalf("FATAL: Failed to initialize trade lifecycle controller: %v", err)
	}
	appLogger.Info(context.Background(), "Trade lifecycle controller initialized")

	// 6. Initialize Application Service
	trackerService, err := app.NewTrackerService(cfg, appLogger, feed, controller)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize tracker service")
		log.Fatalf("FATAL: Failed to initialize tracker service: %v", err)
	}
	appLogger.Info(context.Background(), "Tracker service initialized")

	// 7. Start the Service
	// Use context.Background() as the base context for the application run
	if err := trackerService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Tracker service exited with error")
		log.Fatalf("FATAL: Tracker service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
