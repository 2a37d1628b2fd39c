package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"

	"krakenTrailBot/config"
	"krakenTrailBot/internal/adapters/binanceclient"
	"krakenTrailBot/internal/adapters/krakenclient"
	"krakenTrailBot/internal/adapters/logger"
	"krakenTrailBot/internal/adapters/sqlite"
	"krakenTrailBot/internal/app"
	"krakenTrailBot/internal/metrics"
	"krakenTrailBot/internal/orders"
	"krakenTrailBot/internal/ports"
	"krakenTrailBot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})
	appLogger.Info(ctx, "Bot configuration", map[string]interface{}{
		"exchange":     cfg.Exchange,
		"baseCurrency": cfg.BaseCurrency,
		"pollInterval": cfg.PollInterval.String(),
		"dryRun":       cfg.DryRun,
	})

	// 3. Initialize Ledger Store (SQLite Adapter)
	ledger, err := sqlite.NewLedger(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize ledger store")
		log.Fatalf("FATAL: Failed to initialize ledger store: %v", err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing ledger store")
		}
	}()
	appLogger.Info(ctx, "Ledger store initialized")

	// 4. Initialize Exchange Client
	var exchange ports.ExchangeClient
	switch cfg.Exchange {
	case config.ExchangeBinance:
		exchange, err = binanceclient.New(binanceclient.Config{
			APIKey:     cfg.BinanceAPIKey,
			SecretKey:  cfg.BinanceAPISecret,
			UseTestnet: cfg.BinanceTestnet,
			Logger:     appLogger,
		})
	default:
		exchange, err = krakenclient.New(krakenclient.Config{
			APIKey:    cfg.KrakenAPIKey,
			APISecret: cfg.KrakenAPISecret,
			Logger:    appLogger,
		})
	}
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize exchange client")
		log.Fatalf("FATAL: Failed to initialize exchange client: %v", err)
	}
	if err := exchange.Ping(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Exchange is unreachable")
		log.Fatalf("FATAL: Exchange is unreachable: %v", err)
	}
	appLogger.Info(ctx, "Exchange client initialized", map[string]interface{}{"exchange": cfg.Exchange})

	// 5. Initialize Exit Strategy
	exitStrategy, err := strategy.New(strategy.Config{
		StopLossPct:     cfg.StopLossPct,
		ArmThresholdPct: cfg.ArmThresholdPct,
		TrailingDropPct: cfg.TrailingDropPct,
		FeeBufferPct:    cfg.FeeBufferPct,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize exit strategy")
		log.Fatalf("FATAL: Failed to initialize exit strategy: %v", err)
	}

	// 6. Initialize Order Executor
	executor, err := orders.New(exchange, appLogger, cfg.DryRun)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize order executor")
		log.Fatalf("FATAL: Failed to initialize order executor: %v", err)
	}

	// 7. Initialize Reconciler and Service
	reconciler, err := app.NewReconciler(cfg.BaseCurrency, appLogger, exchange, ledger, exitStrategy, executor)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize reconciler")
		log.Fatalf("FATAL: Failed to initialize reconciler: %v", err)
	}
	service, err := app.NewService(appLogger, reconciler, cfg.PollInterval, cfg.RetryMinDelay, cfg.RetryMaxDelay)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize service")
		log.Fatalf("FATAL: Failed to initialize service: %v", err)
	}

	// 8. Optionally expose Prometheus metrics
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			appLogger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				appLogger.Error(ctx, err, "Metrics endpoint stopped")
			}
		}()
	}

	// 9. Start the Service
	if err := service.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Service exited with error")
		log.Fatalf("FATAL: Service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
