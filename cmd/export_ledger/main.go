package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"krakenTrailBot/config"
	"krakenTrailBot/internal/adapters/logger"
	"krakenTrailBot/internal/adapters/sqlite"
	"krakenTrailBot/internal/utils"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	// 3. Open the ledger and dump it
	ledger, err := sqlite.NewLedger(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open ledger store: %v", err)
	}
	defer ledger.Close()

	records, err := ledger.ReadAll(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error reading ledger")
		log.Fatalf("Error reading ledger: %v", err)
	}
	appLogger.Info(ctx, "Ledger loaded", map[string]interface{}{"records": len(records)})

	if err := os.MkdirAll("data", 0755); err != nil {
		log.Fatalf("Error creating data directory: %v", err)
	}
	filename := fmt.Sprintf("data/ledger_%s.csv", time.Now().UTC().Format("20060102_150405"))
	if err := utils.WriteLedgerToCSV(records, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Ledger exported", map[string]interface{}{"filename": filename})
}
