package main

import (
	"context"
	"log"
	"time"

	"mt5dash/config"
	"mt5dash/internal/adapters/logger"
	"mt5dash/internal/adapters/mt5bridge"
	"mt5dash/internal/adapters/sqlite"
	"mt5dash/internal/app"
)

// backfill mirrors the full deal history of every configured account into
// the local cache so the dashboard can serve analytics while the bridge is
// down.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	bridge, err := mt5bridge.New(mt5bridge.Config{
		BaseURL:              cfg.BridgeURL,
		Logger:               appLogger,
		HTTPTimeout:          cfg.HTTPTimeout,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize bridge client: %v", err)
	}

	service, err := app.NewService(cfg, appLogger, bridge, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize service: %v", err)
	}
	defer service.Close()

	ctx := context.Background()
	start := time.Now()
	if err := service.Backfill(ctx, time.Time{}); err != nil {
		log.Fatalf("FATAL: Backfill failed: %v", err)
	}
	appLogger.Info(ctx, "Backfill complete", map[string]interface{}{
		"accounts": len(cfg.Accounts),
		"elapsed":  time.Since(start).String(),
	})
}
