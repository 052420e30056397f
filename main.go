package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"mt5dash/config"
	"mt5dash/internal/adapters/logger"
	"mt5dash/internal/adapters/mt5bridge"
	"mt5dash/internal/adapters/sqlite"
	"mt5dash/internal/app"
	"mt5dash/internal/web"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Terminal Bridge Client
	bridge, err := mt5bridge.New(mt5bridge.Config{
		BaseURL:              cfg.BridgeURL,
		Logger:               appLogger,
		HTTPTimeout:          cfg.HTTPTimeout,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize bridge client")
		log.Fatalf("FATAL: Failed to initialize bridge client: %v", err)
	}

	// 5. Initialize Application Service
	service, err := app.NewService(cfg, appLogger, bridge, repo)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize service")
		log.Fatalf("FATAL: Failed to initialize service: %v", err)
	}
	defer service.Close()

	// 6. Initialize HTTP Server
	server, err := web.NewServer(web.Config{
		Addr:      cfg.HTTPAddr,
		Dashboard: service,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize HTTP server")
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}

	// 7. Serve until interrupted
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLogger.Info(context.Background(), "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			appLogger.Error(context.Background(), err, "HTTP server exited with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, err, "Error during HTTP server shutdown")
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
