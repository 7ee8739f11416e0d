// syncd is the sync engine daemon: it owns the local store, converges it
// against the configured remote backend on a periodic schedule, and
// accepts on-demand sync requests over AMQP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"spend/internal/amqp"
	"spend/internal/backend"
	"spend/internal/config"
	"spend/internal/log"
	"spend/internal/observe"
	"spend/internal/services"
	"spend/internal/storage"
	"spend/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     cfg.SlogLevel(),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	logger.Info("starting syncd",
		"backend", cfg.RemoteBackend,
		"db_path", cfg.SQLiteDBPath,
		"sync_interval", cfg.SyncInterval)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local store
	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("failed to open local store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	// Remote backend
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("failed to initialize remote backend", "error", err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	// Reactive surface, fed by store change notifications
	hub := observe.NewHub(store)
	store.OnChange(hub.RecordsChanged)

	// Orchestrator
	opts := []services.Option{services.WithBatchSize(cfg.SyncBatchSize)}
	if cfg.ProbeURL != "" {
		opts = append(opts, services.WithConnectivity(
			services.NewHTTPProbe(cfg.ProbeURL, cfg.ProbeTimeout)))
	}
	orch := services.NewOrchestrator(store, result.Backend, hub, opts...)

	// Background convergence loop
	syncWorker := worker.NewSyncWorker(orch, store, cfg.SyncInterval)
	if err := syncWorker.Start(ctx); err != nil {
		logger.Error("failed to start sync worker", "error", err)
		os.Exit(1)
	}
	defer syncWorker.Stop()

	// On-demand sync requests over AMQP (optional)
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			err := amqpClient.ConsumeSyncRequests(ctx, func(msg *amqp.SyncRequestMessage) error {
				return syncWorker.HandleSyncRequest(ctx, msg)
			})
			if err != nil && err != context.Canceled {
				logger.Error("sync request consumption failed", "error", err)
				cancel()
			}
		}()
		logger.Info("consuming sync requests", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, periodic sweep only")
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	logger.Info("syncd stopped")
}
