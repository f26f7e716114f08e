package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/toolsascode/schemaflow/internal/config"
	"github.com/toolsascode/schemaflow/internal/dbfactory"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/queuefactory"
	"github.com/toolsascode/schemaflow/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	if !cfg.Queue.Enabled {
		logger.Fatalf("Queue is not enabled. Set SCHEMAFLOW_QUEUE_ENABLED=true to use the worker")
	}

	res, err := dbfactory.Open(cfg)
	if err != nil {
		logger.Fatalf("Failed to open target database: %v", err)
	}
	defer func() { _ = res.Close() }()

	if err := res.Tracker.Initialize(context.Background()); err != nil {
		logger.Fatalf("Failed to initialize registry: %v", err)
	}

	// The worker runs jobs synchronously, so the executor gets no queue
	exec := dbfactory.NewExecutor(cfg, res)

	q, err := queuefactory.NewQueue(queuefactory.FromConfig(cfg.Queue))
	if err != nil {
		logger.Fatalf("Failed to create queue: %v", err)
	}
	defer func() { _ = q.Close() }()

	w := worker.NewWorker(exec, q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := w.Start(ctx); err != nil {
			logger.Errorf("Worker error: %v", err)
			cancel()
		}
	}()

	logger.Info("Migration worker started. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	logger.Info("Shutting down worker...")
	cancel()

	if err := w.Stop(); err != nil {
		logger.Errorf("Error stopping worker: %v", err)
	}

	logger.Info("Worker stopped")
}
