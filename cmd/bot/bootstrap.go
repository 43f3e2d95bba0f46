package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"seller-market/internal/logger"
	"seller-market/internal/store"
	"seller-market/internal/tradelog"
)

// initializeSystem loads .env and starts logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	if cfg.DryRun() {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be built but not sent")
	}
	return cfg, nil
}

// compressOldLogs gzips old submission logs if retention is configured
func compressOldLogs(ctx context.Context, rec *tradelog.Recorder, days int) {
	if days <= 0 {
		return
	}
	if err := rec.CompressOlder(days); err != nil {
		logger.Warn(ctx, "Failed to compress old submission logs", "error", err)
	}
}

func shutdown(ctx context.Context) {
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush traces: %v\n", err)
	}
}
