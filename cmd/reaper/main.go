package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	"trinayana/packages/config"
	"trinayana/packages/db"
	"trinayana/packages/logging"
	"trinayana/packages/metrics"

	"github.com/joho/godotenv"
)

const countRefreshInterval = time.Minute

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("FATAL: Failed to load configuration for logger setup", "error", err)
		os.Exit(1)
	}
	logging.Setup("trinayana-reaper", cfg.LogFile, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("--- Starting Trinayana History Reaper ---")

	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required for the reaper")
		os.Exit(1)
	}
	if cfg.HistoryRetention <= 0 || cfg.PruneInterval <= 0 {
		slog.Error("HISTORY_RETENTION and PRUNE_INTERVAL must be positive",
			"retention", cfg.HistoryRetention, "interval", cfg.PruneInterval)
		os.Exit(1)
	}

	go metrics.ExposeMetrics(cfg.MetricsAddr)

	storage, err := db.New(ctx, cfg.DatabaseURL, db.Config{
		BatchWriteInterval:  cfg.HistoryBatchInterval,
		BatchWriteQueueSize: cfg.HistoryQueueSize,
	})
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	pruneTicker := time.NewTicker(cfg.PruneInterval)
	defer pruneTicker.Stop()

	countTicker := time.NewTicker(countRefreshInterval)
	defer countTicker.Stop()

	slog.Info("Reaper tasks scheduled",
		"prune_interval", cfg.PruneInterval.String(),
		"retention", cfg.HistoryRetention.String(),
		"count_refresh", countRefreshInterval.String(),
	)

	prune(ctx, storage, cfg.HistoryRetention)
	refreshCount(ctx, storage)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received. Exiting...")
			return
		case <-pruneTicker.C:
			prune(ctx, storage, cfg.HistoryRetention)
		case <-countTicker.C:
			refreshCount(ctx, storage)
		}
	}
}

func prune(ctx context.Context, storage *db.Storage, retention time.Duration) {
	removed, err := storage.PruneOlderThan(ctx, retention)
	if err != nil {
		slog.Error("Failed to prune scan history", "error", err)
		return
	}
	metrics.HistoryPruned.Add(float64(removed))
	if removed > 0 {
		slog.Info("Pruned scan history", "removed", removed, "older_than", retention.String())
	}
}

func refreshCount(ctx context.Context, storage *db.Storage) {
	n, err := storage.Count(ctx)
	if err != nil {
		slog.Error("Failed to refresh history row count", "error", err)
		return
	}
	metrics.HistoryRows.Set(float64(n))
}
