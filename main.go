// Package main
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"trinayana/packages/api"
	"trinayana/packages/cache"
	"trinayana/packages/classifier"
	"trinayana/packages/config"
	"trinayana/packages/crawler"
	"trinayana/packages/db"
	"trinayana/packages/logging"
	"trinayana/packages/metrics"
	"trinayana/packages/service"
	"trinayana/packages/worker"

	"github.com/joho/godotenv"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("FATAL: Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup("trinayana-api", cfg.LogFile, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("--- Starting Trinayana Phishing Detection API ---")

	go metrics.ExposeMetrics(cfg.MetricsAddr)

	clf, err := classifier.Load(cfg)
	if err != nil {
		slog.Error("Model not loaded, predictions will fail until restart", "error", err)
	}

	var opts []service.Option
	if cfg.RedisAddr != "" {
		verdictCache, err := cache.New(ctx, cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.CacheKeyPrefix,
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			slog.Warn("Verdict cache disabled", "error", err)
		} else {
			defer verdictCache.Close()
			opts = append(opts, service.WithCache(verdictCache))
			slog.Info("Verdict cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
		}
	}

	server := &api.Server{
		Limiter: api.NewClientLimiter(cfg.RateLimitQPS, cfg.RateLimitBurst),
	}

	if cfg.DatabaseURL != "" {
		storage, err := db.New(ctx, cfg.DatabaseURL, db.Config{
			BatchWriteInterval:  cfg.HistoryBatchInterval,
			BatchWriteQueueSize: cfg.HistoryQueueSize,
		})
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer storage.Close()
		opts = append(opts, service.WithHistory(storage))
		server.History = storage
	}

	svc := service.New(clf, opts...)
	server.Predictor = svc
	server.Scanner = worker.New(worker.Config{
		MaxWorkers:       cfg.MaxWorkers,
		MaxLinks:         cfg.PageScanMaxLinks,
		IgnoreExtensions: cfg.IgnoreExtensions,
	}, svc, crawler.New(cfg.FetchTimeout, cfg.FetchAllowPrivate))

	go server.Limiter.StartCleanupRoutine(ctx)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API listening", "address", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received. Exiting...")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
