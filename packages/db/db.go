// Package db
package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"trinayana/packages/domain"
	"trinayana/packages/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

var historyColumns = []string{"url", "registered_domain", "result", "features", "scanned_at"}

type Storage struct {
	DB           *pgxpool.Pool
	cfg          Config
	historyQueue chan domain.ScanRecord
	writerDone   chan struct{}
	flush        func(ctx context.Context, batch []domain.ScanRecord)
}

type Config struct {
	BatchWriteInterval  time.Duration
	BatchWriteQueueSize int
}

// New connects, ensures the schema and starts the history writer. The
// writer runs until Close.
func New(ctx context.Context, databaseURL string, cfg Config) (*Storage, error) {
	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	s := &Storage{
		DB:           db,
		cfg:          cfg,
		historyQueue: make(chan domain.ScanRecord, cfg.BatchWriteQueueSize),
		writerDone:   make(chan struct{}),
	}
	s.flush = s.writeBatch
	s.startWriter(ctx)

	return s, nil
}

// startWriter runs the history writer detached from ctx cancellation so
// records queued during shutdown are still written. Only stopWriter ends it.
func (s *Storage) startWriter(ctx context.Context) {
	go s.databaseWriter(context.WithoutCancel(ctx))
	slog.Info("History writer goroutine started")
}

// stopWriter closes the queue and waits for the final batch to be written.
func (s *Storage) stopWriter() {
	close(s.historyQueue)
	<-s.writerDone
}

// Close flushes pending history and closes the pool. Record must not be
// called after Close.
func (s *Storage) Close() {
	s.stopWriter()
	s.DB.Close()
}

func (s *Storage) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// Record queues a scan for the writer without blocking.
func (s *Storage) Record(rec domain.ScanRecord) {
	select {
	case s.historyQueue <- rec:
	default:
		metrics.HistoryDropped.Inc()
		slog.Warn("History queue is full. Dropping scan record.", "url", rec.URL)
	}
}

func (s *Storage) databaseWriter(ctx context.Context) {
	defer close(s.writerDone)
	ticker := time.NewTicker(s.cfg.BatchWriteInterval)
	defer ticker.Stop()
	var batch []domain.ScanRecord

	for {
		select {
		case rec, ok := <-s.historyQueue:
			if !ok {
				if len(batch) > 0 {
					slog.Info("History writer: Final write on shutdown...", "rows", len(batch))
					s.flush(ctx, batch)
				}
				slog.Info("History writer: Queue closed, exiting.")
				return
			}
			batch = s.drain(append(batch, rec))
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

// drain moves whatever is already queued into batch without waiting.
func (s *Storage) drain(batch []domain.ScanRecord) []domain.ScanRecord {
	for {
		select {
		case rec, ok := <-s.historyQueue:
			if !ok {
				return batch
			}
			batch = append(batch, rec)
		default:
			return batch
		}
	}
}

func (s *Storage) writeBatch(ctx context.Context, batch []domain.ScanRecord) {
	rows := make([][]any, 0, len(batch))
	for _, rec := range batch {
		featureJSON, err := json.Marshal(rec.Features)
		if err != nil {
			slog.Warn("History writer: Could not encode features", "url", rec.URL, "error", err)
			continue
		}
		rows = append(rows, []any{rec.URL, rec.RegisteredDomain, string(rec.Label), featureJSON, rec.ScannedAt})
	}

	err := s.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"scan_history"}, historyColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to bulk insert scan history: %w", err)
		}
		return nil
	})

	if err != nil {
		slog.Error("History writer: Transaction failed", "error", err, "rows", len(rows))
	} else {
		slog.Debug("History writer: Successfully committed batch", "rows", len(rows))
	}
}

// Recent returns up to limit history rows, newest first.
func (s *Storage) Recent(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, url, registered_domain, result, features, scanned_at
		FROM scan_history
		ORDER BY scanned_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan history: %w", err)
	}
	defer rows.Close()

	records := []domain.ScanRecord{}
	for rows.Next() {
		var (
			rec         domain.ScanRecord
			label       string
			featureJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.RegisteredDomain, &label, &featureJSON, &rec.ScannedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.Label = domain.Label(label)
		if err := json.Unmarshal(featureJSON, &rec.Features); err != nil {
			return nil, fmt.Errorf("failed to decode features of history row %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Storage) Clear(ctx context.Context) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM scan_history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear scan history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	tag, err := s.DB.Exec(ctx, `DELETE FROM scan_history WHERE scanned_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune scan history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM scan_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count scan history: %w", err)
	}
	return n, nil
}
