// Package service wires the feature extractor to the classifier and turns
// its raw output into a labeled verdict.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"trinayana/packages/classifier"
	"trinayana/packages/domain"
	"trinayana/packages/features"
	"trinayana/packages/metrics"

	"golang.org/x/sync/singleflight"
)

var (
	ErrMissingURL            = errors.New("no URL provided")
	ErrClassifierUnavailable = errors.New("model not loaded")
)

type VerdictCache interface {
	Get(ctx context.Context, rawURL string) (domain.Verdict, bool, error)
	Set(ctx context.Context, rawURL string, v domain.Verdict) error
}

type HistoryRecorder interface {
	Record(rec domain.ScanRecord)
}

// Service is safe for concurrent use. Cache and history are optional.
type Service struct {
	clf     classifier.Classifier
	cache   VerdictCache
	history HistoryRecorder
	group   singleflight.Group
	now     func() time.Time
}

type Option func(*Service)

func WithCache(c VerdictCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithHistory(h HistoryRecorder) Option {
	return func(s *Service) { s.history = h }
}

// New takes the classifier handle produced once at startup. A nil
// classifier is allowed: every prediction then fails with
// ErrClassifierUnavailable.
func New(clf classifier.Classifier, opts ...Option) *Service {
	s := &Service{clf: clf, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PredictURL classifies rawURL and returns the label with the features
// that produced it.
func (s *Service) PredictURL(ctx context.Context, rawURL string) (domain.Verdict, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return domain.Verdict{}, ErrMissingURL
	}

	rec := extract(rawURL)

	if s.clf == nil {
		return domain.Verdict{}, ErrClassifierUnavailable
	}

	if v, ok := s.cached(ctx, rawURL); ok {
		s.recordHistory(rawURL, v)
		return v, nil
	}

	// Coalesced callers share one classification that outlives any of them.
	sharedCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(rawURL, func() (any, error) {
		return s.classify(sharedCtx, rawURL, rec)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return domain.Verdict{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return domain.Verdict{}, res.Err
	}
	if res.Shared {
		slog.Debug("Coalesced concurrent prediction", "url", rawURL)
	}
	v := res.Val.(domain.Verdict)
	s.recordHistory(rawURL, v)
	return v, nil
}

// Extract exposes the extractor with the service's failure logging.
func (s *Service) Extract(rawURL string) features.Record {
	return extract(strings.TrimSpace(rawURL))
}

// extract never fails: a failed extraction is counted, logged and replaced
// by the zero record.
func extract(rawURL string) features.Record {
	rec, err := features.Extract(rawURL)
	if err != nil {
		metrics.ExtractionFailures.Inc()
		slog.Warn("Feature extraction failed, using zero record", "url", rawURL, "error", err)
	}
	return rec
}

func (s *Service) classify(ctx context.Context, rawURL string, rec features.Record) (domain.Verdict, error) {
	start := time.Now()
	prediction, err := s.clf.Predict(ctx, rec)
	metrics.PredictionDuration.WithLabelValues(s.clf.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("classifier %s: %w", s.clf.Name(), err)
	}

	v := domain.Verdict{Result: domain.LabelFor(prediction), Features: rec}
	metrics.Predictions.WithLabelValues(string(v.Result)).Inc()

	if s.cache != nil {
		if err := s.cache.Set(ctx, rawURL, v); err != nil {
			slog.Warn("Failed to cache verdict", "url", rawURL, "error", err)
		}
	}
	return v, nil
}

func (s *Service) cached(ctx context.Context, rawURL string) (domain.Verdict, bool) {
	if s.cache == nil {
		return domain.Verdict{}, false
	}
	v, ok, err := s.cache.Get(ctx, rawURL)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		slog.Warn("Verdict cache lookup failed", "url", rawURL, "error", err)
		return domain.Verdict{}, false
	case ok:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		metrics.Predictions.WithLabelValues(string(v.Result)).Inc()
		return v, true
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return domain.Verdict{}, false
	}
}

func (s *Service) recordHistory(rawURL string, v domain.Verdict) {
	if s.history == nil {
		return
	}
	s.history.Record(domain.ScanRecord{
		URL:              rawURL,
		RegisteredDomain: domain.RegisteredDomain(rawURL),
		Label:            v.Result,
		Features:         v.Features,
		ScannedAt:        s.now().UTC(),
	})
}
