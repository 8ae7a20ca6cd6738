// Package worker
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"trinayana/packages/crawler"
	"trinayana/packages/domain"
	"trinayana/packages/features"

	"golang.org/x/sync/errgroup"
)

var ErrNotHTML = errors.New("page is not HTML")

type Predictor interface {
	PredictURL(ctx context.Context, rawURL string) (domain.Verdict, error)
}

type Config struct {
	MaxWorkers       int
	MaxLinks         int
	IgnoreExtensions []string
}

type Worker struct {
	cfg       Config
	predictor Predictor
	crawler   *crawler.Crawler
}

func New(cfg Config, predictor Predictor, crawler *crawler.Crawler) *Worker {
	return &Worker{
		cfg:       cfg,
		predictor: predictor,
		crawler:   crawler,
	}
}

// ScanPage fetches pageURL and classifies every outbound link on it.
// Per-link failures are reported on the link; only fetch failures fail the
// scan.
func (w *Worker) ScanPage(ctx context.Context, pageURL string) (domain.PageScan, error) {
	page, err := w.crawler.FetchPage(ctx, pageURL)
	if err != nil {
		return domain.PageScan{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if page.IsNonHTML {
		return domain.PageScan{}, ErrNotHTML
	}

	links := w.crawler.ExtractLinks(page.GoqueryDoc, page.FinalURL, w.cfg.IgnoreExtensions)
	scan := domain.PageScan{
		URL:              pageURL,
		FinalURL:         page.FinalURL,
		RegisteredDomain: domain.RegisteredDomain(page.FinalURL),
		Title:            page.Title,
		Language:         page.Language,
	}
	if w.cfg.MaxLinks > 0 && len(links) > w.cfg.MaxLinks {
		links = links[:w.cfg.MaxLinks]
		scan.Truncated = true
	}

	scan.Links = w.ClassifyAll(ctx, links)
	for i := range scan.Links {
		link := &scan.Links[i]
		link.External = domain.RegisteredDomain(link.URL) != scan.RegisteredDomain
		if link.Result == domain.Phishing {
			scan.PhishingCount++
		}
	}

	slog.Info("Finished page scan", "url", pageURL, "links", len(scan.Links), "phishing", scan.PhishingCount)
	return scan, nil
}

// ClassifyAll classifies urls concurrently. The result keeps input order.
func (w *Worker) ClassifyAll(ctx context.Context, urls []string) []domain.LinkVerdict {
	results := make([]domain.LinkVerdict, len(urls))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.MaxWorkers)

	for i, u := range urls {
		g.Go(func() error {
			results[i] = domain.LinkVerdict{URL: u}
			v, err := w.predictor.PredictURL(gCtx, u)
			if err != nil {
				slog.Warn("Link classification failed", "url", u, "error", err)
				results[i].Error = err.Error()
				return nil
			}
			results[i].Result = v.Result
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ExtractAll computes feature records for urls concurrently, keeping input
// order.
func ExtractAll(ctx context.Context, urls []string, maxWorkers int) ([]features.Record, error) {
	records := make([]features.Record, len(urls))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, u := range urls {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			rec, err := features.Extract(u)
			if err != nil {
				slog.Warn("Feature extraction failed, using zero record", "url", u, "error", err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
