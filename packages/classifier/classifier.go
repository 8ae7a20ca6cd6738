// Package classifier holds the opaque phishing model behind a single
// Predict call. The handle is built once at startup by Load and is read-only
// afterwards.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"trinayana/packages/config"
	"trinayana/packages/features"
)

var ErrUnavailable = errors.New("classifier unavailable")

// Classifier predicts 1 for phishing and anything else for legitimate.
type Classifier interface {
	Name() string
	Predict(ctx context.Context, rec features.Record) (int, error)
}

// Load builds the classifier configured by cfg. MODEL_PATH takes precedence
// over ML_API_URL. When neither is configured, or the model fails to load,
// the returned error wraps ErrUnavailable.
func Load(cfg config.Config) (Classifier, error) {
	switch {
	case cfg.ModelPath != "":
		forest, err := LoadForest(cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		slog.Info("Loaded local forest model", "path", cfg.ModelPath, "trees", len(forest.trees))
		return forest, nil
	case cfg.MLApiURL != "":
		slog.Info("Using remote model server", "url", cfg.MLApiURL)
		return NewRemote(cfg.MLApiURL, cfg.MLApiTimeout), nil
	default:
		return nil, fmt.Errorf("%w: neither MODEL_PATH nor ML_API_URL is set", ErrUnavailable)
	}
}
