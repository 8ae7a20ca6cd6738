package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"trinayana/packages/classifier"
	"trinayana/packages/config"
	"trinayana/packages/domain"
	"trinayana/packages/service"
	"trinayana/packages/worker"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func setupLogger(c *cli.Context) {
	level := slog.LevelInfo
	if c.Bool("quiet") {
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func ExtractAction(c *cli.Context) error {
	setupLogger(c)
	if c.NArg() == 0 {
		return errors.New("at least one URL is required")
	}

	svc := service.New(nil)
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	for _, rawURL := range c.Args().Slice() {
		out := struct {
			URL      string `json:"url"`
			Features any    `json:"features"`
		}{URL: rawURL, Features: svc.Extract(rawURL)}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func PredictAction(c *cli.Context) error {
	setupLogger(c)
	if c.NArg() == 0 {
		return errors.New("at least one URL is required")
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	clf, err := classifier.Load(cfg)
	if err != nil {
		return err
	}
	svc := service.New(clf)

	failed := 0
	for _, rawURL := range c.Args().Slice() {
		v, err := svc.PredictURL(c.Context, rawURL)
		if err != nil {
			failed++
			slog.Error("Prediction failed", "url", rawURL, "error", err)
			continue
		}
		if c.Bool("json") {
			if err := json.NewEncoder(c.App.Writer).Encode(struct {
				URL string `json:"url"`
				domain.Verdict
				Assessment domain.Assessment `json:"assessment"`
			}{rawURL, v, domain.Assess(v)}); err != nil {
				return err
			}
			continue
		}
		printVerdict(c.App.Writer, rawURL, v)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d predictions failed", failed, c.NArg())
	}
	return nil
}

func printVerdict(w io.Writer, rawURL string, v domain.Verdict) {
	a := domain.Assess(v)
	labelColor := color.New(color.FgGreen, color.Bold)
	if v.Result == domain.Phishing {
		labelColor = color.New(color.FgRed, color.Bold)
	}

	fmt.Fprintf(w, "%s  %s\n", labelColor.Sprint(v.Result), rawURL)
	fmt.Fprintf(w, "  safety score: %d/100  https: %t\n", a.SafetyScore, a.HTTPS)
	if len(a.SuspiciousPatterns) > 0 {
		fmt.Fprintf(w, "  suspicious:   %s\n", color.YellowString(strings.Join(a.SuspiciousPatterns, ", ")))
	}
	fmt.Fprintf(w, "  %s\n", a.Advice)
}

func FeaturizeAction(c *cli.Context) error {
	setupLogger(c)

	in, err := os.Open(c.String("input"))
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	rows, hasLabel, err := readDataset(in)
	if err != nil {
		return err
	}

	urls := make([]string, len(rows))
	for i, r := range rows {
		urls[i] = r.URL
	}
	workers := c.Int("workers")
	if workers < 1 {
		workers = 1
	}
	records, err := worker.ExtractAll(c.Context, urls, workers)
	if err != nil {
		return err
	}

	var out io.Writer = c.App.Writer
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeDataset(out, rows, records, hasLabel); err != nil {
		return err
	}
	slog.Info("Featurized dataset", "rows", len(rows), "labeled", hasLabel)
	return nil
}
