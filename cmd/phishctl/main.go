// Package main is the command line companion to the API: it extracts
// features, classifies URLs and builds training datasets.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "phishctl",
		Usage: "inspect and classify URLs with the phishing detector",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors"},
		},
		Commands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "print the feature record of each URL as JSON",
				ArgsUsage: "URL...",
				Action:    ExtractAction,
			},
			{
				Name:      "predict",
				Usage:     "classify each URL with the configured model",
				ArgsUsage: "URL...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print verdicts as JSON"},
				},
				Action: PredictAction,
			},
			{
				Name:  "featurize",
				Usage: "turn a CSV of URLs into a training dataset",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "CSV with a url column and an optional label column"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output CSV (default stdout)"},
					&cli.IntFlag{Name: "workers", Value: runtime.NumCPU(), Usage: "concurrent extractors"},
				},
				Action: FeaturizeAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
