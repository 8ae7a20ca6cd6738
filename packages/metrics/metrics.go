// Package metrics
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinayana_predictions_total",
			Help: "Total number of URL verdicts served, labeled by result.",
		},
		[]string{"result"},
	)
	PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trinayana_prediction_duration_seconds",
			Help:    "Duration of classifier calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"classifier"},
	)
	ExtractionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trinayana_feature_extraction_failures_total",
			Help: "Total number of URLs that fell back to the all-zero feature record.",
		},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinayana_cache_lookups_total",
			Help: "Verdict cache lookups, labeled by outcome (hit, miss, error).",
		},
		[]string{"outcome"},
	)
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trinayana_api_requests_total",
			Help: "Total number of API requests, labeled by route and status code.",
		},
		[]string{"route", "status_code"},
	)
	HistoryDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trinayana_history_dropped_total",
			Help: "Scan records dropped because the history queue was full.",
		},
	)
	HistoryRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trinayana_history_rows",
			Help: "Number of rows in the scan_history table.",
		},
	)
	HistoryPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trinayana_history_pruned_total",
			Help: "Scan records removed by the retention reaper.",
		},
	)
)

func init() {
	prometheus.MustRegister(Predictions)
	prometheus.MustRegister(PredictionDuration)
	prometheus.MustRegister(ExtractionFailures)
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(APIRequests)
	prometheus.MustRegister(HistoryDropped)
	prometheus.MustRegister(HistoryRows)
	prometheus.MustRegister(HistoryPruned)
}

func ExposeMetrics(addr string) {
	slog.Info("Exposing Prometheus metrics", "address", addr)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("Failed to start Prometheus metrics server", "error", err)
	}
}
