// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	targetsTotal              *prometheus.CounterVec
	retriesTotal              prometheus.Counter
	handlesInUse              prometheus.Gauge
	navigationDurationSeconds *prometheus.HistogramVec
	extractionDurationSeconds prometheus.Histogram
	recordsDiscoveredTotal    prometheus.Counter
	resultSetSize             prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		targetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curatorscan_targets_total",
				Help: "Targets processed, labeled by outcome (succeeded, failed, skipped).",
			},
			[]string{"outcome"},
		)

		retriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "curatorscan_retries_total",
				Help: "Navigation attempts beyond the first, across all targets.",
			},
		)

		handlesInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "curatorscan_handles_in_use",
				Help: "Navigation handles currently leased from the pool.",
			},
		)

		navigationDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curatorscan_navigation_duration_seconds",
				Help:    "Histogram of page navigation latencies, labeled by mode.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"mode"},
		)

		extractionDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "curatorscan_extraction_duration_seconds",
				Help:    "Histogram of per-page extraction latencies.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		)

		recordsDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "curatorscan_records_discovered_total",
				Help: "Records not present in the previous result set.",
			},
		)

		resultSetSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "curatorscan_result_set_size",
				Help: "Records in the merged result set after the last run.",
			},
		)
	})
}

// ObserveTarget counts one finished target by outcome.
func ObserveTarget(outcome string) {
	targetsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry counts one retried navigation attempt.
func ObserveRetry() {
	retriesTotal.Inc()
}

// IncHandlesInUse increments the leased-handle gauge.
func IncHandlesInUse() {
	handlesInUse.Inc()
}

// DecHandlesInUse decrements the leased-handle gauge.
func DecHandlesInUse() {
	handlesInUse.Dec()
}

// ObserveNavigation records one navigation latency. Mode is "headless" or
// "static".
func ObserveNavigation(mode string, d time.Duration) {
	navigationDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveExtraction records one extraction latency.
func ObserveExtraction(d time.Duration) {
	extractionDurationSeconds.Observe(d.Seconds())
}

// ObserveDiscovered counts newly discovered records.
func ObserveDiscovered(n int) {
	recordsDiscoveredTotal.Add(float64(n))
}

// SetResultSetSize records the merged set size.
func SetResultSetSize(n int) {
	resultSetSize.Set(float64(n))
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Router mounts the scrape endpoint on a chi router with basic recovery,
// for runs started with a metrics listen address.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", Handler())
	return r
}
