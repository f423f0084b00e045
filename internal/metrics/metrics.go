// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ImportsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "imports_started_total",
		Help:      "Import jobs accepted, by network.",
	}, []string{"network"})

	ImportsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "imports_finished_total",
		Help:      "Import jobs reaching a terminal state, by network and status.",
	}, []string{"network", "status"})

	ImportDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledger",
		Name:      "import_duration_seconds",
		Help:      "Wall time from job creation to terminal state.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"network", "status"})

	RecordsReconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "records_reconciled_total",
		Help:      "Artifact rows by reconciliation outcome.",
	}, []string{"outcome"})

	ActiveImports = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledger",
		Name:      "imports_active",
		Help:      "Import jobs not yet in a terminal state.",
	})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledger",
		Name:      "http_request_duration_seconds",
		Help:      "API request latency by route template and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "code"})
)

var registerOnce sync.Once

// MustRegisterMetrics registers every collector with the default registry. Safe to call more than once.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ImportsStarted,
			ImportsFinished,
			ImportDuration,
			RecordsReconciled,
			ActiveImports,
			HTTPRequestDuration,
		)
	})
}

// ObserveImport records a terminal import.
func ObserveImport(network, status string, started time.Time) {
	ImportsFinished.WithLabelValues(network, status).Inc()
	ImportDuration.WithLabelValues(network, status).Observe(time.Since(started).Seconds())
}

// ObserveRequest records one HTTP request.
func ObserveRequest(method, route string, code int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}
