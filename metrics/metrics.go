// Package metrics exposes Prometheus instrumentation for the catalog service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Import pipeline
	ImportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cineai_import_runs_total",
			Help: "Total number of import runs by result",
		},
		[]string{"result"}, // "completed", "cancelled", "failed", "empty", "unreadable"
	)

	ImportEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cineai_import_entries_total",
			Help: "Total number of import entries processed by outcome",
		},
		[]string{"status"},
	)

	ImportBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cineai_import_batch_duration_seconds",
			Help:    "Time to resolve and persist one import batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	ImportRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cineai_import_running",
			Help: "1 while an import run is in progress",
		},
	)

	// Catalog
	CatalogMovies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cineai_catalog_movies",
			Help: "Number of movies in the catalog at the last count",
		},
	)

	// Metadata provider
	MetadataRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cineai_metadata_requests_total",
			Help: "Total number of metadata provider requests by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cineai_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HTTP API
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cineai_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
