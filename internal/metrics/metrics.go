// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal                  *prometheus.CounterVec
	jobDurationSeconds         prometheus.Histogram
	activeJobs                 prometheus.Gauge
	rowsExtractedTotal         prometheus.Counter
	rowsDroppedTotal           prometheus.Counter
	recordOutcomesTotal        *prometheus.CounterVec
	pageDurationSeconds        prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple
// times; accessors call it lazily so collectors always exist.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seace_jobs_total",
				Help: "Total number of extraction jobs finished, labeled by status.",
			},
			[]string{"status"},
		)

		jobDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seace_job_duration_seconds",
				Help:    "Histogram of end-to-end job durations.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
			},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "seace_active_jobs",
				Help: "Number of jobs currently holding a browser session.",
			},
		)

		rowsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seace_rows_extracted_total",
				Help: "Total results-table rows that passed structural validation.",
			},
		)

		rowsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seace_rows_dropped_total",
				Help: "Total results-table rows dropped as structural noise.",
			},
		)

		recordOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seace_record_outcomes_total",
				Help: "Total per-record ingestion outcomes, labeled by kind.",
			},
			[]string{"kind"},
		)

		pageDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seace_page_duration_seconds",
				Help:    "Histogram of per-page extraction durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// JobsTotal returns the per-status job counter.
func JobsTotal() *prometheus.CounterVec {
	Init()
	return jobsTotal
}

// JobDuration returns the job duration histogram.
func JobDuration() prometheus.Histogram {
	Init()
	return jobDurationSeconds
}

// ActiveJobs returns the active jobs gauge.
func ActiveJobs() prometheus.Gauge {
	Init()
	return activeJobs
}

// RowsExtracted returns the validated-rows counter.
func RowsExtracted() prometheus.Counter {
	Init()
	return rowsExtractedTotal
}

// RowsDropped returns the dropped-rows counter.
func RowsDropped() prometheus.Counter {
	Init()
	return rowsDroppedTotal
}

// RecordOutcomes returns the per-kind record outcome counter.
func RecordOutcomes() *prometheus.CounterVec {
	Init()
	return recordOutcomesTotal
}

// PageDuration returns the per-page duration histogram.
func PageDuration() prometheus.Histogram {
	Init()
	return pageDurationSeconds
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
