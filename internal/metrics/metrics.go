// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upload Metrics
	UploadsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riqo_uploads_accepted_total",
			Help: "Total number of uploads accepted for processing",
		},
	)

	UploadsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riqo_uploads_rejected_total",
			Help: "Total number of uploads rejected at acceptance",
		},
		[]string{"reason"}, // validation, conflict, rate_limited, internal
	)

	IngestJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riqo_ingest_jobs_total",
			Help: "Total number of ingest jobs reaching a terminal status",
		},
		[]string{"status"},
	)

	IngestJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riqo_ingest_job_duration_seconds",
			Help:    "Time from processing start to terminal status",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	IngestRowsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riqo_ingest_rows_inserted_total",
			Help: "Total number of rows inserted into destination tables",
		},
	)

	IngestActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riqo_ingest_active_jobs",
			Help: "Current number of jobs in processing",
		},
	)

	EncodingRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riqo_encoding_repairs_total",
			Help: "Total number of uploads re-decoded with a different encoding",
		},
		[]string{"encoding"},
	)

	// Destination Metrics
	DestinationPools = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riqo_destination_pools",
			Help: "Current number of cached destination connection pools",
		},
	)

	DestinationOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riqo_destination_operation_duration_seconds",
			Help:    "Duration of destination database operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // probe, truncate, insert, select
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Metadata Store Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)
)

// RecordDBQuery records a metadata store query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordUploadRejected counts an upload refused before a job was created.
func RecordUploadRejected(reason string) {
	UploadsRejected.WithLabelValues(reason).Inc()
}

// RecordJobStarted marks a job entering processing.
func RecordJobStarted() {
	IngestActiveJobs.Inc()
}

// RecordJobFinished records a job reaching a terminal status.
func RecordJobFinished(status string, duration time.Duration, rows int64) {
	IngestActiveJobs.Dec()
	IngestJobs.WithLabelValues(status).Inc()
	IngestJobDuration.WithLabelValues(status).Observe(duration.Seconds())
	if rows > 0 {
		IngestRowsInserted.Add(float64(rows))
	}
}

// RecordDestinationOp records the duration of a destination call.
func RecordDestinationOp(operation string, duration time.Duration) {
	DestinationOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
