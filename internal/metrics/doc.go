// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

/*
Package metrics provides Prometheus metrics for the ingestion service.

Metrics are registered with the default registry through promauto and exposed
at /metrics in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Uploads:
  - riqo_uploads_accepted_total: uploads accepted and queued
  - riqo_uploads_rejected_total{reason}: uploads refused at acceptance
  - riqo_ingest_jobs_total{status}: jobs reaching a terminal status
  - riqo_ingest_job_duration_seconds{status}: processing time per job
  - riqo_ingest_rows_inserted_total: rows written to destinations
  - riqo_ingest_active_jobs: jobs currently processing
  - riqo_encoding_repairs_total{encoding}: files re-decoded by the normalizer

Destinations:
  - riqo_destination_pools: cached destination pools
  - riqo_destination_operation_duration_seconds{operation}
  - circuit_breaker_state{name} (0=closed, 1=half-open, 2=open)
  - circuit_breaker_requests_total{name,result}
  - circuit_breaker_state_transitions_total{name,from_state,to_state}

HTTP:
  - api_requests_total{method,endpoint,status_code}
  - api_request_duration_seconds{method,endpoint}
  - api_active_requests
  - api_rate_limit_hits_total{endpoint}

Metadata store:
  - duckdb_query_duration_seconds{operation,table}
  - duckdb_query_errors_total{operation,table,error_type}
*/
package metrics
