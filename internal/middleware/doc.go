// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

/*
Package middleware provides chi-compatible HTTP middleware shared by every
route: request IDs, Prometheus instrumentation and access logging.

Authentication and authorization live in internal/auth and internal/authz;
CORS and IP rate limiting come from go-chi/cors and go-chi/httprate and are
wired in internal/api.

Stack order in the router:

	r.Use(middleware.RequestID)        // X-Request-ID, logging context
	r.Use(middleware.AccessLog(slow))  // one log line per request
	r.Use(middleware.PrometheusMetrics)

Metrics are labelled with the chi route pattern, not the raw path, so upload
IDs in /api/upload/status/{uploadId} do not create a series per job.
*/
package middleware
