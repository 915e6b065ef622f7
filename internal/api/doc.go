// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package api exposes the ingestion service over HTTP using the chi router.
//
// Route groups:
//
//	/health, /metrics          unauthenticated, IP rate limited
//	/api/upload...             bearer token, casbin tenant role
//	/api/clients, /api/data    bearer token, casbin tenant role
//	/api/admin/...             bearer token, casbin admin role
//
// Most endpoints answer with flat JSON objects, and failures as
// {"error": "..."} with an optional details field. The paged data read uses
// the APIResponse envelope with pagination metadata.
//
// Ingestion errors are mapped to status codes by kind: validation 400,
// not found 404, conflict 409, anything else 500. Internal causes are logged
// but never returned to the caller.
package api
