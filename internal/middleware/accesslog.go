// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/riqo-ingest/internal/logging"
)

// AccessLog logs one line per request. Requests slower than slow are logged
// at warn level; 5xx responses at error level. A zero slow disables the
// slow-request escalation.
func AccessLog(slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			var event *zerolog.Event
			switch {
			case rec.statusCode >= http.StatusInternalServerError:
				event = logging.Ctx(r.Context()).Error()
			case slow > 0 && duration > slow:
				event = logging.Ctx(r.Context()).Warn().Bool("slow", true)
			default:
				event = logging.Ctx(r.Context()).Debug()
			}
			event.
				Str("method", r.Method).
				Str("route", routePattern(r)).
				Str("path", r.URL.Path).
				Int("status", rec.statusCode).
				Int64("bytes", rec.bytes).
				Int64("duration_ms", duration.Milliseconds()).
				Msg("HTTP request")
		})
	}
}
