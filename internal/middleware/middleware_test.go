// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/riqo-ingest/internal/logging"
	"github.com/tomtom215/riqo-ingest/internal/metrics"
)

func TestRequestIDGenerated(t *testing.T) {
	t.Parallel()
	var seen, logged string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		logged = logging.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	got := rec.Header().Get("X-Request-ID")
	if got == "" || got != seen || got != logged {
		t.Errorf("header %q, context %q, logging %q should match and be non-empty", got, seen, logged)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{"upstream id", "edge-7f3a9c", true},
		{"with space", "bad id", false},
		{"control char", "abc\x01", false},
		{"too long", strings.Repeat("a", maxIDLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", tt.incoming)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			if (got == tt.incoming) != tt.reuse {
				t.Errorf("X-Request-ID = %q, reuse want %v", got, tt.reuse)
			}
		})
	}
}

func TestRequestIDCorrelation(t *testing.T) {
	t.Parallel()
	var corr string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr = logging.CorrelationIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "batch-42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if corr != "batch-42" {
		t.Errorf("correlation = %q, want batch-42", corr)
	}
}

func TestPrometheusMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/api/upload/status/{uploadId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.APIRequestsTotal.WithLabelValues("GET", "/api/upload/status/{uploadId}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a1", "b2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/upload/status/"+id, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("counter delta = %v, want 2", got)
	}
}

func TestAccessLogLevels(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Logger()
	logging.SetLogger(logging.NewTestLogger(&buf))
	t.Cleanup(func() { logging.SetLogger(prev) })

	r := chi.NewRouter()
	r.Use(AccessLog(10 * time.Millisecond))
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	r.Get("/slow", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))

	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, `"route":"/boom"`) {
		t.Errorf("missing error line for 500: %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, `"slow":true`) {
		t.Errorf("missing slow warning: %s", out)
	}
}

func TestStatusRecorderFirstStatusWins(t *testing.T) {
	t.Parallel()
	rec := newStatusRecorder(httptest.NewRecorder())
	_, _ = rec.Write([]byte("hi"))
	rec.WriteHeader(http.StatusTeapot)
	if rec.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200 after implicit header", rec.statusCode)
	}
	if rec.bytes != 2 {
		t.Errorf("bytes = %d, want 2", rec.bytes)
	}
}
