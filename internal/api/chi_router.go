// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/riqo-ingest/internal/middleware"
)

// slowRequestThreshold escalates access log lines to warn.
const slowRequestThreshold = 2 * time.Second

// Middleware is a chi-compatible middleware.
type Middleware = func(http.Handler) http.Handler

// Router wires handlers to routes.
type Router struct {
	handler       *Handler
	authenticate  Middleware
	authorize     Middleware
	uploadLimit   Middleware
	chiMiddleware *ChiMiddleware
}

// RouterDeps are the security layers applied to /api routes.
type RouterDeps struct {
	// Authenticate validates the bearer token (auth.Middleware.Authenticate).
	Authenticate Middleware
	// Authorize provisions the profile and enforces the policy
	// (authz.Middleware.Authorize).
	Authorize Middleware
	// UploadLimit is the per-tenant upload limiter. Optional.
	UploadLimit Middleware
	// ChiMiddleware provides CORS and IP rate limits. Optional.
	ChiMiddleware *ChiMiddleware
}

// NewRouter creates the router.
func NewRouter(handler *Handler, deps RouterDeps) *Router {
	chiMw := deps.ChiMiddleware
	if chiMw == nil {
		chiMw = NewChiMiddleware(nil)
	}
	uploadLimit := deps.UploadLimit
	if uploadLimit == nil {
		uploadLimit = func(next http.Handler) http.Handler { return next }
	}
	return &Router{
		handler:       handler,
		authenticate:  deps.Authenticate,
		authorize:     deps.Authorize,
		uploadLimit:   uploadLimit,
		chiMiddleware: chiMw,
	}
}

// SetupChi builds the route tree.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog(slowRequestThreshold))
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	})

	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/health", router.handler.Health)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit("api"))
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.authenticate)
		r.Use(router.authorize)

		r.With(router.uploadLimit).Post("/upload", router.handler.Upload)
		r.Get("/upload", router.handler.UploadMethodNotAllowed)
		r.Get("/upload/status/{uploadId}", router.handler.UploadStatus)

		r.Get("/clients", router.handler.GetClients)
		r.Post("/clients", router.handler.ConfigureClient)
		r.Get("/test-client-db", router.handler.TestClientDB)
		r.Post("/debug-csv", router.handler.DebugCSV)
		r.Get("/data", router.handler.GetData)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/configure-user", router.handler.AdminConfigureUser)
			r.Post("/get-user-by-email", router.handler.AdminGetUserByEmail)
			r.Get("/audit-events", router.handler.AdminAuditEvents)
		})
	})

	return r
}
