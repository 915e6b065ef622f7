// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"context"
	"net/http"
	"time"
)

const healthPingTimeout = 2 * time.Second

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	QueueRunning      bool    `json:"queue_running"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Health reports liveness. The service is degraded, still 200, when the
// metadata store or the ingest queue is down, and 503 when both are.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	dbOK := h.profiles != nil && h.profiles.Ping(ctx) == nil
	queueOK := h.queue != nil && h.queue.IsRunning()

	status, code := "healthy", http.StatusOK
	switch {
	case !dbOK && !queueOK:
		status, code = "unhealthy", http.StatusServiceUnavailable
	case !dbOK || !queueOK:
		status = "degraded"
	}

	writeJSON(w, code, HealthStatus{
		Status:            status,
		Version:           h.version,
		DatabaseConnected: dbOK,
		QueueRunning:      queueOK,
		Uptime:            time.Since(h.startTime).Seconds(),
	})
}
