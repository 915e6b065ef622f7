// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/riqo-ingest/internal/audit"
	"github.com/tomtom215/riqo-ingest/internal/logging"
)

// AdminAuditEvents handles GET /api/admin/audit-events.
//
// Query parameters: limit (1-1000, default 100), offset, type (repeatable),
// actor_id, target_id, and since/until as RFC 3339 timestamps.
func (h *Handler) AdminAuditEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.audit == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternalError, "Audit trail is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.QueryFilter{
		Limit:    getIntParam(r, "limit", defaultPageLimit),
		Offset:   getIntParam(r, "offset", 0),
		ActorID:  q.Get("actor_id"),
		TargetID: q.Get("target_id"),
	}
	if filter.Limit < 1 || filter.Limit > maxPageLimit {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "limit must be between 1 and 1000")
		return
	}
	if filter.Offset < 0 {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "offset must be greater than or equal to 0")
		return
	}
	for _, t := range q["type"] {
		filter.Types = append(filter.Types, audit.EventType(t))
	}
	var ok bool
	if filter.StartTime, ok = timeParam(r, "since"); !ok {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "since must be an RFC 3339 timestamp")
		return
	}
	if filter.EndTime, ok = timeParam(r, "until"); !ok {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "until must be an RFC 3339 timestamp")
		return
	}

	events, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("Failed to query audit events")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "Failed to fetch audit events")
		return
	}
	total, err := h.audit.Count(r.Context(), filter)
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("Failed to count audit events")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "Failed to fetch audit events")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	rw.SuccessWithPagination(events, &PaginationMeta{
		Total:   total,
		Count:   len(events),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: int64(filter.Offset+len(events)) < total,
	})
}

// timeParam parses an optional RFC 3339 query parameter. ok is false only
// when the parameter is present and malformed.
func timeParam(r *http.Request, key string) (*time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, false
	}
	return &ts, true
}
