// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/riqo-ingest/internal/audit"
	"github.com/tomtom215/riqo-ingest/internal/models"
)

func TestAuditRecordsSecurityEvents(t *testing.T) {
	t.Parallel()
	store := audit.NewMemoryStore(100)
	trail := audit.NewLogger(store, nil)
	h := newHarness(t, withAudit(trail))
	h.profiles.put(configuredProfile("boss", models.PlanEnterprise))
	h.profiles.put(&models.TenantProfile{ID: "tenant-7", Email: "ana@example.com", ClientType: models.ClientTypeBusiness})

	configure := map[string]string{
		"client_database_url":         "postgres://db.internal/acme",
		"client_database_anon_key":    "reader:secret-anon",
		"client_database_service_key": "writer:secret-service",
		"data_table_name":             "sales",
	}
	if rec := h.postJSON("/api/clients", "tenant-1", configure); rec.Code != http.StatusOK {
		t.Fatalf("configure status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := h.postJSON("/api/admin/get-user-by-email", "tenant-1", map[string]string{"email": "x@example.com"}); rec.Code != http.StatusForbidden {
		t.Fatalf("starter lookup status = %d", rec.Code)
	}
	configure["userId"] = "tenant-7"
	if rec := h.postJSON("/api/admin/configure-user", "boss", configure); rec.Code != http.StatusOK {
		t.Fatalf("admin configure status = %d", rec.Code)
	}
	if rec := h.postJSON("/api/admin/get-user-by-email", "boss", map[string]string{"email": "ana@example.com"}); rec.Code != http.StatusOK {
		t.Fatalf("admin lookup status = %d", rec.Code)
	}
	if err := trail.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events, err := store.Query(context.Background(), audit.QueryFilter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	var types []audit.EventType
	for _, e := range events {
		types = append(types, e.Type)
		for _, secret := range []string{"secret-anon", "secret-service", "db.internal"} {
			if strings.Contains(string(e.Metadata), secret) {
				t.Errorf("event %s leaks %q: %s", e.Type, secret, e.Metadata)
			}
		}
	}
	want := []audit.EventType{
		audit.EventTypeAdminUserLookup,
		audit.EventTypeAdminConfigureUser,
		audit.EventTypeAuthzDenied,
		audit.EventTypeDestinationConfigured,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}

	lookup, adminCfg, denied, selfCfg := events[0], events[1], events[2], events[3]
	if lookup.Actor.ID != "boss" || lookup.Actor.Role != "admin" || lookup.Target.ID != "tenant-7" {
		t.Errorf("lookup = %+v", lookup)
	}
	if adminCfg.Target == nil || adminCfg.Target.ID != "tenant-7" {
		t.Errorf("admin configure target = %+v", adminCfg.Target)
	}
	if denied.Actor.ID != "tenant-1" || denied.Action != "POST /api/admin/get-user-by-email" {
		t.Errorf("denied = %+v", denied)
	}
	if selfCfg.Actor.ID != "tenant-1" || selfCfg.Target.ID != "tenant-1" {
		t.Errorf("self configure = %+v", selfCfg)
	}
}

func TestAdminAuditEvents(t *testing.T) {
	t.Parallel()
	store := audit.NewMemoryStore(100)
	trail := audit.NewLogger(store, nil)
	t.Cleanup(func() { _ = trail.Close() })

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, typ := range []audit.EventType{
		audit.EventTypeAuthzDenied,
		audit.EventTypeDestinationConfigured,
		audit.EventTypeAuthzDenied,
	} {
		_ = store.Save(context.Background(), &audit.Event{
			ID:        string(rune('a' + i)),
			Type:      typ,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Actor:     audit.Actor{ID: "tenant-1"},
		})
	}

	h := newHarness(t, withAudit(trail))
	h.profiles.put(configuredProfile("boss", models.PlanEnterprise))

	rec := h.do(http.MethodGet, "/api/admin/audit-events?type=authz.denied&limit=1", "boss", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data := body["data"].([]interface{})
	if len(data) != 1 || data[0].(map[string]interface{})["id"] != "c" {
		t.Errorf("data = %v, want newest denial only", data)
	}
	pagination := body["meta"].(map[string]interface{})["pagination"].(map[string]interface{})
	if pagination["total"] != float64(2) || pagination["has_more"] != true {
		t.Errorf("pagination = %v", pagination)
	}

	rec = h.do(http.MethodGet, "/api/admin/audit-events?since=2026-05-01T00:30:00Z", "boss", nil, "")
	if got := len(decodeBody(t, rec)["data"].([]interface{})); got != 2 {
		t.Errorf("since filter returned %d events, want 2", got)
	}

	tests := []struct {
		name       string
		query      string
		tenant     string
		wantStatus int
	}{
		{"tenant forbidden", "", "tenant-1", http.StatusForbidden},
		{"limit too large", "?limit=5000", "boss", http.StatusBadRequest},
		{"negative offset", "?offset=-1", "boss", http.StatusBadRequest},
		{"bad since", "?since=yesterday", "boss", http.StatusBadRequest},
		{"bad until", "?until=2026-13-01", "boss", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodGet, "/api/admin/audit-events"+tt.query, tt.tenant, nil, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestAdminAuditEventsDisabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.profiles.put(configuredProfile("boss", models.PlanEnterprise))

	rec := h.do(http.MethodGet, "/api/admin/audit-events", "boss", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if decodeBody(t, rec)["success"] != false {
		t.Errorf("body = %s", rec.Body.String())
	}
}
