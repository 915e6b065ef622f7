// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tomtom215/riqo-ingest/internal/audit"
	"github.com/tomtom215/riqo-ingest/internal/auth"
	"github.com/tomtom215/riqo-ingest/internal/models"
)

type fakeProvisioner struct {
	mu       sync.Mutex
	profiles map[string]*models.TenantProfile
	err      error
	calls    int
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{profiles: make(map[string]*models.TenantProfile)}
}

func (f *fakeProvisioner) EnsureProfile(_ context.Context, id, email string) (*models.TenantProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	p := &models.TenantProfile{
		ID:               id,
		Email:            email,
		ClientType:       models.ClientTypeBusiness,
		SubscriptionPlan: models.PlanStarter,
	}
	f.profiles[id] = p
	return p, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := ProfileFromContext(r.Context())
		if p == nil {
			http.Error(w, "no profile", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(p.ID + "|" + RoleFromContext(r.Context())))
	})
}

func serve(t *testing.T, mw *Middleware, subject *auth.AuthSubject, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if subject != nil {
		req = req.WithContext(auth.ContextWithSubject(req.Context(), subject))
	}
	rec := httptest.NewRecorder()
	mw.Authorize(okHandler()).ServeHTTP(rec, req)
	return rec
}

func TestAuthorizeProvisionsProfile(t *testing.T) {
	t.Parallel()
	profiles := newFakeProvisioner()
	mw := NewMiddleware(setupEnforcer(t), profiles)

	rec := serve(t, mw, &auth.AuthSubject{ID: "tenant-1", Email: "ana@example.com"}, http.MethodGet, "/api/clients")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "tenant-1|tenant" {
		t.Errorf("body = %q", got)
	}
	if _, ok := profiles.profiles["tenant-1"]; !ok {
		t.Error("profile was not provisioned")
	}
}

func TestAuthorizeAdminRoutes(t *testing.T) {
	t.Parallel()
	profiles := newFakeProvisioner()
	profiles.profiles["boss"] = &models.TenantProfile{ID: "boss", SubscriptionPlan: models.PlanEnterprise}
	mw := NewMiddleware(setupEnforcer(t), profiles)

	tests := []struct {
		name       string
		subject    string
		wantStatus int
	}{
		{"starter denied", "tenant-1", http.StatusForbidden},
		{"enterprise allowed", "boss", http.StatusOK},
	}
	for _, tt := range tests {
		rec := serve(t, mw, &auth.AuthSubject{ID: tt.subject}, http.MethodPost, "/api/admin/configure-user")
		if rec.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.wantStatus)
		}
		if tt.wantStatus == http.StatusForbidden && !strings.Contains(rec.Body.String(), `"error":"Admin access required"`) {
			t.Errorf("%s: body = %s", tt.name, rec.Body.String())
		}
	}
}

type denialLog struct {
	mu      sync.Mutex
	actions []string
	actors  []audit.Actor
}

func (d *denialLog) LogAuthzDenied(_ context.Context, actor audit.Actor, _ audit.Source, method, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, method+" "+path)
	d.actors = append(d.actors, actor)
}

func TestAuthorizeRecordsDenials(t *testing.T) {
	t.Parallel()
	profiles := newFakeProvisioner()
	denials := &denialLog{}
	mw := NewMiddleware(setupEnforcer(t), profiles).WithDenialRecorder(denials)

	serve(t, mw, &auth.AuthSubject{ID: "tenant-1", Email: "ana@example.com"}, http.MethodGet, "/api/clients")
	rec := serve(t, mw, &auth.AuthSubject{ID: "tenant-1", Email: "ana@example.com"}, http.MethodPost, "/api/admin/get-user-by-email")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	if len(denials.actions) != 1 || denials.actions[0] != "POST /api/admin/get-user-by-email" {
		t.Fatalf("recorded = %v, want only the admin denial", denials.actions)
	}
	want := audit.Actor{ID: "tenant-1", Email: "ana@example.com", Role: "tenant"}
	if denials.actors[0] != want {
		t.Errorf("actor = %+v, want %+v", denials.actors[0], want)
	}
}

func TestAuthorizeWithoutSubject(t *testing.T) {
	t.Parallel()
	profiles := newFakeProvisioner()
	mw := NewMiddleware(setupEnforcer(t), profiles)

	rec := serve(t, mw, nil, http.MethodGet, "/api/clients")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if profiles.calls != 0 {
		t.Errorf("EnsureProfile called %d times without a subject", profiles.calls)
	}
}

func TestAuthorizeProfileStoreFailure(t *testing.T) {
	t.Parallel()
	profiles := newFakeProvisioner()
	profiles.err = errors.New("duckdb: database is locked")
	mw := NewMiddleware(setupEnforcer(t), profiles)

	rec := serve(t, mw, &auth.AuthSubject{ID: "tenant-1"}, http.MethodGet, "/api/clients")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "locked") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
}

func TestAuthorizeUnknownRoute(t *testing.T) {
	t.Parallel()
	mw := NewMiddleware(setupEnforcer(t), newFakeProvisioner())

	rec := serve(t, mw, &auth.AuthSubject{ID: "tenant-1"}, http.MethodDelete, "/api/clients")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
