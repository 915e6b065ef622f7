// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riqo-ingest/internal/auth"
	"github.com/tomtom215/riqo-ingest/internal/authz"
	"github.com/tomtom215/riqo-ingest/internal/config"
	"github.com/tomtom215/riqo-ingest/internal/database"
	"github.com/tomtom215/riqo-ingest/internal/ingest"
	"github.com/tomtom215/riqo-ingest/internal/models"
	"github.com/tomtom215/riqo-ingest/internal/tenantdb"
)

const testSecret = "api-test-secret-that-is-at-least-32-characters"

// fakeProfiles implements ProfileStore and authz.ProfileProvisioner.
type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[string]*models.TenantProfile
	pingErr   error
	updateErr error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: make(map[string]*models.TenantProfile)}
}

func (f *fakeProfiles) EnsureProfile(_ context.Context, id, email string) (*models.TenantProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	p := &models.TenantProfile{
		ID:                 id,
		Email:              email,
		ClientType:         models.ClientTypeBusiness,
		SubscriptionPlan:   models.PlanStarter,
		SubscriptionStatus: "active",
		CreatedAt:          time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}
	f.profiles[id] = p
	return p, nil
}

func (f *fakeProfiles) put(p *models.TenantProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.ID] = p
}

func (f *fakeProfiles) get(id string) *models.TenantProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[id]
}

func (f *fakeProfiles) GetProfileByEmail(_ context.Context, email string) (*models.TenantProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if strings.EqualFold(p.Email, email) {
			return p, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeProfiles) UpdateClientConfig(_ context.Context, id string, cc models.ClientConfig) (*models.TenantProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	url := cc.DestinationURL
	p.Company = cc.Company
	p.ClientType = cc.ClientType
	p.DestinationURL = &url
	p.AnonKey = cc.AnonKey
	p.ServiceKey = cc.ServiceKey
	p.DataTableName = cc.DataTableName
	p.DashboardURL = cc.DashboardURL
	return p, nil
}

func (f *fakeProfiles) Ping(context.Context) error { return f.pingErr }

type fakeDestinations struct {
	mu          sync.Mutex
	conn        tenantdb.ConnectionTest
	info        *tenantdb.TableInfo
	inspectErr  error
	page        *tenantdb.DataPage
	pageErr     error
	invalidated []string
	lastLimit   int
	lastOffset  int
}

func (f *fakeDestinations) TableName(p *models.TenantProfile) string { return p.TableName("ventas") }

func (f *fakeDestinations) TestConnection(context.Context, *models.TenantProfile) tenantdb.ConnectionTest {
	return f.conn
}

func (f *fakeDestinations) Inspect(context.Context, *models.TenantProfile) (*tenantdb.TableInfo, error) {
	return f.info, f.inspectErr
}

func (f *fakeDestinations) ReadPage(_ context.Context, _ *models.TenantProfile, limit, offset int) (*tenantdb.DataPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit, f.lastOffset = limit, offset
	return f.page, f.pageErr
}

func (f *fakeDestinations) Invalidate(tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, tenantID)
}

func (f *fakeDestinations) invalidatedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invalidated...)
}

type fakeUploader struct {
	mu     sync.Mutex
	err    error
	got    *ingest.FileUpload
	body   []byte
	tenant string
}

func (f *fakeUploader) Accept(_ context.Context, tenantID string, file *ingest.FileUpload) (*ingest.AcceptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file == nil {
		return nil, &ingest.ValidationError{Message: "No file provided"}
	}
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(file.Content)
	if err != nil {
		return nil, err
	}
	f.got, f.body, f.tenant = file, body, tenantID
	return &ingest.AcceptResult{
		Message:  "File upload started",
		UploadID: "job-1",
		FileName: file.Name,
		FileSize: file.Size,
		Status:   models.StatusPending,
	}, nil
}

type fakeStatus struct {
	views map[string]*ingest.StatusView
	owner map[string]string
}

func (f *fakeStatus) GetStatus(_ context.Context, jobID, tenantID string) (*ingest.StatusView, error) {
	v, ok := f.views[jobID]
	if !ok || f.owner[jobID] != tenantID {
		return nil, &ingest.NotFoundError{Message: "Upload not found"}
	}
	return v, nil
}

type fakeQueue struct{ running bool }

func (f fakeQueue) IsRunning() bool { return f.running }

type harness struct {
	t        *testing.T
	handler  http.Handler
	jwt      *auth.JWTManager
	profiles *fakeProfiles
	dests    *fakeDestinations
	uploads  *fakeUploader
	status   *fakeStatus
}

type harnessOption func(*HandlerDeps, *RouterDeps)

func withMaxUpload(n int64) harnessOption {
	return func(d *HandlerDeps, _ *RouterDeps) { d.MaxUploadBytes = n }
}

func withAudit(trail AuditTrail) harnessOption {
	return func(d *HandlerDeps, _ *RouterDeps) { d.Audit = trail }
}

func withUploadLimit(mw Middleware) harnessOption {
	return func(_ *HandlerDeps, r *RouterDeps) { r.UploadLimit = mw }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	jwtManager, err := auth.NewJWTManager(&config.SecurityConfig{JWTSecret: testSecret})
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}

	h := &harness{
		t:        t,
		jwt:      jwtManager,
		profiles: newFakeProfiles(),
		dests:    &fakeDestinations{},
		uploads:  &fakeUploader{},
		status:   &fakeStatus{views: map[string]*ingest.StatusView{}, owner: map[string]string{}},
	}

	deps := HandlerDeps{
		Uploads:        h.uploads,
		Status:         h.status,
		Profiles:       h.profiles,
		Destinations:   h.dests,
		Queue:          fakeQueue{running: true},
		MaxUploadBytes: config.MaxUploadBytesDefault,
		Version:        "test",
	}
	authorizer := authz.NewMiddleware(enforcer, h.profiles)
	routerDeps := RouterDeps{
		Authenticate:  auth.NewMiddleware(jwtManager).Authenticate,
		Authorize:     authorizer.Authorize,
		ChiMiddleware: NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true}),
	}
	for _, opt := range opts {
		opt(&deps, &routerDeps)
	}
	if recorder, ok := deps.Audit.(authz.DenialRecorder); ok {
		authorizer.WithDenialRecorder(recorder)
	}

	h.handler = NewRouter(NewHandler(deps), routerDeps).SetupChi()
	return h
}

func (h *harness) token(tenantID string) string {
	h.t.Helper()
	tok, err := h.jwt.GenerateToken(tenantID, tenantID+"@example.com", time.Hour)
	if err != nil {
		h.t.Fatalf("GenerateToken() error = %v", err)
	}
	return tok
}

func (h *harness) do(method, path, tenantID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if tenantID != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(tenantID))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) postJSON(path, tenantID string, v interface{}) *httptest.ResponseRecorder {
	h.t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		h.t.Fatal(err)
	}
	return h.do(http.MethodPost, path, tenantID, bytes.NewReader(b), "application/json")
}

func (h *harness) postFile(path, tenantID, field, name string, content []byte) *httptest.ResponseRecorder {
	h.t.Helper()
	body, ct := multipartBody(h.t, field, name, content)
	return h.do(http.MethodPost, path, tenantID, body, ct)
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func configuredProfile(id, plan string) *models.TenantProfile {
	url := "postgres://ingest@db.internal:5432/analytics"
	return &models.TenantProfile{
		ID:               id,
		Email:            id + "@example.com",
		ClientType:       models.ClientTypeBusiness,
		SubscriptionPlan: plan,
		DestinationURL:   &url,
		AnonKey:          "reader:anon",
		ServiceKey:       "writer:service",
	}
}
