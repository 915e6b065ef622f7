// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/riqo-ingest/internal/config"
	"github.com/tomtom215/riqo-ingest/internal/database"
	"github.com/tomtom215/riqo-ingest/internal/models"
	"github.com/tomtom215/riqo-ingest/internal/tabular"
	"github.com/tomtom215/riqo-ingest/internal/tenantdb"
)

// fakeStore is an in-memory Store that enforces the job state machine.
type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]*models.TenantProfile
	jobs     map[string]*models.UploadJob
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*models.TenantProfile),
		jobs:     make(map[string]*models.UploadJob),
	}
}

func (s *fakeStore) addProfile(p *models.TenantProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *fakeStore) GetProfile(_ context.Context, id string) (*models.TenantProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) CreateUpload(_ context.Context, job *models.UploadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.UpdatedAt = cp.CreatedAt
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeStore) GetUpload(_ context.Context, id string) (*models.UploadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeStore) move(id string, next models.JobStatus, apply func(*models.UploadJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return database.ErrNotFound
	}
	if !job.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", database.ErrInvalidTransition, job.Status, next)
	}
	job.Status = next
	apply(job)
	return nil
}

func (s *fakeStore) MarkProcessing(_ context.Context, id string, at time.Time) error {
	return s.move(id, models.StatusProcessing, func(j *models.UploadJob) {
		j.ProcessingStartedAt = &at
		j.UpdatedAt = at
	})
}

func (s *fakeStore) MarkCompleted(_ context.Context, id string, c models.JobCompletion, at time.Time) error {
	return s.move(id, models.StatusCompleted, func(j *models.UploadJob) {
		rows, cols := c.RowCount, c.ColumnCount
		j.RowCount = &rows
		j.ColumnCount = &cols
		j.ColumnsInfo = c.Columns
		j.Metadata = &models.UploadMetadata{TableName: c.TableName, Columns: c.Columns, RowsProcessed: c.RowCount}
		j.ClientDatabaseSynced = true
		j.ProcessingCompletedAt = &at
		j.UpdatedAt = at
	})
}

func (s *fakeStore) MarkFailed(_ context.Context, id, message string, at time.Time) error {
	return s.move(id, models.StatusFailed, func(j *models.UploadJob) {
		j.ErrorMessage = message
		j.ProcessingCompletedAt = &at
		j.UpdatedAt = at
	})
}

func (s *fakeStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// fakeDestination emulates one destination table per tenant.
type fakeDestination struct {
	mu         sync.Mutex
	tables     map[string][]tabular.Row
	probeErr   *tenantdb.ConnectionTest
	truncErr   error
	insertErr  error
	insertHook func()
	truncates  int
	inserts    int
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{tables: make(map[string][]tabular.Row)}
}

func (d *fakeDestination) TableName(p *models.TenantProfile) string {
	return p.TableName("ventas")
}

func (d *fakeDestination) TestConnection(_ context.Context, p *models.TenantProfile) tenantdb.ConnectionTest {
	if !p.HasDestination() {
		return tenantdb.ConnectionTest{Error: "No client database configured", Err: tenantdb.ErrNotConfigured}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.probeErr != nil {
		return *d.probeErr
	}
	return tenantdb.ConnectionTest{Success: true}
}

func (d *fakeDestination) TruncateTable(_ context.Context, p *models.TenantProfile) (tenantdb.TruncateResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.truncates++
	if d.truncErr != nil {
		return tenantdb.TruncateResult{}, d.truncErr
	}
	d.tables[p.ID] = nil
	return tenantdb.TruncateResult{Strategy: tenantdb.StrategyTruncate}, nil
}

func (d *fakeDestination) InsertRows(_ context.Context, p *models.TenantProfile, rows []tabular.Row) (int64, error) {
	if d.insertHook != nil {
		d.insertHook()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inserts++
	if d.insertErr != nil {
		return 0, d.insertErr
	}
	d.tables[p.ID] = append(d.tables[p.ID], tenantdb.EnrichRows(rows)...)
	return int64(len(rows)), nil
}

func (d *fakeDestination) rows(tenantID string) []tabular.Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tables[tenantID]
}

// recordingPublisher captures tasks instead of running them.
type recordingPublisher struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *recordingPublisher) last(t *testing.T) Task {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tasks) == 0 {
		t.Fatal("no task published")
	}
	return p.tasks[len(p.tasks)-1]
}

type harness struct {
	store *fakeStore
	dest  *fakeDestination
	pub   *recordingPublisher
	orch  *Orchestrator
	dir   string
}

func newHarness(t *testing.T, cfg config.IngestConfig) *harness {
	t.Helper()
	h := &harness{
		store: newFakeStore(),
		dest:  newFakeDestination(),
		pub:   &recordingPublisher{},
		dir:   t.TempDir(),
	}
	cfg.TempDir = h.dir
	h.orch = New(h.store, h.dest, h.pub, cfg)
	return h
}

func configuredTenant(id string) *models.TenantProfile {
	url := "postgres://db.example.com:5432/" + id
	return &models.TenantProfile{
		ID:               id,
		Email:            id + "@example.com",
		ClientType:       models.ClientTypeBusiness,
		SubscriptionPlan: models.PlanStarter,
		DestinationURL:   &url,
		AnonKey:          "anon",
		ServiceKey:       "service",
	}
}

func unconfiguredTenant(id string) *models.TenantProfile {
	return &models.TenantProfile{ID: id, ClientType: models.ClientTypeBusiness, SubscriptionPlan: models.PlanStarter}
}

func csvUpload(name, body string) *FileUpload {
	return &FileUpload{
		Name:        name,
		Size:        int64(len(body)),
		ContentType: "text/csv",
		Content:     strings.NewReader(body),
	}
}

// upload accepts and synchronously processes a file, returning the final job.
func (h *harness) upload(t *testing.T, tenantID string, file *FileUpload) (*models.UploadJob, error) {
	t.Helper()
	ctx := context.Background()
	res, err := h.orch.Accept(ctx, tenantID, file)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	procErr := h.orch.Process(ctx, h.pub.last(t))
	job, err := h.store.GetUpload(ctx, res.UploadID)
	if err != nil {
		t.Fatalf("GetUpload() error = %v", err)
	}
	return job, procErr
}
