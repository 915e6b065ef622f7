// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/riqo-ingest/internal/config"
	"github.com/tomtom215/riqo-ingest/internal/models"
)

// DuckDB's CGO layer does not tolerate many concurrent in-memory instances
// well, so tests share a small semaphore.
var testDBSemaphore = make(chan struct{}, 2)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	enc, err := config.NewCredentialEncryptor("test-secret-with-enough-entropy-0123456789")
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}

	db, err := New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   1,
	}, enc)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func newTestUpload(t *testing.T, db *DB, id, tenant string) *models.UploadJob {
	t.Helper()
	job := &models.UploadJob{
		ID:               id,
		TenantID:         tenant,
		FileName:         "1700000000000-ventas.csv",
		OriginalFileName: "ventas.csv",
		FileSize:         128,
		MimeType:         "text/csv",
	}
	if err := db.CreateUpload(context.Background(), job); err != nil {
		t.Fatalf("CreateUpload() error = %v", err)
	}
	return job
}

func TestNew_Ping(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestEnsureProfile(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p, err := db.EnsureProfile(ctx, "tenant-1", "ana@example.com")
	if err != nil {
		t.Fatalf("EnsureProfile() error = %v", err)
	}
	if p.SubscriptionPlan != models.PlanStarter {
		t.Errorf("SubscriptionPlan = %q, want %q", p.SubscriptionPlan, models.PlanStarter)
	}
	if p.ClientType != models.ClientTypeBusiness {
		t.Errorf("ClientType = %q, want %q", p.ClientType, models.ClientTypeBusiness)
	}
	if p.HasDestination() {
		t.Error("new profile should have no destination")
	}

	// Second call returns the existing row untouched.
	if err := db.SetSubscriptionPlan(ctx, "tenant-1", models.PlanEnterprise); err != nil {
		t.Fatalf("SetSubscriptionPlan() error = %v", err)
	}
	again, err := db.EnsureProfile(ctx, "tenant-1", "other@example.com")
	if err != nil {
		t.Fatalf("EnsureProfile() second call error = %v", err)
	}
	if again.SubscriptionPlan != models.PlanEnterprise || again.Email != "ana@example.com" {
		t.Errorf("EnsureProfile() overwrote existing profile: %+v", again)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetProfile(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProfile() error = %v, want ErrNotFound", err)
	}
	_, err = db.GetProfileByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProfileByEmail() error = %v, want ErrNotFound", err)
	}
}

func TestGetProfileByEmail_CaseInsensitive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.EnsureProfile(ctx, "tenant-1", "Ana@Example.com"); err != nil {
		t.Fatalf("EnsureProfile() error = %v", err)
	}
	p, err := db.GetProfileByEmail(ctx, "  ana@example.COM ")
	if err != nil {
		t.Fatalf("GetProfileByEmail() error = %v", err)
	}
	if p.ID != "tenant-1" {
		t.Errorf("ID = %q, want tenant-1", p.ID)
	}
}

func TestUpdateClientConfig_EncryptsCredentials(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.EnsureProfile(ctx, "tenant-1", "ana@example.com"); err != nil {
		t.Fatalf("EnsureProfile() error = %v", err)
	}

	p, err := db.UpdateClientConfig(ctx, "tenant-1", models.ClientConfig{
		Company:        "Acme",
		ClientType:     models.ClientTypeEnterprise,
		DestinationURL: "postgres://db.example.com:5432/acme",
		AnonKey:        "reader:anon-secret",
		ServiceKey:     "service-secret",
		DataTableName:  "sales",
	})
	if err != nil {
		t.Fatalf("UpdateClientConfig() error = %v", err)
	}
	if !p.HasDestination() || *p.DestinationURL != "postgres://db.example.com:5432/acme" {
		t.Errorf("DestinationURL = %v", p.DestinationURL)
	}
	if p.AnonKey != "reader:anon-secret" || p.ServiceKey != "service-secret" {
		t.Errorf("credentials not decrypted: anon=%q service=%q", p.AnonKey, p.ServiceKey)
	}
	if p.TableName("ventas") != "sales" {
		t.Errorf("TableName() = %q, want sales", p.TableName("ventas"))
	}

	var rawService string
	err = db.conn.QueryRowContext(ctx,
		`SELECT client_database_service_key FROM profiles WHERE id = ?`, "tenant-1").Scan(&rawService)
	if err != nil {
		t.Fatalf("raw select error = %v", err)
	}
	if rawService == "" || strings.Contains(rawService, "service-secret") {
		t.Errorf("service key stored in plaintext: %q", rawService)
	}
}

func TestUpdateClientConfig_ClearsOptionalFields(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.EnsureProfile(ctx, "tenant-1", ""); err != nil {
		t.Fatalf("EnsureProfile() error = %v", err)
	}
	if _, err := db.UpdateClientConfig(ctx, "tenant-1", models.ClientConfig{
		DestinationURL: "postgres://db/acme",
		ServiceKey:     "service-secret",
	}); err != nil {
		t.Fatalf("UpdateClientConfig() error = %v", err)
	}

	p, err := db.UpdateClientConfig(ctx, "tenant-1", models.ClientConfig{})
	if err != nil {
		t.Fatalf("UpdateClientConfig() error = %v", err)
	}
	if p.HasDestination() || p.ServiceKey != "" {
		t.Errorf("expected cleared destination, got %+v", p)
	}
}

func TestUpdateClientConfig_UnknownProfile(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.UpdateClientConfig(context.Background(), "missing", models.ClientConfig{Company: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateClientConfig() error = %v, want ErrNotFound", err)
	}
}

func TestUploadLifecycle_Completed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	newTestUpload(t, db, "job-1", "tenant-1")

	job, err := db.GetUpload(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetUpload() error = %v", err)
	}
	if job.Status != models.StatusPending {
		t.Fatalf("Status = %q, want pending", job.Status)
	}
	if job.RowCount != nil || job.Metadata != nil || job.ProcessingStartedAt != nil {
		t.Errorf("pending job should have no results: %+v", job)
	}

	started := time.Now().UTC().Truncate(time.Millisecond)
	if err := db.MarkProcessing(ctx, "job-1", started); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}

	done := started.Add(2 * time.Second)
	completion := models.JobCompletion{
		RowCount:    3,
		ColumnCount: 2,
		Columns:     []string{"producto", "total"},
		TableName:   "ventas",
	}
	if err := db.MarkCompleted(ctx, "job-1", completion, done); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	job, err = db.GetUpload(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetUpload() error = %v", err)
	}
	if job.Status != models.StatusCompleted {
		t.Errorf("Status = %q, want completed", job.Status)
	}
	if job.RowCount == nil || *job.RowCount != 3 {
		t.Errorf("RowCount = %v, want 3", job.RowCount)
	}
	if job.ColumnCount == nil || *job.ColumnCount != 2 {
		t.Errorf("ColumnCount = %v, want 2", job.ColumnCount)
	}
	if len(job.ColumnsInfo) != 2 || job.ColumnsInfo[0] != "producto" {
		t.Errorf("ColumnsInfo = %v", job.ColumnsInfo)
	}
	if job.Metadata == nil || job.Metadata.TableName != "ventas" || job.Metadata.RowsProcessed != 3 {
		t.Errorf("Metadata = %+v", job.Metadata)
	}
	if !job.ClientDatabaseSynced {
		t.Error("ClientDatabaseSynced = false, want true")
	}
	if job.ProcessingStartedAt == nil || job.ProcessingCompletedAt == nil {
		t.Fatal("processing timestamps not set")
	}
	if job.ProcessingCompletedAt.Before(*job.ProcessingStartedAt) {
		t.Error("completed_at before started_at")
	}
}

func TestUploadLifecycle_FailedFromPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	newTestUpload(t, db, "job-1", "tenant-1")
	if err := db.MarkFailed(ctx, "job-1", "User does not have a client database configured", time.Now()); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	job, err := db.GetUpload(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetUpload() error = %v", err)
	}
	if job.Status != models.StatusFailed {
		t.Errorf("Status = %q, want failed", job.Status)
	}
	if job.ErrorMessage != "User does not have a client database configured" {
		t.Errorf("ErrorMessage = %q", job.ErrorMessage)
	}
	if job.ClientDatabaseSynced {
		t.Error("failed job should not be synced")
	}
}

func TestUploadTransitions_Rejected(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	newTestUpload(t, db, "job-1", "tenant-1")
	if err := db.MarkFailed(ctx, "job-1", "boom", now); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"processing after failed", func() error { return db.MarkProcessing(ctx, "job-1", now) }},
		{"completed after failed", func() error {
			return db.MarkCompleted(ctx, "job-1", models.JobCompletion{RowCount: 1}, now)
		}},
		{"failed twice", func() error { return db.MarkFailed(ctx, "job-1", "again", now) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("error = %v, want ErrInvalidTransition", err)
			}
		})
	}

	job, err := db.GetUpload(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetUpload() error = %v", err)
	}
	if job.ErrorMessage != "boom" {
		t.Errorf("terminal job was modified: %q", job.ErrorMessage)
	}
}

func TestUploadTransitions_CompletedRequiresProcessing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	newTestUpload(t, db, "job-1", "tenant-1")
	err := db.MarkCompleted(ctx, "job-1", models.JobCompletion{RowCount: 1}, time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkCompleted() on pending error = %v, want ErrInvalidTransition", err)
	}
}

func TestUploadTransitions_Missing(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MarkProcessing(context.Background(), "nope", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkProcessing() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetUpload(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUpload() error = %v, want ErrNotFound", err)
	}
}

func TestListUploads(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"job-a", "job-b", "job-c"} {
		job := &models.UploadJob{
			ID: id, TenantID: "tenant-1", FileName: id, OriginalFileName: id,
			FileSize: 1, MimeType: "text/csv", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.CreateUpload(ctx, job); err != nil {
			t.Fatalf("CreateUpload() error = %v", err)
		}
	}
	newTestUpload(t, db, "other", "tenant-2")

	jobs, err := db.ListUploads(ctx, "tenant-1", 2)
	if err != nil {
		t.Fatalf("ListUploads() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if jobs[0].ID != "job-c" || jobs[1].ID != "job-b" {
		t.Errorf("order = %s, %s; want job-c, job-b", jobs[0].ID, jobs[1].ID)
	}
}
