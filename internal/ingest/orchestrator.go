// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package ingest drives an upload from acceptance to a terminal job status.
//
// Accept validates the file, records a pending job, stages the bytes on disk
// and enqueues a Task. Process runs on the queue's executor and walks the job
// through processing to completed or failed:
//
//	normalize -> validate -> parse -> probe -> truncate -> insert
//
// Steps run strictly in sequence and the first failure ends the job. Nothing is
// retried; a failed upload must be submitted again.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/riqo-ingest/internal/charset"
	"github.com/tomtom215/riqo-ingest/internal/config"
	"github.com/tomtom215/riqo-ingest/internal/database"
	"github.com/tomtom215/riqo-ingest/internal/logging"
	"github.com/tomtom215/riqo-ingest/internal/metrics"
	"github.com/tomtom215/riqo-ingest/internal/models"
	"github.com/tomtom215/riqo-ingest/internal/tabular"
	"github.com/tomtom215/riqo-ingest/internal/tenantdb"
)

// User-facing messages.
const (
	msgNoFile         = "No file provided"
	msgBadExtension   = "Only CSV and Excel files are allowed"
	msgConflict       = "An upload is already being processed for this account. Please wait for it to finish."
	msgExcel          = "Excel file support requires additional dependencies. Please upload CSV files for now."
	msgProbeFailed    = "Client database connection failed"
	msgTruncateFailed = "Failed to truncate data table"
	msgInsertFailed   = "Failed to insert data"
	msgProfileMissing = "User profile not found"
)

// AllowedExtensions is the upload allow-list. Excel is accepted at intake
// and rejected during processing.
var AllowedExtensions = []string{".csv", ".xlsx", ".xls"}

const defaultMimeType = "text/csv"

// Store is the job and profile persistence the orchestrator needs.
type Store interface {
	GetProfile(ctx context.Context, id string) (*models.TenantProfile, error)
	CreateUpload(ctx context.Context, job *models.UploadJob) error
	GetUpload(ctx context.Context, id string) (*models.UploadJob, error)
	MarkProcessing(ctx context.Context, id string, at time.Time) error
	MarkCompleted(ctx context.Context, id string, c models.JobCompletion, at time.Time) error
	MarkFailed(ctx context.Context, id, message string, at time.Time) error
}

// Destination is the tenant-facing side of the pipeline, normally
// *tenantdb.Resolver paired with *tenantdb.Loader (see NewDestination).
type Destination interface {
	TableName(p *models.TenantProfile) string
	TestConnection(ctx context.Context, p *models.TenantProfile) tenantdb.ConnectionTest
	TruncateTable(ctx context.Context, p *models.TenantProfile) (tenantdb.TruncateResult, error)
	InsertRows(ctx context.Context, p *models.TenantProfile, rows []tabular.Row) (int64, error)
}

// Publisher enqueues tasks; *Queue implements it.
type Publisher interface {
	Publish(ctx context.Context, task Task) error
}

type destination struct {
	*tenantdb.Resolver
	*tenantdb.Loader
}

// NewDestination pairs a resolver with a loader built on it.
func NewDestination(r *tenantdb.Resolver) Destination {
	return destination{Resolver: r, Loader: tenantdb.NewLoader(r)}
}

// FileUpload is one submitted file. Size is the client-declared size; the
// staged byte count is enforced against the same limit.
type FileUpload struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.Reader
}

// AcceptResult is returned once the pending job is recorded.
type AcceptResult struct {
	Message  string           `json:"message"`
	UploadID string           `json:"uploadId"`
	FileName string           `json:"fileName"`
	FileSize int64            `json:"fileSize"`
	Status   models.JobStatus `json:"status"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLocks shares a lock table.
func WithLocks(l *TenantLocks) Option {
	return func(o *Orchestrator) { o.locks = l }
}

// Orchestrator accepts uploads and processes them.
type Orchestrator struct {
	store     Store
	dest      Destination
	publisher Publisher
	artifacts *Artifacts
	locks     *TenantLocks
	maxBytes  int64
	tooLarge  string
	now       func() time.Time
}

// New creates an Orchestrator.
func New(store Store, dest Destination, publisher Publisher, cfg config.IngestConfig, opts ...Option) *Orchestrator {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = config.MaxUploadBytesDefault
	}
	o := &Orchestrator{
		store:     store,
		dest:      dest,
		publisher: publisher,
		artifacts: NewArtifacts(cfg.TempDir),
		locks:     NewTenantLocks(),
		maxBytes:  maxBytes,
		tooLarge:  TooLargeMessage(maxBytes),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Locks exposes the per-tenant lock table.
func (o *Orchestrator) Locks() *TenantLocks {
	return o.locks
}

// Artifacts exposes the staging area, for the sweeper.
func (o *Orchestrator) Artifacts() *Artifacts {
	return o.artifacts
}

// Accept validates the upload and records a pending job. The returned job is
// processed asynchronously; callers poll its status.
func (o *Orchestrator) Accept(ctx context.Context, tenantID string, file *FileUpload) (*AcceptResult, error) {
	ctx = logging.ContextWithTenant(ctx, tenantID)

	if err := o.validateUpload(file); err != nil {
		metrics.RecordUploadRejected(o.rejectReason(err))
		return nil, err
	}

	profile, err := o.store.GetProfile(ctx, tenantID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, &NotFoundError{Message: msgProfileMissing}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	jobID := uuid.New().String()
	if holder, ok := o.locks.TryAcquire(tenantID, jobID); !ok {
		metrics.RecordUploadRejected("conflict")
		return nil, &ConflictError{Message: msgConflict, UploadID: holder}
	}

	ctx = logging.ContextWithUpload(ctx, jobID)
	if _, err := o.artifacts.Stage(jobID, file.Name, file.Content, o.maxBytes); err != nil {
		o.locks.Release(tenantID, jobID)
		if errors.Is(err, ErrTooLarge) {
			metrics.RecordUploadRejected("size")
			return nil, &ValidationError{Message: o.tooLarge}
		}
		return nil, err
	}

	now := o.now().UTC()
	mimeType := file.ContentType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = defaultMimeType
	}
	job := &models.UploadJob{
		ID:               jobID,
		TenantID:         tenantID,
		FileName:         fmt.Sprintf("processed_%d_%s", now.UnixMilli(), file.Name),
		OriginalFileName: file.Name,
		FileSize:         file.Size,
		MimeType:         mimeType,
		Status:           models.StatusPending,
		CreatedAt:        now,
	}
	if err := o.store.CreateUpload(ctx, job); err != nil {
		o.locks.Release(tenantID, jobID)
		if rmErr := o.artifacts.Remove(jobID); rmErr != nil {
			logging.CtxWarn(ctx).Err(rmErr).Msg("Failed to clean up temp directory")
		}
		return nil, fmt.Errorf("failed to create upload record: %w", err)
	}

	if err := o.publisher.Publish(ctx, Task{UploadID: jobID, TenantID: tenantID}); err != nil {
		o.abandon(ctx, job, err)
		return nil, fmt.Errorf("failed to enqueue upload: %w", err)
	}

	metrics.UploadsAccepted.Inc()
	logging.CtxInfo(ctx).
		Str("file_name", file.Name).
		Int64("file_size", file.Size).
		Bool("destination_configured", profile.HasDestination()).
		Msg("Upload accepted")

	return &AcceptResult{
		Message:  "File upload started",
		UploadID: jobID,
		FileName: file.Name,
		FileSize: file.Size,
		Status:   models.StatusPending,
	}, nil
}

func (o *Orchestrator) validateUpload(file *FileUpload) error {
	if file == nil || file.Content == nil || strings.TrimSpace(file.Name) == "" {
		return &ValidationError{Message: msgNoFile}
	}
	if !allowedExtension(file.Name) {
		return &ValidationError{Message: msgBadExtension}
	}
	if file.Size > o.maxBytes {
		return &ValidationError{Message: o.tooLarge}
	}
	return nil
}

func (o *Orchestrator) rejectReason(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		switch v.Message {
		case msgNoFile:
			return "missing_file"
		case msgBadExtension:
			return "extension"
		case o.tooLarge:
			return "size"
		}
	}
	return Kind(err)
}

// TooLargeMessage is the rejection text for files over limit bytes.
func TooLargeMessage(limit int64) string {
	const mib = 1 << 20
	if limit > 0 && limit%mib == 0 {
		return fmt.Sprintf("File size must be less than %dMB", limit/mib)
	}
	return fmt.Sprintf("File size must be less than %d bytes", limit)
}

func allowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func isExcel(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".xlsx" || ext == ".xls"
}

// abandon fails a pending job whose intake could not complete.
func (o *Orchestrator) abandon(ctx context.Context, job *models.UploadJob, cause error) {
	defer o.locks.Release(job.TenantID, job.ID)

	if err := o.store.MarkFailed(context.WithoutCancel(ctx), job.ID, cause.Error(), o.now().UTC()); err != nil {
		logging.CtxErr(ctx, err).Msg("Failed to mark abandoned upload as failed")
	}
	if err := o.artifacts.Remove(job.ID); err != nil {
		logging.CtxWarn(ctx).Err(err).Msg("Failed to clean up temp directory")
	}
}

// outcome is what a successful run hands to MarkCompleted.
type outcome struct {
	rows    int64
	header  []string
	table   string
	report  charset.Report
	trunc   tenantdb.TruncateResult
	warning int
}

// Process runs one job to a terminal status and returns the failure, if any.
// The job's tenant lock is released on every path.
func (o *Orchestrator) Process(ctx context.Context, task Task) (err error) {
	ctx = logging.ContextWithUpload(logging.ContextWithTenant(ctx, task.TenantID), task.UploadID)

	job, err := o.store.GetUpload(ctx, task.UploadID)
	if err != nil {
		o.locks.Release(task.TenantID, task.UploadID)
		return fmt.Errorf("failed to load upload: %w", err)
	}
	defer o.locks.Release(job.TenantID, job.ID)

	started := o.now().UTC()
	if err := o.store.MarkProcessing(ctx, job.ID, started); err != nil {
		// Already terminal or gone; nothing to do.
		_ = o.artifacts.Remove(job.ID)
		return fmt.Errorf("failed to mark upload processing: %w", err)
	}
	metrics.RecordJobStarted()
	logging.CtxInfo(ctx).Str("file_name", job.OriginalFileName).Msg("Starting file processing")

	var result outcome
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error while processing upload: %v", r)
			logging.CtxErr(ctx, err).Msg("Recovered panic in upload processing")
		}
		o.finish(ctx, job, started, result, err)
	}()

	result, err = o.run(ctx, job)
	return err
}

func (o *Orchestrator) run(ctx context.Context, job *models.UploadJob) (outcome, error) {
	var out outcome

	if isExcel(job.OriginalFileName) {
		return out, &ValidationError{Message: msgExcel}
	}

	text, report, err := o.readArtifact(job)
	if err != nil {
		return out, err
	}
	out.report = report
	if out.report.Repaired {
		metrics.EncodingRepairs.WithLabelValues(out.report.Encoding).Inc()
		logging.CtxInfo(ctx).
			Str("encoding", out.report.Encoding).
			Int("score", out.report.Score).
			Int("original_score", out.report.OriginalScore).
			Msg("Repaired file encoding")
	}

	if err := tabular.Validate(text); err != nil {
		return out, &ValidationError{Cause: err}
	}

	parsed, err := tabular.Parse(text)
	if err != nil {
		return out, &ParseError{Cause: err}
	}
	out.header = parsed.Header
	out.warning = len(parsed.Warnings)
	if out.warning > 0 {
		logging.CtxWarn(ctx).Int("warnings", out.warning).Msg("CSV parsing warnings")
	}
	logging.CtxInfo(ctx).Int("rows", len(parsed.Rows)).Msg("Parsed upload")

	profile, err := o.store.GetProfile(ctx, job.TenantID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return out, &ConfigurationError{Message: msgProfileMissing}
		}
		return out, fmt.Errorf("failed to load profile: %w", err)
	}
	out.table = o.dest.TableName(profile)

	if test := o.dest.TestConnection(ctx, profile); !test.Success {
		return out, classifyProbe(msgProbeFailed, test)
	}

	out.trunc, err = o.dest.TruncateTable(ctx, profile)
	if err != nil {
		return out, classifyDestination(msgTruncateFailed, err)
	}

	out.rows, err = o.dest.InsertRows(ctx, profile, parsed.Rows)
	if err != nil {
		return out, classifyDestination(msgInsertFailed, err)
	}
	return out, nil
}

// readArtifact loads the staged file and normalizes its encoding.
func (o *Orchestrator) readArtifact(job *models.UploadJob) (string, charset.Report, error) {
	f, err := o.artifacts.Open(job.ID, job.OriginalFileName)
	if err != nil {
		return "", charset.Report{}, err
	}
	defer f.Close()

	return charset.NormalizeReader(f)
}

// finish records the terminal status and removes the artifact. Status writes
// use a context detached from cancellation so shutdown still records them.
func (o *Orchestrator) finish(ctx context.Context, job *models.UploadJob, started time.Time, out outcome, runErr error) {
	if err := o.artifacts.Remove(job.ID); err != nil {
		logging.CtxWarn(ctx).Err(err).Msg("Failed to clean up temp directory")
	}

	writeCtx := context.WithoutCancel(ctx)
	done := o.now().UTC()

	if runErr != nil {
		if err := o.store.MarkFailed(writeCtx, job.ID, runErr.Error(), done); err != nil {
			logging.CtxErr(ctx, err).Msg("Failed to record upload failure")
		}
		metrics.RecordJobFinished(string(models.StatusFailed), done.Sub(started), 0)
		logging.CtxWarn(ctx).
			Str("error_kind", Kind(runErr)).
			Str("error", runErr.Error()).
			Msg("Upload processing failed")
		return
	}

	completion := models.JobCompletion{
		RowCount:    out.rows,
		ColumnCount: len(out.header),
		Columns:     out.header,
		TableName:   out.table,
	}
	if err := o.store.MarkCompleted(writeCtx, job.ID, completion, done); err != nil {
		logging.CtxErr(ctx, err).Msg("Failed to record upload completion")
		metrics.RecordJobFinished(string(models.StatusFailed), done.Sub(started), out.rows)
		return
	}
	metrics.RecordJobFinished(string(models.StatusCompleted), done.Sub(started), out.rows)
	logging.CtxInfo(ctx).
		Int64("rows", out.rows).
		Int("columns", len(out.header)).
		Str("table", out.table).
		Str("truncate_strategy", out.trunc.Strategy).
		Msg("Successfully processed upload")
}
