// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riqo-ingest/internal/metrics"
	"github.com/tomtom215/riqo-ingest/internal/models"
)

const uploadColumns = `id, user_id, file_name, original_file_name, file_size, mime_type,
	processing_status, row_count, column_count, columns_info, processing_error,
	metadata, client_database_synced, created_at, updated_at,
	processing_started_at, processing_completed_at`

// CreateUpload inserts a new job. Status defaults to pending and timestamps
// to now when unset.
func (db *DB) CreateUpload(ctx context.Context, job *models.UploadJob) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO data_uploads (id, user_id, file_name, original_file_name, file_size,
			mime_type, processing_status, client_database_synced, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, false, ?, ?)`,
		job.ID, job.TenantID, job.FileName, job.OriginalFileName, job.FileSize,
		job.MimeType, string(job.Status), job.CreatedAt, job.UpdatedAt)
	metrics.RecordDBQuery("insert", "data_uploads", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to create upload record: %w", err)
	}
	return nil
}

// GetUpload returns a job by ID, or ErrNotFound.
func (db *DB) GetUpload(ctx context.Context, id string) (*models.UploadJob, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM data_uploads WHERE id = ?`, id)
	job, err := scanUpload(row)
	metrics.RecordDBQuery("select", "data_uploads", time.Since(start), ignoreNotFound(err))
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListUploads returns a tenant's most recent jobs, newest first.
func (db *DB) ListUploads(ctx context.Context, tenantID string, limit int) ([]*models.UploadJob, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM data_uploads WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		tenantID, limit)
	metrics.RecordDBQuery("select", "data_uploads", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer closeQuietly(rows)

	var jobs []*models.UploadJob
	for rows.Next() {
		job, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate uploads: %w", err)
	}
	return jobs, nil
}

// MarkProcessing moves a pending job to processing.
func (db *DB) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	return db.transition(ctx, id, models.StatusProcessing, `
		UPDATE data_uploads SET
			processing_status = ?,
			processing_started_at = ?,
			updated_at = ?
		WHERE id = ? AND processing_status = ?`,
		string(models.StatusProcessing), at, at, id, string(models.StatusPending))
}

// MarkCompleted records a successful load of a processing job.
func (db *DB) MarkCompleted(ctx context.Context, id string, c models.JobCompletion, at time.Time) error {
	columns, err := json.Marshal(c.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}
	meta, err := json.Marshal(models.UploadMetadata{
		TableName:     c.TableName,
		Columns:       c.Columns,
		RowsProcessed: c.RowCount,
	})
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	return db.transition(ctx, id, models.StatusCompleted, `
		UPDATE data_uploads SET
			processing_status = ?,
			row_count = ?,
			column_count = ?,
			columns_info = ?,
			metadata = ?,
			client_database_synced = true,
			processing_error = NULL,
			processing_completed_at = ?,
			updated_at = ?
		WHERE id = ? AND processing_status = ?`,
		string(models.StatusCompleted), c.RowCount, c.ColumnCount, string(columns), string(meta),
		at, at, id, string(models.StatusProcessing))
}

// MarkFailed records a failure. Pending and processing jobs may fail.
func (db *DB) MarkFailed(ctx context.Context, id, message string, at time.Time) error {
	return db.transition(ctx, id, models.StatusFailed, `
		UPDATE data_uploads SET
			processing_status = ?,
			processing_error = ?,
			processing_completed_at = ?,
			updated_at = ?
		WHERE id = ? AND processing_status IN (?, ?)`,
		string(models.StatusFailed), message, at, at, id,
		string(models.StatusPending), string(models.StatusProcessing))
}

// transition runs a conditional status update. Zero affected rows means the
// job is missing or its current status does not allow the move.
func (db *DB) transition(ctx context.Context, id string, next models.JobStatus, query string, args ...any) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, query, args...)
	metrics.RecordDBQuery("update", "data_uploads", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to mark upload %s: %w", next, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = db.conn.QueryRowContext(ctx, `SELECT processing_status FROM data_uploads WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read upload status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*models.UploadJob, error) {
	var (
		job                        models.UploadJob
		status                     string
		rowCount                   sql.NullInt64
		columnCount                sql.NullInt32
		columnsInfo, procErr, meta sql.NullString
		startedAt, completedAt     sql.NullTime
	)
	err := row.Scan(&job.ID, &job.TenantID, &job.FileName, &job.OriginalFileName, &job.FileSize,
		&job.MimeType, &status, &rowCount, &columnCount, &columnsInfo, &procErr, &meta,
		&job.ClientDatabaseSynced, &job.CreatedAt, &job.UpdatedAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan upload: %w", err)
	}

	job.Status = models.JobStatus(status)
	job.ErrorMessage = procErr.String
	if rowCount.Valid {
		n := rowCount.Int64
		job.RowCount = &n
	}
	if columnCount.Valid {
		n := int(columnCount.Int32)
		job.ColumnCount = &n
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.ProcessingStartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.ProcessingCompletedAt = &t
	}
	if columnsInfo.Valid && columnsInfo.String != "" {
		if err := json.Unmarshal([]byte(columnsInfo.String), &job.ColumnsInfo); err != nil {
			return nil, fmt.Errorf("failed to decode columns_info: %w", err)
		}
	}
	if meta.Valid && meta.String != "" {
		var m models.UploadMetadata
		if err := json.Unmarshal([]byte(meta.String), &m); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		job.Metadata = &m
	}
	return &job, nil
}
