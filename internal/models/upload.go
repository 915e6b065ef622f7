// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package models

import "time"

// JobStatus is the processing state of an upload.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo enforces pending -> processing -> {completed|failed}.
// A pending job may fail directly (for example when staging the upload fails),
// but nothing leaves a terminal state and nothing moves backwards.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// UploadMetadata is recorded on completion.
type UploadMetadata struct {
	TableName     string   `json:"table_name"`
	Columns       []string `json:"columns"`
	RowsProcessed int64    `json:"rows_processed"`
}

// UploadJob is one file submission and its processing outcome. Jobs are kept
// as an audit trail and never deleted automatically.
type UploadJob struct {
	ID                    string          `json:"id"`
	TenantID              string          `json:"user_id"`
	FileName              string          `json:"file_name"`
	OriginalFileName      string          `json:"original_file_name"`
	FileSize              int64           `json:"file_size"`
	MimeType              string          `json:"mime_type"`
	Status                JobStatus       `json:"processing_status"`
	RowCount              *int64          `json:"row_count"`
	ColumnCount           *int            `json:"column_count"`
	ColumnsInfo           []string        `json:"columns_info"`
	ErrorMessage          string          `json:"processing_error,omitempty"`
	Metadata              *UploadMetadata `json:"metadata"`
	ClientDatabaseSynced  bool            `json:"client_database_synced"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	ProcessingStartedAt   *time.Time      `json:"processing_started_at"`
	ProcessingCompletedAt *time.Time      `json:"processing_completed_at"`
}

// JobCompletion carries the fields written when a job completes.
type JobCompletion struct {
	RowCount    int64
	ColumnCount int
	Columns     []string
	TableName   string
}
