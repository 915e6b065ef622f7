// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/riqo-ingest/internal/database"
	"github.com/tomtom215/riqo-ingest/internal/models"
)

const msgUploadNotFound = "Upload not found"

// UploadReader is the read side of the job store.
type UploadReader interface {
	GetUpload(ctx context.Context, id string) (*models.UploadJob, error)
}

// FileInfo describes the stored file.
type FileInfo struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
}

// DebugInfo helps diagnose column mismatches against the destination table.
type DebugInfo struct {
	CSVColumns []string `json:"csv_columns"`
	TableName  string   `json:"table_name"`
}

// StatusView is what a polling client sees.
type StatusView struct {
	ID                    string                 `json:"id"`
	Status                models.JobStatus       `json:"status"`
	RowsProcessed         *int64                 `json:"rows_processed"`
	ColumnsProcessed      *int                   `json:"columns_processed"`
	ErrorMessage          *string                `json:"error_message"`
	ProcessingStartedAt   *time.Time             `json:"processing_started_at"`
	ProcessingCompletedAt *time.Time             `json:"processing_completed_at"`
	ClientDatabaseSynced  bool                   `json:"client_database_synced"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
	FileInfo              FileInfo               `json:"file_info"`
	ColumnsInfo           []string               `json:"columns_info"`
	Metadata              *models.UploadMetadata `json:"metadata"`
	DebugInfo             DebugInfo              `json:"debug_info"`
}

// Reporter serves job status, scoped to the owning tenant.
type Reporter struct {
	store UploadReader
}

// NewReporter creates a Reporter.
func NewReporter(store UploadReader) *Reporter {
	return &Reporter{store: store}
}

// GetStatus returns the job's status view. A job owned by another tenant is
// reported exactly like a missing one.
func (r *Reporter) GetStatus(ctx context.Context, jobID, tenantID string) (*StatusView, error) {
	job, err := r.store.GetUpload(ctx, jobID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, &NotFoundError{Message: msgUploadNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load upload: %w", err)
	}
	if job.TenantID != tenantID {
		return nil, &NotFoundError{Message: msgUploadNotFound}
	}
	return NewStatusView(job), nil
}

// NewStatusView projects a job onto the polling shape.
func NewStatusView(job *models.UploadJob) *StatusView {
	v := &StatusView{
		ID:                    job.ID,
		Status:                job.Status,
		RowsProcessed:         job.RowCount,
		ColumnsProcessed:      job.ColumnCount,
		ProcessingStartedAt:   job.ProcessingStartedAt,
		ProcessingCompletedAt: job.ProcessingCompletedAt,
		ClientDatabaseSynced:  job.ClientDatabaseSynced,
		CreatedAt:             job.CreatedAt,
		UpdatedAt:             job.UpdatedAt,
		FileInfo: FileInfo{
			Name:         job.FileName,
			OriginalName: job.OriginalFileName,
			Size:         job.FileSize,
		},
		ColumnsInfo: job.ColumnsInfo,
		Metadata:    job.Metadata,
		DebugInfo: DebugInfo{
			CSVColumns: job.ColumnsInfo,
			TableName:  "unknown",
		},
	}
	if job.ErrorMessage != "" {
		msg := job.ErrorMessage
		v.ErrorMessage = &msg
	}
	if v.DebugInfo.CSVColumns == nil {
		v.DebugInfo.CSVColumns = []string{}
	}
	if job.Metadata != nil && job.Metadata.TableName != "" {
		v.DebugInfo.TableName = job.Metadata.TableName
	}
	return v
}
