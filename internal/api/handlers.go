// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"context"
	"time"

	"github.com/tomtom215/riqo-ingest/internal/audit"
	"github.com/tomtom215/riqo-ingest/internal/ingest"
	"github.com/tomtom215/riqo-ingest/internal/models"
	"github.com/tomtom215/riqo-ingest/internal/tenantdb"
)

// Uploader accepts files for asynchronous ingestion.
type Uploader interface {
	Accept(ctx context.Context, tenantID string, file *ingest.FileUpload) (*ingest.AcceptResult, error)
}

// StatusReader reports job progress to the owning tenant.
type StatusReader interface {
	GetStatus(ctx context.Context, jobID, tenantID string) (*ingest.StatusView, error)
}

// ProfileStore reads and updates tenant profiles.
type ProfileStore interface {
	GetProfileByEmail(ctx context.Context, email string) (*models.TenantProfile, error)
	UpdateClientConfig(ctx context.Context, id string, cc models.ClientConfig) (*models.TenantProfile, error)
	Ping(ctx context.Context) error
}

// DestinationInspector is the read and probe side of the tenant destinations.
type DestinationInspector interface {
	TableName(p *models.TenantProfile) string
	TestConnection(ctx context.Context, p *models.TenantProfile) tenantdb.ConnectionTest
	Inspect(ctx context.Context, p *models.TenantProfile) (*tenantdb.TableInfo, error)
	ReadPage(ctx context.Context, p *models.TenantProfile, limit, offset int) (*tenantdb.DataPage, error)
	Invalidate(tenantID string)
}

// AuditTrail records destination changes and administrator lookups and
// serves the stored trail to administrators.
type AuditTrail interface {
	LogDestinationConfigured(ctx context.Context, actor audit.Actor, source audit.Source, change audit.DestinationChange, byAdmin bool)
	LogUserLookup(ctx context.Context, actor audit.Actor, source audit.Source, email, targetID string)
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	Count(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

// QueueHealth reports whether the ingest router is consuming tasks.
type QueueHealth interface {
	IsRunning() bool
}

// Handler serves every API endpoint.
type Handler struct {
	uploads      Uploader
	status       StatusReader
	profiles     ProfileStore
	destinations DestinationInspector
	queue        QueueHealth
	audit        AuditTrail

	maxUploadBytes int64
	version        string
	startTime      time.Time
}

// HandlerDeps groups the collaborators of Handler.
type HandlerDeps struct {
	Uploads      Uploader
	Status       StatusReader
	Profiles     ProfileStore
	Destinations DestinationInspector
	Queue        QueueHealth
	// Audit is optional; without it nothing is recorded and the audit
	// listing answers 503.
	Audit          AuditTrail
	MaxUploadBytes int64
	Version        string
}

// NewHandler creates the handler set.
func NewHandler(deps HandlerDeps) *Handler {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		uploads:        deps.Uploads,
		status:         deps.Status,
		profiles:       deps.Profiles,
		destinations:   deps.Destinations,
		queue:          deps.Queue,
		audit:          deps.Audit,
		maxUploadBytes: deps.MaxUploadBytes,
		version:        version,
		startTime:      time.Now(),
	}
}
