// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the profile and upload tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

var tableCreationQueries = []string{
	// One row per authenticated account. Credential columns hold ciphertext.
	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		email TEXT,
		full_name TEXT,
		company TEXT,
		client_type TEXT NOT NULL DEFAULT 'business',
		subscription_plan TEXT NOT NULL DEFAULT 'starter',
		subscription_status TEXT NOT NULL DEFAULT 'active',
		client_database_url TEXT,
		client_database_anon_key TEXT,
		client_database_service_key TEXT,
		data_table_name TEXT,
		grafana_dashboard_url TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	// Upload audit trail; rows are never deleted.
	`CREATE TABLE IF NOT EXISTS data_uploads (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		original_file_name TEXT NOT NULL,
		file_size BIGINT NOT NULL,
		mime_type TEXT NOT NULL,
		processing_status TEXT NOT NULL,
		row_count BIGINT,
		column_count INTEGER,
		columns_info TEXT,
		processing_error TEXT,
		metadata TEXT,
		client_database_synced BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		processing_started_at TIMESTAMP,
		processing_completed_at TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_data_uploads_user ON data_uploads(user_id)`,
}
