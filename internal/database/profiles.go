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
	"strings"
	"time"

	"github.com/tomtom215/riqo-ingest/internal/metrics"
	"github.com/tomtom215/riqo-ingest/internal/models"
)

const profileColumns = `id, email, full_name, company, client_type, subscription_plan,
	subscription_status, client_database_url, client_database_anon_key,
	client_database_service_key, data_table_name, grafana_dashboard_url,
	created_at, updated_at`

// GetProfile returns the profile with the given ID, or ErrNotFound.
func (db *DB) GetProfile(ctx context.Context, id string) (*models.TenantProfile, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := db.scanProfile(row)
	metrics.RecordDBQuery("select", "profiles", time.Since(start), ignoreNotFound(err))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProfileByEmail looks a profile up by email, case-insensitively.
func (db *DB) GetProfileByEmail(ctx context.Context, email string) (*models.TenantProfile, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE lower(email) = lower(?) ORDER BY created_at LIMIT 1`,
		strings.TrimSpace(email))
	p, err := db.scanProfile(row)
	metrics.RecordDBQuery("select", "profiles", time.Since(start), ignoreNotFound(err))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// EnsureProfile returns the profile for id, creating an unconfigured starter
// profile on first sight of an authenticated account.
func (db *DB) EnsureProfile(ctx context.Context, id, email string) (*models.TenantProfile, error) {
	p, err := db.GetProfile(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	start := time.Now()
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO profiles (id, email, client_type, subscription_plan, subscription_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'active', ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		id, nullString(email), models.ClientTypeBusiness, models.PlanStarter, now, now)
	metrics.RecordDBQuery("insert", "profiles", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return db.GetProfile(ctx, id)
}

// SetSubscriptionPlan changes a profile's plan.
func (db *DB) SetSubscriptionPlan(ctx context.Context, id, plan string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET subscription_plan = ?, updated_at = ? WHERE id = ?`,
		plan, time.Now().UTC(), id)
	metrics.RecordDBQuery("update", "profiles", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update subscription plan: %w", err)
	}
	return requireAffected(res)
}

// UpdateClientConfig writes the destination configuration of a profile and
// returns the updated profile. Credentials are encrypted before storage.
func (db *DB) UpdateClientConfig(ctx context.Context, id string, cc models.ClientConfig) (*models.TenantProfile, error) {
	anon, err := db.encrypt(cc.AnonKey)
	if err != nil {
		return nil, err
	}
	service, err := db.encrypt(cc.ServiceKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	clientType := cc.ClientType
	if clientType == "" {
		clientType = models.ClientTypeBusiness
	}

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `
		UPDATE profiles SET
			company = ?,
			client_type = ?,
			client_database_url = ?,
			client_database_anon_key = ?,
			client_database_service_key = ?,
			data_table_name = ?,
			grafana_dashboard_url = ?,
			updated_at = ?
		WHERE id = ?`,
		nullString(cc.Company), clientType, nullString(cc.DestinationURL),
		nullString(anon), nullString(service), nullString(cc.DataTableName),
		nullString(cc.DashboardURL), time.Now().UTC(), id)
	metrics.RecordDBQuery("update", "profiles", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to update client configuration: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return db.GetProfile(ctx, id)
}

func (db *DB) scanProfile(row *sql.Row) (*models.TenantProfile, error) {
	var (
		p                                            models.TenantProfile
		email, fullName, company, url, anon, service sql.NullString
		tableName, dashboard                         sql.NullString
	)
	err := row.Scan(&p.ID, &email, &fullName, &company, &p.ClientType, &p.SubscriptionPlan,
		&p.SubscriptionStatus, &url, &anon, &service, &tableName, &dashboard,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	p.Email = email.String
	p.FullName = fullName.String
	p.Company = company.String
	p.DataTableName = tableName.String
	p.DashboardURL = dashboard.String
	if url.Valid {
		u := url.String
		p.DestinationURL = &u
	}
	if p.AnonKey, err = db.decrypt(anon.String); err != nil {
		return nil, err
	}
	if p.ServiceKey, err = db.decrypt(service.String); err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) encrypt(value string) (string, error) {
	if db.enc == nil {
		return value, nil
	}
	out, err := db.enc.EncryptOptional(value)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credential: %w", err)
	}
	return out, nil
}

func (db *DB) decrypt(value string) (string, error) {
	if db.enc == nil {
		return value, nil
	}
	out, err := db.enc.DecryptOptional(value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return out, nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ignoreNotFound keeps lookups of absent records out of the error metric.
func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
