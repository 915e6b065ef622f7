// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tomtom215/riqo-ingest/internal/models"
)

const (
	// DefaultPostgresImage is the destination database image.
	DefaultPostgresImage = "postgres:16-alpine"

	postgresPort     = "5432/tcp"
	postgresDatabase = "analytics"
	postgresPassword = "postgres"

	// WriterKey and ReaderKey are the tenant keys for the provisioned roles.
	WriterKey = "ingest_writer:writer-secret"
	ReaderKey = "ingest_reader:reader-secret"
)

// provisionSQL creates the tenant table and the two roles. id is a serial
// so the sequence reset after TRUNCATE/DELETE can be observed.
const provisionSQL = `
CREATE TABLE ventas (
	id               serial PRIMARY KEY,
	fecha            text,
	fecha_formateada date,
	producto         text,
	cantidad         numeric,
	monto            numeric,
	created_at       timestamptz NOT NULL DEFAULT now()
);
CREATE ROLE ingest_writer LOGIN PASSWORD 'writer-secret';
CREATE ROLE ingest_reader LOGIN PASSWORD 'reader-secret';
GRANT SELECT, INSERT, DELETE, TRUNCATE ON ventas TO ingest_writer;
GRANT USAGE, UPDATE ON SEQUENCE ventas_id_seq TO ingest_writer;
GRANT SELECT ON ventas TO ingest_reader;
`

// PostgresContainer is a running destination database.
type PostgresContainer struct {
	testcontainers.Container

	// URL has no credentials; tenants authenticate with WriterKey/ReaderKey.
	URL string

	// AdminURL connects as the superuser, for assertions.
	AdminURL string
}

// PostgresOption configures the container.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	image        string
	startTimeout time.Duration
	extraSQL     []string
}

// WithPostgresImage overrides DefaultPostgresImage.
func WithPostgresImage(image string) PostgresOption {
	return func(c *postgresConfig) { c.image = image }
}

// WithStartTimeout bounds how long to wait for the server to accept connections.
func WithStartTimeout(timeout time.Duration) PostgresOption {
	return func(c *postgresConfig) { c.startTimeout = timeout }
}

// WithInitSQL runs statements as the superuser after the default provisioning.
func WithInitSQL(stmts ...string) PostgresOption {
	return func(c *postgresConfig) { c.extraSQL = append(c.extraSQL, stmts...) }
}

// NewPostgresContainer starts and provisions a destination database.
func NewPostgresContainer(ctx context.Context, opts ...PostgresOption) (*PostgresContainer, error) {
	cfg := &postgresConfig{
		image:        DefaultPostgresImage,
		startTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDatabase,
		},
		// The entrypoint restarts the server once after initdb.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(postgresPort),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	base := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%s", host, port.Port()),
		Path:     "/" + postgresDatabase,
		RawQuery: "sslmode=disable",
	}
	admin := base
	admin.User = url.UserPassword("postgres", postgresPassword)

	pg := &PostgresContainer{Container: container, URL: base.String(), AdminURL: admin.String()}
	if err := pg.exec(ctx, append([]string{provisionSQL}, cfg.extraSQL...)...); err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("provision destination: %w", err)
	}
	return pg, nil
}

// TenantProfile returns a configured profile pointing at the container.
func (p *PostgresContainer) TenantProfile(tenantID string) *models.TenantProfile {
	dsn := p.URL
	return &models.TenantProfile{
		ID:               tenantID,
		Email:            tenantID + "@example.com",
		ClientType:       models.ClientTypeBusiness,
		SubscriptionPlan: models.PlanStarter,
		DestinationURL:   &dsn,
		AnonKey:          ReaderKey,
		ServiceKey:       WriterKey,
		DataTableName:    "ventas",
	}
}

// Exec runs statements as the superuser.
func (p *PostgresContainer) Exec(ctx context.Context, stmts ...string) error {
	return p.exec(ctx, stmts...)
}

// QueryInt runs a single-value integer query as the superuser.
func (p *PostgresContainer) QueryInt(ctx context.Context, query string, args ...any) (int64, error) {
	conn, err := pgx.Connect(ctx, p.AdminURL)
	if err != nil {
		return 0, fmt.Errorf("connect as admin: %w", err)
	}
	defer conn.Close(ctx) //nolint:errcheck

	var n int64
	if err := conn.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *PostgresContainer) exec(ctx context.Context, stmts ...string) error {
	conn, err := pgx.Connect(ctx, p.AdminURL)
	if err != nil {
		return fmt.Errorf("connect as admin: %w", err)
	}
	defer conn.Close(ctx) //nolint:errcheck

	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
