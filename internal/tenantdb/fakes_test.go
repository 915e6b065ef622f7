// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package tenantdb

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tomtom215/riqo-ingest/internal/config"
	"github.com/tomtom215/riqo-ingest/internal/models"
)

// fakeDB records statements and answers from per-test hooks.
type fakeDB struct {
	mu sync.Mutex

	execs   []string
	args    [][]any
	queries []string

	execFn  func(sql string, args []any) (pgconn.CommandTag, error)
	queryFn func(sql string, args []any) (pgx.Rows, error)
	rowFn   func(sql string, args []any) pgx.Row

	commits   int
	rollbacks int
	closed    bool
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	fn := f.execFn
	f.mu.Unlock()
	if fn == nil {
		return pgconn.NewCommandTag("OK"), nil
	}
	return fn(sql, args)
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.mu.Lock()
	f.queries = append(f.queries, sql)
	fn := f.queryFn
	f.mu.Unlock()
	if fn == nil {
		return &fakeRows{}, nil
	}
	return fn(sql, args)
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	f.queries = append(f.queries, sql)
	fn := f.rowFn
	f.mu.Unlock()
	if fn == nil {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fn(sql, args)
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeDB) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	t.db.commits++
	t.db.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.db.mu.Lock()
	t.db.rollbacks++
	t.db.mu.Unlock()
	return nil
}

// fakeRows serves a fixed result set.
type fakeRows struct {
	pgx.Rows
	cols []string
	data [][]any
	idx  int
	err  error
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

func (r *fakeRows) Values() ([]any, error) { return r.data[r.idx-1], nil }

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	for i, d := range dest {
		switch p := d.(type) {
		case pgx.RowScanner:
			return p.ScanRow(r)
		case *string:
			*p = row[i].(string)
		case *int64:
			*p = row[i].(int64)
		default:
			return errors.New("fakeRows: unsupported scan target")
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) Close()     {}

type fakeRow struct {
	val int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.val
	return nil
}

// fakeConnector hands out one fakeDB per call and counts calls.
type fakeConnector struct {
	mu    sync.Mutex
	calls int
	dbs   []*fakeDB
	setup func(*fakeDB)
	err   error
	creds []Credential
}

func (c *fakeConnector) connect(_ context.Context, _ string, cred Credential, _ config.DestinationConfig) (DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.creds = append(c.creds, cred)
	if c.err != nil {
		return nil, c.err
	}
	db := &fakeDB{}
	if c.setup != nil {
		c.setup(db)
	}
	c.dbs = append(c.dbs, db)
	return db, nil
}

func (c *fakeConnector) last() *fakeDB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dbs[len(c.dbs)-1]
}

func testDestinationConfig() config.DestinationConfig {
	return config.DestinationConfig{
		MaxConns:        2,
		BreakerTimeout:  0,
		BreakerFailures: 2,
	}
}

func newTestResolver(conn *fakeConnector) *Resolver {
	return NewResolver(testDestinationConfig(), "ventas", WithConnector(conn.connect))
}

func configuredProfile(id string) *models.TenantProfile {
	url := "postgres://riqo@db.example.com:5432/client"
	return &models.TenantProfile{
		ID:             id,
		DestinationURL: &url,
		AnonKey:        "reader:anon-secret",
		ServiceKey:     "service-secret",
	}
}
