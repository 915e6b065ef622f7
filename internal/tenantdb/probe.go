// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package tenantdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tomtom215/riqo-ingest/internal/models"
)

// ConnectionTest is the outcome of a destination probe.
type ConnectionTest struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Err is the underlying cause, for classification by callers.
	Err error `json:"-"`
}

// TableInfo describes the destination table from a one-row sample.
type TableInfo struct {
	TableName      string   `json:"table_name"`
	SampleColumns  []string `json:"sample_columns"`
	RowCountSample int      `json:"row_count_sample"`
}

// TestConnection reads at most one row from the tenant table with the
// privileged credential.
func (r *Resolver) TestConnection(ctx context.Context, p *models.TenantProfile) ConnectionTest {
	if !p.HasDestination() {
		return ConnectionTest{Error: "No client database configured", Err: ErrNotConfigured}
	}

	db, err := r.Resolve(ctx, p, TierPrivileged)
	if err != nil {
		return ConnectionTest{Error: err.Error(), Err: err}
	}

	table := r.TableName(p)
	err = r.execute(p.ID, "probe", func() error {
		_, err := sampleTable(ctx, db, table)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return ConnectionTest{Error: err.Error(), Err: err}
		}
		return ConnectionTest{
			Error: fmt.Sprintf("Cannot access table '%s': %s", table, errorMessage(err)),
			Err:   err,
		}
	}
	return ConnectionTest{Success: true}
}

// Inspect samples the destination table. Column names are only known when the
// table has at least one row.
func (r *Resolver) Inspect(ctx context.Context, p *models.TenantProfile) (*TableInfo, error) {
	db, err := r.Resolve(ctx, p, TierPrivileged)
	if err != nil {
		return nil, err
	}

	table := r.TableName(p)
	var info *TableInfo
	err = r.execute(p.ID, "select", func() error {
		cols, err := sampleTable(ctx, db, table)
		if err != nil {
			return err
		}
		info = &TableInfo{TableName: table, SampleColumns: cols}
		if len(cols) > 0 {
			info.RowCountSample = 1
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// sampleTable runs SELECT * ... LIMIT 1 and returns the column names when a
// row came back, or an empty slice for an empty table.
func sampleTable(ctx context.Context, db DB, table string) ([]string, error) {
	rows, err := db.Query(ctx, "SELECT * FROM "+tableIdent(table)+" LIMIT 1")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := []string{}
	if rows.Next() {
		for _, fd := range rows.FieldDescriptions() {
			cols = append(cols, fd.Name)
		}
	}
	return cols, rows.Err()
}

// errorMessage prefers the server's message over pgx's decorated form.
func errorMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	return err.Error()
}

func isServerError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

// DataPage is one page of a tenant table.
type DataPage struct {
	Rows  []map[string]any `json:"data"`
	Total int64            `json:"total"`
}

// ReadPage returns rows newest first by created_at using the restricted
// credential, together with the exact row count.
func (r *Resolver) ReadPage(ctx context.Context, p *models.TenantProfile, limit, offset int) (*DataPage, error) {
	db, err := r.Resolve(ctx, p, TierRestricted)
	if err != nil {
		return nil, err
	}

	table := tableIdent(r.TableName(p))
	page := &DataPage{}
	err = r.execute(p.ID, "select", func() error {
		if err := db.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&page.Total); err != nil {
			return err
		}
		rows, err := db.Query(ctx,
			"SELECT * FROM "+table+" ORDER BY created_at DESC LIMIT $1 OFFSET $2",
			limit, offset)
		if err != nil {
			return err
		}
		page.Rows, err = pgx.CollectRows(rows, pgx.RowToMap)
		return err
	})
	if err != nil {
		return nil, err
	}
	if page.Rows == nil {
		page.Rows = []map[string]any{}
	}
	return page, nil
}
