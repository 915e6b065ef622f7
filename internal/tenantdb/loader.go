// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package tenantdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/riqo-ingest/internal/logging"
	"github.com/tomtom215/riqo-ingest/internal/models"
	"github.com/tomtom215/riqo-ingest/internal/tabular"
)

// Truncate strategies.
const (
	StrategyTruncate = "truncate"
	StrategyDelete   = "delete"
)

// TruncateResult reports how the table was emptied.
type TruncateResult struct {
	Strategy       string `json:"strategy"`
	SequencesReset int    `json:"sequences_reset"`
}

// OperationError is a failed truncate or insert.
type OperationError struct {
	Op      string
	Table   string
	Columns []string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Op == "insert" {
		return fmt.Sprintf("Failed to insert data into table '%s': %s. CSV columns: %s",
			e.Table, errorMessage(e.Err), strings.Join(e.Columns, ", "))
	}
	return fmt.Sprintf("Failed to truncate table '%s': %s", e.Table, errorMessage(e.Err))
}

func (e *OperationError) Unwrap() error { return e.Err }

// Loader performs the destructive replace against a tenant table. Every call
// uses the privileged credential.
type Loader struct {
	resolver *Resolver
}

// NewLoader creates a Loader.
func NewLoader(resolver *Resolver) *Loader {
	return &Loader{resolver: resolver}
}

// TruncateTable empties the tenant table. TRUNCATE ... RESTART IDENTITY is
// tried first; when it is refused the table is emptied with DELETE and owned
// sequences are reset where permitted.
func (l *Loader) TruncateTable(ctx context.Context, p *models.TenantProfile) (TruncateResult, error) {
	db, err := l.resolver.Resolve(ctx, p, TierPrivileged)
	if err != nil {
		return TruncateResult{}, err
	}

	table := l.resolver.TableName(p)
	ident := tableIdent(table)
	log := logging.CtxWith(ctx).Str("table", table).Logger()

	var res TruncateResult
	err = l.resolver.execute(p.ID, "truncate", func() error {
		_, err := db.Exec(ctx, "TRUNCATE TABLE "+ident+" RESTART IDENTITY")
		if err == nil {
			res.Strategy = StrategyTruncate
			return nil
		}
		log.Info().Err(err).Msg("TRUNCATE not permitted, using DELETE instead")

		if _, err := db.Exec(ctx, "DELETE FROM "+ident); err != nil {
			return err
		}
		res.Strategy = StrategyDelete

		n, seqErr := resetSequences(ctx, db, ident)
		res.SequencesReset = n
		if seqErr != nil {
			log.Warn().Err(seqErr).Msg("Identity sequences were not reset after DELETE")
		}
		return nil
	})
	if err != nil {
		return TruncateResult{}, &OperationError{Op: "truncate", Table: table, Err: err}
	}

	log.Info().Str("strategy", res.Strategy).Msg("Truncated client table")
	return res, nil
}

const ownedSequencesSQL = `
SELECT seq FROM (
	SELECT pg_get_serial_sequence($1, a.attname) AS seq
	FROM pg_attribute a
	WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped
) s
WHERE seq IS NOT NULL`

// resetSequences restarts every sequence owned by the table's columns.
func resetSequences(ctx context.Context, db DB, ident string) (int, error) {
	rows, err := db.Query(ctx, ownedSequencesSQL, ident)
	if err != nil {
		return 0, err
	}
	seqs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, seq := range seqs {
		if _, err := db.Exec(ctx, "SELECT setval($1::regclass, 1, false)", seq); err != nil {
			return reset, fmt.Errorf("reset %s: %w", seq, err)
		}
		reset++
	}
	return reset, nil
}

// InsertRows writes rows in one statement inside one transaction and returns
// the number of rows inserted. Rows are enriched first (see EnrichRow). A
// column missing from a row is inserted as NULL; a column missing from the
// table fails the whole insert.
func (l *Loader) InsertRows(ctx context.Context, p *models.TenantProfile, rows []tabular.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	db, err := l.resolver.Resolve(ctx, p, TierPrivileged)
	if err != nil {
		return 0, err
	}

	table := l.resolver.TableName(p)
	enriched := EnrichRows(rows)
	stmt := buildInsert(table, unionColumns(enriched))

	payload, err := json.Marshal(enriched)
	if err != nil {
		return 0, fmt.Errorf("failed to encode rows: %w", err)
	}

	var inserted int64
	err = l.resolver.execute(p.ID, "insert", func() error {
		return withTx(ctx, db, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, stmt, string(payload))
			if err != nil {
				return err
			}
			inserted = tag.RowsAffected()
			return nil
		})
	})
	if err != nil {
		return 0, &OperationError{Op: "insert", Table: table, Columns: rows[0].Columns(), Err: err}
	}

	logging.Ctx(ctx).Info().
		Str("table", table).
		Int64("rows", inserted).
		Msg("Inserted rows into client table")
	return inserted, nil
}

// buildInsert expands a JSON array of row objects against the table's own
// row type, so values are converted with the destination column types.
func buildInsert(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	list := strings.Join(quoted, ", ")
	ident := tableIdent(table)
	return "INSERT INTO " + ident + " (" + list + ") SELECT " + list +
		" FROM json_populate_recordset(NULL::" + ident + ", $1::json)"
}
