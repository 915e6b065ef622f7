// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package tenantdb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tomtom215/riqo-ingest/internal/tabular"
)

func permissionDenied() error {
	return &pgconn.PgError{Code: "42501", Message: "permission denied for table ventas"}
}

func TestTruncateTable_Primary(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{}
	l := NewLoader(newTestResolver(conn))

	res, err := l.TruncateTable(context.Background(), configuredProfile("t1"))
	if err != nil {
		t.Fatalf("TruncateTable() error = %v", err)
	}
	if res.Strategy != StrategyTruncate {
		t.Errorf("Strategy = %q, want truncate", res.Strategy)
	}
	db := conn.last()
	if len(db.execs) != 1 || db.execs[0] != `TRUNCATE TABLE "ventas" RESTART IDENTITY` {
		t.Errorf("execs = %v", db.execs)
	}
}

func TestTruncateTable_FallbackResetsSequences(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{setup: func(db *fakeDB) {
		db.execFn = func(sql string, _ []any) (pgconn.CommandTag, error) {
			if strings.HasPrefix(sql, "TRUNCATE") {
				return pgconn.CommandTag{}, permissionDenied()
			}
			return pgconn.NewCommandTag("DELETE 10"), nil
		}
		db.queryFn = func(string, []any) (pgx.Rows, error) {
			return &fakeRows{cols: []string{"seq"}, data: [][]any{{"public.ventas_id_seq"}}}, nil
		}
	}}
	l := NewLoader(newTestResolver(conn))

	res, err := l.TruncateTable(context.Background(), configuredProfile("t1"))
	if err != nil {
		t.Fatalf("TruncateTable() error = %v", err)
	}
	if res.Strategy != StrategyDelete || res.SequencesReset != 1 {
		t.Errorf("TruncateTable() = %+v", res)
	}

	db := conn.last()
	if db.execs[1] != `DELETE FROM "ventas"` {
		t.Errorf("fallback statement = %q", db.execs[1])
	}
	if db.args[2][0] != "public.ventas_id_seq" {
		t.Errorf("setval arg = %v", db.args[2])
	}
}

func TestTruncateTable_SequenceResetFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{setup: func(db *fakeDB) {
		db.execFn = func(sql string, _ []any) (pgconn.CommandTag, error) {
			if strings.HasPrefix(sql, "TRUNCATE") {
				return pgconn.CommandTag{}, permissionDenied()
			}
			return pgconn.NewCommandTag("DELETE 1"), nil
		}
		db.queryFn = func(string, []any) (pgx.Rows, error) {
			return nil, permissionDenied()
		}
	}}
	l := NewLoader(newTestResolver(conn))

	res, err := l.TruncateTable(context.Background(), configuredProfile("t1"))
	if err != nil {
		t.Fatalf("TruncateTable() error = %v", err)
	}
	if res.Strategy != StrategyDelete || res.SequencesReset != 0 {
		t.Errorf("TruncateTable() = %+v", res)
	}
}

func TestTruncateTable_BothFail(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{setup: func(db *fakeDB) {
		db.execFn = func(string, []any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, permissionDenied()
		}
	}}
	l := NewLoader(newTestResolver(conn))

	_, err := l.TruncateTable(context.Background(), configuredProfile("t1"))
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("error = %v, want *OperationError", err)
	}
	want := "Failed to truncate table 'ventas': permission denied for table ventas"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func sampleRows() []tabular.Row {
	return []tabular.Row{
		{
			{Column: "fecha", Value: tabular.Text("1/2/2024")},
			{Column: "producto", Value: tabular.Text("Café")},
			{Column: "monto", Value: tabular.Number(10.5)},
		},
		{
			{Column: "fecha", Value: tabular.Null()},
			{Column: "producto", Value: tabular.Text("Té")},
			{Column: "monto", Value: tabular.Null()},
		},
		{
			{Column: "fecha", Value: tabular.Text("2024-04-20")},
			{Column: "producto", Value: tabular.Text("Mate")},
			{Column: "monto", Value: tabular.Number(7)},
		},
	}
}

func TestInsertRows(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{setup: func(db *fakeDB) {
		db.execFn = func(string, []any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("INSERT 0 3"), nil
		}
	}}
	l := NewLoader(newTestResolver(conn))

	n, err := l.InsertRows(context.Background(), configuredProfile("t1"), sampleRows())
	if err != nil {
		t.Fatalf("InsertRows() error = %v", err)
	}
	if n != 3 {
		t.Errorf("InsertRows() = %d, want 3", n)
	}

	db := conn.last()
	if len(db.execs) != 1 {
		t.Fatalf("expected a single statement, got %d", len(db.execs))
	}
	wantStmt := `INSERT INTO "ventas" ("fecha", "producto", "monto", "fecha_formateada") SELECT "fecha", "producto", "monto", "fecha_formateada" FROM json_populate_recordset(NULL::"ventas", $1::json)`
	if db.execs[0] != wantStmt {
		t.Errorf("statement = %s", db.execs[0])
	}
	if db.commits != 1 || db.rollbacks != 0 {
		t.Errorf("commits=%d rollbacks=%d", db.commits, db.rollbacks)
	}

	var payload []map[string]any
	if err := json.Unmarshal([]byte(db.args[0][0].(string)), &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload[0]["fecha"] != "1/2/2024" || payload[0]["fecha_formateada"] != "2024-02-01" {
		t.Errorf("row 0 = %v", payload[0])
	}
	if _, ok := payload[1]["fecha_formateada"]; ok {
		t.Error("null fecha must not be enriched")
	}
	if payload[2]["fecha_formateada"] != "2024-04-20" {
		t.Errorf("unparseable date should pass through, got %v", payload[2]["fecha_formateada"])
	}
	if payload[1]["monto"] != nil {
		t.Errorf("null monto = %v", payload[1]["monto"])
	}
}

func TestInsertRows_Empty(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{}
	l := NewLoader(newTestResolver(conn))

	n, err := l.InsertRows(context.Background(), configuredProfile("t1"), nil)
	if err != nil || n != 0 {
		t.Errorf("InsertRows(nil) = %d, %v", n, err)
	}
	if conn.calls != 0 {
		t.Error("empty insert should not open a connection")
	}
}

func TestInsertRows_FailureRollsBack(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{setup: func(db *fakeDB) {
		db.execFn = func(string, []any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, &pgconn.PgError{
				Code:    "42703",
				Message: `column "producto" of relation "ventas" does not exist`,
			}
		}
	}}
	l := NewLoader(newTestResolver(conn))

	_, err := l.InsertRows(context.Background(), configuredProfile("t1"), sampleRows())
	if err == nil {
		t.Fatal("expected error")
	}
	want := `Failed to insert data into table 'ventas': column "producto" of relation "ventas" does not exist. CSV columns: fecha, producto, monto`
	if err.Error() != want {
		t.Errorf("message = %q\nwant      %q", err.Error(), want)
	}
	if db := conn.last(); db.rollbacks != 1 || db.commits != 0 {
		t.Errorf("commits=%d rollbacks=%d", db.commits, db.rollbacks)
	}
}

func TestFormatDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"1/2/2024", "2024-02-01"},
		{"15/03/2024", "2024-03-15"},
		{"05/11/99", "99-11-05"},
		{"2024-01-01", "2024-01-01"},
		{"a/b", "a/b"},
		{"1/2/3/4", "1/2/3/4"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FormatDate(tt.in); got != tt.want {
			t.Errorf("FormatDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnrichRow_KeepsFecha(t *testing.T) {
	t.Parallel()

	row := tabular.Row{{Column: "fecha", Value: tabular.Text("7/8/2023")}}
	got := EnrichRow(row)

	fecha, _ := got.Get("fecha")
	if fecha.Value() != "7/8/2023" {
		t.Errorf("fecha changed to %v", fecha.Value())
	}
	formatted, ok := got.Get("fecha_formateada")
	if !ok || formatted.Value() != "2023-08-07" {
		t.Errorf("fecha_formateada = %v ok=%v", formatted.Value(), ok)
	}

	numeric := EnrichRow(tabular.Row{{Column: "fecha", Value: tabular.Number(20230807)}})
	if v, _ := numeric.Get("fecha_formateada"); v.Value() != 20230807.0 {
		t.Errorf("numeric fecha_formateada = %v", v.Value())
	}

	untouched := EnrichRow(tabular.Row{{Column: "date", Value: tabular.Text("1/2/2024")}})
	if len(untouched) != 1 {
		t.Error("rows without fecha must not be enriched")
	}
}

func TestBuildInsert_QuotesIdentifiers(t *testing.T) {
	t.Parallel()

	got := buildInsert("public.Sales", []string{`we"ird`, "Monto"})
	want := `INSERT INTO "public"."Sales" ("we""ird", "Monto") SELECT "we""ird", "Monto" FROM json_populate_recordset(NULL::"public"."Sales", $1::json)`
	if got != want {
		t.Errorf("buildInsert() = %s", got)
	}
}
