// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

//go:build integration

package tenantdb

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/riqo-ingest/internal/config"
	"github.com/tomtom215/riqo-ingest/internal/tabular"
	"github.com/tomtom215/riqo-ingest/internal/testinfra"
)

func integrationResolver(t *testing.T) *Resolver {
	t.Helper()
	r := NewResolver(config.DestinationConfig{
		MaxConns:        2,
		ConnectTimeout:  5 * time.Second,
		BreakerTimeout:  time.Minute,
		BreakerFailures: 5,
	}, "ventas")
	t.Cleanup(r.Close)
	return r
}

func salesRows() []tabular.Row {
	return []tabular.Row{
		{
			{Column: "fecha", Value: tabular.Text("5/1/2024")},
			{Column: "producto", Value: tabular.Text("café")},
			{Column: "monto", Value: tabular.Number(10.5)},
		},
		{
			{Column: "fecha", Value: tabular.Text("06/01/2024")},
			{Column: "producto", Value: tabular.Text("té")},
			{Column: "cantidad", Value: tabular.Number(3)},
		},
	}
}

func TestIntegration_ReplaceAndRead(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("NewPostgresContainer() error = %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, pg)

	r := integrationResolver(t)
	loader := NewLoader(r)
	profile := pg.TenantProfile("tenant-1")

	if res := r.TestConnection(ctx, profile); !res.Success {
		t.Fatalf("TestConnection() = %+v", res)
	}

	for round := 0; round < 2; round++ {
		if _, err := loader.TruncateTable(ctx, profile); err != nil {
			t.Fatalf("round %d: TruncateTable() error = %v", round, err)
		}
		n, err := loader.InsertRows(ctx, profile, salesRows())
		if err != nil {
			t.Fatalf("round %d: InsertRows() error = %v", round, err)
		}
		if n != 2 {
			t.Errorf("round %d: inserted %d rows, want 2", round, n)
		}
	}

	count, err := pg.QueryInt(ctx, "SELECT count(*) FROM ventas")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("rows after two replaces = %d, want 2", count)
	}
	formatted, err := pg.QueryInt(ctx, "SELECT count(*) FROM ventas WHERE fecha_formateada = DATE '2024-01-05'")
	if err != nil {
		t.Fatal(err)
	}
	if formatted != 1 {
		t.Errorf("rows with formatted date 2024-01-05 = %d, want 1", formatted)
	}

	page, err := r.ReadPage(ctx, profile, 1, 0)
	if err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if page.Total != 2 || len(page.Rows) != 1 {
		t.Errorf("ReadPage() total = %d, rows = %d", page.Total, len(page.Rows))
	}

	info, err := r.Inspect(ctx, profile)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.TableName != "ventas" || len(info.SampleColumns) == 0 {
		t.Errorf("Inspect() = %+v", info)
	}
}

func TestIntegration_DeleteFallback(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	pg, err := testinfra.NewPostgresContainer(ctx,
		testinfra.WithInitSQL("REVOKE TRUNCATE ON ventas FROM ingest_writer"))
	if err != nil {
		t.Fatalf("NewPostgresContainer() error = %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, pg)

	r := integrationResolver(t)
	loader := NewLoader(r)
	profile := pg.TenantProfile("tenant-1")

	if _, err := loader.InsertRows(ctx, profile, salesRows()); err != nil {
		t.Fatalf("InsertRows() error = %v", err)
	}

	res, err := loader.TruncateTable(ctx, profile)
	if err != nil {
		t.Fatalf("TruncateTable() error = %v", err)
	}
	if res.Strategy != StrategyDelete {
		t.Errorf("Strategy = %q, want %q", res.Strategy, StrategyDelete)
	}
	if res.SequencesReset != 1 {
		t.Errorf("SequencesReset = %d, want 1", res.SequencesReset)
	}

	if _, err := loader.InsertRows(ctx, profile, salesRows()); err != nil {
		t.Fatalf("InsertRows() after DELETE error = %v", err)
	}
	minID, err := pg.QueryInt(ctx, "SELECT min(id) FROM ventas")
	if err != nil {
		t.Fatal(err)
	}
	if minID != 1 {
		t.Errorf("min(id) after reset = %d, want 1", minID)
	}
}

func TestIntegration_ReaderCannotWrite(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("NewPostgresContainer() error = %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, pg)

	r := integrationResolver(t)
	profile := pg.TenantProfile("tenant-1")
	// Swap the keys so the privileged tier logs in as the reader.
	profile.ServiceKey = testinfra.ReaderKey

	_, err = NewLoader(r).InsertRows(ctx, profile, salesRows())
	if err == nil {
		t.Fatal("InsertRows() with reader credential succeeded")
	}
	if _, ok := err.(*OperationError); !ok {
		t.Errorf("error type = %T, want *OperationError", err)
	}
}
