// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package testinfra starts disposable destination databases for integration
// tests using testcontainers-go.
//
// The Postgres container is provisioned the way a tenant destination is
// expected to look: an analytics database holding a ventas table, a writer
// role that may truncate and insert, and a reader role limited to SELECT.
// Tenant keys use the "user:password" form, so the returned profile can be
// handed straight to tenantdb.Resolver:
//
//	func TestLoad(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg)
//
//	    profile := pg.TenantProfile("tenant-1")
//	    // resolver.TestConnection(ctx, profile) ...
//	}
//
// The files carry the integration build tag; run them with
// "go test -tags integration ./...". Docker is required and tests skip
// cleanly without it.
package testinfra
