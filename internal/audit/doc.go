// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

/*
Package audit records the security trail of the ingestion service.

Events cover policy denials and every change to a tenant's destination
settings, whether made by the tenant or by an administrator, plus
administrator lookups of other tenants. They are written asynchronously
through a bounded buffer so that a slow store never delays a request; when
the buffer is full the event is dropped and a warning is logged.

Stores:

  - DuckDBStore persists to the audit_events table of the metadata database.
  - MemoryStore keeps a bounded slice and is used in tests and when the
    table cannot be created.

Retention:

Logger implements suture.Service. While supervised it deletes events older
than Config.RetentionDays once at start and then every CleanupInterval.

Usage:

	store := audit.NewDuckDBStore(db.Conn())
	if err := store.CreateTable(ctx); err != nil {
		return err
	}
	auditLog := audit.NewLogger(store, audit.ConfigFrom(cfg.Audit))
	defer auditLog.Close()
	tree.AddIngestService(auditLog)

	auditLog.LogAuthzDenied(r.Context(), actor, audit.SourceFromRequest(r), r.Method, r.URL.Path)

Credentials never enter an event: destination events carry the table name
and the client type only.
*/
package audit
