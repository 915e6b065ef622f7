// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

/*
Command server runs the multi-tenant ingestion API.

Tenants upload CSV or Excel files; each upload is staged to disk, recorded as
a pending job in DuckDB, and processed in the background: the file is decoded,
parsed, and used to replace the contents of the tenant's table in their own
Postgres database. Clients poll the job status until it is terminal.

# Process layout

	RootSupervisor ("riqo-ingest")
	├── IngestSupervisor ("ingest-layer")
	│   ├── QueueService (Watermill router draining ingest.uploads)
	│   └── ArtifactSweeperService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (chi router)

# Configuration

Settings are loaded with koanf from defaults, an optional YAML file
(CONFIG_PATH or /etc/riqo-ingest/config.yaml) and environment variables, in
increasing precedence. A .env file in the working directory is loaded into
the environment first. JWT_SECRET is required.

# Endpoints

	GET  /health                          liveness and dependency state
	GET  /metrics                         Prometheus metrics
	POST /api/upload                      accept a file
	GET  /api/upload/status/{uploadId}    job status
	GET  /api/clients                     caller's destination summary
	POST /api/clients                     configure the caller's destination
	GET  /api/test-client-db              probe the destination
	POST /api/debug-csv                   parse preview
	GET  /api/data                        paged read of the destination table
	POST /api/admin/configure-user        configure another tenant
	POST /api/admin/get-user-by-email     look up a tenant
*/
package main
