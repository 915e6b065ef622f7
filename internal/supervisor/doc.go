// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

/*
Package supervisor runs the long-lived parts of the ingest service under a
suture v4 supervisor tree.

	RootSupervisor ("riqo-ingest")
	├── IngestSupervisor ("ingest-layer")
	│   ├── QueueService
	│   ├── ArtifactSweeperService
	│   └── audit.Logger (retention cleanup)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashed service is restarted with backoff. Failures in the ingest layer do
not take the API down, so status polling keeps working while the queue
restarts.

Supervisor events are logged through sutureslog on top of the zerolog-backed
slog handler from the logging package.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(),
		supervisor.TreeConfigFrom(cfg.Supervisor))
	tree.AddIngestService(services.NewQueueService(queue))
	tree.AddAPIService(services.NewHTTPServerService(srv, addr, timeout))
	err = tree.Serve(ctx)
*/
package supervisor
