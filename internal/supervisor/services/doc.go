// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

/*
Package services adapts ingest components to the suture v4 supervision model.

Each wrapper implements suture.Service and translates the component's own
lifecycle (ListenAndServe/Shutdown, Run/Close, a ticker loop) into a Serve
that returns when its context is cancelled:

  - HTTPServerService runs the API server and drains connections on shutdown.
  - QueueService runs the ingest task router and closes it on shutdown, so
    in-flight jobs get CloseTimeout to finish.
  - ArtifactSweeperService periodically removes staging directories left
    behind by a crash.

Wrappers implement fmt.Stringer so suture's event hook can name them.
*/
package services
