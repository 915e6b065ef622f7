// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package client is a Go client for the ingest API.
//
// It uploads a file and then polls the job status at a fixed interval for a
// bounded number of attempts. When the bound is exhausted WaitForCompletion
// returns ErrStillProcessing; the job keeps running on the server and can be
// polled again later with the same upload ID.
//
//	c, err := client.New(client.Config{BaseURL: "https://ingest.example.com", Token: tok})
//	res, err := c.UploadFile(ctx, "ventas.csv")
//	status, err := c.WaitForCompletion(ctx, res.UploadID)
package client
