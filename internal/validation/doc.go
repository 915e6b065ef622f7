// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package validation validates request structs with go-playground/validator.
//
// A single validator instance is shared process-wide. Field names in error
// messages come from the json tag, so a missing destination URL reports
// "client_database_url is required" rather than the Go field name.
//
// Custom tags:
//
//	pgdsn      a Postgres connection string (URL or key=value form)
//	tablename  a table name, optionally schema-qualified, of identifier characters
//
// Usage:
//
//	type ConfigureClientRequest struct {
//	    DestinationURL string `json:"client_database_url" validate:"required,pgdsn"`
//	    DataTableName  string `json:"data_table_name" validate:"omitempty,tablename"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    ...
//	}
package validation
