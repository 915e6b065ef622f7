// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package ingest

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tomtom215/riqo-ingest/internal/tenantdb"
)

// Each error kind carries a human-readable Message and an optional Cause.
// Error() renders "Message: Cause", or just one of them when the other is
// empty; the rendered text is what ends up in the job's processing_error.

// ValidationError is a rejected upload: bad extension, oversized file,
// missing file, or content failing the pre-check.
type ValidationError struct {
	Message string
	Cause   error
}

func (e *ValidationError) Error() string { return render(e.Message, e.Cause) }
func (e *ValidationError) Unwrap() error { return e.Cause }

// ConfigurationError means the tenant has no usable destination.
type ConfigurationError struct {
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string { return render(e.Message, e.Cause) }
func (e *ConfigurationError) Unwrap() error { return e.Cause }

// ParseError is a structural failure decoding tabular content.
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string { return render(e.Message, e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }

// ConnectivityError means the destination could not be reached or refused
// the credentials.
type ConnectivityError struct {
	Message string
	Cause   error
}

func (e *ConnectivityError) Error() string { return render(e.Message, e.Cause) }
func (e *ConnectivityError) Unwrap() error { return e.Cause }

// LoadError is a truncate or insert rejected by the destination.
type LoadError struct {
	Message string
	Cause   error
}

func (e *LoadError) Error() string { return render(e.Message, e.Cause) }
func (e *LoadError) Unwrap() error { return e.Cause }

// NotFoundError is a lookup of a missing or foreign record.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError is an upload submitted while the tenant already has one in flight.
type ConflictError struct {
	Message  string
	UploadID string
}

func (e *ConflictError) Error() string { return e.Message }

func render(message string, cause error) string {
	switch {
	case cause == nil:
		return message
	case message == "":
		return cause.Error()
	default:
		return message + ": " + cause.Error()
	}
}

// probeFailure keeps the probe's display text while exposing the cause to
// errors.Is and errors.As.
type probeFailure struct {
	text string
	err  error
}

func (p *probeFailure) Error() string { return p.text }
func (p *probeFailure) Unwrap() error { return p.err }

// classifyDestination maps a destination failure onto the taxonomy. Server
// responses (a *pgconn.PgError) are load failures; missing configuration is a
// configuration failure; everything else is treated as connectivity.
func classifyDestination(message string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, tenantdb.ErrNotConfigured), errors.Is(err, tenantdb.ErrMissingCredential):
		return &ConfigurationError{Message: message, Cause: err}
	case errors.Is(err, tenantdb.ErrUnavailable):
		return &ConnectivityError{Message: message, Cause: err}
	case errors.As(err, &pgErr):
		return &LoadError{Message: message, Cause: err}
	default:
		return &ConnectivityError{Message: message, Cause: err}
	}
}

// classifyProbe maps a failed connection test. A server error while reading
// the table (missing table, permission denied) still counts as connectivity:
// the tenant cannot use the destination as configured.
func classifyProbe(message string, test tenantdb.ConnectionTest) error {
	cause := &probeFailure{text: test.Error, err: test.Err}
	if errors.Is(test.Err, tenantdb.ErrNotConfigured) || errors.Is(test.Err, tenantdb.ErrMissingCredential) {
		return &ConfigurationError{Message: message, Cause: cause}
	}
	return &ConnectivityError{Message: message, Cause: cause}
}

// Kind names the taxonomy entry of err, for metrics and logs.
func Kind(err error) string {
	var (
		validation   *ValidationError
		configErr    *ConfigurationError
		parseErr     *ParseError
		connectivity *ConnectivityError
		load         *LoadError
		notFound     *NotFoundError
		conflict     *ConflictError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &configErr):
		return "configuration"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &connectivity):
		return "connectivity"
	case errors.As(err, &load):
		return "load"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &conflict):
		return "conflict"
	default:
		return "internal"
	}
}
