// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/riqo-ingest/internal/ingest"
	"github.com/tomtom215/riqo-ingest/internal/logging"
)

// Messages shared by several handlers.
const (
	msgInternal         = "Internal server error"
	msgMethodNotAllowed = "Method not allowed"
	msgUserNotFound     = "User not found"
	msgProfileNotFound  = "User profile not found"
)

// statusForKind maps an ingestion error kind to an HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondIngestError writes err in the flat shape. Client errors carry their
// message; everything else is logged and reported as an internal error.
func respondIngestError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForKind(ingest.Kind(err))
	if status == http.StatusInternalServerError {
		logging.CtxErr(r.Context(), err).Msg("Request failed")
		writeError(w, r, status, msgInternal)
		return
	}

	body := ErrorBody{Error: clientMessage(err)}
	var conflict *ingest.ConflictError
	if errors.As(err, &conflict) {
		body.UploadID = conflict.UploadID
	}
	writeErrorBody(w, r, status, body)
}

// clientMessage returns the typed error's own text, without any wrapping
// added on the way up.
func clientMessage(err error) string {
	var (
		validation *ingest.ValidationError
		notFound   *ingest.NotFoundError
		conflict   *ingest.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.As(err, &conflict):
		return conflict.Error()
	}
	return err.Error()
}
