// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/riqo-ingest/internal/ingest"
	"github.com/tomtom215/riqo-ingest/internal/logging"
)

// Upload accepts a multipart "file" and starts an ingestion job.
//
// Responds 200 {message, uploadId, fileName, fileSize, status} once the job
// is pending. Processing continues in the background; poll
// GET /api/upload/status/{uploadId}.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	defer cleanupMultipart(r)

	tenantID := currentTenantID(r)
	file, header, err := formFile(w, r, h.maxUploadBytes)
	switch {
	case errors.Is(err, errMissingFile):
		// Let the orchestrator produce the rejection so it is counted.
		_, err = h.uploads.Accept(r.Context(), tenantID, nil)
		respondIngestError(w, r, err)
		return
	case isTooLarge(err):
		writeError(w, r, http.StatusBadRequest, ingest.TooLargeMessage(h.maxUploadBytes))
		return
	case err != nil:
		logging.CtxWarn(r.Context()).Err(err).Msg("Malformed upload body")
		writeError(w, r, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() { _ = file.Close() }()

	result, err := h.uploads.Accept(r.Context(), tenantID, &ingest.FileUpload{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Content:     file,
	})
	if err != nil {
		respondIngestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UploadMethodNotAllowed answers GET /api/upload.
func (h *Handler) UploadMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	writeError(w, r, http.StatusMethodNotAllowed, msgMethodNotAllowed)
}

// UploadStatus returns the job's StatusView. Jobs of other tenants are
// reported as not found.
func (h *Handler) UploadStatus(w http.ResponseWriter, r *http.Request) {
	uploadID := strings.TrimSpace(chi.URLParam(r, "uploadId"))
	if uploadID == "" {
		writeError(w, r, http.StatusBadRequest, "Upload ID is required")
		return
	}

	view, err := h.status.GetStatus(r.Context(), uploadID, currentTenantID(r))
	if err != nil {
		respondIngestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
