// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/riqo-ingest/internal/charset"
	"github.com/tomtom215/riqo-ingest/internal/ingest"
	"github.com/tomtom215/riqo-ingest/internal/logging"
	"github.com/tomtom215/riqo-ingest/internal/tabular"
)

// previewRows is how many data rows the preview parses.
const previewRows = 3

// CSVPreview is the body of POST /api/debug-csv.
type CSVPreview struct {
	Filename   string               `json:"filename"`
	Size       int64                `json:"size"`
	Headers    []string             `json:"headers"`
	SampleData []tabular.Row        `json:"sample_data"`
	Errors     []tabular.ParseIssue `json:"errors"`
	TotalRows  int                  `json:"total_rows"`
	Encoding   string               `json:"encoding,omitempty"`
	Delimiter  string               `json:"delimiter,omitempty"`
}

// DebugCSV parses the first rows of a file without storing anything, to
// help tenants diagnose header and delimiter problems.
func (h *Handler) DebugCSV(w http.ResponseWriter, r *http.Request) {
	defer cleanupMultipart(r)

	file, header, err := formFile(w, r, h.maxUploadBytes)
	switch {
	case errors.Is(err, errMissingFile):
		writeError(w, r, http.StatusBadRequest, "No file provided")
		return
	case isTooLarge(err):
		writeError(w, r, http.StatusBadRequest, ingest.TooLargeMessage(h.maxUploadBytes))
		return
	case err != nil:
		writeError(w, r, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() { _ = file.Close() }()

	text, report, err := charset.NormalizeReader(file)
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("Failed to read preview file")
		writeErrorBody(w, r, http.StatusInternalServerError, ErrorBody{Error: "Failed to parse CSV", Details: err.Error()})
		return
	}

	res := tabular.Preview(text, previewRows)
	preview := CSVPreview{
		Filename:   header.Filename,
		Size:       header.Size,
		Headers:    res.Header,
		SampleData: res.Rows,
		Errors:     res.Warnings,
		TotalRows:  len(res.Rows),
		Encoding:   report.Encoding,
	}
	if res.Delimiter != 0 {
		preview.Delimiter = string(res.Delimiter)
	}
	if preview.Headers == nil {
		preview.Headers = []string{}
	}
	if preview.SampleData == nil {
		preview.SampleData = []tabular.Row{}
	}
	if preview.Errors == nil {
		preview.Errors = []tabular.ParseIssue{}
	}
	writeJSON(w, http.StatusOK, preview)
}
