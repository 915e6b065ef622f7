// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/riqo-ingest/internal/logging"
	"github.com/tomtom215/riqo-ingest/internal/tenantdb"
)

// Paging bounds for GET /api/data.
const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// TableTest reports the table check. The destination table is expected to
// exist already, so the check is informational only.
type TableTest struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DestinationProfile is the profile excerpt returned by test-client-db.
type DestinationProfile struct {
	ID            string `json:"id"`
	FullName      string `json:"full_name"`
	Company       string `json:"company"`
	ClientType    string `json:"client_type"`
	DataTableName string `json:"data_table_name"`
	HasGrafanaURL bool   `json:"has_grafana_url"`
}

// DestinationReport is the body of GET /api/test-client-db.
type DestinationReport struct {
	Configured        bool                     `json:"configured"`
	Message           string                   `json:"message,omitempty"`
	Profile           *DestinationProfile      `json:"profile,omitempty"`
	ConnectionTest    *tenantdb.ConnectionTest `json:"connection_test,omitempty"`
	TableTest         *TableTest               `json:"table_test,omitempty"`
	TableInfo         *tenantdb.TableInfo      `json:"table_info"`
	ClientDatabaseURL string                   `json:"client_database_url,omitempty"`
}

// TestClientDB probes the caller's destination and samples its table. The
// stored URL and keys are never echoed.
func (h *Handler) TestClientDB(w http.ResponseWriter, r *http.Request) {
	profile := currentProfile(r)
	if profile == nil {
		writeError(w, r, http.StatusNotFound, msgProfileNotFound)
		return
	}
	if !profile.HasDestination() {
		writeJSON(w, http.StatusOK, DestinationReport{
			Configured: false,
			Message:    "Client database not configured",
		})
		return
	}

	conn := h.destinations.TestConnection(r.Context(), profile)
	report := DestinationReport{
		Configured: true,
		Profile: &DestinationProfile{
			ID:            profile.ID,
			FullName:      profile.FullName,
			Company:       profile.Company,
			ClientType:    profile.ClientType,
			DataTableName: profile.DataTableName,
			HasGrafanaURL: profile.DashboardURL != "",
		},
		ConnectionTest:    &conn,
		TableTest:         &TableTest{Success: true, Message: "Table check skipped - using existing table"},
		ClientDatabaseURL: "configured",
	}

	if conn.Success {
		info, err := h.destinations.Inspect(r.Context(), profile)
		if err != nil {
			logging.CtxWarn(r.Context()).Err(err).Msg("Could not get table info")
		} else {
			report.TableInfo = info
		}
	}
	writeJSON(w, http.StatusOK, report)
}

// GetData returns a page of the caller's destination table, newest first,
// read with the restricted credential.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	profile := currentProfile(r)
	if profile == nil {
		rw.Error(http.StatusNotFound, ErrCodeNotFound, msgProfileNotFound)
		return
	}

	limit := getIntParam(r, "limit", defaultPageLimit)
	offset := getIntParam(r, "offset", 0)
	if limit < 1 || limit > maxPageLimit {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "limit must be between 1 and 1000")
		return
	}
	if offset < 0 {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "offset must be greater than or equal to 0")
		return
	}

	page, err := h.destinations.ReadPage(r.Context(), profile, limit, offset)
	if err != nil {
		switch {
		case errors.Is(err, tenantdb.ErrNotConfigured), errors.Is(err, tenantdb.ErrMissingCredential):
			rw.Error(http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, tenantdb.ErrUnavailable):
			rw.Error(http.StatusServiceUnavailable, ErrCodeDestination, "Client database temporarily unavailable")
		default:
			logging.CtxErr(r.Context(), err).Msg("Failed to read destination data")
			rw.Error(http.StatusBadGateway, ErrCodeDestination, "Failed to read data from client database")
		}
		return
	}

	rw.SuccessWithPagination(page.Rows, &PaginationMeta{
		Total:   page.Total,
		Count:   len(page.Rows),
		Offset:  offset,
		Limit:   limit,
		HasMore: int64(offset+len(page.Rows)) < page.Total,
	})
}
