// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/riqo-ingest/internal/audit"
	"github.com/tomtom215/riqo-ingest/internal/database"
	"github.com/tomtom215/riqo-ingest/internal/logging"
	"github.com/tomtom215/riqo-ingest/internal/models"
	"github.com/tomtom215/riqo-ingest/internal/validation"
)

const (
	msgMissingClientFields = "Missing required client database configuration fields"
	msgMissingUserFields   = "Missing required fields"
	msgEmailRequired       = "Email is required"
)

// ClientSummary is one entry of GET /api/clients.
type ClientSummary struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Company            string    `json:"company"`
	ClientType         string    `json:"client_type"`
	HasClientDatabase  bool      `json:"has_client_database"`
	DataTableName      string    `json:"data_table_name"`
	DashboardURL       string    `json:"grafana_dashboard_url"`
	SubscriptionPlan   string    `json:"subscription_plan"`
	SubscriptionStatus string    `json:"subscription_status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ConfiguredProfile is the admin view of a profile after configure-user.
type ConfiguredProfile struct {
	ID                string `json:"id"`
	FullName          string `json:"full_name"`
	Company           string `json:"company"`
	ClientType        string `json:"client_type"`
	HasClientDatabase bool   `json:"has_client_database"`
	DataTableName     string `json:"data_table_name"`
	DashboardURL      string `json:"grafana_dashboard_url"`
}

func newClientSummary(p *models.TenantProfile) ClientSummary {
	name := p.FullName
	if name == "" {
		name = "Unnamed Client"
	}
	return ClientSummary{
		ID:                 p.ID,
		Name:               name,
		Company:            p.Company,
		ClientType:         p.ClientType,
		HasClientDatabase:  p.HasDestination(),
		DataTableName:      p.DataTableName,
		DashboardURL:       p.DashboardURL,
		SubscriptionPlan:   p.SubscriptionPlan,
		SubscriptionStatus: p.SubscriptionStatus,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// GetClients returns the caller's client configuration as a one-element list.
func (h *Handler) GetClients(w http.ResponseWriter, r *http.Request) {
	profile := currentProfile(r)
	clients := []ClientSummary{}
	if profile != nil {
		clients = append(clients, newClientSummary(profile))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"clients": clients,
		"total":   len(clients),
	})
}

// ConfigureClient stores the caller's destination settings and drops any
// cached connections built from the previous ones.
func (h *Handler) ConfigureClient(w http.ResponseWriter, r *http.Request) {
	var req ConfigureClientRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.normalize()
	if !h.validRequest(w, r, &req, msgMissingClientFields) {
		return
	}

	tenantID := currentTenantID(r)
	updated, err := h.profiles.UpdateClientConfig(r.Context(), tenantID, req.toClientConfig())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, msgProfileNotFound)
			return
		}
		logging.CtxErr(r.Context(), err).Msg("Failed to update client configuration")
		writeError(w, r, http.StatusInternalServerError, "Failed to update client configuration")
		return
	}
	h.destinations.Invalidate(tenantID)
	h.recordDestinationChange(r, updated, false)

	logging.CtxInfo(r.Context()).
		Str("data_table", h.destinations.TableName(updated)).
		Msg("Client configuration updated")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Client configuration updated successfully",
		"profile": updated,
	})
}

// AdminConfigureUser configures another tenant's destination.
func (h *Handler) AdminConfigureUser(w http.ResponseWriter, r *http.Request) {
	var req ConfigureUserRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.normalize()
	if !h.validRequest(w, r, &req, msgMissingUserFields) {
		return
	}

	updated, err := h.profiles.UpdateClientConfig(r.Context(), req.UserID, req.toClientConfig())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, msgUserNotFound)
			return
		}
		logging.CtxErr(r.Context(), err).Msg("Failed to update user configuration")
		writeError(w, r, http.StatusInternalServerError, "Failed to update user configuration")
		return
	}
	h.destinations.Invalidate(req.UserID)
	h.recordDestinationChange(r, updated, true)

	logging.CtxInfo(r.Context()).
		Str("target_tenant", sanitizeLogValue(req.UserID)).
		Msg("Admin configured tenant destination")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "User configured successfully",
		"profile": ConfiguredProfile{
			ID:                updated.ID,
			FullName:          updated.FullName,
			Company:           updated.Company,
			ClientType:        updated.ClientType,
			HasClientDatabase: updated.HasDestination(),
			DataTableName:     updated.DataTableName,
			DashboardURL:      updated.DashboardURL,
		},
	})
}

// AdminGetUserByEmail looks up a tenant by email, case-insensitively.
func (h *Handler) AdminGetUserByEmail(w http.ResponseWriter, r *http.Request) {
	var req GetUserByEmailRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, r, http.StatusBadRequest, msgEmailRequired)
		return
	}
	if !h.validRequest(w, r, &req, msgEmailRequired) {
		return
	}

	profile, err := h.profiles.GetProfileByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			if h.audit != nil {
				h.audit.LogUserLookup(r.Context(), currentActor(r), audit.SourceFromRequest(r), req.Email, "")
			}
			writeError(w, r, http.StatusNotFound, msgUserNotFound)
			return
		}
		logging.CtxErr(r.Context(), err).Msg("Failed to look up user by email")
		writeError(w, r, http.StatusInternalServerError, msgInternal)
		return
	}

	if h.audit != nil {
		h.audit.LogUserLookup(r.Context(), currentActor(r), audit.SourceFromRequest(r), req.Email, profile.ID)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": map[string]interface{}{
			"id":         profile.ID,
			"email":      profile.Email,
			"created_at": profile.CreatedAt,
		},
	})
}

func (h *Handler) recordDestinationChange(r *http.Request, p *models.TenantProfile, byAdmin bool) {
	if h.audit == nil {
		return
	}
	h.audit.LogDestinationConfigured(r.Context(), currentActor(r), audit.SourceFromRequest(r), audit.DestinationChange{
		TenantID:   p.ID,
		TableName:  h.destinations.TableName(p),
		ClientType: p.ClientType,
	}, byAdmin)
}

// validRequest validates v and writes a 400 on failure. Missing required
// fields use requiredMsg; other failures use the validator's message.
func (h *Handler) validRequest(w http.ResponseWriter, r *http.Request, v interface{}, requiredMsg string) bool {
	verr := validation.ValidateStruct(v)
	if verr == nil {
		return true
	}

	message := ""
	for _, fe := range verr.Errors() {
		if fe.Tag() == "required" {
			message = requiredMsg
			break
		}
	}
	apiErr := verr.ToAPIError()
	if message == "" {
		message = apiErr.Message
	}
	writeErrorBody(w, r, http.StatusBadRequest, ErrorBody{Error: message, Details: apiErr.Details})
	return false
}
