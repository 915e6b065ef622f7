// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"strings"

	"github.com/tomtom215/riqo-ingest/internal/models"
)

// ConfigureClientRequest is the body of POST /api/clients.
type ConfigureClientRequest struct {
	Company        string `json:"company"`
	ClientType     string `json:"client_type" validate:"omitempty,oneof=individual business enterprise"`
	DestinationURL string `json:"client_database_url" validate:"required,pgdsn"`
	AnonKey        string `json:"client_database_anon_key" validate:"required"`
	ServiceKey     string `json:"client_database_service_key" validate:"required"`
	DataTableName  string `json:"data_table_name" validate:"omitempty,tablename"`
	DashboardURL   string `json:"grafana_dashboard_url" validate:"omitempty,url"`
}

// ConfigureUserRequest is the body of POST /api/admin/configure-user.
type ConfigureUserRequest struct {
	UserID string `json:"userId" validate:"required"`
	ConfigureClientRequest
}

// GetUserByEmailRequest is the body of POST /api/admin/get-user-by-email.
type GetUserByEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// normalize trims every field.
func (c *ConfigureClientRequest) normalize() {
	c.Company = strings.TrimSpace(c.Company)
	c.ClientType = strings.TrimSpace(c.ClientType)
	c.DestinationURL = strings.TrimSpace(c.DestinationURL)
	c.AnonKey = strings.TrimSpace(c.AnonKey)
	c.ServiceKey = strings.TrimSpace(c.ServiceKey)
	c.DataTableName = strings.TrimSpace(c.DataTableName)
	c.DashboardURL = strings.TrimSpace(c.DashboardURL)
}

// toClientConfig applies the client type default. An empty table name is
// kept empty and resolves to the configured default table.
func (c *ConfigureClientRequest) toClientConfig() models.ClientConfig {
	clientType := c.ClientType
	if clientType == "" {
		clientType = models.ClientTypeBusiness
	}
	return models.ClientConfig{
		Company:        c.Company,
		ClientType:     clientType,
		DestinationURL: c.DestinationURL,
		AnonKey:        c.AnonKey,
		ServiceKey:     c.ServiceKey,
		DataTableName:  c.DataTableName,
		DashboardURL:   c.DashboardURL,
	}
}
