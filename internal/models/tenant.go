// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package models defines the records shared by the store, the ingestion
// pipeline and the HTTP layer.
package models

import (
	"strings"
	"time"
)

// Client types accepted by the configure endpoints.
const (
	ClientTypeIndividual = "individual"
	ClientTypeBusiness   = "business"
	ClientTypeEnterprise = "enterprise"
)

// Subscription plans. PlanEnterprise maps to the admin role by default.
const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// TenantProfile is one authenticated account and its destination configuration.
//
// AnonKey and ServiceKey are held in plaintext in memory only; the store
// encrypts them before they reach disk.
type TenantProfile struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email,omitempty"`
	FullName           string    `json:"full_name,omitempty"`
	Company            string    `json:"company,omitempty"`
	ClientType         string    `json:"client_type"`
	SubscriptionPlan   string    `json:"subscription_plan"`
	SubscriptionStatus string    `json:"subscription_status"`
	DestinationURL     *string   `json:"-"`
	AnonKey            string    `json:"-"`
	ServiceKey         string    `json:"-"`
	DataTableName      string    `json:"data_table_name"`
	DashboardURL       string    `json:"grafana_dashboard_url,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasDestination reports whether a destination URL is configured.
func (p *TenantProfile) HasDestination() bool {
	return p != nil && p.DestinationURL != nil && strings.TrimSpace(*p.DestinationURL) != ""
}

// TableName returns the destination table, or fallback when unset.
func (p *TenantProfile) TableName(fallback string) string {
	if p == nil || strings.TrimSpace(p.DataTableName) == "" {
		return fallback
	}
	return strings.TrimSpace(p.DataTableName)
}

// ClientConfig is the mutable part of a profile written by the configure
// operations. It never carries the tenant ID; callers choose the target.
type ClientConfig struct {
	Company        string
	ClientType     string
	DestinationURL string
	AnonKey        string
	ServiceKey     string
	DataTableName  string
	DashboardURL   string
}
