// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package authz decides which authenticated tenants may reach which routes.
//
// Authentication (internal/auth) establishes who the caller is. This package
// loads the caller's profile, provisioning it on first sight, maps the
// subscription plan to a role and asks Casbin whether that role may perform
// the HTTP method on the request path:
//
//	Request -> auth.Authenticate -> authz.Authorize -> Handler
//
// # Roles
//
//   - tenant: every authenticated account. Upload, status, client
//     configuration, connectivity test, preview and data read.
//   - admin: accounts on the configured admin plan (enterprise by default).
//     Inherits tenant and may call /api/admin/*.
//
// The model and policy are embedded (model.conf, policy.csv). Deployments can
// override either with security.casbin_model_path and
// security.casbin_policy_path.
//
// Decisions are cached per (role, path, method) for a short TTL. The cache
// is cleared whenever the policy changes.
package authz
