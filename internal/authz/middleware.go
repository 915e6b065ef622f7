// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package authz

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riqo-ingest/internal/audit"
	"github.com/tomtom215/riqo-ingest/internal/auth"
	"github.com/tomtom215/riqo-ingest/internal/logging"
	"github.com/tomtom215/riqo-ingest/internal/models"
)

type contextKey string

const (
	profileContextKey contextKey = "authz_profile"
	roleContextKey    contextKey = "authz_role"
)

// ProfileProvisioner returns the caller's profile, creating it with plan
// defaults when it does not exist yet.
type ProfileProvisioner interface {
	EnsureProfile(ctx context.Context, id, email string) (*models.TenantProfile, error)
}

// DenialRecorder receives every request the policy rejects.
type DenialRecorder interface {
	LogAuthzDenied(ctx context.Context, actor audit.Actor, source audit.Source, method, path string)
}

// Middleware enforces the policy for authenticated requests.
type Middleware struct {
	enforcer *Enforcer
	profiles ProfileProvisioner
	denials  DenialRecorder
}

// NewMiddleware creates the authorization middleware.
func NewMiddleware(enforcer *Enforcer, profiles ProfileProvisioner) *Middleware {
	return &Middleware{enforcer: enforcer, profiles: profiles}
}

// WithDenialRecorder sends denials to r in addition to the log.
func (m *Middleware) WithDenialRecorder(r DenialRecorder) *Middleware {
	m.denials = r
	return m
}

// Authorize provisions the caller's profile, derives its role and checks the
// request path and method. It must run after auth.Authenticate.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := auth.SubjectFromContext(r.Context())
		if subject == nil {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		profile, err := m.profiles.EnsureProfile(r.Context(), subject.ID, subject.Email)
		if err != nil {
			logging.CtxErr(r.Context(), err).Msg("Failed to load profile")
			writeJSONError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		role := m.enforcer.RoleForPlan(profile.SubscriptionPlan)
		allowed, err := m.enforcer.Enforce(role, r.URL.Path, r.Method)
		if err != nil {
			logging.CtxErr(r.Context(), err).Msg("Authorization error")
			writeJSONError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if !allowed {
			logging.CtxWarn(r.Context()).
				Str("role", role).
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg("Access denied")
			if m.denials != nil {
				m.denials.LogAuthzDenied(r.Context(),
					audit.Actor{ID: subject.ID, Email: subject.Email, Role: role},
					audit.SourceFromRequest(r), r.Method, r.URL.Path)
			}
			writeJSONError(w, http.StatusForbidden, forbiddenMessage(r.URL.Path))
			return
		}

		ctx := context.WithValue(r.Context(), profileContextKey, profile)
		ctx = context.WithValue(ctx, roleContextKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ProfileFromContext returns the profile loaded by Authorize, or nil.
func ProfileFromContext(ctx context.Context) *models.TenantProfile {
	p, _ := ctx.Value(profileContextKey).(*models.TenantProfile)
	return p
}

// RoleFromContext returns the role resolved by Authorize, or "".
func RoleFromContext(ctx context.Context) string {
	r, _ := ctx.Value(roleContextKey).(string)
	return r
}

// ContextWithProfile attaches a profile and role. Used by tests of handlers
// mounted behind Authorize.
func ContextWithProfile(ctx context.Context, p *models.TenantProfile, role string) context.Context {
	ctx = context.WithValue(ctx, profileContextKey, p)
	return context.WithValue(ctx, roleContextKey, role)
}

func forbiddenMessage(path string) string {
	if strings.HasPrefix(path, "/api/admin/") {
		return "Admin access required"
	}
	return "Forbidden"
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
