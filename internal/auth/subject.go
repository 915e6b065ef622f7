// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package auth

import "context"

type contextKey string

const subjectContextKey contextKey = "auth_subject"

// AuthSubject is the authenticated caller. ID is the tenant ID.
type AuthSubject struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	IssuedAt  int64  `json:"issued_at,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// SubjectFromClaims converts validated claims.
func SubjectFromClaims(claims *Claims) *AuthSubject {
	if claims == nil {
		return nil
	}
	s := &AuthSubject{ID: claims.Subject, Email: claims.Email}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return s
}

// ContextWithSubject attaches the subject to ctx.
func ContextWithSubject(ctx context.Context, s *AuthSubject) context.Context {
	return context.WithValue(ctx, subjectContextKey, s)
}

// SubjectFromContext returns the authenticated subject, or nil.
func SubjectFromContext(ctx context.Context) *AuthSubject {
	s, _ := ctx.Value(subjectContextKey).(*AuthSubject)
	return s
}
