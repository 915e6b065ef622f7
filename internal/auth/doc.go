// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

/*
Package auth verifies bearer tokens issued by the external auth provider and
exposes the authenticated tenant to handlers.

Tokens are HS256 JWTs signed with the shared JWT_SECRET. The "sub" claim is the
tenant ID and "email" the account email. No other algorithm is accepted.

Usage:

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	mw := auth.NewMiddleware(jwtManager)
	r.With(mw.Authenticate).Post("/api/upload", handler.Upload)

Handlers read the caller with SubjectFromContext. UploadLimiter bounds upload
submissions per tenant using golang.org/x/time/rate.
*/
package auth
