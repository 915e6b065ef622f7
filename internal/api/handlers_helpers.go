// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riqo-ingest/internal/audit"
	"github.com/tomtom215/riqo-ingest/internal/auth"
	"github.com/tomtom215/riqo-ingest/internal/authz"
	"github.com/tomtom215/riqo-ingest/internal/models"
)

// multipartMemory is the part of a multipart body held in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// multipartOverhead is allowed on top of the file size limit for boundaries
// and part headers.
const multipartOverhead = 1 << 20

// maxJSONBody bounds configure request bodies.
const maxJSONBody = 64 << 10

var errMissingFile = errors.New("missing file part")

// sanitizeLogValue escapes control characters so user input cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// getIntParam reads an integer query parameter, returning def when absent
// or malformed.
func getIntParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// decodeJSONBody decodes a bounded JSON body into v.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// formFile parses a multipart body bounded by limit and returns the "file"
// part. The caller closes the returned file. Oversized bodies surface as
// *http.MaxBytesError.
func formFile(w http.ResponseWriter, r *http.Request, limit int64) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, io.EOF) {
			return nil, nil, errMissingFile
		}
		return nil, nil, err
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, errMissingFile
	}
	return file, header, err
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// cleanupMultipart removes temporary files of a parsed form.
func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// currentProfile returns the profile loaded by the authorization middleware.
func currentProfile(r *http.Request) *models.TenantProfile {
	return authz.ProfileFromContext(r.Context())
}

// currentTenantID returns the authenticated tenant, or "".
func currentTenantID(r *http.Request) string {
	if s := auth.SubjectFromContext(r.Context()); s != nil {
		return s.ID
	}
	if p := currentProfile(r); p != nil {
		return p.ID
	}
	return ""
}

// currentActor describes the caller for the audit trail.
func currentActor(r *http.Request) audit.Actor {
	actor := audit.Actor{Role: authz.RoleFromContext(r.Context())}
	if s := auth.SubjectFromContext(r.Context()); s != nil {
		actor.ID, actor.Email = s.ID, s.Email
	}
	return actor
}
