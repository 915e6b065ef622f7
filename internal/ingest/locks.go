// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package ingest

import "sync"

// TenantLocks allows at most one in-flight upload per tenant. A lock is taken
// when an upload is accepted and released once its job reaches a terminal
// state, so two uploads can never interleave truncate and insert against the
// same destination table.
type TenantLocks struct {
	mu   sync.Mutex
	held map[string]string // tenant ID -> upload ID
}

// NewTenantLocks creates an empty lock table.
func NewTenantLocks() *TenantLocks {
	return &TenantLocks{held: make(map[string]string)}
}

// TryAcquire takes the tenant's lock for uploadID. It returns the current
// holder and false when the lock is already taken.
func (l *TenantLocks) TryAcquire(tenantID, uploadID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if holder, ok := l.held[tenantID]; ok {
		return holder, false
	}
	l.held[tenantID] = uploadID
	return uploadID, true
}

// Release frees the tenant's lock if uploadID still holds it.
func (l *TenantLocks) Release(tenantID, uploadID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[tenantID] == uploadID {
		delete(l.held, tenantID)
	}
}

// Holder returns the upload currently holding the tenant's lock.
func (l *TenantLocks) Holder(tenantID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	holder, ok := l.held[tenantID]
	return holder, ok
}

// Len returns the number of tenants with an upload in flight.
func (l *TenantLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
