// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package tenantdb

import (
	"sync"

	"github.com/tomtom215/riqo-ingest/internal/metrics"
)

// ConnectionCache holds one DB per (tenant, tier). Each entry carries the
// fingerprint of the URL and credential it was opened with; a lookup with a
// different fingerprint is a miss.
type ConnectionCache interface {
	// Get returns the cached handle when its fingerprint matches.
	Get(tenantID string, tier Tier, fingerprint string) (DB, bool)

	// Put stores db. When a handle with the same fingerprint won the race, db
	// is closed and the existing handle returned. A handle with a different
	// fingerprint is replaced and closed.
	Put(tenantID string, tier Tier, fingerprint string, db DB) DB

	// Invalidate closes and removes every handle of a tenant.
	Invalidate(tenantID string)

	// Clear closes and removes everything.
	Clear()

	Len() int
}

type cacheKey struct {
	tenantID string
	tier     Tier
}

type cacheEntry struct {
	fingerprint string
	db          DB
}

// MemoryCache is a process-local ConnectionCache. Entries are never mutated
// after insertion; they are only removed or replaced.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[cacheKey]cacheEntry)}
}

func (c *MemoryCache) Get(tenantID string, tier Tier, fingerprint string) (DB, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey{tenantID, tier}]
	if !ok || e.fingerprint != fingerprint {
		return nil, false
	}
	return e.db, true
}

func (c *MemoryCache) Put(tenantID string, tier Tier, fingerprint string, db DB) DB {
	c.mu.Lock()
	key := cacheKey{tenantID, tier}
	existing, ok := c.entries[key]
	if ok && existing.fingerprint == fingerprint {
		c.mu.Unlock()
		db.Close()
		return existing.db
	}
	c.entries[key] = cacheEntry{fingerprint: fingerprint, db: db}
	n := len(c.entries)
	c.mu.Unlock()

	if ok {
		// A pool may still be serving a job that resolved it earlier, and
		// closing a pgxpool waits for acquired connections.
		go existing.db.Close()
	}
	metrics.DestinationPools.Set(float64(n))
	return db
}

func (c *MemoryCache) Invalidate(tenantID string) {
	c.mu.Lock()
	var closing []DB
	for key, e := range c.entries {
		if key.tenantID == tenantID {
			closing = append(closing, e.db)
			delete(c.entries, key)
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	for _, db := range closing {
		db.Close()
	}
	metrics.DestinationPools.Set(float64(n))
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[cacheKey]cacheEntry)
	c.mu.Unlock()

	for _, e := range old {
		e.db.Close()
	}
	metrics.DestinationPools.Set(0)
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
