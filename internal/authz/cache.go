// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package authz

import (
	"sync"
	"time"
)

const defaultCacheEntries = 4096

// decisionCache caches authorization decisions by role, path and method.
// Expired entries are swept when the cache reaches maxEntries.
type decisionCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu    sync.RWMutex
	items map[string]cacheItem
}

type cacheItem struct {
	allowed   bool
	expiresAt time.Time
}

func newDecisionCache(ttl time.Duration, maxEntries int) *decisionCache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	return &decisionCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		items:      make(map[string]cacheItem),
	}
}

func (c *decisionCache) key(role, path, method string) string {
	return role + "\x00" + path + "\x00" + method
}

func (c *decisionCache) get(role, path, method string) (allowed, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[c.key(role, path, method)]
	if !found || c.now().After(item.expiresAt) {
		return false, false
	}
	return item.allowed, true
}

func (c *decisionCache) set(role, path, method string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.maxEntries {
		c.sweepLocked()
	}
	if len(c.items) >= c.maxEntries {
		// Still full of live entries; start over rather than grow.
		c.items = make(map[string]cacheItem)
	}
	c.items[c.key(role, path, method)] = cacheItem{
		allowed:   allowed,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *decisionCache) sweepLocked() {
	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

func (c *decisionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cacheItem)
}

func (c *decisionCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
