// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/riqo-ingest/internal/metrics"
)

// UploadLimiter is a token bucket per tenant. It complements the IP-based
// limit on the router: one tenant cannot flood the ingest queue from many
// addresses.
type UploadLimiter struct {
	limiters  map[string]*limiterEntry
	mu        sync.Mutex
	rate      rate.Limit
	burst     int
	stopClean chan struct{}
	stopOnce  sync.Once
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewUploadLimiter allows perMinute uploads per tenant with an equal burst.
// perMinute <= 0 disables limiting.
func NewUploadLimiter(perMinute int) *UploadLimiter {
	l := &UploadLimiter{
		limiters:  make(map[string]*limiterEntry),
		burst:     perMinute,
		stopClean: make(chan struct{}),
	}
	if perMinute > 0 {
		l.rate = rate.Every(time.Minute / time.Duration(perMinute))
		go l.startCleanup(5 * time.Minute)
	}
	return l
}

// Allow reports whether tenantID may submit another upload now.
func (l *UploadLimiter) Allow(tenantID string) bool {
	if l.burst <= 0 {
		return true
	}

	l.mu.Lock()
	entry, ok := l.limiters[tenantID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[tenantID] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// Middleware applies the limit to the authenticated subject. It must run
// after Middleware.Authenticate.
func (l *UploadLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := SubjectFromContext(r.Context())
		if subject == nil {
			writeUnauthorized(w)
			return
		}
		if !l.Allow(subject.ID) {
			metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			writeJSONError(w, http.StatusTooManyRequests, "Too many uploads. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *UploadLimiter) retryAfterSeconds() int {
	if l.burst <= 0 {
		return 0
	}
	secs := int((time.Minute / time.Duration(l.burst)).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (l *UploadLimiter) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Hour)
		case <-l.stopClean:
			return
		}
	}
}

// cleanup drops limiters idle for longer than maxIdle.
func (l *UploadLimiter) cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := time.Now().Add(-maxIdle)
	for id, entry := range l.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(l.limiters, id)
		}
	}
}

// Stop ends the cleanup goroutine.
func (l *UploadLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopClean) })
}
