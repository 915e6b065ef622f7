// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package tenantdb manages connections to tenant destination databases and
// writes parsed rows into them.
//
// Each tenant stores a Postgres URL plus two credentials: a restricted ("anon")
// key used for reads and a privileged ("service") key required for truncate and
// insert. Pools are created on first use per (tenant, tier) and reused while
// the profile's URL and key stay the same. Invalidate closes a tenant's pools
// when its stored credentials change; a caller still holding the previous
// profile gets a separate pool that never serves the updated one.
package tenantdb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/riqo-ingest/internal/config"
	"github.com/tomtom215/riqo-ingest/internal/logging"
	"github.com/tomtom215/riqo-ingest/internal/metrics"
	"github.com/tomtom215/riqo-ingest/internal/models"
)

// Tier selects which stored credential a connection uses.
type Tier string

const (
	TierRestricted Tier = "restricted"
	TierPrivileged Tier = "privileged"
)

// Credential names as they appear in error messages.
func (t Tier) keyName() string {
	if t == TierPrivileged {
		return "service"
	}
	return "anon"
}

var (
	// ErrNotConfigured means the tenant has no destination URL.
	ErrNotConfigured = errors.New("User does not have a client database configured")

	// ErrMissingCredential means the key for the requested tier is empty.
	ErrMissingCredential = errors.New("missing credential for client database")

	// ErrUnavailable means the tenant's circuit breaker is open.
	ErrUnavailable = errors.New("client database temporarily unavailable")
)

// credentialError keeps the tier-specific message while matching ErrMissingCredential.
type credentialError struct{ tier Tier }

func (e *credentialError) Error() string {
	return fmt.Sprintf("Missing %s key for client database", e.tier.keyName())
}

func (e *credentialError) Is(target error) bool { return target == ErrMissingCredential }

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache replaces the default MemoryCache.
func WithCache(c ConnectionCache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithConnector replaces PoolConnector.
func WithConnector(c Connector) Option {
	return func(r *Resolver) { r.connect = c }
}

// Resolver hands out cached destination handles and guards them with a
// per-tenant circuit breaker.
type Resolver struct {
	cfg          config.DestinationConfig
	defaultTable string
	cache        ConnectionCache
	connect      Connector

	// createMu serializes pool creation so a cold cache opens one pool per key.
	createMu sync.Mutex

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker[any]
}

// NewResolver creates a Resolver.
func NewResolver(cfg config.DestinationConfig, defaultTable string, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:          cfg,
		defaultTable: defaultTable,
		cache:        NewMemoryCache(),
		connect:      PoolConnector,
		breakers:     make(map[string]*gobreaker.CircuitBreaker[any]),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TableName returns the tenant's destination table.
func (r *Resolver) TableName(p *models.TenantProfile) string {
	return p.TableName(r.defaultTable)
}

// Resolve returns the handle for (tenant, tier), creating it on first use.
func (r *Resolver) Resolve(ctx context.Context, p *models.TenantProfile, tier Tier) (DB, error) {
	if !p.HasDestination() {
		return nil, ErrNotConfigured
	}
	key := p.AnonKey
	if tier == TierPrivileged {
		key = p.ServiceKey
	}
	if key == "" {
		return nil, &credentialError{tier: tier}
	}

	fp := fingerprint(*p.DestinationURL, key)
	if db, ok := r.cache.Get(p.ID, tier, fp); ok {
		return db, nil
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()
	if db, ok := r.cache.Get(p.ID, tier, fp); ok {
		return db, nil
	}

	db, err := r.connect(ctx, *p.DestinationURL, ParseCredential(key), r.cfg)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Debug().
		Str("tenant_id", p.ID).
		Str("tier", string(tier)).
		Msg("Opened client database pool")
	return r.cache.Put(p.ID, tier, fp, db), nil
}

// fingerprint identifies the destination a pool was opened against.
func fingerprint(url, key string) string {
	sum := sha256.Sum256([]byte(url + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

// Invalidate drops a tenant's cached handles and breaker. Call it whenever
// stored credentials change.
func (r *Resolver) Invalidate(tenantID string) {
	r.cache.Invalidate(tenantID)

	r.breakersMu.Lock()
	delete(r.breakers, tenantID)
	r.breakersMu.Unlock()
	metrics.CircuitBreakerState.DeleteLabelValues(breakerName(tenantID))
}

// Clear drops every cached handle.
func (r *Resolver) Clear() {
	r.cache.Clear()
}

// Close releases all pools.
func (r *Resolver) Close() {
	r.Clear()
}

func breakerName(tenantID string) string {
	return "destination-" + tenantID
}

// breaker returns the tenant's circuit breaker, creating it on first use.
func (r *Resolver) breaker(tenantID string) *gobreaker.CircuitBreaker[any] {
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()

	if cb, ok := r.breakers[tenantID]; ok {
		return cb
	}

	threshold := r.cfg.BreakerFailures
	if threshold == 0 {
		threshold = 5
	}
	name := breakerName(tenantID)
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     r.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// SQL errors come from a reachable server; only transport failures count.
		IsSuccessful: func(err error) bool {
			return err == nil || isServerError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})
	r.breakers[tenantID] = cb
	return cb
}

// execute runs fn through the tenant's breaker and records its duration.
func (r *Resolver) execute(tenantID, op string, fn func() error) error {
	cb := r.breaker(tenantID)
	start := time.Now()
	_, err := cb.Execute(func() (any, error) {
		return nil, fn()
	})
	metrics.RecordDestinationOp(op, time.Since(start))

	name := breakerName(tenantID)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		return err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
		return nil
	}
}

// BreakerState reports the tenant's breaker state for diagnostics.
func (r *Resolver) BreakerState(tenantID string) string {
	return stateToString(r.breaker(tenantID).State())
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
