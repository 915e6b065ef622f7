// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

// Roles known to the embedded policy.
const (
	RoleTenant = "tenant"
	RoleAdmin  = "admin"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// ModelPath overrides the embedded model when the file exists.
	ModelPath string

	// PolicyPath overrides the embedded policy when the file exists.
	PolicyPath string

	// AdminPlan is the subscription plan mapped to RoleAdmin.
	AdminPlan string

	// CacheTTL bounds how long a decision is reused. Zero disables caching.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns the embedded policy with a one minute cache.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{
		AdminPlan: "enterprise",
		CacheTTL:  time.Minute,
	}
}

// Enforcer wraps the Casbin enforcer with plan mapping and a decision cache.
type Enforcer struct {
	config   *EnforcerConfig
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
}

// NewEnforcer builds an enforcer from config, falling back to the embedded
// model and policy.
func NewEnforcer(config *EnforcerConfig) (*Enforcer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}

	var m model.Model
	var err error
	if config.ModelPath != "" && fileExists(config.ModelPath) {
		m, err = model.NewModelFromFile(config.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" && fileExists(config.PolicyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	e := &Enforcer{config: config, enforcer: enforcer}
	if config.CacheTTL > 0 {
		e.cache = newDecisionCache(config.CacheTTL, defaultCacheEntries)
	}
	return e, nil
}

// loadEmbeddedPolicy parses policy lines of the form "p, sub, obj, act" and
// "g, child, parent".
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 3 {
			continue
		}

		rule := parts[1:]
		switch parts[0] {
		case "p":
			if len(rule) < 3 {
				continue
			}
			if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", rule, err)
			}
		case "g":
			if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
			}
		}
	}
	return nil
}

// RoleForPlan maps a subscription plan to a role.
func (e *Enforcer) RoleForPlan(plan string) string {
	if e.config.AdminPlan != "" && strings.EqualFold(strings.TrimSpace(plan), e.config.AdminPlan) {
		return RoleAdmin
	}
	return RoleTenant
}

// Enforce reports whether role may perform method on path.
func (e *Enforcer) Enforce(role, path, method string) (bool, error) {
	start := time.Now()
	if e.cache != nil {
		if allowed, ok := e.cache.get(role, path, method); ok {
			recordDecision(role, allowed, true, time.Since(start))
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(role, path, method)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}

	if e.cache != nil {
		e.cache.set(role, path, method, allowed)
	}
	recordDecision(role, allowed, false, time.Since(start))
	return allowed, nil
}

// AddPolicy grants role the methods matched by the methods regex on path.
func (e *Enforcer) AddPolicy(role, path, methods string) (bool, error) {
	added, err := e.enforcer.AddPolicy(role, path, methods)
	if err != nil {
		return false, fmt.Errorf("failed to add policy: %w", err)
	}
	e.invalidate()
	return added, nil
}

// RemovePolicy revokes a rule added by AddPolicy or the policy file.
func (e *Enforcer) RemovePolicy(role, path, methods string) (bool, error) {
	removed, err := e.enforcer.RemovePolicy(role, path, methods)
	if err != nil {
		return false, fmt.Errorf("failed to remove policy: %w", err)
	}
	e.invalidate()
	return removed, nil
}

// GetPolicy returns every p rule.
func (e *Enforcer) GetPolicy() ([][]string, error) {
	return e.enforcer.GetPolicy()
}

func (e *Enforcer) invalidate() {
	if e.cache != nil {
		e.cache.clear()
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
