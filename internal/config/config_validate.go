// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package config

import (
	"fmt"
	"strings"
)

const minJWTSecretLength = 32

// Validate checks the loaded configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateDestination(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if c.Security.AdminPlan == "" {
		return fmt.Errorf("ADMIN_PLAN cannot be empty")
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	if c.Security.UploadsPerMinute < 0 {
		return fmt.Errorf("UPLOADS_PER_MINUTE cannot be negative")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxUploadBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if strings.TrimSpace(c.Ingest.DefaultTableName) == "" {
		return fmt.Errorf("DEFAULT_TABLE_NAME cannot be empty")
	}
	if c.Ingest.QueueBuffer < 0 {
		return fmt.Errorf("INGEST_QUEUE_BUFFER cannot be negative")
	}
	return nil
}

func (c *Config) validateDestination() error {
	if c.Destination.MaxConns < 1 {
		return fmt.Errorf("DESTINATION_MAX_CONNS must be at least 1")
	}
	if c.Destination.MinConns < 0 || c.Destination.MinConns > c.Destination.MaxConns {
		return fmt.Errorf("DESTINATION_MIN_CONNS must be between 0 and DESTINATION_MAX_CONNS")
	}
	if c.Destination.BreakerFailures == 0 {
		return fmt.Errorf("DESTINATION_BREAKER_FAILURES must be at least 1")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS cannot be negative")
	}
	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
