// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package config loads and validates riqo-ingest configuration.
//
// Sources are layered with koanf: built-in defaults, then an optional YAML
// file (CONFIG_PATH or one of DefaultConfigPaths), then environment variables.
// Only environment variables listed in the env mapping table are honored.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
	Database    DatabaseConfig    `koanf:"database"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Destination DestinationConfig `koanf:"destination"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
	Audit       AuditConfig       `koanf:"audit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig holds authentication, authorization and rate limit settings.
type SecurityConfig struct {
	// JWTSecret verifies HS256 bearer tokens minted by the auth provider.
	JWTSecret string `koanf:"jwt_secret"`

	// CredentialsKey derives the AES key protecting tenant destination credentials
	// at rest. Falls back to JWTSecret when empty.
	CredentialsKey string `koanf:"credentials_key"`

	// AdminPlan is the subscription plan that grants the admin role.
	AdminPlan string `koanf:"admin_plan"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// UploadsPerMinute bounds upload submissions per tenant (0 disables).
	UploadsPerMinute int `koanf:"uploads_per_minute"`

	CORSOrigins []string `koanf:"cors_origins"`

	CasbinModelPath  string `koanf:"casbin_model_path"`
	CasbinPolicyPath string `koanf:"casbin_policy_path"`
}

// EncryptionSecret returns the secret used for credential encryption.
func (s SecurityConfig) EncryptionSecret() string {
	if s.CredentialsKey != "" {
		return s.CredentialsKey
	}
	return s.JWTSecret
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig points at the DuckDB metadata store (tenant profiles, upload jobs).
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// IngestConfig controls upload intake and the background executor.
type IngestConfig struct {
	// TempDir is the parent of per-job artifact directories (<TempDir>/riqo-uploads/<job>).
	// Empty means os.TempDir().
	TempDir string `koanf:"temp_dir"`

	// MaxUploadBytes is the hard cap; a file of exactly this size is accepted.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// DefaultTableName is used when a tenant has no data_table_name.
	DefaultTableName string `koanf:"default_table_name"`

	// QueueBuffer is the gochannel output buffer for pending tasks.
	QueueBuffer int64 `koanf:"queue_buffer"`

	// CloseTimeout bounds how long shutdown waits for in-flight jobs.
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// ArtifactMaxAge is how old an orphaned artifact directory must be before
	// the sweeper removes it. Zero disables sweeping.
	ArtifactMaxAge time.Duration `koanf:"artifact_max_age"`
}

// DestinationConfig tunes per-tenant pools and the destination circuit breaker.
type DestinationConfig struct {
	MaxConns          int32         `koanf:"max_conns"`
	MinConns          int32         `koanf:"min_conns"`
	MaxConnLifetime   time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `koanf:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `koanf:"health_check_period"`
	ConnectTimeout    time.Duration `koanf:"connect_timeout"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout"`
	BreakerFailures   uint32        `koanf:"breaker_failures"`
}

// SupervisorConfig feeds supervisor.TreeConfig.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// AuditConfig controls the security audit trail.
type AuditConfig struct {
	Enabled       bool `koanf:"enabled"`
	RetentionDays int  `koanf:"retention_days"`
	BufferSize    int  `koanf:"buffer_size"`

	// LogToStdout mirrors every audit event into the application log.
	LogToStdout bool `koanf:"log_to_stdout"`
}

// MaxUploadBytesDefault is 50 MiB.
const MaxUploadBytesDefault int64 = 50 * 1024 * 1024

// Load is the entry point used by main.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
