// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "this_is_a_very_long_secret_key_with_32_plus_characters"

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Ingest.MaxUploadBytes != 50*1024*1024 {
		t.Errorf("Ingest.MaxUploadBytes = %d, want 50 MiB", cfg.Ingest.MaxUploadBytes)
	}
	if cfg.Ingest.DefaultTableName != "ventas" {
		t.Errorf("Ingest.DefaultTableName = %q, want ventas", cfg.Ingest.DefaultTableName)
	}
	if cfg.Security.AdminPlan != "enterprise" {
		t.Errorf("Security.AdminPlan = %q, want enterprise", cfg.Security.AdminPlan)
	}
	if cfg.Destination.MaxConns != 5 {
		t.Errorf("Destination.MaxConns = %d, want 5", cfg.Destination.MaxConns)
	}
	if cfg.Destination.MaxConnLifetime != 30*time.Minute {
		t.Errorf("Destination.MaxConnLifetime = %v, want 30m", cfg.Destination.MaxConnLifetime)
	}
}

func TestLoadWithKoanf_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DEFAULT_TABLE_NAME", "client_data")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DESTINATION_MAX_CONNS", "8")
	t.Setenv("SOME_UNRELATED_VAR", "ignored")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Ingest.DefaultTableName != "client_data" {
		t.Errorf("DefaultTableName = %q, want client_data", cfg.Ingest.DefaultTableName)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.Destination.MaxConns != 8 {
		t.Errorf("Destination.MaxConns = %d, want 8", cfg.Destination.MaxConns)
	}
}

func TestLoadWithKoanf_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
security:
  jwt_secret: "` + testSecret + `"
ingest:
  default_table_name: sales
  max_upload_bytes: 1024
logging:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Ingest.DefaultTableName != "sales" {
		t.Errorf("DefaultTableName = %q, want sales", cfg.Ingest.DefaultTableName)
	}
	if cfg.Ingest.MaxUploadBytes != 1024 {
		t.Errorf("MaxUploadBytes = %d, want 1024", cfg.Ingest.MaxUploadBytes)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, env should win over file", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console", cfg.Logging.Format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.Security.JWTSecret = "short" }, "JWT_SECRET"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"zero upload cap", func(c *Config) { c.Ingest.MaxUploadBytes = 0 }, "UPLOAD_MAX_BYTES"},
		{"blank table", func(c *Config) { c.Ingest.DefaultTableName = "  " }, "DEFAULT_TABLE_NAME"},
		{"min over max", func(c *Config) { c.Destination.MinConns = 9 }, "DESTINATION_MIN_CONNS"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"audit buffer", func(c *Config) { c.Audit.BufferSize = 0 }, "AUDIT_BUFFER_SIZE"},
		{"audit disabled skips bounds", func(c *Config) {
			c.Audit.Enabled = false
			c.Audit.BufferSize = 0
		}, ""},
		{"rate limit disabled skips bounds", func(c *Config) {
			c.Security.RateLimitDisabled = true
			c.Security.RateLimitReqs = 0
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWTSecret = testSecret
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptionSecretFallback(t *testing.T) {
	t.Parallel()
	s := SecurityConfig{JWTSecret: "jwt"}
	if s.EncryptionSecret() != "jwt" {
		t.Errorf("EncryptionSecret() = %q, want jwt", s.EncryptionSecret())
	}
	s.CredentialsKey = "dedicated"
	if s.EncryptionSecret() != "dedicated" {
		t.Errorf("EncryptionSecret() = %q, want dedicated", s.EncryptionSecret())
	}
}
