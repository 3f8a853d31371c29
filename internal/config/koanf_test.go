// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns the documented defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Presence.TTL != 30*time.Second {
		t.Errorf("Presence.TTL = %v, want 30s", cfg.Presence.TTL)
	}
	if cfg.Presence.MaxAge != 5*time.Minute {
		t.Errorf("Presence.MaxAge = %v, want 5m", cfg.Presence.MaxAge)
	}
	if cfg.Presence.SweepInterval != 60*time.Second {
		t.Errorf("Presence.SweepInterval = %v, want 60s", cfg.Presence.SweepInterval)
	}
	if cfg.Presence.StreamTick != 5*time.Second {
		t.Errorf("Presence.StreamTick = %v, want 5s", cfg.Presence.StreamTick)
	}
	if cfg.Presence.FastTau != 10*time.Second || cfg.Presence.SlowTau != 60*time.Second {
		t.Errorf("EMA taus = %v/%v, want 10s/60s", cfg.Presence.FastTau, cfg.Presence.SlowTau)
	}
	if cfg.Presence.TrendThreshold != 0.05 {
		t.Errorf("Presence.TrendThreshold = %v, want 0.05", cfg.Presence.TrendThreshold)
	}
	if !cfg.Presence.SerializeEMA {
		t.Error("Presence.SerializeEMA should be true by default")
	}
	if cfg.Warehouse.BatchSize != 100 {
		t.Errorf("Warehouse.BatchSize = %d, want 100", cfg.Warehouse.BatchSize)
	}
	if cfg.Warehouse.WindowSeconds != 60 {
		t.Errorf("Warehouse.WindowSeconds = %d, want 60", cfg.Warehouse.WindowSeconds)
	}
	if cfg.Broadcast.Transport != TransportGoChannel {
		t.Errorf("Broadcast.Transport = %q, want gochannel", cfg.Broadcast.Transport)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"PRESENCE_BACKEND", "presence.backend"},
		{"PRESENCE_TTL", "presence.ttl"},
		{"HTTP_PORT", "server.port"},
		{"DUCKDB_PATH", "warehouse.path"},
		{"NATS_EMBEDDED", "nats.embedded_server"},
		{"CORS_ORIGINS", "security.cors_origins"},
		{"DISABLE_RATE_LIMIT", "security.rate_limit_disabled"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	if got := findConfigFile(); got != path {
		t.Errorf("findConfigFile() = %q, want %q", got, path)
	}

	t.Setenv(ConfigPathEnvVar, filepath.Join(dir, "missing.yaml"))
	oldPaths := DefaultConfigPaths
	DefaultConfigPaths = []string{filepath.Join(dir, "nope.yaml")}
	defer func() { DefaultConfigPaths = oldPaths }()

	if got := findConfigFile(); got != "" {
		t.Errorf("findConfigFile() = %q, want empty", got)
	}
}

func TestLoadWithKoanfEnvVars(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("PRESENCE_BACKEND", "memory")
	t.Setenv("PRESENCE_TTL", "45s")
	t.Setenv("HTTP_PORT", "8088")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("PRESENCE_SERIALIZE_EMA", "false")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Presence.Backend != BackendMemory {
		t.Errorf("Presence.Backend = %q, want memory", cfg.Presence.Backend)
	}
	if cfg.Presence.TTL != 45*time.Second {
		t.Errorf("Presence.TTL = %v, want 45s", cfg.Presence.TTL)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("Server.Port = %d, want 8088", cfg.Server.Port)
	}
	if cfg.Presence.SerializeEMA {
		t.Error("Presence.SerializeEMA should be false")
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
}

func TestLoadWithKoanfEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
presence:
  backend: nats
  stream_tick: 2s
nats:
  kv_bucket: storefronts
warehouse:
  enabled: true
  path: /tmp/warehouse.duckdb
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("PRESENCE_BACKEND", "badger")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Presence.Backend != BackendBadger {
		t.Errorf("env should override file: backend = %q", cfg.Presence.Backend)
	}
	if cfg.Presence.StreamTick != 2*time.Second {
		t.Errorf("Presence.StreamTick = %v, want 2s from file", cfg.Presence.StreamTick)
	}
	if cfg.NATS.KVBucket != "storefronts" {
		t.Errorf("NATS.KVBucket = %q, want storefronts", cfg.NATS.KVBucket)
	}
	if !cfg.Warehouse.Enabled || cfg.Warehouse.Path != "/tmp/warehouse.duckdb" {
		t.Errorf("Warehouse = %+v", cfg.Warehouse)
	}
}

func TestLoadWithKoanfValidation(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("PRESENCE_BACKEND", "redis")

	if _, err := LoadWithKoanf(); err == nil {
		t.Error("expected validation error for unknown backend")
	}
}
