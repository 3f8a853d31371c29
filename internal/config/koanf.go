// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/storepulse/config.yaml",
	"/etc/storepulse/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    0, // SSE responses stay open
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Presence: PresenceConfig{
			Backend:          BackendBadger,
			TTL:              30 * time.Second,
			MaxAge:           5 * time.Minute,
			SweepInterval:    60 * time.Second,
			StreamTick:       5 * time.Second,
			SerializeEMA:     true,
			FastTau:          10 * time.Second,
			SlowTau:          60 * time.Second,
			TrendThreshold:   0.05,
			BadgerPath:       "/data/presence",
			FallbackToMemory: true,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			Host:           "127.0.0.1",
			Port:           4222,
			StoreDir:       "/data/nats",
			KVBucket:       "presence",
			MaxReconnects:  -1, // reconnect forever
			ReconnectWait:  2 * time.Second,
		},
		Broadcast: BroadcastConfig{
			Transport:           TransportGoChannel,
			Topic:               "presence.updates",
			BufferSize:          16,
			MaxPublishPerSecond: 10,
		},
		Warehouse: WarehouseConfig{
			Enabled:         false,
			Path:            "/data/storepulse.duckdb",
			ArchiveInterval: 60 * time.Second,
			RollupInterval:  time.Hour,
			BatchSize:       100,
			WindowSeconds:   60,
			Concurrency:     8,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"}, // storefront pages call from arbitrary shop domains
			RateLimitRequests: 600,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			JWTSecret:         "",
			TokenTTL:          24 * time.Hour,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps flat environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"public_url":            "server.public_url",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Presence
	"presence_backend":            "presence.backend",
	"presence_ttl":                "presence.ttl",
	"presence_max_age":            "presence.max_age",
	"presence_sweep_interval":     "presence.sweep_interval",
	"presence_stream_tick":        "presence.stream_tick",
	"presence_serialize_ema":      "presence.serialize_ema",
	"presence_fast_tau":           "presence.fast_tau",
	"presence_slow_tau":           "presence.slow_tau",
	"presence_trend_threshold":    "presence.trend_threshold",
	"presence_badger_path":        "presence.badger_path",
	"presence_fallback_to_memory": "presence.fallback_to_memory",

	// Circuit breaker
	"breaker_enabled":           "breaker.enabled",
	"breaker_max_requests":      "breaker.max_requests",
	"breaker_interval":          "breaker.interval",
	"breaker_timeout":           "breaker.timeout",
	"breaker_failure_threshold": "breaker.failure_threshold",

	// NATS
	"nats_url":            "nats.url",
	"nats_embedded":       "nats.embedded_server",
	"nats_host":           "nats.host",
	"nats_port":           "nats.port",
	"nats_store_dir":      "nats.store_dir",
	"nats_kv_bucket":      "nats.kv_bucket",
	"nats_max_reconnects": "nats.max_reconnects",
	"nats_reconnect_wait": "nats.reconnect_wait",

	// Broadcast
	"broadcast_transport":              "broadcast.transport",
	"broadcast_topic":                  "broadcast.topic",
	"broadcast_buffer_size":            "broadcast.buffer_size",
	"broadcast_max_publish_per_second": "broadcast.max_publish_per_second",

	// Warehouse
	"warehouse_enabled":     "warehouse.enabled",
	"duckdb_path":           "warehouse.path",
	"archive_interval":      "warehouse.archive_interval",
	"rollup_interval":       "warehouse.rollup_interval",
	"warehouse_batch_size":  "warehouse.batch_size",
	"archive_window_secs":   "warehouse.window_seconds",
	"warehouse_concurrency": "warehouse.concurrency",

	// Security
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"jwt_secret":          "security.jwt_secret",
	"token_ttl":           "security.token_ttl",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" and are ignored, so unrelated process
// environment never leaks into the configuration.
//
// Examples:
//   - PRESENCE_BACKEND -> presence.backend
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> warehouse.path
func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}
