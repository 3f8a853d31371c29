// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package config

import (
	"fmt"
	"time"
)

// Presence backend names.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendNATS   = "nats"
)

// Broadcast transport names.
const (
	TransportGoChannel = "gochannel"
	TransportNATS      = "nats"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Presence  PresenceConfig  `koanf:"presence"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	NATS      NATSConfig      `koanf:"nats"`
	Broadcast BroadcastConfig `koanf:"broadcast"`
	Warehouse WarehouseConfig `koanf:"warehouse"`
	Security  SecurityConfig  `koanf:"security"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"` // 0 keeps SSE streams open
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	PublicURL       string        `koanf:"public_url"` // base URL baked into script.js; derived from the request when empty
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// PresenceConfig controls the presence store and the EMA counter.
type PresenceConfig struct {
	Backend          string        `koanf:"backend"`
	TTL              time.Duration `koanf:"ttl"`
	MaxAge           time.Duration `koanf:"max_age"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
	StreamTick       time.Duration `koanf:"stream_tick"`
	SerializeEMA     bool          `koanf:"serialize_ema"`
	FastTau          time.Duration `koanf:"fast_tau"`
	SlowTau          time.Duration `koanf:"slow_tau"`
	TrendThreshold   float64       `koanf:"trend_threshold"`
	BadgerPath       string        `koanf:"badger_path"` // empty runs Badger in memory
	FallbackToMemory bool          `koanf:"fallback_to_memory"`
}

// BreakerConfig configures the circuit breaker in front of durable backends.
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	MaxRequests      uint32        `koanf:"max_requests"` // probes allowed while half-open
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"` // open -> half-open delay
	FailureThreshold uint32        `koanf:"failure_threshold"`
}

// NATSConfig holds the NATS connection used by the KV backend and the
// nats broadcast transport.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	StoreDir       string        `koanf:"store_dir"`
	KVBucket       string        `koanf:"kv_bucket"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
}

// BroadcastConfig holds the pub/sub fan-out settings.
type BroadcastConfig struct {
	Transport           string  `koanf:"transport"`
	Topic               string  `koanf:"topic"`
	BufferSize          int     `koanf:"buffer_size"` // per-subscriber channel capacity
	MaxPublishPerSecond float64 `koanf:"max_publish_per_second"`
}

// WarehouseConfig holds the DuckDB archive settings.
type WarehouseConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Path            string        `koanf:"path"`
	ArchiveInterval time.Duration `koanf:"archive_interval"`
	RollupInterval  time.Duration `koanf:"rollup_interval"`
	BatchSize       int           `koanf:"batch_size"`
	WindowSeconds   int           `koanf:"window_seconds"`
	Concurrency     int           `koanf:"concurrency"`
}

// SecurityConfig holds CORS, rate limiting and dashboard auth.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	JWTSecret         string        `koanf:"jwt_secret"` // empty leaves history endpoints open
	TokenTTL          time.Duration `koanf:"token_ttl"`
}

// Load reads configuration from defaults, file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
