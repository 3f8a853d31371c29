// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// minJWTSecretLength is the HS256 key floor enforced when history auth is on.
const minJWTSecretLength = 32

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validatePresence(); err != nil {
		return err
	}
	if err := c.validateBreaker(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateBroadcast(); err != nil {
		return err
	}
	if err := c.validateWarehouse(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.PublicURL != "" {
		u, err := url.Parse(c.Server.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("PUBLIC_URL must be an absolute http(s) URL, got %q", c.Server.PublicURL)
		}
	}
	return nil
}

// validatePresence validates store selection and timing
func (c *Config) validatePresence() error {
	switch c.Presence.Backend {
	case BackendMemory, BackendBadger, BackendNATS:
	default:
		return fmt.Errorf("PRESENCE_BACKEND must be one of: memory, badger, nats")
	}
	if c.Presence.TTL <= 0 {
		return fmt.Errorf("PRESENCE_TTL must be positive")
	}
	if c.Presence.MaxAge < c.Presence.TTL {
		return fmt.Errorf("PRESENCE_MAX_AGE (%v) must not be shorter than PRESENCE_TTL (%v)",
			c.Presence.MaxAge, c.Presence.TTL)
	}
	if c.Presence.SweepInterval <= 0 {
		return fmt.Errorf("PRESENCE_SWEEP_INTERVAL must be positive")
	}
	if c.Presence.StreamTick <= 0 {
		return fmt.Errorf("PRESENCE_STREAM_TICK must be positive")
	}
	return c.validateEMA()
}

func (c *Config) validateEMA() error {
	if c.Presence.FastTau <= 0 || c.Presence.SlowTau <= 0 {
		return fmt.Errorf("EMA time constants must be positive")
	}
	if c.Presence.FastTau >= c.Presence.SlowTau {
		return fmt.Errorf("PRESENCE_FAST_TAU (%v) must be shorter than PRESENCE_SLOW_TAU (%v)",
			c.Presence.FastTau, c.Presence.SlowTau)
	}
	if c.Presence.TrendThreshold <= 0 || c.Presence.TrendThreshold >= 1 {
		return fmt.Errorf("PRESENCE_TREND_THRESHOLD must be in (0, 1)")
	}
	return nil
}

func (c *Config) validateBreaker() error {
	if !c.Breaker.Enabled {
		return nil
	}
	if c.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive")
	}
	return nil
}

// usesNATS reports whether any component needs a NATS connection.
func (c *Config) usesNATS() bool {
	return c.Presence.Backend == BackendNATS || c.Broadcast.Transport == TransportNATS
}

// UsesNATS is the exported form used by main to decide on connecting.
func (c *Config) UsesNATS() bool {
	return c.usesNATS()
}

func (c *Config) validateNATS() error {
	if !c.usesNATS() {
		return nil
	}
	if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("NATS_URL is required when a NATS backend or transport is selected")
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required for the embedded server")
	}
	if c.Presence.Backend == BackendNATS && c.NATS.KVBucket == "" {
		return fmt.Errorf("NATS_KV_BUCKET is required for the nats presence backend")
	}
	return nil
}

func (c *Config) validateBroadcast() error {
	switch c.Broadcast.Transport {
	case TransportGoChannel, TransportNATS:
	default:
		return fmt.Errorf("BROADCAST_TRANSPORT must be one of: gochannel, nats")
	}
	if strings.TrimSpace(c.Broadcast.Topic) == "" {
		return fmt.Errorf("BROADCAST_TOPIC is required")
	}
	if c.Broadcast.BufferSize < 1 {
		return fmt.Errorf("BROADCAST_BUFFER_SIZE must be at least 1")
	}
	if c.Broadcast.MaxPublishPerSecond < 0 {
		return fmt.Errorf("BROADCAST_MAX_PUBLISH_PER_SECOND must not be negative")
	}
	return nil
}

func (c *Config) validateWarehouse() error {
	if !c.Warehouse.Enabled {
		return nil
	}
	if c.Warehouse.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required when the warehouse is enabled")
	}
	if c.Warehouse.BatchSize < 1 || c.Warehouse.BatchSize > 10000 {
		return fmt.Errorf("WAREHOUSE_BATCH_SIZE must be between 1 and 10000")
	}
	if c.Warehouse.ArchiveInterval <= 0 || c.Warehouse.RollupInterval <= 0 {
		return fmt.Errorf("warehouse intervals must be positive")
	}
	if c.Warehouse.WindowSeconds < 1 {
		return fmt.Errorf("ARCHIVE_WINDOW_SECS must be at least 1")
	}
	if c.Warehouse.Concurrency < 1 {
		return fmt.Errorf("WAREHOUSE_CONCURRENCY must be at least 1")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitRequests < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	if c.Security.JWTSecret != "" {
		if len(c.Security.JWTSecret) < minJWTSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
		}
		if containsPlaceholder(c.Security.JWTSecret) {
			return fmt.Errorf("JWT_SECRET appears to be a placeholder value")
		}
	}
	return nil
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns are values that indicate a secret was never set.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
