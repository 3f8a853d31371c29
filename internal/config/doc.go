// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

/*
Package config provides centralized configuration management for Storepulse.

Configuration is loaded with Koanf v2 from three layers, lowest priority first:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file (CONFIG_PATH, ./config.yaml, /etc/storepulse/config.yaml)
 3. Environment variables, mapped explicitly to koanf paths

# Configuration Structure

  - ServerConfig: HTTP listener, timeouts, public URL used by the emitter script
  - LoggingConfig: zerolog level and format
  - PresenceConfig: backend selection, TTL, max age, sweep and stream cadence, EMA tuning
  - BreakerConfig: circuit breaker around the durable presence backend
  - NATSConfig: NATS connection, embedded server and KV bucket
  - BroadcastConfig: pub/sub transport, topic and publish throttling
  - WarehouseConfig: DuckDB archive of minutely and daily readings
  - SecurityConfig: CORS, rate limiting, JWT for history endpoints

# Environment Variables

Presence:
  - PRESENCE_BACKEND: memory, badger or nats (default: badger)
  - PRESENCE_TTL: visitor TTL (default: 30s)
  - PRESENCE_MAX_AGE: sweep horizon (default: 5m)
  - PRESENCE_SWEEP_INTERVAL: cleanup cadence (default: 60s)
  - PRESENCE_STREAM_TICK: SSE re-read cadence (default: 5s)
  - PRESENCE_SERIALIZE_EMA: per-store EMA lock (default: true)
  - PRESENCE_FALLBACK_TO_MEMORY: fall back when the durable store cannot open (default: true)

Server:
  - HTTP_HOST, HTTP_PORT, HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT, PUBLIC_URL

Warehouse:
  - WAREHOUSE_ENABLED, DUCKDB_PATH, ARCHIVE_INTERVAL, ROLLUP_INTERVAL

See envTransformFunc for the full mapping. Unmapped variables are ignored.

# Usage

	cfg, err := config.Load()
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
*/
package config
