// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

// Package main is the entry point for the Storepulse server.
//
// Storepulse counts the visitors currently browsing a Shopify storefront.
// Each open tab posts a heartbeat every ten seconds; a visitor counts as
// active while their last heartbeat is younger than the presence TTL. The
// raw count is smoothed with two exponential moving averages whose ratio
// gives a trend, and every change is fanned out to dashboards over
// Server-Sent Events or WebSocket.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional YAML file, environment (Koanf v2)
//  2. NATS (optional): embedded or external, when the presence backend or
//     the broadcast transport is "nats"
//  3. Presence store: memory, badger or nats KV behind a circuit breaker
//  4. Broadcast: watermill pub/sub, snapshot publisher, relay and hub
//  5. Warehouse (optional): DuckDB minutely archive and daily rollups
//  6. HTTP server: chi router with CORS, rate limiting and metrics
//
// Long-running parts run under a suture supervisor tree:
//
//	storepulse
//	├── data-layer:      presence-sweeper, warehouse-archiver, warehouse-rollup
//	├── messaging-layer: presence-hub, presence-relay, nats-components
//	└── api-layer:       http-server
//
// # Configuration
//
// Common environment variables:
//
//	HTTP_PORT=8080
//	PRESENCE_BACKEND=badger|nats|memory
//	BROADCAST_TRANSPORT=gochannel|nats
//	NATS_EMBEDDED=true
//	WAREHOUSE_ENABLED=true DUCKDB_PATH=/data/storepulse.duckdb
//	JWT_SECRET=...   # protects the history endpoints
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
// server gracefully, then the streams and background jobs; stores and the
// warehouse are closed last.
package main
