// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

/*
Package middleware provides HTTP middleware shared by the API router.

  - RequestID: accepts or assigns X-Request-ID and seeds the logging context
  - PrometheusMetrics: per-route request counters, latency and in-flight gauge

Both are chi-compatible (func(http.Handler) http.Handler):

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

The metrics wrapper forwards http.Flusher and http.Hijacker to the underlying
writer, so SSE streams flush through it and WebSocket upgrades still work.
Endpoints are labeled with the chi route pattern when one is available,
keeping label cardinality independent of query strings and path values.
*/
package middleware
