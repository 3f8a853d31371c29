// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

/*
Package api provides the HTTP layer for Storepulse.

Routes:

	POST /api/tracking/presence/beat               heartbeat, activity or unload signal
	POST /api/tracking/presence/bye                unload via navigator.sendBeacon
	GET  /api/tracking/presence/count?shop=        current active visitors
	GET  /api/tracking/presence/stream?shop=       Server-Sent Events feed
	GET  /api/tracking/presence/ws?shop=           WebSocket feed
	GET  /api/tracking/presence/script.js?shop=    heartbeat emitter for the storefront
	GET  /api/tracking/presence/history/minutely   archived minutely rows (token when configured)
	GET  /api/tracking/presence/history/daily      archived daily rollups (token when configured)
	GET  /health, /health/live, /health/ready
	GET  /metrics

JSON responses share one envelope:

	{"success": true, "data": {...}}
	{"success": false, "error": "visitorId is required"}

Validation failures return 400 with the validation message. Every other
failure returns 500 with a generic message; details go to the log only.

Middleware order: request ID, real IP, panic recovery, CORS (global so
preflights are answered), Prometheus metrics, then per-group rate limits.
*/
package api
