// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

// Package logging provides the zerolog-based structured logger shared by every
// Storepulse component.
//
// The package keeps one process-wide logger behind a read/write mutex so that
// main can reconfigure it after the configuration is loaded, while handlers,
// stores and supervised services keep calling the package-level helpers.
//
// # Quick Start
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("shop", shop).Int("active_users", n).Msg("Presence updated")
//	logging.Warn().Err(err).Str("backend", "nats").Msg("Presence backend unavailable")
//
// # Request Context
//
// The API assigns every request a request ID and a short correlation ID.
// logging.Ctx attaches both to a child logger:
//
//	logging.Ctx(r.Context()).Info().Str("shop", shop).Msg("Stream opened")
//
// Shop-scoped work uses WithShop, or tags the context once with
// ContextWithShop, so that every line carries the store domain. Fields set
// on a child context never leak into its parent.
//
// # slog Adapter
//
// Suture (via sutureslog) and Watermill expect a *slog.Logger. NewSlogLogger
// returns one that writes through the zerolog backend:
//
//	tree, _ := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg)
//	wmLogger := watermill.NewSlogLogger(logging.NewSlogLogger())
//
// # Output Formats
//
// JSON (production):
//
//	{"level":"info","app":"storepulse","instance":"pulse-1","time":"2026-01-03T10:30:00Z","message":"Heartbeat processed","shop":"demo.myshopify.com"}
//
// Console (development):
//
//	10:30:00 INF Heartbeat processed shop=demo.myshopify.com
//
// # Testing
//
//	var buf bytes.Buffer
//	logger := logging.NewTestLogger(&buf)
//	logger.Info().Msg("captured")
package logging
