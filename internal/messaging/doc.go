// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

// Package messaging owns the NATS connection shared by the JetStream
// KeyValue presence backend and the nats broadcast transport.
//
// For single-node deployments an embedded JetStream server can be started
// in process, so the durable presence store needs no external broker:
//
//	components, err := messaging.Open(cfg.NATS)
//	if err != nil {
//	    return err
//	}
//	store, err := presence.OpenBackend(ctx, cfg, components.JetStream())
//
// The returned Components are handed to the supervisor tree, which drains
// the connection and stops the embedded server on shutdown.
package messaging
