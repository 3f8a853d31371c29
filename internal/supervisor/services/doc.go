// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

/*
Package services provides suture.Service wrappers for Storepulse components.

Each wrapper translates a component's lifecycle into suture's
Serve(ctx) error contract and implements fmt.Stringer so supervisor events
name the service.

# Available Services

HTTP Server (HTTPServerService):
  - ListenAndServe in a goroutine, Shutdown with a fresh timeout context

Presence Hub (HubService):
  - Delegates to broadcast.Hub.RunWithContext

NATS Components (NATSComponentsService):
  - Start/Shutdown around messaging.Components

Periodic work (PeriodicService):
  - Presence sweeper, minutely archiver and daily rollup
  - Task errors are logged, the ticker keeps running

# Error Handling

	nil         -> service finished, no restart
	error       -> service crashed, supervisor restarts it
	ctx.Err()   -> shutdown requested
*/
package services
