// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

/*
Package supervisor provides process supervision for Storepulse using suture v4.

Every long-running goroutine in the server is a suture.Service placed in one
of three layers:

	RootSupervisor ("storepulse")
	├── DataSupervisor ("data-layer")
	│   ├── presence-sweeper   (PeriodicService, presence.sweep_interval)
	│   ├── presence-archiver  (PeriodicService, warehouse.archive_interval)
	│   └── presence-rollup    (PeriodicService, warehouse.rollup_interval)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── presence-hub
	│   ├── presence-relay
	│   └── nats-components    (if the NATS backend or transport is configured)
	└── APISupervisor ("api-layer")
	    └── http-server

Each layer counts failures on its own, so a warehouse outage that crashes
the archiver repeatedly backs off only the data layer.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	<-errCh

# Return values

  - nil: the service finished and is not restarted
  - error: the service crashed and is restarted with backoff
  - ctx.Err(): shutdown was requested

# Not supervised

DuckDB and Badger are embedded libraries owned by main. They are opened
before the tree starts and closed after it stops.
*/
package supervisor
