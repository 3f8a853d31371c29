// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/storepulse/internal/api"
	"github.com/tomtom215/storepulse/internal/archive"
	"github.com/tomtom215/storepulse/internal/auth"
	"github.com/tomtom215/storepulse/internal/broadcast"
	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/ema"
	"github.com/tomtom215/storepulse/internal/logging"
	"github.com/tomtom215/storepulse/internal/messaging"
	"github.com/tomtom215/storepulse/internal/presence"
	"github.com/tomtom215/storepulse/internal/supervisor"
	"github.com/tomtom215/storepulse/internal/supervisor/services"
	"github.com/tomtom215/storepulse/internal/warehouse"
)

// app holds every long-lived component of the server.
type app struct {
	cfg *config.Config

	nats        *messaging.Components // nil unless a NATS backend or transport is selected
	store       *presence.ResilientStore
	pubsub      *broadcast.PubSub
	publisher   *broadcast.Publisher
	coordinator *presence.Coordinator
	hub         *broadcast.Hub
	relay       *broadcast.Relay
	warehouse   *warehouse.Warehouse // nil when disabled
	archiver    *archive.Archiver    // nil when disabled

	handler http.Handler
}

// newApp builds the component graph. On error everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	var err error
	var js jetstream.JetStream
	if cfg.UsesNATS() {
		if a.nats, err = messaging.Open(cfg.NATS); err != nil {
			return nil, fmt.Errorf("open nats: %w", err)
		}
		js = a.nats.JetStream()
	}

	if a.store, err = presence.OpenBackend(ctx, cfg, js); err != nil {
		return nil, fmt.Errorf("open presence store: %w", err)
	}

	natsURL := ""
	if a.nats != nil {
		natsURL = a.nats.URL()
	}
	if a.pubsub, err = broadcast.NewPubSub(cfg.Broadcast, natsURL, broadcast.NewWatermillLogger()); err != nil {
		return nil, fmt.Errorf("open broadcast transport: %w", err)
	}
	a.publisher = broadcast.NewPublisher(a.pubsub.Publisher, broadcast.PublisherConfig{
		Topic:        cfg.Broadcast.Topic,
		Transport:    a.pubsub.Transport,
		MaxPerSecond: cfg.Broadcast.MaxPublishPerSecond,
	})

	a.coordinator = presence.NewCoordinator(a.store, a.publisher, presence.CoordinatorConfig{
		Counter: ema.Counter{
			FastTau:   cfg.Presence.FastTau,
			SlowTau:   cfg.Presence.SlowTau,
			Threshold: cfg.Presence.TrendThreshold,
		},
		SerializeEMA: cfg.Presence.SerializeEMA,
	})
	a.hub = broadcast.NewHub()
	a.relay = broadcast.NewRelay(a.pubsub.Subscriber, a.publisher.Topic(), a.hub)

	handler := api.NewHandler(cfg, a.coordinator, a.store, a.hub)
	if cfg.Warehouse.Enabled {
		a.warehouse, err = warehouse.Open(warehouse.Config{
			Path:      cfg.Warehouse.Path,
			BatchSize: cfg.Warehouse.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("open warehouse: %w", err)
		}
		a.archiver = archive.New(a.coordinator, a.warehouse, archive.Config{
			WindowSeconds: cfg.Warehouse.WindowSeconds,
			Concurrency:   cfg.Warehouse.Concurrency,
		})
		handler.WithHistory(a.warehouse)
		logging.Info().Str("path", cfg.Warehouse.Path).Msg("Warehouse initialized")
	}

	var jwt *auth.JWTManager
	if cfg.Security.JWTSecret != "" {
		if jwt, err = auth.NewJWTManager(&cfg.Security); err != nil {
			return nil, fmt.Errorf("init dashboard tokens: %w", err)
		}
	} else {
		logging.Warn().Msg("JWT_SECRET not set, history endpoints are unauthenticated")
	}

	a.handler = api.NewRouter(handler, api.NewChiMiddlewareFromConfig(cfg.Security), jwt).SetupChi()
	built = true
	return a, nil
}

// sweep removes expired presence entries of every known shop.
func (a *app) sweep(ctx context.Context) error {
	removed, err := a.coordinator.SweepAll(ctx)
	if removed > 0 {
		logging.Debug().Int("removed", removed).Msg("Presence sweep completed")
	}
	return err
}

func (a *app) capture(ctx context.Context) error {
	_, err := a.archiver.CaptureMinute(ctx)
	return err
}

// register adds the background services and, when server is non-nil, the
// HTTP server to tree.
func (a *app) register(tree *supervisor.SupervisorTree, server *http.Server) {
	tree.AddDataService(services.NewPeriodicService("presence-sweeper", a.cfg.Presence.SweepInterval, a.sweep))
	if a.archiver != nil {
		tree.AddDataService(services.NewPeriodicService("warehouse-archiver", a.cfg.Warehouse.ArchiveInterval, a.capture))
		tree.AddDataService(services.NewPeriodicService("warehouse-rollup", a.cfg.Warehouse.RollupInterval, a.archiver.Rollup).RunOnStart())
	}

	tree.AddMessagingService(services.NewHubService(a.hub))
	tree.AddMessagingService(a.relay)
	if a.nats != nil {
		tree.AddMessagingService(services.NewNATSComponentsService(a.nats,
			services.WithShutdownTimeout(a.cfg.Server.ShutdownTimeout)))
		logging.Info().Msg("NATS components added to supervisor tree (messaging layer)")
	}

	if server != nil {
		// Streams hang off this context so shutdown can end them.
		streams, endStreams := context.WithCancel(context.Background())
		server.BaseContext = func(net.Listener) context.Context { return streams }
		tree.AddAPIService(services.NewHTTPServerService(server, a.cfg.Server.ShutdownTimeout).OnDrain(endStreams))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")
	}
}

// newHTTPServer wraps handler with the configured timeouts.
func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Close releases stores and connections. It is safe on a partially built app.
func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing snapshot publisher")
		}
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing broadcast transport")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing presence store")
		}
	}
	if a.warehouse != nil {
		if err := a.warehouse.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing warehouse")
		}
	}
	if a.nats != nil && a.nats.IsRunning() {
		a.nats.Shutdown(context.Background())
	}
}
