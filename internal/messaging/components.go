// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/logging"
)

// ErrConnectionClosed is returned by Start once the connection is gone for good.
var ErrConnectionClosed = errors.New("nats connection closed")

// Components bundles the optional embedded server with the client
// connection and its JetStream context.
type Components struct {
	server *EmbeddedServer
	nc     *natsgo.Conn
	js     jetstream.JetStream
	url    string

	mu      sync.Mutex
	running bool
}

// Open starts the embedded server when configured and connects to it, or to
// cfg.URL otherwise.
func Open(cfg config.NATSConfig) (*Components, error) {
	c := &Components{url: cfg.URL}

	if cfg.EmbeddedServer {
		srv, err := NewEmbeddedServer(ServerConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			StoreDir: cfg.StoreDir,
		})
		if err != nil {
			return nil, err
		}
		c.server = srv
		c.url = srv.ClientURL()
		logging.Info().Str("url", c.url).Msg("Embedded NATS server started")
	} else {
		logging.Info().Str("url", c.url).Msg("Using external NATS server")
	}

	nc, err := Connect(c.url, cfg.MaxReconnects, cfg.ReconnectWait)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}
	c.nc = nc

	js, err := jetstream.New(nc)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	c.js = js
	c.running = true

	logging.Info().Msg("NATS connection established")
	return c, nil
}

// Connect dials url with reconnect handling and connection state logging.
func Connect(url string, maxReconnects int, reconnectWait time.Duration) (*natsgo.Conn, error) {
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	nc, err := natsgo.Connect(url,
		natsgo.Name("storepulse"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.ReconnectWait(reconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// URL returns the address clients should use, e.g. the watermill transport.
func (c *Components) URL() string { return c.url }

// Conn returns the client connection.
func (c *Components) Conn() *natsgo.Conn { return c.nc }

// JetStream returns the JetStream context.
func (c *Components) JetStream() jetstream.JetStream { return c.js }

// Start verifies the connection is usable. It lets the supervisor surface a
// permanently closed connection as a service failure.
func (c *Components) Start(_ context.Context) error {
	if c.nc == nil || c.nc.IsClosed() {
		return ErrConnectionClosed
	}
	return nil
}

// IsRunning reports whether the components are up and not shut down.
func (c *Components) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.nc != nil && !c.nc.IsClosed()
}

// Shutdown drains the connection and stops the embedded server. It is safe
// to call more than once.
func (c *Components) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false

	if c.nc != nil && !c.nc.IsClosed() {
		if err := c.nc.Drain(); err != nil {
			logging.Warn().Err(err).Msg("NATS drain failed")
			c.nc.Close()
		}
	}
	if c.server != nil && c.server.IsRunning() {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Embedded NATS shutdown incomplete")
		}
	}
}
