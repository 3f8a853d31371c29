// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/rs/zerolog"

	"github.com/tomtom215/storepulse/internal/logging"
)

const (
	readyTimeout = 30 * time.Second

	// Presence records are tiny and expire within seconds, so the KV bucket
	// never needs much room. These caps keep a runaway stream from filling
	// the volume shared with the warehouse.
	defaultMaxMemory = 64 << 20
	defaultMaxStore  = 256 << 20
)

// ServerConfig holds embedded server settings.
type ServerConfig struct {
	Host     string
	Port     int // -1 picks a random port
	StoreDir string

	MaxMemory int64 // JetStream memory cap in bytes, default 64 MiB
	MaxStore  int64 // JetStream file cap in bytes, default 256 MiB
}

func (c ServerConfig) options() *server.Options {
	if c.MaxMemory <= 0 {
		c.MaxMemory = defaultMaxMemory
	}
	if c.MaxStore <= 0 {
		c.MaxStore = defaultMaxStore
	}
	return &server.Options{
		ServerName:         "storepulse",
		Host:               c.Host,
		Port:               c.Port,
		JetStream:          true,
		JetStreamMaxMemory: c.MaxMemory,
		JetStreamMaxStore:  c.MaxStore,
		StoreDir:           c.StoreDir,
		NoSigs:             true,
		MaxPayload:         1 << 20,
	}
}

// EmbeddedServer is an in-process NATS server with JetStream enabled, used
// when no external cluster is configured.
type EmbeddedServer struct {
	server *server.Server
}

// NewEmbeddedServer starts the server and waits until it accepts clients.
func NewEmbeddedServer(cfg ServerConfig) (*EmbeddedServer, error) {
	ns, err := server.NewServer(cfg.options())
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	ns.SetLoggerV2(serverLogger{logging.WithComponent("nats-server")}, false, false, false)

	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within %s", readyTimeout)
	}
	return &EmbeddedServer{server: ns}, nil
}

func (s *EmbeddedServer) ClientURL() string { return s.server.ClientURL() }

// Shutdown stops the server. It waits for shutdown to finish unless ctx is
// already done.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.server.WaitForShutdown()
	return nil
}

func (s *EmbeddedServer) IsRunning() bool { return s.server.Running() }

func (s *EmbeddedServer) JetStreamEnabled() bool { return s.server.JetStreamEnabled() }

// serverLogger adapts nats-server's printf logger onto zerolog.
type serverLogger struct {
	log zerolog.Logger
}

func (l serverLogger) Noticef(format string, v ...interface{}) { l.log.Info().Msgf(format, v...) }
func (l serverLogger) Warnf(format string, v ...interface{})   { l.log.Warn().Msgf(format, v...) }
func (l serverLogger) Errorf(format string, v ...interface{})  { l.log.Error().Msgf(format, v...) }
func (l serverLogger) Debugf(format string, v ...interface{})  { l.log.Debug().Msgf(format, v...) }
func (l serverLogger) Tracef(format string, v ...interface{})  { l.log.Trace().Msgf(format, v...) }

// Fatalf logs at error level. The server stops itself after a fatal
// condition, and exiting the process here would skip the supervisor's
// shutdown.
func (l serverLogger) Fatalf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
