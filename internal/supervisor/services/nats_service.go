// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNATSConnectionLost is returned from Serve when the connection closes
// underneath a running tree. The NATS KV presence store and the watermill
// transport both depend on it, so the failure is surfaced to suture.
var ErrNATSConnectionLost = errors.New("nats connection lost")

// NATSComponentsRunner is satisfied by *messaging.Components.
type NATSComponentsRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
	IsRunning() bool
}

// NATSOption configures a NATSComponentsService.
type NATSOption func(*NATSComponentsService)

// WithShutdownTimeout bounds the drain on shutdown. Default 10s.
func WithShutdownTimeout(d time.Duration) NATSOption {
	return func(s *NATSComponentsService) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithHealthInterval sets how often the connection is checked. Default 5s.
func WithHealthInterval(d time.Duration) NATSOption {
	return func(s *NATSComponentsService) {
		if d > 0 {
			s.healthInterval = d
		}
	}
}

// NATSComponentsService owns the NATS connection and the embedded server
// for the lifetime of the tree. The connection is opened during wiring,
// before the tree starts; Serve watches it and drains it on shutdown.
type NATSComponentsService struct {
	components      NATSComponentsRunner
	shutdownTimeout time.Duration
	healthInterval  time.Duration
}

func NewNATSComponentsService(components NATSComponentsRunner, opts ...NATSOption) *NATSComponentsService {
	s := &NATSComponentsService{
		components:      components,
		shutdownTimeout: 10 * time.Second,
		healthInterval:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve implements suture.Service.
func (s *NATSComponentsService) Serve(ctx context.Context) error {
	if err := s.components.Start(ctx); err != nil {
		return fmt.Errorf("NATS components start failed: %w", err)
	}

	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			s.components.Shutdown(shutdownCtx)
			return ctx.Err()
		case <-ticker.C:
			if !s.components.IsRunning() {
				return ErrNATSConnectionLost
			}
		}
	}
}

func (s *NATSComponentsService) String() string { return "nats-components" }
