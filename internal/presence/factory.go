// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package presence

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/logging"
)

// ErrNoJetStream is returned when the nats backend is selected without a
// JetStream context.
var ErrNoJetStream = errors.New("nats presence backend requires a JetStream connection")

// OpenBackend builds the configured backend and wraps it in a ResilientStore.
// js is only used by the nats backend and may be nil otherwise.
//
// When the durable backend cannot be opened and FallbackToMemory is set, an
// in-process store is returned instead and reported as degraded.
func OpenBackend(ctx context.Context, cfg *config.Config, js jetstream.JetStream) (*ResilientStore, error) {
	opts := Options{TTL: cfg.Presence.TTL, MaxAge: cfg.Presence.MaxAge}

	backend, err := openDurable(ctx, cfg, js, opts)
	if err != nil {
		if !cfg.Presence.FallbackToMemory {
			return nil, err
		}
		logging.Warn().Err(err).Str("backend", cfg.Presence.Backend).
			Msg("Durable presence backend unavailable, falling back to in-process store")

		store := NewResilientStore(NewMemoryStore(opts), cfg.Breaker)
		store.MarkDegraded("durable backend unavailable: " + err.Error())
		return store, nil
	}

	store := NewResilientStore(backend, cfg.Breaker)
	if backend.Name() == config.BackendMemory {
		store.MarkDegraded("in-process presence store")
	}

	logging.Info().Str("backend", backend.Name()).Msg("Presence store ready")
	return store, nil
}

func openDurable(ctx context.Context, cfg *config.Config, js jetstream.JetStream, opts Options) (Backend, error) {
	switch cfg.Presence.Backend {
	case config.BackendMemory:
		return NewMemoryStore(opts), nil
	case config.BackendBadger, "":
		store, err := OpenBadgerStore(cfg.Presence.BadgerPath, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendNATS:
		if js == nil {
			return nil, ErrNoJetStream
		}
		store, err := OpenKVStore(ctx, js, cfg.NATS.KVBucket, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown presence backend %q", cfg.Presence.Backend)
	}
}
