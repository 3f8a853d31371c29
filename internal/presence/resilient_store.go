// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/ema"
	"github.com/tomtom215/storepulse/internal/logging"
	"github.com/tomtom215/storepulse/internal/metrics"
)

// Health describes the presence layer for /health.
type Health struct {
	Backend      string `json:"backend"`
	Degraded     bool   `json:"degraded"`
	Reason       string `json:"reason,omitempty"`
	BreakerState string `json:"breakerState,omitempty"`
}

// ResilientStore wraps a Backend so that its failures never reach callers.
// Failed or rejected calls return zero counts, nil state or no-ops, log a
// warning and mark the store degraded until the next success.
type ResilientStore struct {
	backend Backend
	cb      *gobreaker.CircuitBreaker[interface{}]
	name    string

	mu             sync.RWMutex
	staticDegraded bool
	staticReason   string
	lastErr        error

	// blindShops holds shops whose last EMA read was absorbed. A write for
	// such a shop would be computed from a reseeded state and clobber the
	// persisted averages, so it is skipped until a read succeeds again.
	blindShops map[string]struct{}
}

// NewResilientStore wraps backend. With breaker disabled, failures are still
// absorbed but calls are never short-circuited.
func NewResilientStore(backend Backend, cfg config.BreakerConfig) *ResilientStore {
	r := &ResilientStore{
		backend:    backend,
		name:       "presence-" + backend.Name(),
		blindShops: make(map[string]struct{}),
	}

	if cfg.Enabled {
		threshold := cfg.FailureThreshold
		if threshold == 0 {
			threshold = 5
		}

		metrics.CircuitBreakerState.WithLabelValues(r.name).Set(0) // 0 = closed
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(r.name).Set(0)

		r.cb = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
			Name:        r.name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				fromStr := stateToString(from)
				toStr := stateToString(to)

				logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).
					Msg("Presence circuit breaker state transition")

				metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
				metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
				if to == gobreaker.StateClosed {
					metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
				}
			},
		})
	}

	metrics.SetStoreDegraded(backend.Name(), false)
	return r
}

// MarkDegraded pins the degraded flag, e.g. when running on the in-process
// fallback. Successful calls do not clear it.
func (r *ResilientStore) MarkDegraded(reason string) {
	r.mu.Lock()
	r.staticDegraded = true
	r.staticReason = reason
	r.mu.Unlock()
	metrics.SetStoreDegraded(r.backend.Name(), true)
}

// Health reports the current degraded state.
func (r *ResilientStore) Health() Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h := Health{Backend: r.backend.Name()}
	if r.cb != nil {
		h.BreakerState = stateToString(r.cb.State())
	}
	switch {
	case r.staticDegraded:
		h.Degraded = true
		h.Reason = r.staticReason
	case r.lastErr != nil:
		h.Degraded = true
		h.Reason = r.lastErr.Error()
	}
	return h
}

// Backend returns the wrapped backend.
func (r *ResilientStore) Backend() Backend { return r.backend }

// execute runs fn through the breaker and records the outcome.
func (r *ResilientStore) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()

	var (
		result interface{}
		err    error
	)
	if r.cb != nil {
		result, err = r.cb.Execute(fn)
	} else {
		result, err = fn()
	}

	metrics.RecordStoreOperation(r.backend.Name(), op, time.Since(start), err)
	r.record(op, err)
	return result, err
}

func (r *ResilientStore) record(op string, err error) {
	if err == nil {
		r.mu.Lock()
		cleared := r.lastErr != nil
		r.lastErr = nil
		static := r.staticDegraded
		r.mu.Unlock()

		if r.cb != nil {
			metrics.CircuitBreakerRequests.WithLabelValues(r.name, "success").Inc()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(r.name).Set(0)
		}
		if cleared && !static {
			metrics.SetStoreDegraded(r.backend.Name(), false)
			logging.Info().Str("backend", r.backend.Name()).Msg("Presence backend recovered")
		}
		return
	}

	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	metrics.SetStoreDegraded(r.backend.Name(), true)

	if r.cb != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(r.name, "rejected").Inc()
			logging.Debug().Err(err).Str("operation", op).Msg("Presence call rejected by circuit breaker")
			return
		}
		metrics.CircuitBreakerRequests.WithLabelValues(r.name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(r.name).
			Set(float64(r.cb.Counts().ConsecutiveFailures))
	}
	logging.Warn().Err(err).Str("backend", r.backend.Name()).Str("operation", op).
		Msg("Presence backend unavailable, using safe default")
}

// AddOrRefresh implements Store.
func (r *ResilientStore) AddOrRefresh(ctx context.Context, shop, visitorID, sessionID string, now time.Time) error {
	_, _ = r.execute("add_or_refresh", func() (interface{}, error) {
		return nil, r.backend.AddOrRefresh(ctx, shop, visitorID, sessionID, now)
	})
	return nil
}

// Remove implements Store.
func (r *ResilientStore) Remove(ctx context.Context, shop, visitorID, sessionID string) error {
	_, _ = r.execute("remove", func() (interface{}, error) {
		return nil, r.backend.Remove(ctx, shop, visitorID, sessionID)
	})
	return nil
}

// CountActive implements Store.
func (r *ResilientStore) CountActive(ctx context.Context, shop string, now time.Time) (int, error) {
	res, err := r.execute("count_active", func() (interface{}, error) {
		return r.backend.CountActive(ctx, shop, now)
	})
	return intOrZero(res, err), nil
}

// CountSessions implements Backend.
func (r *ResilientStore) CountSessions(ctx context.Context, shop string, now time.Time) (int, error) {
	res, err := r.execute("count_sessions", func() (interface{}, error) {
		return r.backend.CountSessions(ctx, shop, now)
	})
	return intOrZero(res, err), nil
}

// SweepExpired implements Store.
func (r *ResilientStore) SweepExpired(ctx context.Context, shop string, now time.Time) (int, error) {
	res, err := r.execute("sweep_expired", func() (interface{}, error) {
		return r.backend.SweepExpired(ctx, shop, now)
	})
	return intOrZero(res, err), nil
}

// GetEMAState implements Store.
func (r *ResilientStore) GetEMAState(ctx context.Context, shop string) (*ema.State, error) {
	res, err := r.execute("get_ema_state", func() (interface{}, error) {
		return r.backend.GetEMAState(ctx, shop)
	})

	r.mu.Lock()
	if err != nil {
		r.blindShops[shop] = struct{}{}
	} else {
		delete(r.blindShops, shop)
	}
	r.mu.Unlock()

	if err != nil {
		return nil, nil
	}
	st, _ := res.(*ema.State)
	return st, nil
}

// SetEMAState implements Store.
func (r *ResilientStore) SetEMAState(ctx context.Context, state ema.State) error {
	r.mu.RLock()
	_, blind := r.blindShops[state.Shop]
	r.mu.RUnlock()
	if blind {
		logging.Debug().Str("shop", state.Shop).Msg("Skipping EMA write after an unreadable load")
		return nil
	}

	_, _ = r.execute("set_ema_state", func() (interface{}, error) {
		return nil, r.backend.SetEMAState(ctx, state)
	})
	return nil
}

// Shops implements Backend.
func (r *ResilientStore) Shops(ctx context.Context) ([]string, error) {
	res, err := r.execute("shops", func() (interface{}, error) {
		return r.backend.Shops(ctx)
	})
	if err != nil {
		return []string{}, nil
	}
	shops, _ := res.([]string)
	return shops, nil
}

// Name implements Backend.
func (r *ResilientStore) Name() string { return r.backend.Name() }

// Close implements Backend.
func (r *ResilientStore) Close() error { return r.backend.Close() }

func intOrZero(res interface{}, err error) int {
	if err != nil {
		return 0
	}
	n, _ := res.(int)
	return n
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
