// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package presence

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/ema"
)

var errBackendDown = errors.New("backend down")

// flakyBackend fails every call while down is set.
type flakyBackend struct {
	*MemoryStore
	down  atomic.Bool
	calls atomic.Int64
	name  string
}

func newFlakyBackend(name string) *flakyBackend {
	return &flakyBackend{MemoryStore: NewMemoryStore(DefaultOptions()), name: name}
}

func (f *flakyBackend) Name() string { return f.name }

func (f *flakyBackend) check() error {
	f.calls.Add(1)
	if f.down.Load() {
		return errBackendDown
	}
	return nil
}

func (f *flakyBackend) AddOrRefresh(ctx context.Context, shop, v, s string, now time.Time) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.MemoryStore.AddOrRefresh(ctx, shop, v, s, now)
}

func (f *flakyBackend) CountActive(ctx context.Context, shop string, now time.Time) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return f.MemoryStore.CountActive(ctx, shop, now)
}

func (f *flakyBackend) GetEMAState(ctx context.Context, shop string) (*ema.State, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.MemoryStore.GetEMAState(ctx, shop)
}

func (f *flakyBackend) Shops(ctx context.Context) ([]string, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.MemoryStore.Shops(ctx)
}

func TestResilientStore_SafeDefaults(t *testing.T) {
	t.Parallel()

	backend := newFlakyBackend("flaky-defaults")
	store := NewResilientStore(backend, config.BreakerConfig{Enabled: false})
	ctx := context.Background()

	_ = backend.MemoryStore.AddOrRefresh(ctx, testShop, "v1", "s1", testEpoch)
	_ = backend.MemoryStore.SetEMAState(ctx, ema.State{Shop: testShop, LastTimestamp: 1})
	backend.down.Store(true)

	if err := store.AddOrRefresh(ctx, testShop, "v2", "s2", testEpoch); err != nil {
		t.Errorf("AddOrRefresh() error = %v, want nil", err)
	}
	n, err := store.CountActive(ctx, testShop, testEpoch)
	if err != nil || n != 0 {
		t.Errorf("CountActive() = %d, %v, want 0, nil", n, err)
	}
	st, err := store.GetEMAState(ctx, testShop)
	if err != nil || st != nil {
		t.Errorf("GetEMAState() = %+v, %v, want nil, nil", st, err)
	}
	shops, err := store.Shops(ctx)
	if err != nil || len(shops) != 0 {
		t.Errorf("Shops() = %v, %v, want empty", shops, err)
	}

	h := store.Health()
	if !h.Degraded || !strings.Contains(h.Reason, "backend down") {
		t.Errorf("Health() = %+v, want degraded with reason", h)
	}

	backend.down.Store(false)
	if n, _ := store.CountActive(ctx, testShop, testEpoch); n != 1 {
		t.Errorf("CountActive() after recovery = %d, want 1", n)
	}
	if h := store.Health(); h.Degraded {
		t.Errorf("Health() after recovery = %+v, want healthy", h)
	}
}

func TestResilientStore_FailedLoadKeepsPersistedEMA(t *testing.T) {
	t.Parallel()

	backend := newFlakyBackend("flaky-ema")
	store := NewResilientStore(backend, config.BreakerConfig{Enabled: false})
	ctx := context.Background()

	persisted := ema.State{Shop: testShop, LastTimestamp: 1_000, EMAFast: 50, EMASlow: 40, LastRawCount: 50}
	_ = backend.MemoryStore.SetEMAState(ctx, persisted)

	backend.down.Store(true)
	if st, _ := store.GetEMAState(ctx, testShop); st != nil {
		t.Fatalf("GetEMAState() while down = %+v, want nil", st)
	}
	backend.down.Store(false)

	// A write computed from the nil load would reseed the averages.
	_ = store.SetEMAState(ctx, ema.State{Shop: testShop, LastTimestamp: 2_000, EMAFast: 1, EMASlow: 1, LastRawCount: 1})
	got, _ := backend.MemoryStore.GetEMAState(ctx, testShop)
	if got == nil || *got != persisted {
		t.Fatalf("persisted state = %+v, want %+v", got, persisted)
	}

	// Other shops are unaffected.
	other := ema.State{Shop: "other.myshopify.com", LastTimestamp: 5, EMAFast: 2, EMASlow: 2}
	_ = store.SetEMAState(ctx, other)
	if st, _ := backend.MemoryStore.GetEMAState(ctx, other.Shop); st == nil || *st != other {
		t.Errorf("other shop state = %+v, want %+v", st, other)
	}

	// A successful load makes the shop writable again.
	if st, _ := store.GetEMAState(ctx, testShop); st == nil {
		t.Fatal("GetEMAState() after recovery = nil")
	}
	next := ema.State{Shop: testShop, LastTimestamp: 3_000, EMAFast: 55, EMASlow: 42, LastRawCount: 60}
	_ = store.SetEMAState(ctx, next)
	if st, _ := backend.MemoryStore.GetEMAState(ctx, testShop); st == nil || *st != next {
		t.Errorf("state after recovery = %+v, want %+v", st, next)
	}
}

func TestResilientStore_BreakerOpens(t *testing.T) {
	t.Parallel()

	backend := newFlakyBackend("flaky-breaker")
	store := NewResilientStore(backend, config.BreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 3,
	})
	ctx := context.Background()
	backend.down.Store(true)

	for i := 0; i < 10; i++ {
		_, _ = store.CountActive(ctx, testShop, testEpoch)
	}

	if got := backend.calls.Load(); got != 3 {
		t.Errorf("backend calls = %d, want 3 before the breaker opened", got)
	}
	h := store.Health()
	if h.BreakerState != "open" || !h.Degraded {
		t.Errorf("Health() = %+v, want degraded with open breaker", h)
	}
}

func TestResilientStore_MarkDegradedSticks(t *testing.T) {
	t.Parallel()

	store := NewResilientStore(NewMemoryStore(DefaultOptions()), config.BreakerConfig{})
	store.MarkDegraded("in-process presence store")

	_, _ = store.CountActive(context.Background(), testShop, testEpoch)

	h := store.Health()
	if !h.Degraded || h.Reason != "in-process presence store" || h.Backend != config.BackendMemory {
		t.Errorf("Health() = %+v", h)
	}
}

func TestBreakerStateMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state     gobreaker.State
		wantFloat float64
		wantName  string
	}{
		{gobreaker.StateClosed, 0, "closed"},
		{gobreaker.StateHalfOpen, 1, "half-open"},
		{gobreaker.StateOpen, 2, "open"},
		{gobreaker.State(99), -1, "unknown"},
	}
	for _, tt := range tests {
		if got := stateToFloat(tt.state); got != tt.wantFloat {
			t.Errorf("stateToFloat(%v) = %v, want %v", tt.state, got, tt.wantFloat)
		}
		if got := stateToString(tt.state); got != tt.wantName {
			t.Errorf("stateToString(%v) = %q, want %q", tt.state, got, tt.wantName)
		}
	}
}

func TestOpenBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		backend      string
		fallback     bool
		wantErr      bool
		wantBackend  string
		wantDegraded bool
	}{
		{"memory", config.BackendMemory, false, false, config.BackendMemory, true},
		{"badger in memory", config.BackendBadger, false, false, config.BackendBadger, false},
		{"nats without jetstream", config.BackendNATS, false, true, "", false},
		{"nats falls back", config.BackendNATS, true, false, config.BackendMemory, true},
		{"unknown backend", "redis", false, true, "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.Config{}
			cfg.Presence.Backend = tt.backend
			cfg.Presence.FallbackToMemory = tt.fallback
			cfg.NATS.KVBucket = "presence"

			store, err := OpenBackend(context.Background(), cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("OpenBackend() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenBackend() error = %v", err)
			}
			t.Cleanup(func() { _ = store.Close() })

			h := store.Health()
			if h.Backend != tt.wantBackend || h.Degraded != tt.wantDegraded {
				t.Errorf("Health() = %+v, want backend %s degraded %v", h, tt.wantBackend, tt.wantDegraded)
			}
		})
	}
}
