// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

//go:build integration

package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/messaging"
)

func newKVStore(t *testing.T) *KVStore {
	t.Helper()

	components, err := messaging.Open(config.NATSConfig{
		EmbeddedServer: true,
		Host:           "127.0.0.1",
		Port:           -1,
		StoreDir:       t.TempDir(),
		MaxReconnects:  -1,
		ReconnectWait:  time.Second,
	})
	if err != nil {
		t.Fatalf("messaging.Open() error = %v", err)
	}
	t.Cleanup(func() { components.Shutdown(context.Background()) })

	store, err := OpenKVStore(context.Background(), components.JetStream(), "presence_test", DefaultOptions())
	if err != nil {
		t.Fatalf("OpenKVStore() error = %v", err)
	}
	return store
}

func TestKVStore_Contract(t *testing.T) {
	store := newKVStore(t)
	ctx := context.Background()

	if err := store.AddOrRefresh(ctx, testShop, "v1", "s1", testEpoch); err != nil {
		t.Fatalf("AddOrRefresh() error = %v", err)
	}
	if err := store.AddOrRefresh(ctx, testShop, "v1", "s2", testEpoch); err != nil {
		t.Fatalf("AddOrRefresh() error = %v", err)
	}

	if got := mustCount(t, store, testShop, testEpoch.Add(DefaultTTL)); got != 1 {
		t.Errorf("CountActive() at expiry = %d, want 1", got)
	}
	if got := mustCount(t, store, testShop, testEpoch.Add(DefaultTTL+time.Millisecond)); got != 0 {
		t.Errorf("CountActive() after expiry = %d, want 0", got)
	}
	sessions, err := store.CountSessions(ctx, testShop, testEpoch)
	if err != nil || sessions != 2 {
		t.Errorf("CountSessions() = %d, %v, want 2", sessions, err)
	}

	if err := store.Remove(ctx, testShop, "v1", "s1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := store.Remove(ctx, testShop, "ghost", "ghost"); err != nil {
		t.Errorf("Remove() of absent entry error = %v", err)
	}

	removed, err := store.SweepExpired(ctx, testShop, testEpoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if removed != 1 { // session s2
		t.Errorf("SweepExpired() = %d, want 1", removed)
	}

	shops, err := store.Shops(ctx)
	if err != nil {
		t.Fatalf("Shops() error = %v", err)
	}
	if len(shops) != 0 {
		t.Errorf("Shops() = %v, want none after sweep", shops)
	}
}

func TestKVStore_ConcurrentWritersDoNotLoseMembers(t *testing.T) {
	store := newKVStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			if err := store.AddOrRefresh(ctx, testShop, id, id, testEpoch); err != nil {
				t.Errorf("AddOrRefresh(%s) error = %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	if got := mustCount(t, store, testShop, testEpoch); got != 8 {
		t.Errorf("CountActive() = %d, want 8", got)
	}
}
