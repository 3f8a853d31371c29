// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/ema"
)

// shopEntries holds one store's namespaces. Values are expiries in unix ms.
type shopEntries struct {
	visitors map[string]int64
	sessions map[string]int64
}

func (e *shopEntries) empty() bool {
	return len(e.visitors) == 0 && len(e.sessions) == 0
}

// MemoryStore keeps presence in process. State is lost on restart and is
// not shared between instances, so the service reports it as degraded.
type MemoryStore struct {
	opts Options

	mu     sync.RWMutex
	shops  map[string]*shopEntries
	states map[string]ema.State
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:   opts.withDefaults(),
		shops:  make(map[string]*shopEntries),
		states: make(map[string]ema.State),
	}
}

// Name implements Backend.
func (m *MemoryStore) Name() string { return config.BackendMemory }

// AddOrRefresh implements Store.
func (m *MemoryStore) AddOrRefresh(_ context.Context, shop, visitorID, sessionID string, now time.Time) error {
	expiry := m.opts.expiryFor(now)

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.shops[shop]
	if !ok {
		entries = &shopEntries{
			visitors: make(map[string]int64),
			sessions: make(map[string]int64),
		}
		m.shops[shop] = entries
	}
	entries.visitors[visitorID] = expiry
	entries.sessions[sessionID] = expiry
	return nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(_ context.Context, shop, visitorID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.shops[shop]
	if !ok {
		return nil
	}
	delete(entries.visitors, visitorID)
	delete(entries.sessions, sessionID)
	if entries.empty() {
		delete(m.shops, shop)
	}
	return nil
}

// CountActive implements Store.
func (m *MemoryStore) CountActive(_ context.Context, shop string, now time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.shops[shop]
	if !ok {
		return 0, nil
	}
	return countLive(entries.visitors, now.UnixMilli()), nil
}

// CountSessions implements Backend.
func (m *MemoryStore) CountSessions(_ context.Context, shop string, now time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.shops[shop]
	if !ok {
		return 0, nil
	}
	return countLive(entries.sessions, now.UnixMilli()), nil
}

func countLive(members map[string]int64, nowMs int64) int {
	n := 0
	for _, expiry := range members {
		if expiry >= nowMs {
			n++
		}
	}
	return n
}

// SweepExpired implements Store.
func (m *MemoryStore) SweepExpired(_ context.Context, shop string, now time.Time) (int, error) {
	cutoff := m.opts.sweepCutoff(now)

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.shops[shop]
	if !ok {
		return 0, nil
	}
	removed := pruneBefore(entries.visitors, cutoff) + pruneBefore(entries.sessions, cutoff)
	if entries.empty() {
		delete(m.shops, shop)
	}
	return removed, nil
}

func pruneBefore(members map[string]int64, cutoff int64) int {
	removed := 0
	for id, expiry := range members {
		if expiry < cutoff {
			delete(members, id)
			removed++
		}
	}
	return removed
}

// GetEMAState implements Store.
func (m *MemoryStore) GetEMAState(_ context.Context, shop string) (*ema.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[shop]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// SetEMAState implements Store.
func (m *MemoryStore) SetEMAState(_ context.Context, state ema.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Shop] = state
	return nil
}

// Shops implements Backend.
func (m *MemoryStore) Shops(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := make(map[string]struct{}, len(m.shops)+len(m.states))
	for shop := range m.shops {
		set[shop] = struct{}{}
	}
	for shop := range m.states {
		set[shop] = struct{}{}
	}
	return sortedKeys(set), nil
}

// Close implements Backend.
func (m *MemoryStore) Close() error { return nil }

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
