// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package presence

import (
	"context"
	"time"

	"github.com/tomtom215/storepulse/internal/ema"
)

// Default timing for presence entries.
const (
	DefaultTTL    = 30 * time.Second
	DefaultMaxAge = 5 * time.Minute
)

// Store is the presence membership structure and EMA state holder.
// Implementations guarantee atomicity of each individual method only.
type Store interface {
	// AddOrRefresh sets the visitor and session expiry to now + TTL.
	AddOrRefresh(ctx context.Context, shop, visitorID, sessionID string, now time.Time) error

	// Remove deletes the visitor and session entries. Absent entries are not an error.
	Remove(ctx context.Context, shop, visitorID, sessionID string) error

	// CountActive returns the number of visitors whose expiry is at or after now.
	CountActive(ctx context.Context, shop string, now time.Time) (int, error)

	// SweepExpired deletes entries that expired before now - MaxAge and
	// returns how many were removed.
	SweepExpired(ctx context.Context, shop string, now time.Time) (int, error)

	// GetEMAState returns nil without error when no state exists.
	GetEMAState(ctx context.Context, shop string) (*ema.State, error)

	// SetEMAState replaces the stored state for state.Shop.
	SetEMAState(ctx context.Context, state ema.State) error
}

// Backend is a Store plus the operations the service needs around it.
type Backend interface {
	Store

	// CountSessions counts session entries with the same inclusive rule as CountActive.
	CountSessions(ctx context.Context, shop string, now time.Time) (int, error)

	// Shops lists stores that have any presence entry or EMA state.
	Shops(ctx context.Context) ([]string, error)

	// Name identifies the backend in logs, metrics and health output.
	Name() string

	Close() error
}

// Options holds the timing shared by all backends.
type Options struct {
	TTL    time.Duration
	MaxAge time.Duration
}

// DefaultOptions returns TTL 30s and MaxAge 5m.
func DefaultOptions() Options {
	return Options{TTL: DefaultTTL, MaxAge: DefaultMaxAge}
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	return o
}

// expiryFor is the expiry in unix milliseconds of an entry refreshed at now.
func (o Options) expiryFor(now time.Time) int64 {
	return now.Add(o.TTL).UnixMilli()
}

// sweepCutoff returns the expiry below which entries are physically removed.
func (o Options) sweepCutoff(now time.Time) int64 {
	return now.Add(-o.MaxAge).UnixMilli()
}

// Snapshot is the read-side view of a store at an instant. It is derived on
// demand and never persisted.
type Snapshot struct {
	Shop        string    `json:"shop"`
	ActiveUsers int       `json:"activeUsers"`
	Timestamp   int64     `json:"timestamp"` // unix milliseconds
	Trend       ema.Trend `json:"trend"`
}

// Reading is a Snapshot with the session count and both averages, as
// recorded by the archiver.
type Reading struct {
	Snapshot
	TotalSessions int     `json:"totalSessions"`
	EMAFast       float64 `json:"emaFast"`
	EMASlow       float64 `json:"emaSlow"`
}
