// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

// Package archive copies live presence readings into the warehouse.
//
// Every archive interval the Archiver reads each known shop once and appends
// one minutely row per shop. A separate rollup task aggregates minutely rows
// into daily rows. Both tasks are idempotent, so a missed or repeated run only
// changes freshness.
package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/storepulse/internal/ema"
	"github.com/tomtom215/storepulse/internal/logging"
	"github.com/tomtom215/storepulse/internal/presence"
	"github.com/tomtom215/storepulse/internal/warehouse"
)

// DefaultConcurrency bounds parallel shop reads.
const DefaultConcurrency = 8

// Sink receives archived rows. *warehouse.Warehouse implements it.
type Sink interface {
	AppendMinutely(ctx context.Context, rows []warehouse.MinutelyRow) (int, error)
	SaveStates(ctx context.Context, states []ema.State) error
	RollupDaily(ctx context.Context, day time.Time) (int64, error)
}

// Source provides live readings. *presence.Coordinator implements it.
type Source interface {
	Shops(ctx context.Context) ([]string, error)
	Reading(ctx context.Context, shop string) (presence.Reading, error)
}

// Config controls an Archiver.
type Config struct {
	WindowSeconds int
	Concurrency   int
	Now           func() time.Time
}

// Archiver moves readings from a Source into a Sink.
type Archiver struct {
	source        Source
	sink          Sink
	windowSeconds int
	concurrency   int
	now           func() time.Time
}

// New creates an Archiver.
func New(source Source, sink Sink, cfg Config) *Archiver {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = warehouse.DefaultWindowSeconds
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Archiver{
		source:        source,
		sink:          sink,
		windowSeconds: cfg.WindowSeconds,
		concurrency:   cfg.Concurrency,
		now:           cfg.Now,
	}
}

// CaptureMinute appends one row per known shop for the current minute and
// archives the matching EMA states. A shop whose reading fails is skipped.
func (a *Archiver) CaptureMinute(ctx context.Context) (int, error) {
	shops, err := a.source.Shops(ctx)
	if err != nil {
		return 0, fmt.Errorf("list shops: %w", err)
	}
	if len(shops) == 0 {
		return 0, nil
	}

	bucket := a.now().UTC().Truncate(time.Minute)

	var (
		mu     sync.Mutex
		rows   = make([]warehouse.MinutelyRow, 0, len(shops))
		states = make([]ema.State, 0, len(shops))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, shop := range shops {
		g.Go(func() error {
			r, err := a.source.Reading(gctx, shop)
			if err != nil {
				logging.Warn().Err(err).Str("shop", shop).Msg("Skipping shop in minutely archive")
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			rows = append(rows, warehouse.MinutelyRow{
				Shop:          shop,
				BucketTs:      bucket,
				AURaw:         r.ActiveUsers,
				TotalTabs:     r.TotalSessions,
				EMAFast:       r.EMAFast,
				EMASlow:       r.EMASlow,
				WindowSeconds: a.windowSeconds,
			})
			states = append(states, ema.State{
				Shop:          shop,
				LastTimestamp: r.Timestamp,
				EMAFast:       r.EMAFast,
				EMASlow:       r.EMASlow,
				LastRawCount:  r.ActiveUsers,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := a.sink.AppendMinutely(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("append minutely rows: %w", err)
	}
	if err := a.sink.SaveStates(ctx, states); err != nil {
		logging.Warn().Err(err).Msg("Failed to archive EMA states")
	}

	logging.Debug().Int("rows", n).Time("bucket", bucket).Msg("Archived presence minute")
	return n, nil
}

// Rollup aggregates yesterday and today. Yesterday is repeated so rows that
// landed after midnight still reach their day.
func (a *Archiver) Rollup(ctx context.Context) error {
	today := a.now().UTC().Truncate(24 * time.Hour)
	for _, day := range []time.Time{today.Add(-24 * time.Hour), today} {
		n, err := a.sink.RollupDaily(ctx, day)
		if err != nil {
			return fmt.Errorf("rollup %s: %w", day.Format(time.DateOnly), err)
		}
		logging.Debug().Str("day", day.Format(time.DateOnly)).Int64("shops", n).Msg("Rolled up presence day")
	}
	return nil
}

var (
	_ Sink   = (*warehouse.Warehouse)(nil)
	_ Source = (*presence.Coordinator)(nil)
)
