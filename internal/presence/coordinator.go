// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package presence

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tomtom215/storepulse/internal/ema"
	"github.com/tomtom215/storepulse/internal/logging"
	"github.com/tomtom215/storepulse/internal/metrics"
	"github.com/tomtom215/storepulse/internal/validation"
)

// Activity is the kind of client signal.
type Activity string

const (
	ActivityHeartbeat Activity = "heartbeat"
	ActivityActivity  Activity = "activity"
	ActivityUnload    Activity = "unload"
)

var (
	// ErrInvalidSignal marks signals rejected before any state was touched.
	ErrInvalidSignal = errors.New("invalid presence signal")

	// ErrPipelineFailed is returned when handling a signal panicked.
	ErrPipelineFailed = errors.New("presence pipeline failed")
)

// Signal is one heartbeat, activity or unload notification from a storefront tab.
type Signal struct {
	VisitorID string   `json:"visitorId" validate:"required,max=128"`
	SessionID string   `json:"sessionId" validate:"required,max=128"`
	Shop      string   `json:"shop" validate:"required,shopdomain"`
	Timestamp int64    `json:"timestamp" validate:"required,gt=0"` // unix milliseconds, client clock
	Activity  Activity `json:"activity" validate:"required,oneof=heartbeat activity unload"`
	UserAgent string   `json:"userAgent,omitempty" validate:"max=512"`
}

// Ack confirms a processed signal. It deliberately omits the count.
type Ack struct {
	VisitorID string `json:"visitorId"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher receives every snapshot produced by Handle.
type Publisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Counter ema.Counter

	// SerializeEMA holds a per-shop lock across load, compute and store of
	// the EMA state. Without it concurrent signals for one shop may lose an
	// update.
	SerializeEMA bool

	// Now overrides the server clock. Defaults to time.Now.
	Now func() time.Time
}

// Coordinator runs the heartbeat pipeline: store mutation, count, EMA
// update and publish.
type Coordinator struct {
	store     Backend
	publisher Publisher
	counter   ema.Counter
	serialize bool
	now       func() time.Time

	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
}

// lockStripes bounds the EMA locks regardless of how many shop domains
// clients send. Shops that share a stripe only wait on each other.
const lockStripes = 256

// NewCoordinator creates a Coordinator. publisher may be nil.
func NewCoordinator(store Backend, publisher Publisher, cfg CoordinatorConfig) *Coordinator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		store:     store,
		publisher: publisher,
		counter:   cfg.Counter,
		serialize: cfg.SerializeEMA,
		now:       now,
		seed:      maphash.MakeSeed(),
	}
}

// Store returns the backend the coordinator writes to.
func (c *Coordinator) Store() Backend { return c.store }

func (c *Coordinator) shopLock(shop string) *sync.Mutex {
	return &c.locks[maphash.String(c.seed, shop)%lockStripes]
}

// Handle processes one signal. Malformed signals wrap ErrInvalidSignal and
// leave the store untouched. A timestamp that does not advance the shop's
// EMA state also wraps ErrInvalidSignal (and ema.ErrOutOfOrder), but only
// the EMA sample is rejected: presence is refreshed or removed, counted and
// published as usual.
func (c *Coordinator) Handle(ctx context.Context, sig Signal) (ack Ack, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Str("shop", sig.Shop).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Panic in presence pipeline")
			metrics.RecordHeartbeat(string(sig.Activity), "error")
			ack = Ack{}
			err = fmt.Errorf("%w: %v", ErrPipelineFailed, r)
		}
	}()

	if verr := validation.ValidateStruct(sig); verr != nil {
		metrics.RecordHeartbeat(string(sig.Activity), "invalid")
		return Ack{}, fmt.Errorf("%w: %w", ErrInvalidSignal, verr)
	}

	if c.serialize {
		mu := c.shopLock(sig.Shop)
		mu.Lock()
		defer mu.Unlock()
	}

	logger := logging.WithShop(ctx, sig.Shop)

	prior, err := c.store.GetEMAState(ctx, sig.Shop)
	if err != nil {
		metrics.RecordHeartbeat(string(sig.Activity), "error")
		return Ack{}, fmt.Errorf("load ema state: %w", err)
	}

	// Membership always follows the server clock. The client timestamp only
	// feeds the shop's EMA, which a skewed browser clock must not rewind.
	now := c.now()
	if sig.Activity == ActivityUnload {
		err = c.store.Remove(ctx, sig.Shop, sig.VisitorID, sig.SessionID)
	} else {
		err = c.store.AddOrRefresh(ctx, sig.Shop, sig.VisitorID, sig.SessionID, now)
	}
	if err != nil {
		metrics.RecordHeartbeat(string(sig.Activity), "error")
		return Ack{}, fmt.Errorf("update presence: %w", err)
	}

	count, err := c.store.CountActive(ctx, sig.Shop, now)
	if err != nil {
		metrics.RecordHeartbeat(string(sig.Activity), "error")
		return Ack{}, fmt.Errorf("count active users: %w", err)
	}
	metrics.SetActiveUsers(sig.Shop, count)

	result, sampleErr := c.counter.Update(prior, count, sig.Timestamp)
	if sampleErr != nil {
		// The stale sample is dropped. Subscribers still see the new count,
		// with the trend of the stored averages.
		metrics.RecordHeartbeat(string(sig.Activity), "out_of_order")
		c.publish(ctx, Snapshot{
			Shop:        sig.Shop,
			ActiveUsers: count,
			Timestamp:   now.UnixMilli(),
			Trend:       c.counter.Preview(prior, count, now.UnixMilli()).Trend,
		})
		var last int64
		if prior != nil {
			last = prior.LastTimestamp
		}
		logger.Debug().Int64("sample_ts", sig.Timestamp).Int64("last_ts", last).
			Msg("Out-of-order EMA sample dropped, presence refreshed")
		return Ack{}, fmt.Errorf("%w: %w: got %d, last %d",
			ErrInvalidSignal, sampleErr, sig.Timestamp, last)
	}
	if err := c.store.SetEMAState(ctx, result.State(sig.Shop)); err != nil {
		metrics.RecordHeartbeat(string(sig.Activity), "error")
		return Ack{}, fmt.Errorf("store ema state: %w", err)
	}

	metrics.RecordHeartbeat(string(sig.Activity), "ok")

	c.publish(ctx, Snapshot{
		Shop:        sig.Shop,
		ActiveUsers: count,
		Timestamp:   now.UnixMilli(),
		Trend:       result.Trend,
	})

	logger.Debug().
		Str("activity", string(sig.Activity)).
		Int("active_users", count).
		Str("trend", string(result.Trend)).
		Msg("Presence signal processed")

	return Ack{VisitorID: sig.VisitorID, Timestamp: sig.Timestamp}, nil
}

// publish hands snap to the publisher. Failures never reach the caller.
func (c *Coordinator) publish(ctx context.Context, snap Snapshot) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, snap); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("shop", snap.Shop).Msg("Failed to publish presence snapshot")
	}
}

// Snapshot returns the current count and trend of shop at server time.
func (c *Coordinator) Snapshot(ctx context.Context, shop string) (Snapshot, error) {
	now := c.now()

	count, err := c.store.CountActive(ctx, shop, now)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count active users: %w", err)
	}
	state, err := c.store.GetEMAState(ctx, shop)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load ema state: %w", err)
	}

	res := c.counter.Preview(state, count, now.UnixMilli())
	return Snapshot{
		Shop:        shop,
		ActiveUsers: count,
		Timestamp:   now.UnixMilli(),
		Trend:       res.Trend,
	}, nil
}

// Reading returns the archival projection of shop at server time.
func (c *Coordinator) Reading(ctx context.Context, shop string) (Reading, error) {
	now := c.now()

	count, err := c.store.CountActive(ctx, shop, now)
	if err != nil {
		return Reading{}, fmt.Errorf("count active users: %w", err)
	}
	sessions, err := c.store.CountSessions(ctx, shop, now)
	if err != nil {
		return Reading{}, fmt.Errorf("count sessions: %w", err)
	}
	state, err := c.store.GetEMAState(ctx, shop)
	if err != nil {
		return Reading{}, fmt.Errorf("load ema state: %w", err)
	}

	res := c.counter.Preview(state, count, now.UnixMilli())
	return Reading{
		Snapshot: Snapshot{
			Shop:        shop,
			ActiveUsers: count,
			Timestamp:   now.UnixMilli(),
			Trend:       res.Trend,
		},
		TotalSessions: sessions,
		EMAFast:       res.EMAFast,
		EMASlow:       res.EMASlow,
	}, nil
}

// Shops lists the stores known to the backend.
func (c *Coordinator) Shops(ctx context.Context) ([]string, error) {
	return c.store.Shops(ctx)
}

// SweepAll removes long-expired entries of every known shop and returns the
// total removed. It keeps going past per-shop failures.
func (c *Coordinator) SweepAll(ctx context.Context) (int, error) {
	shops, err := c.store.Shops(ctx)
	if err != nil {
		return 0, fmt.Errorf("list shops: %w", err)
	}

	now := c.now()
	total := 0
	var errs []error
	for _, shop := range shops {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := c.store.SweepExpired(ctx, shop, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", shop, err))
			continue
		}
		total += n
	}

	metrics.RecordSweep(total)
	if total > 0 {
		logging.Debug().Int("removed", total).Int("shops", len(shops)).Msg("Presence sweep complete")
	}
	return total, errors.Join(errs...)
}
