// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package broadcast

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/storepulse/internal/logging"
	"github.com/tomtom215/storepulse/internal/metrics"
	"github.com/tomtom215/storepulse/internal/presence"
)

// DefaultTick is how often a stream recomputes the snapshot.
const DefaultTick = 5 * time.Second

// SnapshotSource computes the current snapshot of a shop.
type SnapshotSource interface {
	Snapshot(ctx context.Context, shop string) (presence.Snapshot, error)
}

// Stream is one Server-Sent Events subscription.
type Stream struct {
	Hub    *Hub // optional; without it only ticks are sent
	Source SnapshotSource
	Shop   string
	Tick   time.Duration
	Buffer int
}

// Run writes the current snapshot, then one per tick and one per relayed
// update, until ctx is canceled. flush is called after every event.
func (s *Stream) Run(ctx context.Context, w io.Writer, flush func()) error {
	tick := s.Tick
	if tick <= 0 {
		tick = DefaultTick
	}

	metrics.TrackStreamConnection("sse", true)
	defer metrics.TrackStreamConnection("sse", false)

	var updates <-chan presence.Snapshot
	if s.Hub != nil {
		client := NewClient(s.Hub, s.Shop, nil, s.Buffer)
		if err := s.Hub.Subscribe(ctx, client); err != nil {
			return err
		}
		defer s.Hub.Unsubscribe(client)
		updates = client.Updates()
	}

	if err := s.emitCurrent(ctx, w, flush); err != nil {
		return err
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if err := s.emitCurrent(ctx, w, flush); err != nil {
				return err
			}

		case snap, ok := <-updates:
			if !ok {
				return ErrClientDropped
			}
			if err := writeEvent(w, snap); err != nil {
				return err
			}
			flush()
		}
	}
}

func (s *Stream) emitCurrent(ctx context.Context, w io.Writer, flush func()) error {
	snap, err := s.Source.Snapshot(ctx, s.Shop)
	if err != nil {
		// The next tick retries.
		logging.Ctx(ctx).Warn().Err(err).Str("shop", s.Shop).Msg("Failed to compute presence snapshot")
		return nil
	}
	if err := writeEvent(w, snap); err != nil {
		return err
	}
	flush()
	return nil
}

// writeEvent writes one "data: {...}\n\n" frame.
func writeEvent(w io.Writer, snap presence.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
