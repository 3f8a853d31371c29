// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/storepulse/internal/metrics"
	"github.com/tomtom215/storepulse/internal/presence"
)

// DefaultTopic is the single topic carrying every store's snapshots.
const DefaultTopic = "presence.updates"

// MetadataShop is the message metadata key holding the shop domain.
const MetadataShop = "shop"

// ErrPublisherClosed is returned after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Topic     string
	Transport string // label for metrics

	// MaxPerSecond caps snapshots per shop. Zero disables the limit.
	MaxPerSecond float64
}

// Publisher turns snapshots into watermill messages. It implements
// presence.Publisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
	transport string
	limit     rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	closed   bool
}

var _ presence.Publisher = (*Publisher)(nil)

// NewPublisher wraps pub.
func NewPublisher(pub message.Publisher, cfg PublisherConfig) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	limit := rate.Inf
	if cfg.MaxPerSecond > 0 {
		limit = rate.Limit(cfg.MaxPerSecond)
	}
	return &Publisher{
		publisher: pub,
		topic:     topic,
		transport: cfg.Transport,
		limit:     limit,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (p *Publisher) allow(shop string) bool {
	if p.limit == rate.Inf {
		return true
	}

	p.mu.Lock()
	lim, ok := p.limiters[shop]
	if !ok {
		burst := int(p.limit)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(p.limit, burst)
		p.limiters[shop] = lim
	}
	p.mu.Unlock()

	return lim.Allow()
}

// Publish sends snap to all subscribers. Snapshots over the per-shop rate
// are dropped without error.
func (p *Publisher) Publish(ctx context.Context, snap presence.Snapshot) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPublisherClosed
	}

	if !p.allow(snap.Shop) {
		metrics.RecordBroadcastDrop("rate_limited")
		return nil
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataShop, snap.Shop)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		metrics.RecordBroadcastDrop("publish_error")
		return fmt.Errorf("publish snapshot: %w", err)
	}

	metrics.RecordBroadcastPublish(p.transport)
	return nil
}

// Topic returns the topic snapshots are published on.
func (p *Publisher) Topic() string { return p.topic }

// Close marks the publisher closed. The underlying transport is owned by
// the caller.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// DecodeSnapshot parses a message produced by Publish.
func DecodeSnapshot(msg *message.Message) (presence.Snapshot, error) {
	var snap presence.Snapshot
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		return presence.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Shop == "" {
		snap.Shop = msg.Metadata.Get(MetadataShop)
	}
	return snap, nil
}
