// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package broadcast

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/storepulse/internal/logging"
)

// Relay feeds snapshots from the pub/sub topic into the hub.
// It implements suture.Service.
type Relay struct {
	subscriber message.Subscriber
	topic      string
	hub        *Hub
}

// NewRelay creates a relay. An empty topic uses DefaultTopic.
func NewRelay(sub message.Subscriber, topic string, hub *Hub) *Relay {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Relay{subscriber: sub, topic: topic, hub: hub}
}

// Serve subscribes and forwards until ctx is canceled. A closed
// subscription returns an error so the supervisor restarts the relay.
func (r *Relay) Serve(ctx context.Context) error {
	messages, err := r.subscriber.Subscribe(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.topic, err)
	}

	logging.Info().Str("topic", r.topic).Msg("Presence relay started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("subscription to %s closed", r.topic)
			}
			r.handle(msg)
		}
	}
}

func (r *Relay) handle(msg *message.Message) {
	// Acked either way: a malformed snapshot will not become valid on redelivery.
	defer msg.Ack()

	snap, err := DecodeSnapshot(msg)
	if err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed presence message")
		return
	}
	r.hub.Broadcast(snap)
}

// String implements fmt.Stringer for suture logs.
func (r *Relay) String() string { return "presence-relay" }
