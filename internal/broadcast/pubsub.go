// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package broadcast

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/logging"
)

// PubSub is a publisher and subscriber pair on one transport.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Transport  string
}

// Close closes both sides.
func (p *PubSub) Close() error {
	pubErr := p.Publisher.Close()
	if p.Subscriber == nil || any(p.Subscriber) == any(p.Publisher) {
		return pubErr
	}
	if err := p.Subscriber.Close(); err != nil {
		return err
	}
	return pubErr
}

// NewWatermillLogger routes watermill logs through the zerolog backend.
func NewWatermillLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLogger())
}

// NewPubSub builds the configured transport. natsURL is only used by the
// nats transport.
func NewPubSub(cfg config.BroadcastConfig, natsURL string, logger watermill.LoggerAdapter) (*PubSub, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}

	switch cfg.Transport {
	case config.TransportGoChannel, "":
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logger)
		return &PubSub{Publisher: ch, Subscriber: ch, Transport: config.TransportGoChannel}, nil

	case config.TransportNATS:
		return newNATSPubSub(natsURL, logger)

	default:
		return nil, fmt.Errorf("unknown broadcast transport %q", cfg.Transport)
	}
}

// newNATSPubSub uses core NATS. JetStream is disabled on purpose: presence
// updates are only useful live, so nothing is retained.
func newNATSPubSub(url string, logger watermill.LoggerAdapter) (*PubSub, error) {
	natsOpts := []natsgo.Option{
		natsgo.Name("storepulse-broadcast"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS broadcast disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS broadcast reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		SubscribersCount: 1,
		CloseTimeout:     5 * time.Second,
		AckWaitTimeout:   5 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	return &PubSub{Publisher: pub, Subscriber: sub, Transport: config.TransportNATS}, nil
}
