// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package broadcast

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/storepulse/internal/logging"
	"github.com/tomtom215/storepulse/internal/metrics"
	"github.com/tomtom215/storepulse/internal/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 // dashboards only send pings

	// DefaultClientBuffer is the per-client snapshot queue length.
	DefaultClientBuffer = 16
)

// WebSocket message types.
const (
	MessageTypePresence = "presence"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

var (
	// ErrHubStopped is returned when subscribing to a hub that has shut down.
	ErrHubStopped = errors.New("presence hub stopped")

	// ErrClientDropped is returned by Stream.Run when the hub dropped the client.
	ErrClientDropped = errors.New("presence subscriber dropped")
)

// Message is the WebSocket envelope.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// clientIDCounter gives clients a stable sort order.
var clientIDCounter atomic.Uint64

// Client is one subscriber of a shop's snapshots. conn is nil for SSE
// streams, which read send directly.
type Client struct {
	id   uint64
	hub  *Hub
	shop string
	conn *websocket.Conn
	send chan presence.Snapshot
}

// NewClient creates a subscriber for shop. buffer <= 0 uses DefaultClientBuffer.
func NewClient(hub *Hub, shop string, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		shop: shop,
		conn: conn,
		send: make(chan presence.Snapshot, buffer),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 { return c.id }

// Shop returns the store the client follows.
func (c *Client) Shop() string { return c.shop }

// Updates returns the channel of relayed snapshots. It is closed when the
// hub drops the client or stops.
func (c *Client) Updates() <-chan presence.Snapshot { return c.send }

// Offer queues snap without blocking, e.g. the initial snapshot before
// the client is registered.
func (c *Client) Offer(snap presence.Snapshot) bool {
	select {
	case c.send <- snap:
		return true
	default:
		return false
	}
}

// readPump consumes control frames and pings until the connection fails.
func (c *Client) readPump(pong chan<- struct{}) {
	defer func() {
		c.hub.Unsubscribe(c)
		_ = c.conn.Close() // best-effort cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("shop", c.shop).Msg("unexpected websocket close")
			}
			return
		}
		if msg.Type == MessageTypePing {
			select {
			case pong <- struct{}{}:
			default:
			}
		}
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump(pong <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		metrics.TrackStreamConnection("websocket", false)
	}()

	for {
		select {
		case snap, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(Message{Type: MessageTypePresence, Data: snap}); err != nil {
				logging.Debug().Err(err).Str("shop", c.shop).Msg("websocket write failed")
				return
			}

		case <-pong:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(Message{Type: MessageTypePong}); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for a registered WebSocket client.
func (c *Client) Start() {
	metrics.TrackStreamConnection("websocket", true)
	pong := make(chan struct{}, 1)
	go c.writePump(pong)
	go c.readPump(pong)
}
