// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package broadcast

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/storepulse/internal/logging"
	"github.com/tomtom215/storepulse/internal/metrics"
	"github.com/tomtom215/storepulse/internal/presence"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub routes snapshots to the clients subscribed to each shop.
type Hub struct {
	shops      map[string]map[*Client]bool
	broadcast  chan presence.Snapshot
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		shops:      make(map[string]map[*Client]bool),
		broadcast:  make(chan presence.Snapshot, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// RunWithContext processes registrations and snapshots until ctx is canceled,
// then closes every client. It is designed for suture supervision.
//
// Lifecycle events take priority over snapshots so client state is always
// consistent before a snapshot is routed.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case snap := <-h.broadcast:
			h.route(snap)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	clients, ok := h.shops[client.shop]
	if !ok {
		clients = make(map[*Client]bool)
		h.shops[client.shop] = clients
	}
	clients[client] = true
	total := len(clients)
	h.mu.Unlock()

	logging.Debug().Str("shop", client.shop).Int("shop_clients", total).Msg("presence subscriber connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client)
	logging.Debug().Str("shop", client.shop).Msg("presence subscriber disconnected")
}

// dropLocked must be called with mu held.
func (h *Hub) dropLocked(client *Client) {
	clients, ok := h.shops[client.shop]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.shops, client.shop)
	}
}

// route delivers snap to the clients of its shop in ID order. Clients with
// a full buffer are dropped.
func (h *Hub) route(snap presence.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := sortedClients(h.shops[snap.Shop])

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- snap:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		metrics.RecordBroadcastDrop("slow_client")
		logging.Warn().Str("shop", snap.Shop).Uint64("client_id", client.id).Msg("presence subscriber too slow, dropping")
		h.dropLocked(client)
	}
}

func sortedClients(set map[*Client]bool) []*Client {
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

func (h *Hub) shutdown(ctx context.Context) {
	h.stopOnce.Do(func() { close(h.stopped) })

	h.mu.Lock()
	closed := 0
	for _, clients := range h.shops {
		for _, client := range sortedClients(clients) {
			close(client.send)
			closed++
		}
	}
	h.shops = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	logging.Info().
		Str("component", "presence-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", closed).
		Msg("presence hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// Subscribe registers client, giving up if ctx ends or the hub has stopped.
func (h *Hub) Subscribe(ctx context.Context, client *Client) error {
	select {
	case h.Register <- client:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe removes client. It returns immediately once the hub has stopped.
func (h *Hub) Unsubscribe(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.stopped:
	}
}

// Broadcast queues snap for routing. A full queue drops the snapshot.
func (h *Hub) Broadcast(snap presence.Snapshot) {
	select {
	case h.broadcast <- snap:
	default:
		metrics.RecordBroadcastDrop("hub_full")
		logging.Warn().Str("shop", snap.Shop).Msg("hub queue full, dropping presence snapshot")
	}
}

// GetClientCount returns the number of connected clients across all shops.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.shops {
		n += len(clients)
	}
	return n
}

// ShopClientCount returns the number of clients subscribed to shop.
func (h *Hub) ShopClientCount(shop string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.shops[shop])
}
