// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/storepulse/internal/broadcast"
	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/logging"
	"github.com/tomtom215/storepulse/internal/presence"
	"github.com/tomtom215/storepulse/internal/validation"
	"github.com/tomtom215/storepulse/internal/warehouse"
)

// maxSignalBytes bounds heartbeat bodies.
const maxSignalBytes = 16 << 10

// HistoryStore serves archived presence rows.
type HistoryStore interface {
	Minutely(ctx context.Context, shop string, from, to time.Time) ([]warehouse.MinutelyRow, error)
	Daily(ctx context.Context, shop string, from, to time.Time) ([]warehouse.DailyRow, error)
	Ping(ctx context.Context) error
}

// Handler holds the dependencies of every HTTP endpoint.
type Handler struct {
	cfg         *config.Config
	coordinator *presence.Coordinator
	store       *presence.ResilientStore // optional; health falls back to the coordinator's backend
	hub         *broadcast.Hub           // optional; streams then only tick
	history     HistoryStore
	startTime   time.Time
}

// NewHandler creates a Handler. cfg and coordinator are required.
func NewHandler(cfg *config.Config, coordinator *presence.Coordinator, store *presence.ResilientStore, hub *broadcast.Hub) *Handler {
	return &Handler{
		cfg:         cfg,
		coordinator: coordinator,
		store:       store,
		hub:         hub,
		startTime:   time.Now(),
	}
}

// WithHistory enables the history endpoints and the warehouse readiness check.
func (h *Handler) WithHistory(history HistoryStore) *Handler {
	h.history = history
	return h
}

// shopParam returns the validated "shop" query parameter.
func shopParam(r *http.Request) (string, error) {
	shop := r.URL.Query().Get("shop")
	if !validation.IsShopDomain(shop) {
		return "", ErrInvalidShop
	}
	return shop, nil
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts origins listed in security.cors_origins.
// Browsers always send Origin on WebSocket handshakes, so a missing header
// is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
