// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/storepulse/internal/broadcast"
	"github.com/tomtom215/storepulse/internal/logging"
)

// Stream serves live snapshots of one shop as Server-Sent Events.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, errors.New("response writer does not support streaming"))
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	stream := &broadcast.Stream{
		Hub:    h.hub,
		Source: h.coordinator,
		Shop:   shop,
		Tick:   h.cfg.Presence.StreamTick,
		Buffer: h.cfg.Broadcast.BufferSize,
	}

	err = stream.Run(r.Context(), w, flusher.Flush)
	switch {
	case err == nil:
	case errors.Is(err, broadcast.ErrHubStopped):
		// Nothing has been written yet.
		header.Del("Content-Type")
		respondJSON(w, http.StatusServiceUnavailable, &APIResponse{Success: false, Error: "presence stream unavailable"})
	case errors.Is(err, broadcast.ErrClientDropped):
		logging.Ctx(r.Context()).Debug().Str("shop", shop).Msg("SSE subscriber dropped as too slow")
	default:
		logging.Ctx(r.Context()).Debug().Err(err).Str("shop", shop).Msg("SSE stream ended")
	}
}

// WebSocket serves live snapshots of one shop over a WebSocket.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if h.hub == nil {
		respondJSON(w, http.StatusServiceUnavailable, &APIResponse{Success: false, Error: "websocket service unavailable"})
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := broadcast.NewClient(h.hub, shop, conn, h.cfg.Broadcast.BufferSize)
	if snap, err := h.coordinator.Snapshot(r.Context(), shop); err == nil {
		client.Offer(snap)
	}

	if err := h.hub.Subscribe(r.Context(), client); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket subscribe failed")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "presence hub unavailable"))
		_ = conn.Close()
		return
	}
	client.Start()
}
