// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/storepulse/internal/ema"
	"github.com/tomtom215/storepulse/internal/presence"
)

const maxUserAgent = 512

// CountResponse is the payload of GET /count.
type CountResponse struct {
	ActiveUsers int       `json:"activeUsers"`
	Timestamp   int64     `json:"timestamp"`
	Trend       ema.Trend `json:"trend"`
}

// decodeSignal reads a JSON signal regardless of Content-Type, since
// navigator.sendBeacon posts text/plain.
func decodeSignal(w http.ResponseWriter, r *http.Request) (presence.Signal, error) {
	var sig presence.Signal

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignalBytes))
	if err != nil {
		return sig, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	if err := json.Unmarshal(body, &sig); err != nil {
		return sig, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return sig, nil
}

// Beat handles heartbeat, activity and unload signals.
func (h *Handler) Beat(w http.ResponseWriter, r *http.Request) {
	sig, err := decodeSignal(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.handleSignal(w, r, sig)
}

// Bye handles the unload beacon. The activity is always unload.
func (h *Handler) Bye(w http.ResponseWriter, r *http.Request) {
	sig, err := decodeSignal(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sig.Activity = presence.ActivityUnload
	h.handleSignal(w, r, sig)
}

func (h *Handler) handleSignal(w http.ResponseWriter, r *http.Request, sig presence.Signal) {
	if sig.UserAgent == "" {
		sig.UserAgent = r.UserAgent()
		if len(sig.UserAgent) > maxUserAgent {
			sig.UserAgent = sig.UserAgent[:maxUserAgent]
		}
	}

	ack, err := h.coordinator.Handle(r.Context(), sig)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, ack)
}

// Count returns the current active visitor count of a shop.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	snap, err := h.coordinator.Snapshot(r.Context(), shop)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, CountResponse{
		ActiveUsers: snap.ActiveUsers,
		Timestamp:   snap.Timestamp,
		Trend:       snap.Trend,
	})
}
