// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/storepulse/internal/presence"
)

const warehousePingTimeout = 2 * time.Second

// HealthStatus is the payload of GET /health.
type HealthStatus struct {
	Status           string          `json:"status"` // "healthy" or "degraded"
	Presence         presence.Health `json:"presence"`
	WarehouseEnabled bool            `json:"warehouseEnabled"`
	WarehouseUp      bool            `json:"warehouseUp"`
	Subscribers      int             `json:"subscribers"`
	Uptime           float64         `json:"uptime"`
}

func (h *Handler) presenceHealth() presence.Health {
	if h.store != nil {
		return h.store.Health()
	}
	return presence.Health{Backend: h.coordinator.Store().Name()}
}

// warehouseUp pings the history store. It reports false when none is configured.
func (h *Handler) warehouseUp(ctx context.Context) bool {
	if h.history == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, warehousePingTimeout)
	defer cancel()
	return h.history.Ping(ctx) == nil
}

// Health reports presence degradation and warehouse reachability. A
// degraded service still answers 200; degraded mode is a signal, not an outage.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ph := h.presenceHealth()
	enabled := h.history != nil
	up := h.warehouseUp(r.Context())

	status := "healthy"
	if ph.Degraded || (enabled && !up) {
		status = "degraded"
	}

	subscribers := 0
	if h.hub != nil {
		subscribers = h.hub.GetClientCount()
	}

	respondData(w, HealthStatus{
		Status:           status,
		Presence:         ph,
		WarehouseEnabled: enabled,
		WarehouseUp:      up,
		Subscribers:      subscribers,
		Uptime:           time.Since(h.startTime).Seconds(),
	})
}

// HealthLive returns 200 while the process is serving.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady returns 503 only when the warehouse is enabled and unreachable.
// The presence store never blocks readiness since its failures degrade to
// safe defaults.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	enabled := h.history != nil
	ready := !enabled || h.warehouseUp(r.Context())

	data := map[string]interface{}{
		"ready":            ready,
		"warehouseEnabled": enabled,
		"uptime":           time.Since(h.startTime).Seconds(),
	}
	if !ready {
		respondJSON(w, http.StatusServiceUnavailable, &APIResponse{
			Success: false,
			Data:    data,
			Error:   "warehouse unreachable",
		})
		return
	}
	respondData(w, data)
}
