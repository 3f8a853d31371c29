// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package services

import (
	"context"
)

// ContextHub is satisfied by *broadcast.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService runs the presence fan-out hub. The hub already follows the
// suture.Service contract, so this only names it.
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService wraps hub.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{
		hub:  hub,
		name: "presence-hub",
	}
}

// Serve implements suture.Service.
func (h *HubService) Serve(ctx context.Context) error {
	return h.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture's logs.
func (h *HubService) String() string {
	return h.name
}
