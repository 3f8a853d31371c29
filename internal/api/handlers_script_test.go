// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestScript_Render(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cfg.Server.PublicURL = "https://pulse.example.com/"
	r := env.router()

	w := doRequest(r, http.MethodGet, "/api/tracking/presence/script.js?shop="+testShop, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/javascript") {
		t.Errorf("Content-Type = %q", ct)
	}

	body := w.Body.String()
	for _, want := range []string{
		`var BASE = "https://pulse.example.com";`,
		`var SHOP = "demo.myshopify.com";`,
		"var HEARTBEAT_MS = 10000;",
		"var JITTER_MS = 2000;",
		"var ACTIVITY_TIMEOUT_MS = 30000;",
		"navigator.sendBeacon(BASE + '/api/tracking/presence/bye'",
		"localStorage",
		"sessionStorage",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("script missing %q", want)
		}
	}
}

func TestScript_BaseURLFromRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name  string
		proto string
		want  string
	}{
		{"plain", "", "http://pulse.internal:8080"},
		{"behind tls proxy", "https", "https://pulse.internal:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://pulse.internal:8080/script.js", nil)
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			if got := env.handler.baseURL(req); got != tt.want {
				t.Errorf("baseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScript_InvalidShop(t *testing.T) {
	r := newTestEnv(t, nil).router()
	w := doRequest(r, http.MethodGet, `/api/tracking/presence/script.js?shop=%22%3Balert(1)%2F%2F`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
