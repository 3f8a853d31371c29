// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/storepulse/internal/config"
)

func TestNewChiMiddleware_DefaultConfig(t *testing.T) {
	m := NewChiMiddleware(nil)

	if m.config == nil {
		t.Fatal("config is nil")
	}
	if len(m.config.CORSAllowedOrigins) != 1 || m.config.CORSAllowedOrigins[0] != "*" {
		t.Errorf("CORSAllowedOrigins = %v, want [*]", m.config.CORSAllowedOrigins)
	}
	if m.config.RateLimitRequests != 600 || m.config.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d/%v, want 600/1m", m.config.RateLimitRequests, m.config.RateLimitWindow)
	}
}

func TestNewChiMiddlewareFromConfig(t *testing.T) {
	m := NewChiMiddlewareFromConfig(config.SecurityConfig{
		CORSOrigins:       []string{"https://admin.example.com"},
		RateLimitRequests: 50,
		RateLimitWindow:   30 * time.Second,
		RateLimitDisabled: true,
	})

	if m.config.CORSAllowedOrigins[0] != "https://admin.example.com" {
		t.Errorf("CORSAllowedOrigins = %v", m.config.CORSAllowedOrigins)
	}
	if m.config.RateLimitRequests != 50 || m.config.RateLimitWindow != 30*time.Second {
		t.Errorf("rate limit = %d/%v, want 50/30s", m.config.RateLimitRequests, m.config.RateLimitWindow)
	}
	if !m.config.RateLimitDisabled {
		t.Error("RateLimitDisabled should be true")
	}
}

func TestNewChiMiddlewareFromConfig_KeepsDefaultsForZeroValues(t *testing.T) {
	m := NewChiMiddlewareFromConfig(config.SecurityConfig{})
	if m.config.CORSAllowedOrigins[0] != "*" || m.config.RateLimitRequests != 600 {
		t.Errorf("config = %+v, want defaults", m.config)
	}
}

func TestCORS_Preflight(t *testing.T) {
	r := newTestEnv(t, nil).router()

	req := httptest.NewRequest(http.MethodOptions, "/api/tracking/presence/beat", nil)
	req.Header.Set("Origin", "https://demo.myshopify.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" && got != "https://demo.myshopify.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the storefront allowed", got)
	}
	if w.Code >= http.StatusBadRequest {
		t.Errorf("preflight status = %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  2,
		RateLimitWindow:    time.Minute,
	})
	handler := m.RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent {
		t.Errorf("first two codes = %v, want 204", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third code = %d, want 429", codes[2])
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	handler := m.RateLimit()(next)

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
}
