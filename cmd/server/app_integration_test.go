// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

//go:build integration

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/warehouse"
)

func TestApp_ArchivedMinuteIsQueryable(t *testing.T) {
	cfg := memoryConfig()
	cfg.Warehouse = config.WarehouseConfig{
		Enabled:         true,
		Path:            ":memory:",
		ArchiveInterval: time.Hour,
		RollupInterval:  time.Hour,
		BatchSize:       100,
		WindowSeconds:   60,
		Concurrency:     2,
	}
	a := startApp(t, cfg)
	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	postBeat(t, srv.URL, "v1", time.Now().UnixMilli())

	if err := a.capture(context.Background()); err != nil {
		t.Fatalf("capture() error = %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/tracking/presence/history/minutely?shop=" + testShop)
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Data []warehouse.MinutelyRow `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].AURaw != 1 || body.Data[0].TotalTabs != 1 {
		t.Errorf("rows = %+v, want one row with 1 visitor and 1 tab", body.Data)
	}

	ready, err := http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("GET ready: %v", err)
	}
	ready.Body.Close()
	if ready.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want 200", ready.StatusCode)
	}
}
