// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/storepulse/internal/broadcast"
	"github.com/tomtom215/storepulse/internal/presence"
)

// readEvent returns the payload of the next "data:" line.
func readEvent(t *testing.T, reader *bufio.Reader) presence.Snapshot {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap presence.Snapshot
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &snap); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		return snap
	}
}

func TestStream_SSE(t *testing.T) {
	env := newTestEnv(t, nil)
	r := env.router()
	doRequest(r, http.MethodPost, beatPath, signalBody(t, "v1", time.Now().UnixMilli(), presence.ActivityHeartbeat))

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/tracking/presence/stream?shop="+testShop, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if xa := resp.Header.Get("X-Accel-Buffering"); xa != "no" {
		t.Errorf("X-Accel-Buffering = %q, want no", xa)
	}

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	if first.Shop != testShop || first.ActiveUsers != 1 {
		t.Errorf("first event = %+v, want 1 user on %s", first, testShop)
	}

	// The 50ms tick keeps emitting without new signals.
	second := readEvent(t, reader)
	if second.Timestamp < first.Timestamp {
		t.Errorf("tick event went back in time: %d < %d", second.Timestamp, first.Timestamp)
	}
}

func TestStream_RelayedUpdate(t *testing.T) {
	hub := startHub(t)
	env := newTestEnv(t, hub)
	env.cfg.Presence.StreamTick = time.Hour

	srv := httptest.NewServer(env.router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/tracking/presence/stream?shop="+testShop, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	if initial := readEvent(t, reader); initial.ActiveUsers != 0 {
		t.Fatalf("initial event = %+v, want 0 users", initial)
	}

	// The initial event is written after Subscribe returns, so the client
	// is registered by now.
	hub.Broadcast(presence.Snapshot{Shop: testShop, ActiveUsers: 7, Timestamp: 1})

	if got := readEvent(t, reader); got.ActiveUsers != 7 {
		t.Errorf("relayed event = %+v, want 7 users", got)
	}
}

func TestStream_InvalidShop(t *testing.T) {
	r := newTestEnv(t, nil).router()
	w := doRequest(r, http.MethodGet, "/api/tracking/presence/stream", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStream_HubStopped(t *testing.T) {
	hub := broadcast.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = hub.RunWithContext(ctx)

	r := newTestEnv(t, hub).router()
	w := doRequest(r, http.MethodGet, "/api/tracking/presence/stream?shop="+testShop, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWebSocket_InitialSnapshotAndUpdates(t *testing.T) {
	hub := startHub(t)
	env := newTestEnv(t, hub)
	r := env.router()
	doRequest(r, http.MethodPost, beatPath, signalBody(t, "v1", time.Now().UnixMilli(), presence.ActivityHeartbeat))

	srv := httptest.NewServer(r)
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://" + testShop}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/tracking/presence/ws?shop="+testShop), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg struct {
		Type string            `json:"type"`
		Data presence.Snapshot `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if msg.Type != broadcast.MessageTypePresence || msg.Data.ActiveUsers != 1 {
		t.Fatalf("initial message = %+v, want presence with 1 user", msg)
	}

	waitUntil(t, func() bool { return hub.ShopClientCount(testShop) == 1 })
	hub.Broadcast(presence.Snapshot{Shop: testShop, ActiveUsers: 4, Timestamp: 2})

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if msg.Data.ActiveUsers != 4 {
		t.Errorf("update = %+v, want 4 users", msg.Data)
	}
}

func TestWebSocket_RejectsMissingOrigin(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(newTestEnv(t, hub).router())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/tracking/presence/ws?shop="+testShop), nil)
	if err == nil {
		t.Fatal("dial without Origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestCheckWebSocketOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cfg.Security.CORSOrigins = []string{"https://admin.example.com"}

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://admin.example.com", true},
		{"https://evil.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := env.handler.checkWebSocketOrigin(req); got != tt.want {
			t.Errorf("checkWebSocketOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
