// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/storepulse/internal/broadcast"
	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/ema"
	"github.com/tomtom215/storepulse/internal/logging"
	"github.com/tomtom215/storepulse/internal/presence"
	"github.com/tomtom215/storepulse/internal/warehouse"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "error",
		Format: "console",
		Output: io.Discard,
	})
}

const testShop = "demo.myshopify.com"

func testConfig() *config.Config {
	return &config.Config{
		Presence: config.PresenceConfig{StreamTick: 50 * time.Millisecond},
		Security: config.SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitDisabled: true,
		},
	}
}

// testEnv bundles a handler over an in-memory store.
type testEnv struct {
	cfg     *config.Config
	store   *presence.MemoryStore
	handler *Handler
}

func newTestEnv(t *testing.T, hub *broadcast.Hub) *testEnv {
	t.Helper()
	cfg := testConfig()
	store := presence.NewMemoryStore(presence.DefaultOptions())
	coord := presence.NewCoordinator(store, nil, presence.CoordinatorConfig{
		Counter:      ema.Default(),
		SerializeEMA: true,
	})
	return &testEnv{
		cfg:     cfg,
		store:   store,
		handler: NewHandler(cfg, coord, nil, hub),
	}
}

func (e *testEnv) router() http.Handler {
	return NewRouter(e.handler, NewChiMiddlewareFromConfig(e.cfg.Security), nil).SetupChi()
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T) *broadcast.Hub {
	t.Helper()
	hub := broadcast.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func signalBody(t *testing.T, visitor string, ts int64, activity presence.Activity) []byte {
	t.Helper()
	body, err := json.Marshal(presence.Signal{
		VisitorID: visitor,
		SessionID: visitor + "-tab",
		Shop:      testShop,
		Timestamp: ts,
		Activity:  activity,
	})
	if err != nil {
		t.Fatalf("marshal signal: %v", err)
	}
	return body
}

func doRequest(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// envelope decodes a response with its data left raw.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return env
}

// fakeHistory is an in-memory HistoryStore.
type fakeHistory struct {
	mu       sync.Mutex
	minutely []warehouse.MinutelyRow
	daily    []warehouse.DailyRow
	pingErr  error
	queryErr error

	lastFrom, lastTo time.Time
}

func (f *fakeHistory) Minutely(_ context.Context, shop string, from, to time.Time) ([]warehouse.MinutelyRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrom, f.lastTo = from, to
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := []warehouse.MinutelyRow{}
	for _, row := range f.minutely {
		if row.Shop == shop && !row.BucketTs.Before(from) && !row.BucketTs.After(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeHistory) Daily(_ context.Context, shop string, from, to time.Time) ([]warehouse.DailyRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrom, f.lastTo = from, to
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := []warehouse.DailyRow{}
	for _, row := range f.daily {
		if row.Shop == shop {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeHistory) Ping(context.Context) error { return f.pingErr }
