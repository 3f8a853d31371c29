// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/storepulse/internal/logging"
)

// HTTPServer is the lifecycle subset of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Close() error
}

// HTTPServerService runs the API server under supervision.
//
// http.Server.Shutdown waits for in-flight requests but never cancels their
// contexts, so an SSE stream would hold shutdown open until the timeout.
// Drain hooks registered with OnDrain run first and are expected to cancel
// the server's BaseContext, which ends every stream. If Shutdown still
// misses its deadline the server is closed hard.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	drain           []func()
}

// NewHTTPServerService wraps server. A non-positive timeout defaults to 10s.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// OnDrain registers fn to run when shutdown begins, before the listener
// closes.
func (h *HTTPServerService) OnDrain(fn func()) *HTTPServerService {
	h.drain = append(h.drain, fn)
	return h
}

// Serve implements suture.Service. http.ErrServerClosed is a clean exit.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		err := h.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info().Dur("timeout", h.shutdownTimeout).Int("drain_hooks", len(h.drain)).Msg("Draining HTTP server")
	for _, fn := range h.drain {
		fn()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		if cerr := h.server.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("HTTP server close after failed shutdown")
		}
		<-done
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	<-done
	return ctx.Err()
}

func (h *HTTPServerService) String() string { return "http-server" }
