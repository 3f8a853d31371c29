// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/storepulse/internal/auth"
	"github.com/tomtom215/storepulse/internal/middleware"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	jwt           *auth.JWTManager
}

// NewRouter creates a Router. jwt may be nil, which leaves the history
// endpoints open.
func NewRouter(handler *Handler, chiMiddleware *ChiMiddleware, jwt *auth.JWTManager) *Router {
	if chiMiddleware == nil {
		chiMiddleware = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: chiMiddleware,
		jwt:           jwt,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflights are answered
	r.Use(middleware.PrometheusMetrics)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/tracking/presence", func(r chi.Router) {
		r.Get("/script.js", router.handler.Script)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())

			r.Post("/beat", router.handler.Beat)
			r.Post("/bye", router.handler.Bye)
			r.Get("/count", router.handler.Count)
			r.Get("/stream", router.handler.Stream)
			r.Get("/ws", router.handler.WebSocket)
		})

		r.Route("/history", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(auth.RequireShopToken(router.jwt))

			r.Get("/minutely", router.handler.HistoryMinutely)
			r.Get("/daily", router.handler.HistoryDaily)
		})
	})

	return r
}
