// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type scopeKey struct{}

// scope is the set of log fields a request carries through the presence
// pipeline. It is copied on every update so parent contexts never observe
// a child's fields.
type scope struct {
	correlationID string
	requestID     string
	shop          string
}

func scopeFrom(ctx context.Context) scope {
	if s, ok := ctx.Value(scopeKey{}).(scope); ok {
		return s
	}
	return scope{}
}

func withScope(ctx context.Context, update func(*scope)) context.Context {
	s := scopeFrom(ctx)
	update(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// GenerateCorrelationID returns a short random ID for grepping one request
// across the beat, publish and relay log lines.
func GenerateCorrelationID() string {
	return uuid.NewString()[:8]
}

// GenerateRequestID returns a full UUID.
func GenerateRequestID() string {
	return uuid.NewString()
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return withScope(ctx, func(s *scope) { s.correlationID = id })
}

func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withScope(ctx, func(s *scope) { s.requestID = id })
}

// ContextWithShop tags ctx with a storefront domain. Ctx adds it as "shop".
func ContextWithShop(ctx context.Context, shop string) context.Context {
	return withScope(ctx, func(s *scope) { s.shop = shop })
}

func CorrelationIDFromContext(ctx context.Context) string { return scopeFrom(ctx).correlationID }

func RequestIDFromContext(ctx context.Context) string { return scopeFrom(ctx).requestID }

func ShopFromContext(ctx context.Context) string { return scopeFrom(ctx).shop }

// Ctx returns the global logger enriched with whatever request scope ctx
// carries. Empty fields are omitted.
//
//	logging.Ctx(ctx).Warn().Err(err).Msg("Heartbeat rejected")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := scoped(ctx).Logger()
	return &logger
}

func scoped(ctx context.Context) zerolog.Context {
	s := scopeFrom(ctx)
	mu.RLock()
	c := log.With()
	mu.RUnlock()
	for _, f := range [...]struct{ key, val string }{
		{"correlation_id", s.correlationID},
		{"request_id", s.requestID},
		{"shop", s.shop},
	} {
		if f.val != "" {
			c = c.Str(f.key, f.val)
		}
	}
	return c
}

// WithComponent returns a logger tagged with a subsystem name such as
// "sweeper" or "relay".
func WithComponent(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.With().Str("component", component).Logger()
}

// WithShop returns a logger scoped to one store.
func WithShop(ctx context.Context, shop string) zerolog.Logger {
	return scoped(ContextWithShop(ctx, shop)).Logger()
}
