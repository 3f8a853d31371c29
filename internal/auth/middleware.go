// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/storepulse/internal/logging"
)

type contextKey string

// ClaimsContextKey holds *Claims for authenticated requests.
const ClaimsContextKey contextKey = "claims"

// RequireShopToken guards dashboard endpoints. The bearer token must be
// valid and issued for the shop named in the "shop" query parameter. A nil
// manager disables the check.
func RequireShopToken(m *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearer(r.Header.Get("Authorization"))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized: "+err.Error())
				return
			}

			claims, err := m.Authorize(token, r.URL.Query().Get("shop"))
			if errors.Is(err, ErrShopMismatch) {
				writeAuthError(w, http.StatusForbidden, "Forbidden: token is not valid for this shop")
				return
			}
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("Dashboard token rejected")
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized: invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims set by RequireShopToken, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}

func extractBearer(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
