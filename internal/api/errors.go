// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/storepulse/internal/presence"
	"github.com/tomtom215/storepulse/internal/validation"
	"github.com/tomtom215/storepulse/internal/warehouse"
)

var (
	// ErrInvalidShop is returned when the shop query parameter is missing or malformed.
	ErrInvalidShop = errors.New("shop must be a valid shop domain")

	// ErrInvalidBody is returned when a request body is not a JSON object.
	ErrInvalidBody = errors.New("request body must be a JSON object")

	// ErrInvalidRange is returned for unparsable or inverted history ranges.
	ErrInvalidRange = errors.New("from and to must be RFC 3339 timestamps or dates with from <= to")
)

const internalErrorMessage = "internal server error"

// statusFor maps an error to the HTTP status and the message safe to return.
func statusFor(err error) (int, string) {
	var verr *validation.RequestValidationError
	switch {
	case errors.Is(err, presence.ErrInvalidSignal), errors.As(err, &verr):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrInvalidShop), errors.Is(err, ErrInvalidBody), errors.Is(err, ErrInvalidRange):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, warehouse.ErrDisabled):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}
