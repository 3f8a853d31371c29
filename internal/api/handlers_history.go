// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/storepulse/internal/warehouse"
)

// Default history windows when from is omitted.
const (
	defaultMinutelyWindow = 24 * time.Hour
	defaultDailyWindow    = 30 * 24 * time.Hour
)

// parseTimeParam accepts RFC 3339 timestamps and YYYY-MM-DD dates (UTC midnight).
func parseTimeParam(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRange, value)
	}
	return t, nil
}

// parseRange reads from and to. to defaults to now, from to to - window.
func parseRange(r *http.Request, now time.Time, window time.Duration) (from, to time.Time, err error) {
	q := r.URL.Query()

	to = now.UTC()
	if v := q.Get("to"); v != "" {
		if to, err = parseTimeParam(v); err != nil {
			return from, to, err
		}
	}
	from = to.Add(-window)
	if v := q.Get("from"); v != "" {
		if from, err = parseTimeParam(v); err != nil {
			return from, to, err
		}
	}
	if from.After(to) {
		return from, to, ErrInvalidRange
	}
	return from, to, nil
}

// HistoryMinutely returns archived minutely rows of a shop.
func (h *Handler) HistoryMinutely(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, r, warehouse.ErrDisabled)
		return
	}
	shop, err := shopParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	from, to, err := parseRange(r, time.Now(), defaultMinutelyWindow)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rows, err := h.history.Minutely(r.Context(), shop, from, to)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, rows)
}

// HistoryDaily returns archived daily rollups of a shop.
func (h *Handler) HistoryDaily(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, r, warehouse.ErrDisabled)
		return
	}
	shop, err := shopParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	from, to, err := parseRange(r, time.Now(), defaultDailyWindow)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rows, err := h.history.Daily(r.Context(), shop, from, to)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, rows)
}
