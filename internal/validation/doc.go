// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is built lazily with WithRequiredStructEnabled,
// reports fields by their JSON names and registers the "shopdomain" rule used
// for storefront identifiers:
//
//	type HeartbeatRequest struct {
//	    VisitorID string `json:"visitorId" validate:"required,max=128"`
//	    Shop      string `json:"shop" validate:"required,shopdomain"`
//	    Activity  string `json:"activity" validate:"required,oneof=heartbeat activity unload"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    respondError(w, http.StatusBadRequest, verr.Error())
//	    return
//	}
package validation
