// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

// Package ema smooths the raw active-visitor count of a storefront with two
// exponential moving averages and classifies the direction of change.
//
// Samples arrive at irregular intervals, so the smoothing coefficient is
// derived from the elapsed time rather than fixed:
//
//	alpha = 1 - exp(-dt / tau)
//
// A fast average (tau 10s) follows the count closely; a slow average (tau 60s)
// approximates the recent baseline. Their relative difference decides the
// trend:
//
//	ratio = (fast - slow) / slow
//	ratio >  threshold  -> increasing
//	ratio < -threshold  -> decreasing
//	otherwise           -> stable (also when slow is zero)
//
// Everything in this package is pure. Persistence of State belongs to the
// presence store.
package ema
