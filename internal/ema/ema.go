// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package ema

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Trend is the direction of the smoothed visitor count.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Defaults from the production tracker.
const (
	DefaultFastTau   = 10 * time.Second
	DefaultSlowTau   = 60 * time.Second
	DefaultThreshold = 0.05
)

// ErrOutOfOrder is returned when a sample is not newer than the stored state.
// It is a validation failure, not a backend failure.
var ErrOutOfOrder = errors.New("sample timestamp is not after the last recorded timestamp")

// State is the persisted smoothing state of one storefront.
type State struct {
	Shop          string  `json:"shop"`
	LastTimestamp int64   `json:"lastTimestamp"` // unix milliseconds
	EMAFast       float64 `json:"emaFast"`
	EMASlow       float64 `json:"emaSlow"`
	LastRawCount  int     `json:"lastRawCount"`
}

// Result is the outcome of folding one raw sample into the averages.
type Result struct {
	EMAFast   float64
	EMASlow   float64
	Trend     Trend
	RawCount  int
	Timestamp int64 // unix milliseconds
}

// State returns the record to persist for shop after this result.
func (r Result) State(shop string) State {
	return State{
		Shop:          shop,
		LastTimestamp: r.Timestamp,
		EMAFast:       r.EMAFast,
		EMASlow:       r.EMASlow,
		LastRawCount:  r.RawCount,
	}
}

// Counter holds the time constants and the trend threshold.
type Counter struct {
	FastTau   time.Duration
	SlowTau   time.Duration
	Threshold float64
}

// Default returns a Counter with tau 10s/60s and a 5% threshold.
func Default() Counter {
	return Counter{
		FastTau:   DefaultFastTau,
		SlowTau:   DefaultSlowTau,
		Threshold: DefaultThreshold,
	}
}

// Alpha returns the smoothing coefficient for a sample dt seconds after the
// previous one. The result is in (0, 1) for positive inputs and grows with dt.
func Alpha(tau, dt float64) float64 {
	return 1 - math.Exp(-dt/tau)
}

// Step folds sample into current with weight alpha.
func Step(current, sample, alpha float64) float64 {
	return alpha*sample + (1-alpha)*current
}

// ClassifyTrend compares the fast and slow averages.
func ClassifyTrend(fast, slow, threshold float64) Trend {
	if slow == 0 {
		return TrendStable
	}
	ratio := (fast - slow) / slow
	switch {
	case ratio > threshold:
		return TrendIncreasing
	case ratio < -threshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// Update folds raw into prior at ts (unix ms). A nil prior seeds both
// averages with raw. A ts that is not after prior.LastTimestamp returns
// ErrOutOfOrder and no result.
func (c Counter) Update(prior *State, raw int, ts int64) (Result, error) {
	if prior != nil && ts <= prior.LastTimestamp {
		return Result{}, fmt.Errorf("%w: got %d, last %d", ErrOutOfOrder, ts, prior.LastTimestamp)
	}
	return c.fold(prior, raw, ts), nil
}

// Preview computes what the averages would be if raw were observed at ts,
// without requiring ts to advance. It is used for read-side projections
// where the clock may trail the last stored sample. When ts does not advance
// the stored averages are classified as they are.
func (c Counter) Preview(prior *State, raw int, ts int64) Result {
	if prior != nil && ts <= prior.LastTimestamp {
		return Result{
			EMAFast:   prior.EMAFast,
			EMASlow:   prior.EMASlow,
			Trend:     ClassifyTrend(prior.EMAFast, prior.EMASlow, c.threshold()),
			RawCount:  raw,
			Timestamp: ts,
		}
	}
	return c.fold(prior, raw, ts)
}

func (c Counter) fold(prior *State, raw int, ts int64) Result {
	sample := float64(raw)

	if prior == nil {
		return Result{
			EMAFast:   sample,
			EMASlow:   sample,
			Trend:     TrendStable,
			RawCount:  raw,
			Timestamp: ts,
		}
	}

	dt := float64(ts-prior.LastTimestamp) / 1000
	fast := Step(prior.EMAFast, sample, Alpha(c.fastTau(), dt))
	slow := Step(prior.EMASlow, sample, Alpha(c.slowTau(), dt))

	return Result{
		EMAFast:   fast,
		EMASlow:   slow,
		Trend:     ClassifyTrend(fast, slow, c.threshold()),
		RawCount:  raw,
		Timestamp: ts,
	}
}

func (c Counter) fastTau() float64 {
	if c.FastTau <= 0 {
		return DefaultFastTau.Seconds()
	}
	return c.FastTau.Seconds()
}

func (c Counter) slowTau() float64 {
	if c.SlowTau <= 0 {
		return DefaultSlowTau.Seconds()
	}
	return c.SlowTau.Seconds()
}

func (c Counter) threshold() float64 {
	if c.Threshold <= 0 {
		return DefaultThreshold
	}
	return c.Threshold
}
