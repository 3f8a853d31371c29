// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package services

import (
	"context"
	"time"

	"github.com/tomtom215/storepulse/internal/logging"
)

// Task is one run of periodic work.
type Task func(ctx context.Context) error

// PeriodicService runs a task on a fixed interval until its context is
// canceled. Task errors are logged and the next tick runs as usual, so one
// bad run never takes the service down. The ticker is owned by Serve and is
// stopped on return.
//
// Example usage:
//
//	sweeper := services.NewPeriodicService("presence-sweeper", time.Minute, func(ctx context.Context) error {
//	    _, err := coordinator.SweepAll(ctx)
//	    return err
//	})
//	tree.AddDataService(sweeper)
type PeriodicService struct {
	name     string
	interval time.Duration
	task     Task

	// runOnStart runs the task once before the first tick.
	runOnStart bool
}

// NewPeriodicService creates a periodic service. A non-positive interval
// defaults to one minute.
func NewPeriodicService(name string, interval time.Duration, task Task) *PeriodicService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PeriodicService{
		name:     name,
		interval: interval,
		task:     task,
	}
}

// RunOnStart makes the service run its task immediately when started.
func (p *PeriodicService) RunOnStart() *PeriodicService {
	p.runOnStart = true
	return p
}

// Interval returns the tick interval.
func (p *PeriodicService) Interval() time.Duration {
	return p.interval
}

// Serve implements suture.Service.
func (p *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.runOnStart {
		p.run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *PeriodicService) run(ctx context.Context) {
	start := time.Now()
	err := p.task(ctx)
	if err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Str("service", p.name).Dur("duration", time.Since(start)).Msg("Periodic task failed")
		return
	}
	logging.Debug().Str("service", p.name).Dur("duration", time.Since(start)).Msg("Periodic task finished")
}

// String implements fmt.Stringer for suture's logs.
func (p *PeriodicService) String() string {
	return p.name
}
