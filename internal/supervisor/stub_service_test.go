// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package supervisor

import (
	"context"
	"errors"
	"sync"
)

var errSimulated = errors.New("simulated failure")

// stubService returns its scripted outcomes one per start, then blocks
// until the supervisor cancels it.
type stubService struct {
	name string

	mu       sync.Mutex
	outcomes []error
	starts   int32
}

func newStub(name string, outcomes ...error) *stubService {
	return &stubService{name: name, outcomes: outcomes}
}

func (s *stubService) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.starts++
	var next error
	scripted := len(s.outcomes) > 0
	if scripted {
		next, s.outcomes = s.outcomes[0], s.outcomes[1:]
	}
	s.mu.Unlock()

	if scripted {
		return next
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubService) StartCount() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *stubService) String() string { return s.name }
