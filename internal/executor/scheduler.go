// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package executor

import (
	"sync"
	"time"
)

// Scheduler arms named one-shot timers that fire tasks onto an
// executor. Re-arming a name cancels the pending timer first, which
// gives debounce semantics: only the last schedule within the delay
// window fires.
type Scheduler struct {
	mu     sync.Mutex
	ex     *Executor
	timers map[string]*time.Timer
}

// NewScheduler returns a scheduler that posts fired tasks onto ex.
func NewScheduler(ex *Executor) *Scheduler {
	return &Scheduler{
		ex:     ex,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms (or re-arms) the timer name to post task after d.
func (s *Scheduler) Schedule(name string, d time.Duration, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[name]; ok {
		t.Stop()
	}
	s.timers[name] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, name)
		s.mu.Unlock()
		s.ex.Post(task)
	})
}

// Cancel stops the pending timer name, if armed.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// CancelAll stops every pending timer. Used on shutdown.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
}
