// Package timeouttest provides a scheduler whose timers fire only on demand.
package timeouttest

import (
	"sync"
	"time"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/timeout"
)

// ManualScheduler records timers and fires them only when told to.
type ManualScheduler struct {
	mu     sync.Mutex
	timers []*ManualTimer
}

// ManualTimer is a timer created by ManualScheduler.
type ManualTimer struct {
	After   time.Duration
	f       func()
	stopped bool
	fired   bool
	mu      *sync.Mutex
}

// AfterFunc records a pending timer.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) timeout.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &ManualTimer{After: d, f: f, mu: &s.mu}
	s.timers = append(s.timers, t)
	return t
}

// Stop cancels the timer.
func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// Pending returns timers that are neither stopped nor fired.
func (s *ManualScheduler) Pending() []*ManualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ManualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// Last returns the most recently created timer.
func (s *ManualScheduler) Last() *ManualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

// FireAll fires every pending timer and returns how many fired.
func (s *ManualScheduler) FireAll() int {
	pending := s.Pending()
	for _, t := range pending {
		t.Fire()
	}
	return len(pending)
}

// Fire runs the callback unless the timer was stopped or already fired.
func (t *ManualTimer) Fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
}

// FireStale runs the callback even if the timer was stopped, modelling a
// runtime timer that fired just before Stop was called.
func (t *ManualTimer) FireStale() {
	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
	t.f()
}
