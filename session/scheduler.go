package session

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-fleet-portal/internal/clock"
)

// RefreshScheduler holds at most one pending refresh timer. Scheduling
// always cancels the previous timer first.
type RefreshScheduler struct {
	clock   clock.Clock
	margin  time.Duration
	minimum time.Duration
	refresh func()

	mu       sync.Mutex
	timer    *clock.Timer
	fireAt   time.Time
	gen      uint64
	firedGen uint64
}

func NewRefreshScheduler(clk clock.Clock, margin, minimum time.Duration, refresh func()) *RefreshScheduler {
	return &RefreshScheduler{
		clock:   clk,
		margin:  margin,
		minimum: minimum,
		refresh: refresh,
	}
}

// Delay is max(expiresAt - now - margin, minimum).
func (s *RefreshScheduler) Delay(expiresAt time.Time) time.Duration {
	delay := expiresAt.Sub(s.clock.Now()) - s.margin
	if delay < s.minimum {
		return s.minimum
	}
	return delay
}

// Schedule replaces any pending timer with one that fires ahead of expiresAt.
func (s *RefreshScheduler) Schedule(expiresAt time.Time) time.Duration {
	delay := s.Delay(expiresAt)

	s.mu.Lock()
	s.cancelLocked()
	gen := s.gen
	s.fireAt = s.clock.Now().Add(delay)
	s.mu.Unlock()

	timer := s.clock.AfterFunc(delay, func() { s.fire(gen) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// cancelled or rescheduled while the timer was being created
		timer.Stop()
		return delay
	}
	if s.firedGen != gen {
		s.timer = timer
	}
	return delay
}

func (s *RefreshScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *RefreshScheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.fireAt = time.Time{}
	s.gen++
}

func (s *RefreshScheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.fireAt = time.Time{}
	s.firedGen = gen
	s.mu.Unlock()

	s.refresh()
}

// NextFire reports when the pending timer fires.
func (s *RefreshScheduler) NextFire() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fireAt, !s.fireAt.IsZero()
}

func (s *RefreshScheduler) Pending() bool {
	_, ok := s.NextFire()
	return ok
}
