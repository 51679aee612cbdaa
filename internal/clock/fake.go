package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when Advance is called.
// AfterFunc callbacks run synchronously inside Advance, in deadline order,
// without the clock lock held, so callbacks may schedule new timers.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
	changed *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
	callback func()
	interval time.Duration
	stopped  bool
	fired    bool
}

var _ Clock = (*FakeClock)(nil)

func NewFake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.addLocked(&fakeWaiter{deadline: c.current.Add(d), channel: ch})
	return ch
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	w := &fakeWaiter{deadline: c.current.Add(d), callback: f}
	if d <= 0 {
		w.fired = true
		c.mu.Unlock()
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}
	c.addLocked(w)
	c.mu.Unlock()

	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.stopped || w.fired {
			return false
		}
		w.stopped = true
		c.changed.Broadcast()
		return true
	}}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &fakeWaiter{deadline: c.current.Add(d), channel: ch, interval: d}
	c.addLocked(w)
	return &Ticker{C: ch, stopFunc: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		w.stopped = true
		c.changed.Broadcast()
	}}
}

// Advance moves time forward by d and fires every waiter whose deadline has
// been reached. Channel sends never block; a full ticker channel drops the tick.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		toFire := c.collectExpired(target)
		if len(toFire) == 0 {
			return
		}
		for _, w := range toFire {
			if w.callback != nil {
				w.callback()
				continue
			}
			select {
			case w.channel <- target:
			default:
			}
		}
	}
}

func (c *FakeClock) collectExpired(target time.Time) []*fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toFire, remaining []*fakeWaiter
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if !w.deadline.After(target) {
			toFire = append(toFire, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	sort.SliceStable(toFire, func(i, j int) bool {
		return toFire[i].deadline.Before(toFire[j].deadline)
	})
	for _, w := range toFire {
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
			remaining = append(remaining, w)
		} else {
			w.fired = true
		}
	}
	c.waiters = remaining
	c.changed.Broadcast()
	return toFire
}

// WaitForTimers blocks until at least n waiters are pending. It closes the
// race between a goroutine registering a timer and the test advancing time.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of live (not stopped, not fired) waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

// NextDeadline reports the earliest pending deadline.
func (c *FakeClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var next time.Time
	found := false
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if !found || w.deadline.Before(next) {
			next, found = w.deadline, true
		}
	}
	return next, found
}

func (c *FakeClock) addLocked(w *fakeWaiter) {
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
