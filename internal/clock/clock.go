// Package clock abstracts timers so the refresh scheduler, reconnect loop
// and pollers can be driven deterministically in tests.
package clock

import "time"

type Clock interface {
	Now() time.Time

	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer cancels it.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a cancellable AfterFunc registration.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns false if it already fired or
// was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stopFunc: t.Stop}
}
