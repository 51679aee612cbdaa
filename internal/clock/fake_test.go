package clock_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-fleet-portal/internal/clock"
	"github.com/stretchr/testify/require"
)

var startTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func TestAfterFuncFiresInDeadlineOrder(t *testing.T) {
	c := clock.NewFake(startTime)
	var fired []string
	c.AfterFunc(3*time.Second, func() { fired = append(fired, "third") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "first") })
	stopped := c.AfterFunc(2*time.Second, func() { fired = append(fired, "stopped") })
	require.Equal(t, 3, c.PendingCount())

	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())

	c.Advance(2 * time.Second)
	require.Equal(t, []string{"first"}, fired)
	c.Advance(time.Second)
	require.Equal(t, []string{"first", "third"}, fired)
	require.Equal(t, 0, c.PendingCount())
	require.Equal(t, startTime.Add(3*time.Second), c.Now())
}

func TestCallbackMaySchedule(t *testing.T) {
	c := clock.NewFake(startTime)
	count := 0
	var schedule func()
	schedule = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, schedule)
		}
	}
	c.AfterFunc(time.Second, schedule)

	c.Advance(time.Second)
	c.Advance(time.Second)
	c.Advance(time.Second)
	require.Equal(t, 3, count)
}

func TestTickerRearms(t *testing.T) {
	c := clock.NewFake(startTime)
	ticker := c.NewTicker(10 * time.Second)

	c.Advance(10 * time.Second)
	require.Equal(t, startTime.Add(10*time.Second), <-ticker.C)

	// a full channel drops the tick
	c.Advance(10 * time.Second)
	c.Advance(10 * time.Second)
	require.Equal(t, startTime.Add(20*time.Second), <-ticker.C)
	select {
	case <-ticker.C:
		t.Fatal("unexpected buffered tick")
	default:
	}

	next, ok := c.NextDeadline()
	require.True(t, ok)
	require.Equal(t, startTime.Add(40*time.Second), next)

	ticker.Stop()
	require.Equal(t, 0, c.PendingCount())
}

func TestAfterAndWaitForTimers(t *testing.T) {
	c := clock.NewFake(startTime)
	done := make(chan time.Time)
	go func() {
		done <- <-c.After(5 * time.Second)
	}()

	c.WaitForTimers(1)
	c.Advance(5 * time.Second)
	require.Equal(t, startTime.Add(5*time.Second), <-done)

	select {
	case <-c.After(0):
	default:
		t.Fatal("zero duration After should be ready")
	}
}
