// Package timeutil lets cadence and cooldown logic run against a clock that
// tests can step by hand.
package timeutil

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) NewTicker(d time.Duration) Ticker       { return wallTicker{time.NewTicker(d)} }

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

// MockClock only moves when Advance is called.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

// mockTimer is a pending After channel, or a ticker when period is set.
type mockTimer struct {
	ch      chan time.Time
	when    time.Time
	period  time.Duration
	stopped bool
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After fires once Advance reaches d. A non-positive d fires immediately.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	return c.schedule(d, 0).ch
}

// NewTicker ticks each time Advance crosses a period boundary. Like
// time.Ticker it keeps at most one unread tick.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive ticker period")
	}
	return &mockTicker{clock: c, timer: c.schedule(d, d)}
}

func (c *MockClock) schedule(d, period time.Duration) *mockTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{ch: make(chan time.Time, 1), when: c.now.Add(d), period: period}
	if d <= 0 {
		t.ch <- c.now
		return t
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every timer that came due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)

	live := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		if c.now.Before(t.when) {
			live = append(live, t)
			continue
		}
		select {
		case t.ch <- c.now:
		default:
		}
		if t.period > 0 {
			for !c.now.Before(t.when) {
				t.when = t.when.Add(t.period)
			}
			live = append(live, t)
		}
	}
	c.timers = live
}

// Waiters counts After channels that have not fired.
func (c *MockClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.period == 0 {
			n++
		}
	}
	return n
}

type mockTicker struct {
	clock *MockClock
	timer *mockTimer
}

func (t *mockTicker) C() <-chan time.Time { return t.timer.ch }

func (t *mockTicker) Stop() {
	t.clock.mu.Lock()
	t.timer.stopped = true
	t.clock.mu.Unlock()
}
