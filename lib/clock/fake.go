// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only when Advance is called.
// Safe for concurrent use.
//
// Timers fire one at a time, earliest deadline first, with ties broken
// by registration order. The clock reads the deadline of each timer
// while its callback runs, so a callback that schedules a follow-up
// timer inside the advanced window sees it fire in the same Advance.
type FakeClock struct {
	mu       sync.Mutex
	now      time.Time
	pending  []*fakeTimer
	sequence uint64
	changed  *sync.Cond
}

type fakeTimer struct {
	when     time.Time
	sequence uint64
	period   time.Duration
	fire     func(at time.Time)
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{now: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock passes now+d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&fakeTimer{
		when: c.now.Add(d),
		fire: func(at time.Time) { deliver(channel, at) },
	})
	return channel
}

// AfterFunc calls f from Advance once the clock passes now+d. A
// non-positive d calls f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := &fakeTimer{fire: func(time.Time) { f() }}

	c.mu.Lock()
	if d <= 0 {
		c.mu.Unlock()
		f()
	} else {
		timer.when = c.now.Add(d)
		c.addLocked(timer)
		c.mu.Unlock()
	}

	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.removeLocked(timer)
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasPending := c.removeLocked(timer)
			timer.when = c.now.Add(d)
			c.addLocked(timer)
			return wasPending
		},
	}
}

// NewTicker returns a ticker that fires every d of advanced time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	channel := make(chan time.Time, 1)
	timer := &fakeTimer{
		period: d,
		fire:   func(at time.Time) { deliver(channel, at) },
	}

	c.mu.Lock()
	timer.when = c.now.Add(d)
	c.addLocked(timer)
	c.mu.Unlock()

	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.removeLocked(timer)
		},
	}
}

// Sleep blocks until another goroutine advances the clock past now+d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d, firing every timer whose
// deadline falls inside the window. AfterFunc callbacks run on the
// calling goroutine with no lock held.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.earliestLocked()
		if next == nil || next.when.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		at := next.when
		if at.After(c.now) {
			c.now = at
		}
		c.removeLocked(next)
		if next.period > 0 {
			next.when = at.Add(next.period)
			c.addLocked(next)
		}
		c.mu.Unlock()

		next.fire(at)
	}
}

// WaitForTimers blocks until at least n timers are pending. Call it
// before Advance when another goroutine registers the timer.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of timers that have not fired or
// been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *FakeClock) addLocked(timer *fakeTimer) {
	c.sequence++
	timer.sequence = c.sequence
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

// removeLocked reports whether timer was pending.
func (c *FakeClock) removeLocked(timer *fakeTimer) bool {
	for i, candidate := range c.pending {
		if candidate == timer {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (c *FakeClock) earliestLocked() *fakeTimer {
	var earliest *fakeTimer
	for _, timer := range c.pending {
		if earliest == nil ||
			timer.when.Before(earliest.when) ||
			(timer.when.Equal(earliest.when) && timer.sequence < earliest.sequence) {
			earliest = timer
		}
	}
	return earliest
}

func deliver(channel chan time.Time, at time.Time) {
	select {
	case channel <- at:
	default:
	}
}
