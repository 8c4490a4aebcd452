// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets the controller and worker schedule work against an
// injected time source. Reconnect backoff, persistence debounce, stream
// heartbeats, and worker telemetry ticks all take a Clock so tests can
// drive them with Fake instead of sleeping.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	supervisor := supervisor.New(supervisor.Config{Clock: c, ...})
//	// ... worker exits with code 1 ...
//	c.WaitForTimers(1)
//	c.Advance(5 * time.Second) // reconnect fires now
package clock

import "time"

// Clock is the subset of the time package used by gtool components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After delivers the time on the returned channel once d has
	// elapsed. Non-positive durations deliver immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The real clock calls f on
	// its own goroutine; the fake clock calls f from Advance.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks for d.
	Sleep(d time.Duration)
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop  func() bool
	reset func(time.Duration) bool
}

// Stop cancels the call. Reports whether the call was still pending.
func (t *Timer) Stop() bool { return t.stop() }

// Reset reschedules the call to run d from now. Reports whether the
// call was still pending before the reset.
func (t *Timer) Reset(d time.Duration) bool { return t.reset(d) }

// Ticker delivers periodic ticks on C. C has capacity 1; ticks that
// arrive while the previous one is unread are dropped.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stop() }
