// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// Fataler is the subset of testing.TB the Require helpers use.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// deadline is the single wall-clock fallback shared by the helpers.
func deadline(timeout time.Duration) <-chan time.Time {
	return time.After(timeout) //nolint:realclock test hang prevention
}

// RequireReceive returns the next value on ch. The test fails if ch
// closes or nothing arrives within timeout.
//
//	spawned := testutil.RequireReceive(t, spawner.spawned, 5*time.Second, "waiting for spawn of %s", name)
func RequireReceive[T any](t Fataler, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while %s", describe(msgAndArgs))
		}
		return value
	case <-deadline(timeout):
		t.Fatalf("no value after %v while %s", timeout, describe(msgAndArgs))
	}
	panic("unreachable")
}

// RequireSend delivers value on ch or fails the test after timeout.
func RequireSend[T any](t Fataler, ch chan<- T, value T, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case ch <- value:
	case <-deadline(timeout):
		t.Fatalf("send blocked for %v while %s", timeout, describe(msgAndArgs))
	}
}

// RequireClosed waits for a readiness channel such as
// SocketServer.Ready. A value on ch counts the same as a close.
func RequireClosed(t Fataler, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-deadline(timeout):
		t.Fatalf("channel still open after %v while %s", timeout, describe(msgAndArgs))
	}
}

// RequireMatch drains ch until match accepts a value and returns it.
// Rejected values are dropped. The test fails if ch closes or timeout
// elapses across the whole wait.
//
//	removed := testutil.RequireMatch(t, subscriber.Events(), 5*time.Second,
//		func(event fleet.Event) bool { return event.Type == fleet.EventRemoved },
//		"waiting for bot_removed")
func RequireMatch[T any](t Fataler, ch <-chan T, timeout time.Duration, match func(T) bool, msgAndArgs ...any) T {
	t.Helper()
	expired := deadline(timeout)
	for {
		select {
		case value, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed before a match while %s", describe(msgAndArgs))
			}
			if match(value) {
				return value
			}
		case <-expired:
			t.Fatalf("no match after %v while %s", timeout, describe(msgAndArgs))
		}
	}
}

// describe renders the optional trailing arguments: nothing, a plain
// message, or a format string with its operands.
func describe(msgAndArgs []any) string {
	switch {
	case len(msgAndArgs) == 0:
		return "waiting"
	case len(msgAndArgs) == 1:
		return fmt.Sprint(msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}
