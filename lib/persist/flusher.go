// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/gtool/lib/clock"
)

// DefaultFlushDelay is the flush window used when FlusherConfig.Delay
// is zero.
const DefaultFlushDelay = 500 * time.Millisecond

// FlusherConfig configures a Flusher.
type FlusherConfig struct {
	// Name labels log records ("fleet", "queues").
	Name string

	// Flush writes the current state. It runs on the timer goroutine
	// or, for FlushNow and Close, on the caller's goroutine. Calls
	// never overlap.
	Flush func() error

	// Delay is the window during which MarkDirty calls coalesce.
	Delay time.Duration

	Clock  clock.Clock
	Logger *slog.Logger

	// OnError, when set, is called with every flush error after it is
	// logged. The controller uses it to raise an observer log event.
	OnError func(error)
}

// Flusher batches writes of one state file. MarkDirty arms a single
// timer; every further MarkDirty inside the window rides on it. A
// failed flush leaves the state dirty and is retried by the next
// MarkDirty or FlushNow; failures never re-arm the timer on their own.
type Flusher struct {
	config FlusherConfig

	mu      sync.Mutex
	dirty   bool
	pending *clock.Timer
	closed  bool

	// flushMu serializes Flush calls.
	flushMu sync.Mutex
}

// NewFlusher validates config and returns a Flusher.
func NewFlusher(config FlusherConfig) *Flusher {
	if config.Delay <= 0 {
		config.Delay = DefaultFlushDelay
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Flush == nil {
		panic("persist: FlusherConfig.Flush is required")
	}
	return &Flusher{config: config}
}

// MarkDirty records that the state changed and schedules a flush if
// none is pending. It never blocks on I/O.
func (f *Flusher) MarkDirty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty = true
	if f.closed || f.pending != nil {
		return
	}
	f.pending = f.config.Clock.AfterFunc(f.config.Delay, f.fire)
}

// Dirty reports whether a change is waiting to be written.
func (f *Flusher) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

// FlushNow cancels any pending timer and writes synchronously if the
// state is dirty.
func (f *Flusher) FlushNow() error {
	f.mu.Lock()
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}
	f.mu.Unlock()
	return f.flush()
}

// Close performs a final flush and disables further timers. Later
// MarkDirty calls only record dirtiness.
func (f *Flusher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.FlushNow()
}

func (f *Flusher) fire() {
	f.mu.Lock()
	f.pending = nil
	f.mu.Unlock()
	f.flush()
}

func (f *Flusher) flush() error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	f.mu.Lock()
	if !f.dirty {
		f.mu.Unlock()
		return nil
	}
	// Cleared before writing: a MarkDirty that lands during the write
	// sets it again and arms a new timer.
	f.dirty = false
	f.mu.Unlock()

	if err := f.config.Flush(); err != nil {
		f.mu.Lock()
		f.dirty = true
		f.mu.Unlock()
		f.config.Logger.Error("flush failed", "file", f.config.Name, "error", err)
		if f.config.OnError != nil {
			f.config.OnError(err)
		}
		return err
	}
	return nil
}
