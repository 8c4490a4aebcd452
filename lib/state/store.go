// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package state holds the controller's single source of truth: every
// worker's spec, process status, merged telemetry, and task queue.
//
// All mutations run under one mutex and publish their event to the
// broadcast hub before releasing it, so observers see state events in
// exactly the order the mutations were applied. Folding those events
// onto an empty fleet.View reproduces Snapshot. Subscribe registers a
// subscriber and queues its initial full_state under the same lock,
// which makes the snapshot and the first delta after it contiguous.
//
// The store never performs I/O. Persistence is driven through the
// ConfigChanged and QueueChanged hooks, which are expected to only
// mark a persist.Flusher dirty.
package state

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/bureau-foundation/gtool/lib/broadcast"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// Handle is a running worker process as seen by the store. The
// supervisor owns the concrete type.
type Handle interface {
	Pid() int
}

// Config configures a Store.
type Config struct {
	Hub    *broadcast.Hub
	Logger *slog.Logger

	// ConfigChanged is called, with the store lock held, after any
	// mutation that changes the persisted fleet file.
	ConfigChanged func()

	// QueueChanged is called, with the store lock held, after any
	// mutation that changes the persisted queue file.
	QueueChanged func()
}

type entry struct {
	spec              fleet.WorkerSpec
	status            fleet.WorkerStatus
	stats             fleet.Stats
	queue             []fleet.Task
	handle            Handle
	markedForDeletion bool
}

func (e *entry) view() fleet.WorkerState {
	return fleet.WorkerState{
		Name:      e.spec.Name,
		Config:    e.spec.Clone(),
		Status:    e.status,
		Stats:     e.stats.Clone(),
		TaskQueue: fleet.CloneTasks(e.queue),
	}
}

// Store is the fleet registry.
type Store struct {
	hub           *broadcast.Hub
	logger        *slog.Logger
	configChanged func()
	queueChanged  func()

	mu      sync.Mutex
	order   []string
	entries map[string]*entry
}

// New returns an empty Store.
func New(config Config) *Store {
	if config.Hub == nil {
		config.Hub = broadcast.NewHub()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ConfigChanged == nil {
		config.ConfigChanged = func() {}
	}
	if config.QueueChanged == nil {
		config.QueueChanged = func() {}
	}
	return &Store{
		hub:           config.Hub,
		logger:        config.Logger,
		configChanged: config.ConfigChanged,
		queueChanged:  config.QueueChanged,
		entries:       make(map[string]*entry),
	}
}

// Hub returns the broadcast hub the store publishes to.
func (s *Store) Hub() *broadcast.Hub { return s.hub }

// Load replaces the store's content with specs and their queues, as
// read from disk at startup. Every worker starts stopped. Queues for
// names not in specs are dropped with a warning; dropping them marks
// the queue file dirty so the next flush removes them. Load emits a
// full_state event.
func (s *Store) Load(specs []fleet.WorkerSpec, queues map[string][]fleet.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.entries = make(map[string]*entry, len(specs))
	for _, spec := range specs {
		if _, exists := s.entries[spec.Name]; exists {
			continue
		}
		s.order = append(s.order, spec.Name)
		s.entries[spec.Name] = &entry{
			spec:   spec.Clone(),
			status: fleet.StatusStopped,
			queue:  fleet.CloneTasks(queues[spec.Name]),
		}
	}

	orphaned := false
	for name, queue := range queues {
		if _, exists := s.entries[name]; !exists {
			s.logger.Warn("dropping queue for unknown worker", "worker", name, "tasks", len(queue))
			orphaned = true
		}
	}
	if orphaned {
		s.queueChanged()
	}

	s.hub.Publish(fleet.Event{Type: fleet.EventFullState, Workers: s.snapshotLocked()})
}

// Upsert adds a worker or replaces an existing worker's spec. A new
// worker emits bot_added; a changed spec emits a config delta; an
// identical spec emits nothing. Upserting a worker that was marked for
// deletion cancels the deletion. Reports whether the worker is new.
func (s *Store) Upsert(spec fleet.WorkerSpec) (bool, error) {
	if err := spec.Validate(); err != nil {
		return false, err
	}
	spec = spec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[spec.Name]
	if !exists {
		created := &entry{spec: spec, status: fleet.StatusStopped, queue: []fleet.Task{}}
		s.order = append(s.order, spec.Name)
		s.entries[spec.Name] = created
		state := created.view()
		s.hub.Publish(fleet.Event{Type: fleet.EventAdded, Worker: &state})
		s.configChanged()
		return true, nil
	}

	current.markedForDeletion = false
	if reflect.DeepEqual(current.spec, spec) {
		return false, nil
	}
	current.spec = spec
	config := spec.Clone()
	s.publishDeltaLocked(spec.Name, fleet.Changes{Config: &config})
	s.configChanged()
	return false, nil
}

// Get returns a copy of one worker's state.
func (s *Store) Get(name string) (fleet.WorkerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.entries[name]
	if !exists {
		return fleet.WorkerState{}, false
	}
	return current.view(), true
}

// Spec returns a copy of one worker's spec.
func (s *Store) Spec(name string) (fleet.WorkerSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.entries[name]
	if !exists {
		return fleet.WorkerSpec{}, false
	}
	return current.spec.Clone(), true
}

// Names returns every worker name in insertion order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// RunningNames returns the names of workers with a process handle.
func (s *Store) RunningNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, name := range s.order {
		if s.entries[name].handle != nil {
			names = append(names, name)
		}
	}
	return names
}

// Handle returns the worker's process handle, or nil when it is not
// running or does not exist.
func (s *Store) Handle(name string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, exists := s.entries[name]; exists {
		return current.handle
	}
	return nil
}

// MarkStarted records handle as the worker's process and sets its
// status to running.
func (s *Store) MarkStarted(name string, handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("worker %q: %w", name, fleet.ErrNotFound)
	}
	if current.handle != nil {
		return fmt.Errorf("worker %q: %w", name, fleet.ErrAlreadyRunning)
	}
	current.handle = handle
	current.status = fleet.StatusRunning
	running := fleet.StatusRunning
	s.publishDeltaLocked(name, fleet.Changes{Status: &running})
	return nil
}

// ExitInfo is what the exit handler needs to decide what happens after
// a worker's process is gone.
type ExitInfo struct {
	Spec    fleet.WorkerSpec
	Removed bool
}

// MarkExited clears the worker's process handle, sets its status to
// stopped, and resets its volatile stats, emitting one delta for all
// of it. A worker marked for deletion is removed under the same lock
// and ExitInfo.Removed is set, so no Start can claim it in between.
func (s *Store) MarkExited(name string) (ExitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[name]
	if !exists {
		return ExitInfo{}, fmt.Errorf("worker %q: %w", name, fleet.ErrNotFound)
	}
	current.handle = nil

	var changes fleet.Changes
	if current.status != fleet.StatusStopped {
		current.status = fleet.StatusStopped
		stopped := fleet.StatusStopped
		changes.Status = &stopped
	}
	if reset := current.stats.ResetVolatile(); !reset.IsEmpty() {
		changes.Stats = &reset
	}
	if !changes.IsEmpty() {
		s.publishDeltaLocked(name, changes)
	}
	info := ExitInfo{Spec: current.spec.Clone(), Removed: current.markedForDeletion}
	if info.Removed {
		s.removeLocked(name)
	}
	return info, nil
}

// MarkForDeletion deletes a worker. A stopped worker is removed
// immediately and MarkForDeletion returns false. A running worker is
// only marked, returning true; the exit handler removes it once its
// process is gone.
func (s *Store) MarkForDeletion(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[name]
	if !exists {
		return false, fmt.Errorf("worker %q: %w", name, fleet.ErrNotFound)
	}
	if current.handle != nil {
		current.markedForDeletion = true
		return true, nil
	}
	s.removeLocked(name)
	return false, nil
}

// Remove deletes a stopped worker and its queue and emits bot_removed.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("worker %q: %w", name, fleet.ErrNotFound)
	}
	if current.handle != nil {
		return fmt.Errorf("worker %q: %w", name, fleet.ErrAlreadyRunning)
	}
	s.removeLocked(name)
	return nil
}

func (s *Store) removeLocked(name string) {
	hadQueue := len(s.entries[name].queue) > 0
	delete(s.entries, name)
	for index, candidate := range s.order {
		if candidate == name {
			s.order = append(s.order[:index], s.order[index+1:]...)
			break
		}
	}
	s.hub.Publish(fleet.Event{Type: fleet.EventRemoved, Name: name})
	s.configChanged()
	if hadQueue {
		s.queueChanged()
	}
}

// MergeStats folds a partial stats report into the worker's stats and
// emits a delta carrying only the fields that changed. Reports whether
// anything changed. Stats for unknown workers are ignored.
func (s *Store) MergeStats(name string, partial fleet.Stats) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[name]
	if !exists {
		return false
	}
	changed := current.stats.Merge(partial)
	if changed.IsEmpty() {
		return false
	}
	s.publishDeltaLocked(name, fleet.Changes{Stats: &changed})
	return true
}

// Enqueue appends task to the worker's queue.
func (s *Store) Enqueue(name string, task fleet.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("worker %q: %w", name, fleet.ErrNotFound)
	}
	task = task.Clone()
	task.Status = fleet.TaskQueued
	current.queue = append(current.queue, task)
	s.publishQueueLocked(name, current)
	return nil
}

// Dequeue removes and returns the front of the worker's queue. The
// second result is false when the queue is empty.
func (s *Store) Dequeue(name string) (fleet.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[name]
	if !exists {
		return fleet.Task{}, false, fmt.Errorf("worker %q: %w", name, fleet.ErrNotFound)
	}
	if len(current.queue) == 0 {
		return fleet.Task{}, false, nil
	}
	task := current.queue[0]
	current.queue = append([]fleet.Task(nil), current.queue[1:]...)
	s.publishQueueLocked(name, current)
	return task, true, nil
}

func (s *Store) publishQueueLocked(name string, current *entry) {
	queue := fleet.CloneTasks(current.queue)
	s.publishDeltaLocked(name, fleet.Changes{TaskQueue: &queue})
	s.queueChanged()
}

// Snapshot returns every worker's state in insertion order.
func (s *Store) Snapshot() []fleet.WorkerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []fleet.WorkerState {
	states := make([]fleet.WorkerState, 0, len(s.order))
	for _, name := range s.order {
		states = append(states, s.entries[name].view())
	}
	return states
}

// Specs returns every spec in insertion order, the content of the
// fleet file.
func (s *Store) Specs() []fleet.WorkerSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	specs := make([]fleet.WorkerSpec, 0, len(s.order))
	for _, name := range s.order {
		specs = append(specs, s.entries[name].spec.Clone())
	}
	return specs
}

// Queues returns the non-empty queues, the content of the queue file.
func (s *Store) Queues() map[string][]fleet.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	queues := make(map[string][]fleet.Task)
	for _, name := range s.order {
		if queue := s.entries[name].queue; len(queue) > 0 {
			queues[name] = fleet.CloneTasks(queue)
		}
	}
	return queues
}

// Subscribe registers an observer. Its first frame is a full_state of
// the current fleet; every state event after it follows in order.
func (s *Store) Subscribe() *broadcast.Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscriber := s.hub.Add()
	s.hub.Offer(subscriber, fleet.Event{Type: fleet.EventFullState, Workers: s.snapshotLocked()})
	return subscriber
}

// Unsubscribe removes an observer.
func (s *Store) Unsubscribe(subscriber *broadcast.Subscriber) {
	s.hub.Remove(subscriber)
}

// Resync discards the subscriber's buffered events and queues a resync
// frame followed by a fresh full_state. Stream writers call it after
// Subscriber.TakeResync reports dropped events.
func (s *Store) Resync(subscriber *broadcast.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub.Drain(subscriber)
	s.hub.Offer(subscriber, fleet.Event{Type: fleet.EventResync})
	s.hub.Offer(subscriber, fleet.Event{Type: fleet.EventFullState, Workers: s.snapshotLocked()})
}

// Log publishes a log line to every observer.
func (s *Store) Log(prefix, level, message string) {
	s.hub.Publish(fleet.Event{
		Type: fleet.EventLog,
		Log:  &fleet.LogLine{Prefix: prefix, Message: message, Type: level},
	})
}

// TaskLog publishes a task log line to the observers joined to the
// task's topic.
func (s *Store) TaskLog(line fleet.TaskLogLine) {
	s.hub.PublishTopic(fleet.TaskTopic(line.TaskID), fleet.Event{Type: fleet.EventTaskLog, TaskLog: &line})
}

func (s *Store) publishDeltaLocked(name string, changes fleet.Changes) {
	s.hub.Publish(fleet.Event{Type: fleet.EventDelta, Delta: &fleet.Delta{Name: name, Changed: changes}})
}
