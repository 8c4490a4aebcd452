// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

// WorkerStatus is the process state of a worker as seen by the
// controller.
type WorkerStatus string

const (
	StatusStopped WorkerStatus = "stopped"
	StatusRunning WorkerStatus = "running"
)

// WorkerState is the observer view of one worker: its configuration,
// process status, merged telemetry, and pending task queue.
type WorkerState struct {
	Name      string       `json:"name"`
	Config    WorkerSpec   `json:"config"`
	Status    WorkerStatus `json:"status"`
	Stats     Stats        `json:"stats"`
	TaskQueue []Task       `json:"taskQueue"`
}

// Clone returns a deep copy of s.
func (s WorkerState) Clone() WorkerState {
	return WorkerState{
		Name:      s.Name,
		Config:    s.Config.Clone(),
		Status:    s.Status,
		Stats:     s.Stats.Clone(),
		TaskQueue: CloneTasks(s.TaskQueue),
	}
}

// Changes is the set of top-level fields of a WorkerState that changed
// in one mutation. Stats holds only the changed stats sub-fields.
type Changes struct {
	Status    *WorkerStatus `json:"status,omitempty"`
	Config    *WorkerSpec   `json:"config,omitempty"`
	Stats     *Stats        `json:"stats,omitempty"`
	TaskQueue *[]Task       `json:"taskQueue,omitempty"`
}

// IsEmpty reports whether nothing changed.
func (c Changes) IsEmpty() bool {
	return c.Status == nil && c.Config == nil && c.Stats == nil && c.TaskQueue == nil
}

// Delta names the worker a Changes applies to.
type Delta struct {
	Name    string  `json:"name"`
	Changed Changes `json:"changed"`
}

// Apply folds changes into s: status, config, and task queue are
// replaced; stats are merged field by field.
func (s *WorkerState) Apply(changes Changes) {
	if changes.Status != nil {
		s.Status = *changes.Status
	}
	if changes.Config != nil {
		s.Config = changes.Config.Clone()
	}
	if changes.Stats != nil {
		s.Stats.Merge(*changes.Stats)
	}
	if changes.TaskQueue != nil {
		s.TaskQueue = CloneTasks(*changes.TaskQueue)
	}
}
