// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"maps"
	"time"
)

// TaskStatus is the lifecycle label of a task. Tasks inside a queue are
// always TaskQueued; the other values appear in history records and
// observer log lines after the task has left the queue.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskDispatched TaskStatus = "dispatched"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"

	// TaskLost marks a task that was dispatched to a worker whose
	// process exited before reporting an outcome. Dispatch removes a
	// task from the queue before delivering it, so such a task is not
	// retried.
	TaskLost TaskStatus = "lost"
)

// Task is one unit of queued work for a worker. ID is stable across
// controller restarts because queues are persisted with their tasks.
type Task struct {
	ID         string         `json:"id"`
	ScriptName string         `json:"scriptName"`
	Params     map[string]any `json:"params,omitempty"`
	Status     TaskStatus     `json:"status"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
}

// Clone returns a copy with its own Params map.
func (t Task) Clone() Task {
	clone := t
	clone.Params = maps.Clone(t.Params)
	return clone
}

// CloneTasks copies a queue. The result is never nil so an empty queue
// encodes as [] rather than null.
func CloneTasks(tasks []Task) []Task {
	clone := make([]Task, len(tasks))
	for i, task := range tasks {
		clone[i] = task.Clone()
	}
	return clone
}
