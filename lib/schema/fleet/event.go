// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import "time"

// EventType discriminates Event frames.
type EventType string

const (
	// EventFullState carries every worker's state. It is the first
	// frame of every subscription and follows every resync.
	EventFullState EventType = "full_state"

	// EventDelta carries the fields of one worker that changed.
	EventDelta EventType = "bot_delta"

	// EventAdded carries the complete state of a newly configured
	// worker.
	EventAdded EventType = "bot_added"

	// EventRemoved names a worker that no longer exists.
	EventRemoved EventType = "bot_removed"

	// EventLog relays a status, log, warn, or error line from a worker
	// or from the controller itself.
	EventLog EventType = "log"

	// EventTaskLog relays one task log line. Only subscribers that
	// joined the task's topic receive it.
	EventTaskLog EventType = "task_log"

	// EventConfigShow answers a request to fetch a spec for editing.
	EventConfigShow EventType = "config_show_bot"

	// EventResync tells the observer to discard its view. A fresh
	// EventFullState follows immediately.
	EventResync EventType = "resync"

	// EventHeartbeat is a liveness probe with no payload.
	EventHeartbeat EventType = "heartbeat"

	// EventError is a descriptive rejection of observer input, or a
	// terminal stream error.
	EventError EventType = "error"
)

// Levels of a LogLine, matching the IPC message types workers use.
const (
	LevelStatus = "status"
	LevelLog    = "log"
	LevelWarn   = "warn"
	LevelError  = "error"
)

// ControllerPrefix is the LogLine prefix of lines the controller
// emits about itself.
const ControllerPrefix = "CONTROLLER"

// Event is one frame delivered to observers. Type selects which of the
// payload fields is populated. Workers is always encoded so a
// full_state of an empty fleet carries an empty array.
type Event struct {
	Type    EventType     `json:"type"`
	Workers []WorkerState `json:"workers"`
	Delta   *Delta        `json:"delta,omitempty"`
	Worker  *WorkerState  `json:"worker,omitempty"`
	Name    string        `json:"name,omitempty"`
	Log     *LogLine      `json:"log,omitempty"`
	TaskLog *TaskLogLine  `json:"taskLog,omitempty"`
	Config  *WorkerSpec   `json:"config,omitempty"`
	Message string        `json:"message,omitempty"`
}

// LogLine is a free-text line attributed to a worker (Prefix is the
// worker name) or to the controller (Prefix is ControllerPrefix).
type LogLine struct {
	Prefix  string `json:"prefix"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// TaskLogLine is one line of a task's log.
type TaskLogLine struct {
	TaskID  string    `json:"taskId"`
	Worker  string    `json:"worker"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// IsState reports whether the event changes the fleet view. Only state
// events take part in the fold that reconstructs a snapshot.
func (e Event) IsState() bool {
	switch e.Type {
	case EventFullState, EventDelta, EventAdded, EventRemoved:
		return true
	}
	return false
}

// TaskTopic is the broadcast topic carrying a task's log lines.
func TaskTopic(taskID string) string {
	return "task:" + taskID
}
