// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

// Operator socket actions served by gtool-controller. The HTTP
// command endpoint accepts the same names in its "action" field.
const (
	ActionStatus       = "status"
	ActionStart        = "start"
	ActionStop         = "stop"
	ActionSend         = "send"
	ActionConfigUpsert = "config-upsert"
	ActionConfigDelete = "config-delete"
	ActionConfigGet    = "config-get"
	ActionEnqueue      = "enqueue"
	ActionTaskLog      = "task-log"
	ActionTaskHistory  = "task-history"
	ActionScripts      = "scripts"

	// ActionSubscribe is a stream action: after the request the
	// connection carries Event frames until either side closes it.
	// The observer may write StreamControl frames on the same
	// connection to join or leave task log topics.
	ActionSubscribe = "subscribe"
)

// StreamControl actions an observer sends on an open subscribe stream.
const (
	StreamJoin  = "join"
	StreamLeave = "leave"
)

// StreamControl joins or leaves the live log of one task.
type StreamControl struct {
	Action string `json:"action"`
	TaskID string `json:"task_id"`
}

// BroadcastTarget addresses every running worker in a send request.
const BroadcastTarget = "*"

// StatusResponse is the reply to ActionStatus. InFlight maps a worker
// name to the id of the task it is running.
type StatusResponse struct {
	Workers       []WorkerState     `json:"workers"`
	InFlight      map[string]string `json:"in_flight,omitempty"`
	Observers     int               `json:"observers"`
	UptimeSeconds float64           `json:"uptime_seconds"`
}

// MessageResponse acknowledges a mutation with a human-readable line.
type MessageResponse struct {
	Message string `json:"message"`
}

// SendResponse names the workers a command reached.
type SendResponse struct {
	Reached []string `json:"reached"`
}

// UpsertResponse reports whether config-upsert created the worker.
type UpsertResponse struct {
	Created bool   `json:"created"`
	Message string `json:"message"`
}

// TaskLogResponse carries a task log's complete text.
type TaskLogResponse struct {
	Worker string `json:"worker"`
	TaskID string `json:"task_id"`
	Log    string `json:"log"`
}
