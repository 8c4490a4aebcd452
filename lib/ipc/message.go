// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"fmt"

	"github.com/bureau-foundation/gtool/lib/codec"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// MessageType discriminates Message payloads.
type MessageType string

const (
	// TypeInit carries the worker's full fleet.WorkerSpec. It is the
	// first message a worker receives.
	TypeInit MessageType = "init"

	// TypeCommand carries a Command for the worker to execute.
	TypeCommand MessageType = "command"

	// Free-text lines relayed to observers. The payload is a string.
	TypeStatus MessageType = "status"
	TypeLog    MessageType = "log"
	TypeWarn   MessageType = "warn"
	TypeError  MessageType = "error"

	// TypeStats carries a partial fleet.Stats.
	TypeStats MessageType = "stats"

	// TypeGetNextTask is the worker's pull request (GetNextTask). The
	// controller answers with TypeNextTask.
	TypeGetNextTask MessageType = "getNextTask"
	TypeNextTask    MessageType = "nextTask"

	// Task outcomes. The payload is a TaskResult.
	TypeTaskComplete MessageType = "taskComplete"
	TypeTaskFailed   MessageType = "taskFailed"

	// TypeTaskLog carries one TaskLog line for a running task.
	TypeTaskLog MessageType = "task_log"
)

// Message is one frame on the IPC stream. Payload is decoded lazily
// by the handler for Type.
type Message struct {
	Type    MessageType      `cbor:"type"`
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// NewMessage encodes payload into a Message of the given type. A nil
// payload produces a message without one.
func NewMessage(messageType MessageType, payload any) (Message, error) {
	message := Message{Type: messageType}
	if payload == nil {
		return message, nil
	}
	raw, err := codec.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s payload: %w", messageType, err)
	}
	message.Payload = raw
	return message, nil
}

// Decode unmarshals the payload into target.
func (m Message) Decode(target any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := codec.Unmarshal(m.Payload, target); err != nil {
		return fmt.Errorf("decoding %s payload: %w", m.Type, err)
	}
	return nil
}

// Text decodes the payload of a status, log, warn, or error message.
func (m Message) Text() (string, error) {
	var text string
	if err := m.Decode(&text); err != nil {
		return "", err
	}
	return text, nil
}

// Command is the payload of TypeCommand. Args are whitespace-split
// words following the command name.
type Command struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// GetNextTask is the payload of TypeGetNextTask.
type GetNextTask struct {
	WorkerName string `json:"workerName"`
}

// NextTask is the payload of TypeNextTask. A nil Task means the queue
// is empty, or that the worker already holds a task.
type NextTask struct {
	Task *fleet.Task `json:"task"`
}

// TaskResult is the payload of TypeTaskComplete and TypeTaskFailed.
type TaskResult struct {
	TaskID string `json:"taskId"`
	Error  string `json:"error,omitempty"`
}

// TaskLog is the payload of TypeTaskLog.
type TaskLog struct {
	TaskID  string `json:"taskId"`
	Message string `json:"message"`
}
