// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/gtool/lib/broadcast"
	"github.com/bureau-foundation/gtool/lib/codec"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// frameWriteTimeout bounds one frame write to a socket observer. An
// observer that stops reading is disconnected rather than left to
// hold a subscriber slot.
const frameWriteTimeout = 10 * time.Second

// streamEvents delivers the subscribe stream through send until ctx is
// done or send fails. The first frame is a full_state; task log lines
// are delivered for the task ids in tasks and for topics joined later
// through controls, which may be nil. When the subscriber's buffer
// overflowed, its backlog is discarded and replaced by a resync frame
// and a fresh full_state.
func (c *Controller) streamEvents(ctx context.Context, tasks []string, controls <-chan fleet.StreamControl, send func(fleet.Event) error) error {
	subscriber := c.store.Subscribe()
	defer c.store.Unsubscribe(subscriber)

	hub := c.store.Hub()
	for _, taskID := range tasks {
		if taskID != "" {
			hub.Join(subscriber, fleet.TaskTopic(taskID))
		}
	}

	heartbeat := c.clock.NewTicker(c.config.Stream.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-heartbeat.C:
			if err := send(fleet.Event{Type: fleet.EventHeartbeat}); err != nil {
				return err
			}

		case control := <-controls:
			if problem := applyControl(hub, subscriber, control); problem != "" {
				if err := send(fleet.Event{Type: fleet.EventError, Message: problem}); err != nil {
					return err
				}
			}

		case event := <-subscriber.Events():
			if subscriber.TakeResync() {
				c.logger.Warn("observer fell behind, resyncing")
				c.store.Resync(subscriber)
				continue
			}
			if err := send(event); err != nil {
				return err
			}
		}
	}
}

// applyControl joins or leaves a task topic. It returns a description
// of what was wrong with a malformed control frame.
func applyControl(hub *broadcast.Hub, subscriber *broadcast.Subscriber, control fleet.StreamControl) string {
	if control.TaskID == "" {
		return fmt.Sprintf("%s: task_id: %v", control.Action, fleet.ErrMissingField)
	}
	switch control.Action {
	case fleet.StreamJoin:
		hub.Join(subscriber, fleet.TaskTopic(control.TaskID))
	case fleet.StreamLeave:
		hub.Leave(subscriber, fleet.TaskTopic(control.TaskID))
	default:
		return fmt.Sprintf("unknown stream control %q", control.Action)
	}
	return ""
}

// subscribeRequest holds the fields of the "subscribe" action.
type subscribeRequest struct {
	Tasks []string `json:"tasks,omitempty"`
}

// handleSubscribe is the socket form of the event stream. Frames are
// CBOR-encoded fleet.Event values. The observer's frames are read as
// StreamControl values; the stream ends when the observer disconnects,
// which the read side notices.
func (c *Controller) handleSubscribe(ctx context.Context, raw []byte, conn net.Conn) {
	var request subscribeRequest
	encoder := codec.NewEncoder(conn)
	if err := codec.Unmarshal(raw, &request); err != nil {
		encoder.Encode(fleet.Event{Type: fleet.EventError, Message: "invalid subscribe request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	controls := make(chan fleet.StreamControl)
	go func() {
		defer cancel()
		decoder := codec.NewDecoder(conn)
		for {
			var control fleet.StreamControl
			if err := decoder.Decode(&control); err != nil {
				return
			}
			select {
			case controls <- control:
			case <-ctx.Done():
				return
			}
		}
	}()

	err := c.streamEvents(ctx, request.Tasks, controls, func(event fleet.Event) error {
		conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
		return encoder.Encode(event)
	})
	if err != nil {
		c.logger.Debug("socket observer disconnected", "error", err)
	}
}
