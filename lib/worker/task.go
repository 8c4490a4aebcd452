// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/gtool/lib/gameclient"
	"github.com/bureau-foundation/gtool/lib/ipc"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// Task is the view of a running task that its Script receives.
type Task struct {
	fleet.Task

	agent *Agent
}

// Client returns the worker's game connection.
func (t *Task) Client() gameclient.Client { return t.agent.client }

// Params returns the parameters the task was enqueued with.
func (t *Task) Params() Params { return Params(t.Task.Params) }

// Log appends a line to the task's log on the controller, which also
// relays it to observers following the task.
func (t *Task) Log(message string) {
	t.agent.send(ipc.TypeTaskLog, ipc.TaskLog{TaskID: t.ID, Message: message})
}

func (t *Task) Logf(format string, args ...any) {
	t.Log(fmt.Sprintf(format, args...))
}

// Sleep waits on the worker's clock. It returns ctx's error when the
// worker is stopping.
func (t *Task) Sleep(ctx context.Context, d time.Duration) error {
	return t.agent.Sleep(ctx, d)
}
