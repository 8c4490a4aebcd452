// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/gtool/lib/clock"
	"github.com/bureau-foundation/gtool/lib/history"
	"github.com/bureau-foundation/gtool/lib/ipc"
	"github.com/bureau-foundation/gtool/lib/persist"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/state"
)

// historyTimeout bounds one history write from a worker's pump
// goroutine.
const historyTimeout = 5 * time.Second

// History is the task outcome log. *history.Store satisfies it.
type History interface {
	Record(ctx context.Context, record history.Record) error
	List(ctx context.Context, worker string, limit int) ([]history.Record, error)
}

// Config configures a Dispatcher.
type Config struct {
	Store    *state.Store
	Registry *ScriptRegistry
	Logs     *persist.TaskLogStore

	// History may be nil, in which case outcomes are only logged.
	History History

	Clock  clock.Clock
	Logger *slog.Logger

	// NewID generates task ids. Nil means uuid.NewString.
	NewID func() string
}

// Dispatcher hands queued tasks to workers and records their outcomes.
// It implements supervisor.TaskHandler.
type Dispatcher struct {
	store    *state.Store
	registry *ScriptRegistry
	logs     *persist.TaskLogStore
	history  History
	clock    clock.Clock
	logger   *slog.Logger
	newID    func() string

	mu       sync.Mutex
	inFlight map[string]fleet.Task
}

// New returns a Dispatcher.
func New(config Config) *Dispatcher {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	return &Dispatcher{
		store:    config.Store,
		registry: config.Registry,
		logs:     config.Logs,
		history:  config.History,
		clock:    config.Clock,
		logger:   config.Logger,
		newID:    config.NewID,
		inFlight: make(map[string]fleet.Task),
	}
}

// Enqueue appends a task running scriptName to the worker's queue and
// returns it.
func (d *Dispatcher) Enqueue(worker, scriptName string, params map[string]any) (fleet.Task, error) {
	if _, exists := d.store.Spec(worker); !exists {
		return fleet.Task{}, fmt.Errorf("worker %q: %w", worker, fleet.ErrNotFound)
	}
	if !d.registry.HasTask(scriptName) {
		return fleet.Task{}, fmt.Errorf("script %q: %w", scriptName, fleet.ErrUnknownScript)
	}
	task := fleet.Task{
		ID:         d.newID(),
		ScriptName: scriptName,
		Params:     params,
		Status:     fleet.TaskQueued,
		EnqueuedAt: d.clock.Now().UTC(),
	}
	if err := d.store.Enqueue(worker, task); err != nil {
		return fleet.Task{}, err
	}
	d.logger.Info("task enqueued", "worker", worker, "task_id", task.ID, "script", scriptName)
	return task, nil
}

// InFlight returns the task currently dispatched to worker, if any.
func (d *Dispatcher) InFlight(worker string) (fleet.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	task, exists := d.inFlight[worker]
	return task, exists
}

// TaskLog returns a task's log, decompressing an archived log.
func (d *Dispatcher) TaskLog(worker, taskID string) ([]byte, error) {
	return d.logs.Read(worker, taskID)
}

// History lists recorded task outcomes, newest first.
func (d *Dispatcher) History(ctx context.Context, worker string, limit int) ([]history.Record, error) {
	if d.history == nil {
		return []history.Record{}, nil
	}
	return d.history.List(ctx, worker, limit)
}

// HandleTaskMessage processes one task-protocol message from worker.
// It runs on the worker's pump goroutine, so messages from one worker
// are handled in order.
func (d *Dispatcher) HandleTaskMessage(worker string, reply ipc.Sender, message ipc.Message) {
	switch message.Type {
	case ipc.TypeGetNextTask:
		d.handleGetNextTask(worker, reply, message)
	case ipc.TypeTaskComplete, ipc.TypeTaskFailed:
		d.handleResult(worker, message)
	case ipc.TypeTaskLog:
		d.handleTaskLog(worker, message)
	default:
		d.logger.Warn("not a task message", "worker", worker, "type", message.Type)
	}
}

func (d *Dispatcher) handleGetNextTask(worker string, reply ipc.Sender, message ipc.Message) {
	var request ipc.GetNextTask
	if err := message.Decode(&request); err == nil && request.WorkerName != "" && request.WorkerName != worker {
		// The channel identifies the worker; the payload is advisory.
		d.logger.Warn("getNextTask names another worker", "worker", worker, "claimed", request.WorkerName)
	}

	task, dispatched := d.claim(worker)
	var payload ipc.NextTask
	if dispatched {
		payload.Task = &task
		d.record(worker, task, fleet.TaskDispatched, "")
		d.logger.Info("task dispatched", "worker", worker, "task_id", task.ID, "script", task.ScriptName)
	}
	if err := ipc.SendPayload(reply, ipc.TypeNextTask, payload); err != nil {
		// The task stays in flight; the exit handler records it lost.
		d.logger.Warn("sending nextTask failed", "worker", worker, "error", err)
	}
}

// claim pops the worker's next task and marks it in flight. Returns
// false when the queue is empty or a task is already in flight.
func (d *Dispatcher) claim(worker string) (fleet.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, busy := d.inFlight[worker]; busy {
		d.logger.Warn("getNextTask while a task is in flight", "worker", worker, "task_id", current.ID)
		d.store.Log(worker, fleet.LevelWarn, fmt.Sprintf("asked for a task while %s is still running", current.ID))
		return fleet.Task{}, false
	}
	task, exists, err := d.store.Dequeue(worker)
	if err != nil {
		d.logger.Warn("getNextTask from unknown worker", "worker", worker, "error", err)
		return fleet.Task{}, false
	}
	if !exists {
		return fleet.Task{}, false
	}
	task.Status = fleet.TaskDispatched
	d.inFlight[worker] = task
	return task, true
}

func (d *Dispatcher) handleResult(worker string, message ipc.Message) {
	var result ipc.TaskResult
	if err := message.Decode(&result); err != nil || result.TaskID == "" {
		d.logger.Warn("undecodable task result", "worker", worker, "type", message.Type, "error", err)
		return
	}

	d.mu.Lock()
	task, exists := d.inFlight[worker]
	if exists && task.ID == result.TaskID {
		delete(d.inFlight, worker)
	} else {
		d.logger.Warn("result for a task that is not in flight", "worker", worker, "task_id", result.TaskID)
		task = fleet.Task{ID: result.TaskID}
	}
	d.mu.Unlock()

	status := fleet.TaskCompleted
	if message.Type == ipc.TypeTaskFailed {
		status = fleet.TaskFailed
	}
	d.record(worker, task, status, result.Error)

	if status == fleet.TaskCompleted {
		d.logger.Info("task completed", "worker", worker, "task_id", task.ID)
		d.store.Log(worker, fleet.LevelStatus, fmt.Sprintf("task %s completed", task.ID))
	} else {
		d.logger.Warn("task failed", "worker", worker, "task_id", task.ID, "error", result.Error)
		d.store.Log(worker, fleet.LevelError, fmt.Sprintf("task %s failed: %s", task.ID, result.Error))
	}
	d.archive(worker, task.ID)
}

func (d *Dispatcher) handleTaskLog(worker string, message ipc.Message) {
	var line ipc.TaskLog
	if err := message.Decode(&line); err != nil || line.TaskID == "" {
		d.logger.Warn("undecodable task log line", "worker", worker, "error", err)
		return
	}
	now := d.clock.Now().UTC()
	if err := d.logs.Append(worker, line.TaskID, now, line.Message); err != nil {
		d.logger.Warn("writing task log", "worker", worker, "task_id", line.TaskID, "error", err)
	}
	d.store.TaskLog(fleet.TaskLogLine{
		TaskID:  line.TaskID,
		Worker:  worker,
		Message: line.Message,
		Time:    now,
	})
}

// WorkerExited records the worker's in-flight task, if any, as lost.
func (d *Dispatcher) WorkerExited(worker string) {
	d.mu.Lock()
	task, exists := d.inFlight[worker]
	delete(d.inFlight, worker)
	d.mu.Unlock()
	if !exists {
		return
	}

	d.record(worker, task, fleet.TaskLost, "worker exited before reporting an outcome")
	d.logger.Warn("in-flight task lost", "worker", worker, "task_id", task.ID)
	d.store.Log(fleet.ControllerPrefix, fleet.LevelWarn, fmt.Sprintf("%s exited during task %s; the task is not retried", worker, task.ID))
	d.archive(worker, task.ID)
}

func (d *Dispatcher) record(worker string, task fleet.Task, status fleet.TaskStatus, errorText string) {
	if d.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	err := d.history.Record(ctx, history.Record{
		TaskID:     task.ID,
		Worker:     worker,
		ScriptName: task.ScriptName,
		Status:     status,
		Error:      errorText,
		At:         d.clock.Now().UTC(),
	})
	if err != nil {
		d.logger.Error("recording task history", "worker", worker, "task_id", task.ID, "status", status, "error", err)
	}
}

func (d *Dispatcher) archive(worker, taskID string) {
	if err := d.logs.Archive(worker, taskID); err != nil {
		d.logger.Warn("archiving task log", "worker", worker, "task_id", taskID, "error", err)
	}
}
