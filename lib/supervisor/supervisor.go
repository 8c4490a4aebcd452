// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor owns the lifecycle of worker processes: spawning,
// routing their messages, and deciding what happens when they exit.
//
// Every running worker has one pump goroutine that reads its inbound
// messages in order and, when the stream ends, runs the exit handler.
// The exit handler resets the worker's runtime state, tells the task
// dispatcher the worker is gone, and then either removes the worker
// (if it was marked for deletion), schedules a reconnect (non-zero exit
// with autoReconnect), or logs why it stays stopped.
//
// Reconnects are clock.AfterFunc timers. The callback re-reads the
// worker's spec from the store at fire time and starts it only if the
// worker still exists and still asks to reconnect, so deleting a
// worker or turning off autoReconnect during the backoff wins.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/gtool/lib/clock"
	"github.com/bureau-foundation/gtool/lib/ipc"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/state"
)

// ErrShuttingDown is returned by Start once Shutdown has begun.
var ErrShuttingDown = errors.New("supervisor is shutting down")

// TaskHandler receives the task protocol messages of every worker.
// lib/dispatch implements it.
type TaskHandler interface {
	// HandleTaskMessage processes a getNextTask, taskComplete,
	// taskFailed, or task_log message. Replies go through reply. It
	// runs on the worker's pump goroutine.
	HandleTaskMessage(worker string, reply ipc.Sender, message ipc.Message)

	// WorkerExited runs from the exit handler after the worker's
	// runtime state has been reset.
	WorkerExited(worker string)
}

// Config configures a Supervisor.
type Config struct {
	Store   *state.Store
	Spawner Spawner
	Tasks   TaskHandler
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Supervisor starts, stops, and restarts workers.
type Supervisor struct {
	store   *state.Store
	spawner Spawner
	tasks   TaskHandler
	clock   clock.Clock
	logger  *slog.Logger

	mu           sync.Mutex
	starting     map[string]bool
	reconnects   map[string]*pendingReconnect
	shuttingDown bool

	// pumps counts running pump goroutines and in-progress starts.
	pumps sync.WaitGroup
}

// New returns a Supervisor. Store and Spawner are required.
func New(config Config) *Supervisor {
	if config.Store == nil || config.Spawner == nil {
		panic("supervisor: Config.Store and Config.Spawner are required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Supervisor{
		store:      config.Store,
		spawner:    config.Spawner,
		tasks:      config.Tasks,
		clock:      config.Clock,
		logger:     config.Logger,
		starting:   make(map[string]bool),
		reconnects: make(map[string]*pendingReconnect),
	}
}

// Start spawns the named worker with its current spec, sends it init,
// and marks it running. It fails with fleet.ErrNotFound for an unknown
// worker and fleet.ErrAlreadyRunning when the worker has a process or
// a start is already in progress. A manual start cancels a pending
// reconnect. A spawn failure is reported to observers and not retried.
func (s *Supervisor) Start(name string) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	spec, exists := s.store.Spec(name)
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("worker %q: %w", name, fleet.ErrNotFound)
	}
	if s.starting[name] || s.store.Handle(name) != nil {
		s.mu.Unlock()
		return fmt.Errorf("worker %q: %w", name, fleet.ErrAlreadyRunning)
	}
	s.starting[name] = true
	s.cancelReconnectLocked(name)
	s.pumps.Add(1)
	s.mu.Unlock()

	process, err := s.spawn(spec)

	s.mu.Lock()
	delete(s.starting, name)
	s.mu.Unlock()

	if err != nil {
		s.pumps.Done()
		return err
	}

	go s.pump(name, process)
	s.logger.Info("worker started", "worker", name, "pid", process.Pid())
	s.store.Log(fleet.ControllerPrefix, fleet.LevelStatus, fmt.Sprintf("%s started (pid %d)", name, process.Pid()))
	return nil
}

// spawn starts the process, delivers init, and records the handle.
// Every failure after the process exists kills and reaps it.
func (s *Supervisor) spawn(spec fleet.WorkerSpec) (Process, error) {
	process, err := s.spawner.Spawn(spec)
	if err != nil {
		s.reportSpawnFailure(spec.Name, err)
		return nil, fmt.Errorf("spawning worker %q: %w", spec.Name, err)
	}

	abandon := func() {
		process.Kill()
		for range process.Inbound() {
		}
		process.Wait()
	}

	init, err := ipc.NewMessage(ipc.TypeInit, spec)
	if err == nil {
		err = process.Send(init)
	}
	if err != nil {
		abandon()
		s.reportSpawnFailure(spec.Name, err)
		return nil, fmt.Errorf("initializing worker %q: %w", spec.Name, err)
	}

	if err := s.store.MarkStarted(spec.Name, process); err != nil {
		// The worker was deleted while it was being spawned.
		abandon()
		return nil, err
	}
	return process, nil
}

func (s *Supervisor) reportSpawnFailure(name string, err error) {
	s.logger.Error("worker spawn failed", "worker", name, "error", err)
	s.store.Log(fleet.ControllerPrefix, fleet.LevelError, fmt.Sprintf("failed to start %s: %v", name, err))
}

// Stop asks the worker to exit by sending the stop command. It does not
// force-kill: the exit handler performs the state transition once the
// process is gone. Stopping a worker that is waiting to reconnect
// cancels the reconnect instead.
func (s *Supervisor) Stop(name string) error {
	process := s.process(name)
	if process == nil {
		s.mu.Lock()
		cancelled := s.cancelReconnectLocked(name)
		s.mu.Unlock()
		if cancelled {
			s.store.Log(fleet.ControllerPrefix, fleet.LevelStatus, fmt.Sprintf("%s: pending reconnect cancelled", name))
			return nil
		}
		return fmt.Errorf("worker %q: %w", name, fleet.ErrNotRunning)
	}
	if err := sendCommand(process, "stop", nil); err != nil {
		return fmt.Errorf("stopping worker %q: %w", name, err)
	}
	s.store.Log(fleet.ControllerPrefix, fleet.LevelStatus, fmt.Sprintf("stop sent to %s", name))
	return nil
}

// Delete removes a worker. A stopped worker is removed immediately; a
// running one is marked, stopped, and removed by its exit handler. Any
// pending reconnect is cancelled either way. A stop that cannot be
// sent is logged, not returned.
func (s *Supervisor) Delete(name string) error {
	s.mu.Lock()
	s.cancelReconnectLocked(name)
	s.mu.Unlock()

	deferred, err := s.store.MarkForDeletion(name)
	if err != nil {
		return err
	}
	if !deferred {
		s.logger.Info("worker deleted", "worker", name)
		s.store.Log(fleet.ControllerPrefix, fleet.LevelStatus, fmt.Sprintf("%s deleted", name))
		return nil
	}
	// The mark is set, so the exit handler removes the worker whether
	// or not the stop reaches it.
	if err := s.Stop(name); err != nil && !errors.Is(err, fleet.ErrNotRunning) {
		s.logger.Warn("stop for deleted worker not delivered", "worker", name, "error", err)
		s.store.Log(fleet.ControllerPrefix, fleet.LevelWarn, fmt.Sprintf("%s marked for deletion; stop not delivered: %v", name, err))
	}
	return nil
}

// SendCommand delivers a command to one running worker.
func (s *Supervisor) SendCommand(name, command string, args []string) error {
	process := s.process(name)
	if process == nil {
		return fmt.Errorf("worker %q: %w", name, fleet.ErrNotRunning)
	}
	if err := sendCommand(process, command, args); err != nil {
		return fmt.Errorf("sending %s to %q: %w", command, name, err)
	}
	return nil
}

// Broadcast delivers a command to every running worker and returns the
// names it reached.
func (s *Supervisor) Broadcast(command string, args []string) []string {
	var reached []string
	for _, name := range s.store.RunningNames() {
		if err := s.SendCommand(name, command, args); err != nil {
			s.logger.Warn("broadcast command not delivered", "worker", name, "command", command, "error", err)
			continue
		}
		reached = append(reached, name)
	}
	return reached
}

// ReconnectPending reports whether a reconnect timer is armed for the
// worker.
func (s *Supervisor) ReconnectPending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, pending := s.reconnects[name]
	return pending
}

// Shutdown cancels every reconnect, asks every running worker to stop,
// and waits for them to exit. Workers still running when ctx is done
// have their process group killed. Shutdown returns once every pump
// has finished.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.shuttingDown = true
	for name := range s.reconnects {
		s.cancelReconnectLocked(name)
	}
	s.mu.Unlock()

	for _, name := range s.store.RunningNames() {
		if process := s.process(name); process != nil {
			if err := sendCommand(process, "stop", nil); err != nil {
				s.logger.Warn("stop not delivered during shutdown", "worker", name, "error", err)
			}
		}
	}

	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	for _, name := range s.store.RunningNames() {
		if process := s.process(name); process != nil {
			s.logger.Warn("killing worker that did not stop in time", "worker", name, "pid", process.Pid())
			process.Kill()
		}
	}
	<-done
}

func (s *Supervisor) process(name string) Process {
	process, _ := s.store.Handle(name).(Process)
	return process
}

func sendCommand(process Process, command string, args []string) error {
	message, err := ipc.NewMessage(ipc.TypeCommand, ipc.Command{Command: command, Args: args})
	if err != nil {
		return err
	}
	return process.Send(message)
}

// pump routes the worker's messages until its stream ends, then runs
// the exit handler.
func (s *Supervisor) pump(name string, process Process) {
	defer s.pumps.Done()
	for message := range process.Inbound() {
		s.route(name, process, message)
	}
	s.handleExit(name, process.Wait())
}

func (s *Supervisor) route(name string, process Process, message ipc.Message) {
	switch message.Type {
	case ipc.TypeStatus, ipc.TypeLog, ipc.TypeWarn, ipc.TypeError:
		text, err := message.Text()
		if err != nil {
			s.logger.Warn("undecodable worker log line", "worker", name, "error", err)
			return
		}
		s.store.Log(name, string(message.Type), text)

	case ipc.TypeStats:
		var stats fleet.Stats
		if err := message.Decode(&stats); err != nil {
			s.logger.Warn("undecodable worker stats", "worker", name, "error", err)
			return
		}
		if stats.NearbyEntities != nil {
			nearest := fleet.NearestEntities(*stats.NearbyEntities)
			stats.NearbyEntities = &nearest
		}
		s.store.MergeStats(name, stats)

	case ipc.TypeGetNextTask, ipc.TypeTaskComplete, ipc.TypeTaskFailed, ipc.TypeTaskLog:
		if s.tasks == nil {
			s.logger.Warn("task message with no task handler", "worker", name, "type", message.Type)
			return
		}
		s.tasks.HandleTaskMessage(name, process, message)

	default:
		s.logger.Warn("ignoring unknown worker message", "worker", name, "type", message.Type)
	}
}

func (s *Supervisor) handleExit(name string, exitCode int) {
	info, err := s.store.MarkExited(name)
	if err != nil {
		s.logger.Error("exit of untracked worker", "worker", name, "exit_code", exitCode, "error", err)
		return
	}
	if s.tasks != nil {
		s.tasks.WorkerExited(name)
	}

	switch {
	case info.Removed:
		s.logger.Info("worker deleted after exit", "worker", name, "exit_code", exitCode)
		s.store.Log(fleet.ControllerPrefix, fleet.LevelStatus, fmt.Sprintf("%s stopped and deleted", name))

	case exitCode != 0 && info.Spec.AutoReconnect:
		delay := info.Spec.ReconnectDelayDuration()
		if s.scheduleReconnect(name) {
			s.logger.Info("worker exited, reconnect scheduled", "worker", name, "exit_code", exitCode, "delay", delay)
			s.store.Log(fleet.ControllerPrefix, fleet.LevelWarn, fmt.Sprintf("%s exited with code %d, reconnecting in %s", name, exitCode, delay))
		}

	case exitCode == 0:
		s.logger.Info("worker stopped", "worker", name)
		s.store.Log(fleet.ControllerPrefix, fleet.LevelStatus, fmt.Sprintf("%s stopped", name))

	default:
		s.logger.Warn("worker exited and will not reconnect", "worker", name, "exit_code", exitCode)
		s.store.Log(fleet.ControllerPrefix, fleet.LevelWarn, fmt.Sprintf("%s exited with code %d and will not reconnect", name, exitCode))
	}
}

// scheduleReconnect arms the reconnect timer with the worker's current
// backoff. Returns false during shutdown.
func (s *Supervisor) scheduleReconnect(name string) bool {
	spec, exists := s.store.Spec(name)
	if !exists {
		return false
	}
	delay := spec.ReconnectDelayDuration()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return false
	}
	s.cancelReconnectLocked(name)
	pending := &pendingReconnect{}
	pending.timer = s.clock.AfterFunc(delay, func() { s.reconnect(name, pending) })
	s.reconnects[name] = pending
	return true
}

// pendingReconnect identifies one armed reconnect. The timer callback
// compares its own pointer against the map entry to detect that it was
// cancelled or superseded after it started firing.
type pendingReconnect struct {
	timer *clock.Timer
}

// reconnect is the timer callback. The store is re-read here rather
// than when the timer was armed.
func (s *Supervisor) reconnect(name string, pending *pendingReconnect) {
	s.mu.Lock()
	if s.reconnects[name] != pending {
		// Cancelled or superseded after the timer fired.
		s.mu.Unlock()
		return
	}
	delete(s.reconnects, name)
	s.mu.Unlock()

	spec, exists := s.store.Spec(name)
	if !exists {
		s.logger.Info("worker removed during reconnect backoff", "worker", name)
		return
	}
	if !spec.AutoReconnect {
		s.logger.Info("autoReconnect disabled during backoff", "worker", name)
		return
	}
	s.store.Log(fleet.ControllerPrefix, fleet.LevelStatus, fmt.Sprintf("reconnecting %s", name))
	if err := s.Start(name); err != nil && !errors.Is(err, fleet.ErrAlreadyRunning) {
		s.logger.Warn("reconnect failed", "worker", name, "error", err)
	}
}

// cancelReconnectLocked stops a pending reconnect timer. Must be called
// with s.mu held. Reports whether one was pending.
func (s *Supervisor) cancelReconnectLocked(name string) bool {
	pending, exists := s.reconnects[name]
	if !exists {
		return false
	}
	pending.timer.Stop()
	delete(s.reconnects, name)
	return true
}
