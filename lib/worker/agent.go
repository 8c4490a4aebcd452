// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/gtool/lib/binhash"
	"github.com/bureau-foundation/gtool/lib/clock"
	"github.com/bureau-foundation/gtool/lib/gameclient"
	"github.com/bureau-foundation/gtool/lib/ipc"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// StatsInterval is the period of core telemetry reports.
const StatsInterval = 3 * time.Second

// Receiver reads IPC messages in order. *ipc.Channel implements it.
type Receiver interface {
	Receive() (ipc.Message, error)
}

// DialFunc connects to a game server.
type DialFunc func(ctx context.Context, options gameclient.Options) (gameclient.Client, error)

// Dial is the production DialFunc.
func Dial(ctx context.Context, options gameclient.Options) (gameclient.Client, error) {
	conn, err := gameclient.Dial(ctx, options)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config holds an Agent's dependencies. Sender and Receiver carry the
// IPC stream and are required.
type Config struct {
	Sender   ipc.Sender
	Receiver Receiver

	// Registry defaults to Builtin.
	Registry *Registry

	// Dial defaults to Dial.
	Dial DialFunc

	Clock  clock.Clock
	Logger *slog.Logger
}

// Agent runs one worker. Create it with New and call Run once.
type Agent struct {
	sender   ipc.Sender
	receiver Receiver
	registry *Registry
	dial     DialFunc
	clock    clock.Clock
	logger   *slog.Logger

	// Set before the event loop starts and read-only afterwards.
	spec   fleet.WorkerSpec
	client gameclient.Client

	// replies carries nextTask answers from the event loop to the
	// single NextTask caller.
	replies chan ipc.NextTask

	mu             sync.Mutex
	state          string
	spawned        bool
	behaviorLoaded bool
	hungerWarned   bool
	inventory      binhash.Digest
	inventorySent  bool

	behaviors sync.WaitGroup
}

// New returns an Agent for the given configuration.
func New(config Config) *Agent {
	if config.Registry == nil {
		config.Registry = Builtin()
	}
	if config.Dial == nil {
		config.Dial = Dial
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{
		sender:   config.Sender,
		receiver: config.Receiver,
		registry: config.Registry,
		dial:     config.Dial,
		clock:    config.Clock,
		logger:   config.Logger,
		replies:  make(chan ipc.NextTask, 1),
		state:    fleet.StateIdle,
	}
}

// Run waits for the init message, connects, and serves until the
// controller sends stop (nil) or the connection or IPC stream ends
// (an error describing why).
func (a *Agent) Run(ctx context.Context) error {
	message, err := a.receiver.Receive()
	if err != nil {
		return fmt.Errorf("waiting for init: %w", err)
	}
	if message.Type != ipc.TypeInit {
		return fmt.Errorf("first message is %q, want %q", message.Type, ipc.TypeInit)
	}
	if err := message.Decode(&a.spec); err != nil {
		return err
	}
	a.logger = a.logger.With("worker", a.spec.Name)
	a.Status(fmt.Sprintf("Process started. Initializing worker %s", a.spec.Name))

	done := make(chan struct{})
	defer close(done)
	inbound := make(chan ipc.Message)
	inboundErr := make(chan error, 1)
	go a.receive(inbound, inboundErr, done)

	a.Status(fmt.Sprintf("Connecting to %s:%d...", a.spec.Host, a.spec.EffectivePort()))
	if proxy := a.spec.Proxy; proxy != nil {
		a.Log(fmt.Sprintf("Connecting via SOCKS5 proxy %s:%d", proxy.Host, proxy.Port))
	}
	client, err := a.dial(ctx, gameclient.OptionsFromSpec(a.spec, a.logger))
	if err != nil {
		a.Error(fmt.Sprintf("Connection failed: %v", err))
		return err
	}
	a.client = client

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		a.behaviors.Wait()
	}()

	ticker := a.clock.NewTicker(StatsInterval)
	defer ticker.Stop()

	events := client.Events()
	for {
		select {
		case <-ctx.Done():
			client.Quit("worker shutting down")
			return ctx.Err()

		case message := <-inbound:
			if stop := a.handleMessage(message); stop {
				return nil
			}

		case err := <-inboundErr:
			client.Quit("controller went away")
			if errors.Is(err, io.EOF) {
				return errors.New("controller closed the IPC stream")
			}
			return err

		case <-ticker.C:
			a.sendStats()

		case event, ok := <-events:
			if !ok {
				return a.disconnected()
			}
			if err := a.handleEvent(ctx, event); err != nil {
				return err
			}
		}
	}
}

// receive pumps the IPC stream into inbound until it fails.
func (a *Agent) receive(inbound chan<- ipc.Message, inboundErr chan<- error, done <-chan struct{}) {
	for {
		message, err := a.receiver.Receive()
		if err != nil {
			inboundErr <- err
			return
		}
		select {
		case inbound <- message:
		case <-done:
			return
		}
	}
}

// handleMessage reports whether the message was a stop command.
func (a *Agent) handleMessage(message ipc.Message) bool {
	switch message.Type {
	case ipc.TypeCommand:
		var command ipc.Command
		if err := message.Decode(&command); err != nil {
			a.Error(err.Error())
			return false
		}
		return a.execute(command)

	case ipc.TypeNextTask:
		var reply ipc.NextTask
		if err := message.Decode(&reply); err != nil {
			a.Error(err.Error())
			return false
		}
		select {
		case a.replies <- reply:
		default:
			a.logger.Warn("dropping unsolicited nextTask reply")
		}

	case ipc.TypeInit:
		a.logger.Warn("ignoring repeated init message")

	default:
		a.logger.Warn("ignoring unknown IPC message", "type", message.Type)
	}
	return false
}

func (a *Agent) handleEvent(ctx context.Context, event gameclient.Event) error {
	switch event.Type {
	case gameclient.EventLogin:
		a.Status("Connected to server (login accepted).")

	case gameclient.EventSpawn:
		a.mu.Lock()
		a.spawned = true
		a.mu.Unlock()
		a.Status("Spawned in world. Starting stats reporting.")
		a.loadBehavior(ctx)
		a.sendStats()
		a.sendInventory()

	case gameclient.EventVitals:
		a.checkAutomation()

	case gameclient.EventInventory:
		if a.isSpawned() {
			a.sendInventory()
		}

	case gameclient.EventChat:
		if event.Username == a.client.World().Username {
			a.Log("Sent chat: " + event.Message)
		}

	case gameclient.EventKicked:
		a.Error("Kicked! Reason: " + event.Reason)
		return fmt.Errorf("kicked: %s", event.Reason)
	}
	return nil
}

func (a *Agent) disconnected() error {
	reason := a.client.Err()
	if reason == nil {
		reason = errors.New("connection ended")
	}
	a.Status(fmt.Sprintf("Disconnected. Reason: %v", reason))
	return fmt.Errorf("disconnected: %w", reason)
}

// loadBehavior starts the configured behavior once per connection.
// A server transfer can deliver a second spawn; it does not restart
// the behavior.
func (a *Agent) loadBehavior(ctx context.Context) {
	a.mu.Lock()
	loaded := a.behaviorLoaded
	a.behaviorLoaded = true
	a.mu.Unlock()
	if loaded {
		a.Log("Behavior already loaded, not loading it again.")
		return
	}

	name := a.spec.EffectiveBehavior()
	behavior, found := a.registry.Behavior(name)
	if !found {
		a.Error(fmt.Sprintf("Failed to load behavior %q: %v", name, fleet.ErrUnknownBehavior))
		return
	}
	a.Status(fmt.Sprintf("Loading behavior: %s...", name))
	a.behaviors.Add(1)
	go func() {
		defer a.behaviors.Done()
		if err := behavior(ctx, a); err != nil && ctx.Err() == nil {
			a.Error(fmt.Sprintf("Behavior %q failed: %v", name, err))
		}
	}()
	a.Log(fmt.Sprintf("Behavior %q loaded.", name))
}

func (a *Agent) isSpawned() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spawned
}

// Spec returns the worker's configuration.
func (a *Agent) Spec() fleet.WorkerSpec { return a.spec }

// Params returns the behavior parameters from the worker's spec.
func (a *Agent) Params() Params { return Params(a.spec.Params) }

// Client returns the game connection.
func (a *Agent) Client() gameclient.Client { return a.client }

// State returns the state label reported in telemetry.
func (a *Agent) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetState replaces the state label reported in telemetry. Automation
// only runs while the state is fleet.StateIdle.
func (a *Agent) SetState(state string) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

// Status, Log, Warn, and Error relay a line to the controller, which
// shows it to observers under the worker's name.
func (a *Agent) Status(text string) { a.send(ipc.TypeStatus, text) }
func (a *Agent) Log(text string)    { a.send(ipc.TypeLog, text) }
func (a *Agent) Warn(text string)   { a.send(ipc.TypeWarn, text) }
func (a *Agent) Error(text string)  { a.send(ipc.TypeError, text) }

func (a *Agent) send(messageType ipc.MessageType, payload any) {
	if err := ipc.SendPayload(a.sender, messageType, payload); err != nil {
		a.logger.Warn("sending IPC message failed", "type", messageType, "error", err)
	}
}

// Sleep waits for d on the agent's clock, or until ctx is done.
func (a *Agent) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.clock.After(d):
		return nil
	}
}

// NextTask asks the controller for this worker's next queued task and
// waits for the answer. A nil task means the queue is empty. Only one
// goroutine may wait in NextTask at a time.
func (a *Agent) NextTask(ctx context.Context) (*fleet.Task, error) {
	select {
	case <-a.replies:
	default:
	}
	request := ipc.GetNextTask{WorkerName: a.spec.Name}
	if err := ipc.SendPayload(a.sender, ipc.TypeGetNextTask, request); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-a.replies:
		return reply.Task, nil
	}
}

// RunTask runs the task's script and reports the outcome as
// taskComplete or taskFailed. When ctx ends mid-task nothing is
// reported; the controller records the task as lost once the worker
// exits.
func (a *Agent) RunTask(ctx context.Context, task fleet.Task) error {
	a.SetState(fleet.StateBusy)
	a.Status(fmt.Sprintf("BUSY - running task %s", task.ScriptName))
	run := &Task{Task: task, agent: a}
	run.Logf("TASK STARTED: %s (ID: %s)", task.ScriptName, task.ID)

	err := a.runScript(ctx, run)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		run.Logf("TASK FAILED: %s (ID: %s)", task.ScriptName, task.ID)
		run.Logf("error: %v", err)
		a.send(ipc.TypeTaskFailed, ipc.TaskResult{TaskID: task.ID, Error: err.Error()})
		return err
	}
	run.Logf("TASK SUCCEEDED: %s (ID: %s)", task.ScriptName, task.ID)
	a.send(ipc.TypeTaskComplete, ipc.TaskResult{TaskID: task.ID})
	return nil
}

func (a *Agent) runScript(ctx context.Context, run *Task) error {
	script, found := a.registry.Script(run.ScriptName)
	if !found {
		return fmt.Errorf("task script %q: %w", run.ScriptName, fleet.ErrUnknownScript)
	}
	return script(ctx, run)
}
