// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/gtool/lib/clock"
	"github.com/bureau-foundation/gtool/lib/gameclient"
	"github.com/bureau-foundation/gtool/lib/ipc"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/testutil"
)

const testTimeout = 5 * time.Second

// fakeClient records every action as a short text line, such as
// "chat hello" or "control forward true".
type fakeClient struct {
	events  chan gameclient.Event
	actions chan string

	mu       sync.Mutex
	world    gameclient.World
	err      error
	quitOnce sync.Once
}

func newFakeClient(username string) *fakeClient {
	return &fakeClient{
		events:  make(chan gameclient.Event, 16),
		actions: make(chan string, 64),
		world:   gameclient.World{Username: username},
	}
}

func (c *fakeClient) Events() <-chan gameclient.Event { return c.events }

func (c *fakeClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeClient) World() gameclient.World {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.world.Clone()
}

func (c *fakeClient) Chat(text string) error {
	c.actions <- "chat " + text
	return nil
}

func (c *fakeClient) SetControl(control gameclient.Control, active bool) error {
	c.actions <- fmt.Sprintf("control %s %t", control, active)
	return nil
}

func (c *fakeClient) Look(yaw, pitch float64) error {
	c.actions <- fmt.Sprintf("look %.2f %.2f", yaw, pitch)
	return nil
}

func (c *fakeClient) Equip(item, destination string) error {
	c.actions <- fmt.Sprintf("equip %s %s", item, destination)
	return nil
}

func (c *fakeClient) Consume() error {
	c.actions <- "consume"
	return nil
}

func (c *fakeClient) Quit(reason string) error {
	c.quitOnce.Do(func() {
		c.actions <- "quit " + reason
		close(c.events)
	})
	return nil
}

// update changes the world and then delivers event.
func (c *fakeClient) update(event gameclient.EventType, change func(world *gameclient.World)) {
	c.mu.Lock()
	change(&c.world)
	c.mu.Unlock()
	c.events <- gameclient.Event{Type: event}
}

// disconnect ends the event stream as a dropped connection would.
func (c *fakeClient) disconnect(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.quitOnce.Do(func() { close(c.events) })
}

func (c *fakeClient) nextAction(t *testing.T) string {
	t.Helper()
	return testutil.RequireReceive(t, c.actions, testTimeout, "waiting for a game action")
}

// harness runs an Agent against a fake game client and the controller
// end of a pipe pair.
type harness struct {
	agent    *Agent
	client   *fakeClient
	clock    *clock.FakeClock
	dialed   chan gameclient.Options
	inbound  chan ipc.Message
	toWorker *ipc.Channel
	result   chan error

	syncCount int
}

func newHarness(t *testing.T, registry *Registry) *harness {
	t.Helper()
	controllerReader, workerWriter := io.Pipe()
	workerReader, controllerWriter := io.Pipe()
	t.Cleanup(func() {
		controllerReader.Close()
		workerReader.Close()
	})

	h := &harness{
		client:   newFakeClient("Miner1"),
		clock:    clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
		dialed:   make(chan gameclient.Options, 1),
		inbound:  make(chan ipc.Message, 256),
		toWorker: ipc.NewChannel(controllerReader, controllerWriter),
		result:   make(chan error, 1),
	}
	workerChannel := ipc.NewChannel(workerReader, workerWriter)
	h.agent = New(Config{
		Sender:   workerChannel,
		Receiver: workerChannel,
		Registry: registry,
		Dial: func(_ context.Context, options gameclient.Options) (gameclient.Client, error) {
			h.dialed <- options
			return h.client, nil
		},
		Clock: h.clock,
	})

	go func() {
		for {
			message, err := h.toWorker.Receive()
			if err != nil {
				close(h.inbound)
				return
			}
			h.inbound <- message
		}
	}()
	return h
}

// start runs the agent, sends init, and waits for the dial.
func (h *harness) start(t *testing.T, spec fleet.WorkerSpec) gameclient.Options {
	t.Helper()
	go func() { h.result <- h.agent.Run(context.Background()) }()
	h.send(t, ipc.TypeInit, spec)
	return testutil.RequireReceive(t, h.dialed, testTimeout, "waiting for dial")
}

func (h *harness) send(t *testing.T, messageType ipc.MessageType, payload any) {
	t.Helper()
	if err := h.toWorker.SendPayload(messageType, payload); err != nil {
		t.Fatalf("sending %s: %v", messageType, err)
	}
}

func (h *harness) command(t *testing.T, command string, args ...string) {
	t.Helper()
	h.send(t, ipc.TypeCommand, ipc.Command{Command: command, Args: args})
}

// spawn marks the player spawned with full vitals on the ground.
func (h *harness) spawn(t *testing.T) {
	t.Helper()
	h.client.update(gameclient.EventSpawn, func(world *gameclient.World) {
		world.Spawned = true
		world.HasVitals = true
		world.Health = 20
		world.Food = 20
		world.OnGround = true
		world.Position = fleet.Position{X: 10, Y: 64, Z: -3}
	})
	h.expectLine(t, ipc.TypeStatus, "Spawned in world")
}

// expect returns the next message of the given type, discarding others.
func (h *harness) expect(t *testing.T, messageType ipc.MessageType) ipc.Message {
	t.Helper()
	return testutil.RequireMatch(t, h.inbound, testTimeout, func(message ipc.Message) bool {
		return message.Type == messageType
	}, "waiting for %s", messageType)
}

// expectLine waits for a text message of the given type containing
// substring.
func (h *harness) expectLine(t *testing.T, messageType ipc.MessageType, substring string) string {
	t.Helper()
	message := testutil.RequireMatch(t, h.inbound, testTimeout, func(message ipc.Message) bool {
		if message.Type != messageType {
			return false
		}
		text, err := message.Text()
		return err == nil && strings.Contains(text, substring)
	}, "waiting for %s containing %q", messageType, substring)
	text, _ := message.Text()
	return text
}

func (h *harness) expectTaskLog(t *testing.T, substring string) ipc.TaskLog {
	t.Helper()
	var line ipc.TaskLog
	testutil.RequireMatch(t, h.inbound, testTimeout, func(message ipc.Message) bool {
		if message.Type != ipc.TypeTaskLog || message.Decode(&line) != nil {
			return false
		}
		return strings.Contains(line.Message, substring)
	}, "waiting for task log %q", substring)
	return line
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	return testutil.RequireReceive(t, h.result, testTimeout, "waiting for Run to return")
}

// stop sends the stop command and requires a clean exit.
func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.command(t, "stop")
	if err := h.wait(t); err != nil {
		t.Fatalf("Run after stop = %v, want nil", err)
	}
}

func testSpec(behavior string) fleet.WorkerSpec {
	return fleet.WorkerSpec{Name: "w1", Username: "Miner1", Host: "mc.example.net", Behavior: behavior}
}

// quietRegistry has only a behavior that does nothing, so tests see
// exactly the actions they cause.
func quietRegistry() *Registry {
	registry := NewRegistry()
	registry.AddBehavior("idle", func(context.Context, *Agent) error { return nil })
	return registry
}

// syncEvents pushes a marker through the game event stream and returns
// every message the agent sent before handling it. Events are handled
// in order, so everything delivered earlier has been processed.
func (h *harness) syncEvents(t *testing.T) []ipc.Message {
	t.Helper()
	h.syncCount++
	marker := fmt.Sprintf("sync-%d", h.syncCount)
	h.client.events <- gameclient.Event{Type: gameclient.EventChat, Username: "Miner1", Message: marker}

	var before []ipc.Message
	for {
		message := testutil.RequireReceive(t, h.inbound, testTimeout, "waiting for %s", marker)
		if text, err := message.Text(); err == nil && message.Type == ipc.TypeLog && text == "Sent chat: "+marker {
			return before
		}
		before = append(before, message)
	}
}
