// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleetui

import (
	"context"
	"net"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/gtool/lib/clock"
	"github.com/bureau-foundation/gtool/lib/codec"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/service"
	"github.com/bureau-foundation/gtool/lib/testutil"
)

const testTimeout = 5 * time.Second

// serveSubscribe runs a socket server whose subscribe handler calls
// handle with the connection number (from 1) and the decoded request.
func serveSubscribe(t *testing.T, handle func(ctx context.Context, connection int, tasks []string, encoder *codec.Encoder)) *service.Client {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "controller.sock")
	server := service.NewSocketServer(socketPath, nil)

	var connections atomic.Int32
	server.HandleStream(fleet.ActionSubscribe, func(ctx context.Context, raw []byte, conn net.Conn) {
		var request struct {
			Tasks []string `json:"tasks"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			t.Errorf("decoding subscribe request: %v", err)
			return
		}
		handle(ctx, int(connections.Add(1)), request.Tasks, codec.NewEncoder(conn))
	})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := server.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-served
	})
	testutil.RequireClosed(t, server.Ready(), testTimeout, "waiting for socket server")
	return service.NewClient(socketPath)
}

func TestStreamSourceDeliversAndReconnects(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	requested := make(chan []string, 2)
	client := serveSubscribe(t, func(ctx context.Context, connection int, tasks []string, encoder *codec.Encoder) {
		requested <- tasks
		encoder.Encode(fleet.Event{Type: fleet.EventFullState, Workers: []fleet.WorkerState{{Name: "alpha"}}})
		encoder.Encode(fleet.Event{Type: fleet.EventHeartbeat})
		encoder.Encode(fleet.Event{Type: fleet.EventLog, Log: &fleet.LogLine{Prefix: "alpha", Message: "hello", Type: fleet.LevelLog}})
		if connection > 1 {
			<-ctx.Done()
		}
		// Returning closes the first connection.
	})

	source := NewStreamSource(StreamSourceConfig{Client: client, Tasks: []string{"t1"}, Clock: fake})
	updates := source.Updates()

	expectState := func(want ConnectionState) Update {
		t.Helper()
		update := testutil.RequireReceive(t, updates, testTimeout, "waiting for %s", want)
		if update.Event != nil || update.State != want {
			t.Fatalf("update = %+v, want state %s", update, want)
		}
		return update
	}
	expectEvent := func(want fleet.EventType) fleet.Event {
		t.Helper()
		update := testutil.RequireReceive(t, updates, testTimeout, "waiting for %s", want)
		if update.Event == nil || update.Event.Type != want {
			t.Fatalf("update = %+v, want a %s event", update, want)
		}
		return *update.Event
	}

	expectState(StateConnecting)
	expectState(StateLive)
	if state := expectEvent(fleet.EventFullState); len(state.Workers) != 1 || state.Workers[0].Name != "alpha" {
		t.Errorf("full_state = %+v", state)
	}
	// The heartbeat is consumed by the source.
	if line := expectEvent(fleet.EventLog); line.Log.Message != "hello" {
		t.Errorf("log = %+v", line.Log)
	}
	if disconnected := expectState(StateDisconnected); disconnected.Err == nil {
		t.Error("disconnect should carry the read error")
	}
	if tasks := testutil.RequireReceive(t, requested, testTimeout, "first request"); !slices.Equal(tasks, []string{"t1"}) {
		t.Errorf("subscribe tasks = %v, want [t1]", tasks)
	}

	fake.WaitForTimers(1)
	fake.Advance(initialBackoff)
	expectState(StateConnecting)
	expectState(StateLive)
	expectEvent(fleet.EventFullState)
	expectEvent(fleet.EventLog)

	source.Close()
	for range updates {
	}
}

func TestStreamSourceBacksOffWhenControllerIsDown(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	client := service.NewClient(filepath.Join(testutil.SocketDir(t), "missing.sock"))
	source := NewStreamSource(StreamSourceConfig{Client: client, Clock: fake})
	defer source.Close()

	for attempt, backoff := range []time.Duration{initialBackoff, 2 * initialBackoff, 4 * initialBackoff} {
		if update := testutil.RequireReceive(t, source.Updates(), testTimeout, "connecting"); update.State != StateConnecting {
			t.Fatalf("attempt %d: update = %+v, want connecting", attempt, update)
		}
		update := testutil.RequireReceive(t, source.Updates(), testTimeout, "disconnected")
		if update.State != StateDisconnected || update.Err == nil {
			t.Fatalf("attempt %d: update = %+v, want a dial failure", attempt, update)
		}
		fake.WaitForTimers(1)
		// Advancing by less than the backoff leaves the timer pending.
		fake.Advance(backoff - time.Millisecond)
		if fake.PendingCount() != 1 {
			t.Fatalf("attempt %d: retried before %v elapsed", attempt, backoff)
		}
		fake.Advance(time.Millisecond)
	}
}
