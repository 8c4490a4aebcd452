// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/bureau-foundation/gtool/lib/broadcast"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

type fakeHandle struct{ pid int }

func (h fakeHandle) Pid() int { return h.pid }

type hookCounts struct {
	config int
	queue  int
}

func newTestStore(t *testing.T) (*Store, *hookCounts) {
	t.Helper()
	counts := &hookCounts{}
	store := New(Config{
		Hub:           broadcast.NewHub(),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		ConfigChanged: func() { counts.config++ },
		QueueChanged:  func() { counts.queue++ },
	})
	return store, counts
}

func testSpec(name string) fleet.WorkerSpec {
	return fleet.WorkerSpec{Name: name, Username: name + "Bot", Host: "localhost", AutoReconnect: true}
}

func float(v float64) *float64 { return &v }

// drain returns every event currently buffered for subscriber.
func drain(subscriber *broadcast.Subscriber) []fleet.Event {
	var events []fleet.Event
	for {
		select {
		case event := <-subscriber.Events():
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestFoldOfEventsEqualsSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	store.Load([]fleet.WorkerSpec{testSpec("w1")}, map[string][]fleet.Task{
		"w1": {{ID: "a", ScriptName: "test_say"}},
	})
	subscriber := store.Subscribe()

	if _, err := store.Upsert(testSpec("w2")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.MarkStarted("w1", fakeHandle{pid: 10}); err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	store.MergeStats("w1", fleet.Stats{Health: float(18)})
	store.MergeStats("w1", fleet.Stats{Position: &fleet.Position{X: 1, Y: 64, Z: -3}})
	store.MergeStats("w1", fleet.Stats{Inventory: &[]fleet.InventoryItem{{Slot: 36, Name: "bread", Count: 2}}})
	if err := store.Enqueue("w2", fleet.Task{ID: "b", ScriptName: "patrol", EnqueuedAt: time.Unix(100, 0)}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, _, err := store.Dequeue("w1"); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	updated := testSpec("w2")
	updated.Behavior = "afk"
	if _, err := store.Upsert(updated); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	if _, err := store.MarkExited("w1"); err != nil {
		t.Fatalf("MarkExited: %v", err)
	}
	if _, err := store.Upsert(testSpec("w3")); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove("w3"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	store.Log(fleet.ControllerPrefix, fleet.LevelLog, "not a state event")

	events := drain(subscriber)
	if len(events) == 0 || events[0].Type != fleet.EventFullState {
		t.Fatalf("first frame = %+v, want full_state", events)
	}

	var view fleet.View
	for _, event := range events {
		view.Apply(event)
	}
	if got, want := view.Workers(), store.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("folded view differs from snapshot\n got: %+v\nwant: %+v", got, want)
	}
}

func TestStatsDeltasCarryOnlyChangedFields(t *testing.T) {
	store, _ := newTestStore(t)
	store.Load([]fleet.WorkerSpec{testSpec("w1")}, nil)
	subscriber := store.Subscribe()
	drain(subscriber)

	store.MergeStats("w1", fleet.Stats{Health: float(18)})
	store.MergeStats("w1", fleet.Stats{Position: &fleet.Position{X: 1, Y: 2, Z: 3}})
	if store.MergeStats("w1", fleet.Stats{Health: float(18)}) {
		t.Error("unchanged health reported as a change")
	}

	events := drain(subscriber)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	first := events[0].Delta.Changed.Stats
	if first.Health == nil || *first.Health != 18 || first.Position != nil {
		t.Errorf("first delta = %+v, want only health", first)
	}
	second := events[1].Delta.Changed.Stats
	if second.Position == nil || second.Health != nil {
		t.Errorf("second delta = %+v, want only pos", second)
	}

	state, _ := store.Get("w1")
	if *state.Stats.Health != 18 || *state.Stats.Position != (fleet.Position{X: 1, Y: 2, Z: 3}) {
		t.Errorf("merged stats = %+v", state.Stats)
	}
}

func TestMarkStartedSingleProcess(t *testing.T) {
	store, _ := newTestStore(t)
	store.Load([]fleet.WorkerSpec{testSpec("w1")}, nil)

	if err := store.MarkStarted("w1", fakeHandle{pid: 1}); err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	if err := store.MarkStarted("w1", fakeHandle{pid: 2}); !errors.Is(err, fleet.ErrAlreadyRunning) {
		t.Fatalf("second MarkStarted = %v, want ErrAlreadyRunning", err)
	}
	if store.Handle("w1").Pid() != 1 {
		t.Error("second MarkStarted replaced the handle")
	}
	if err := store.MarkStarted("ghost", fakeHandle{}); !errors.Is(err, fleet.ErrNotFound) {
		t.Errorf("MarkStarted unknown = %v, want ErrNotFound", err)
	}

	state, _ := store.Get("w1")
	if state.Status != fleet.StatusRunning {
		t.Errorf("status = %s, want running", state.Status)
	}
	if names := store.RunningNames(); len(names) != 1 || names[0] != "w1" {
		t.Errorf("RunningNames = %v", names)
	}
}

func TestMarkExitedResetsVolatileStats(t *testing.T) {
	store, _ := newTestStore(t)
	store.Load([]fleet.WorkerSpec{testSpec("w1")}, nil)
	store.MarkStarted("w1", fakeHandle{pid: 1})
	store.MergeStats("w1", fleet.Stats{
		Health:    float(15),
		Inventory: &[]fleet.InventoryItem{{Slot: 1, Name: "dirt", Count: 3}},
	})

	info, err := store.MarkExited("w1")
	if err != nil {
		t.Fatalf("MarkExited: %v", err)
	}
	if info.Spec.Name != "w1" || info.Removed {
		t.Errorf("exit info = %+v", info)
	}
	if store.Handle("w1") != nil {
		t.Error("handle not cleared")
	}
	state, _ := store.Get("w1")
	if state.Status != fleet.StatusStopped {
		t.Errorf("status = %s", state.Status)
	}
	if len(*state.Stats.Inventory) != 0 {
		t.Errorf("inventory not reset: %+v", *state.Stats.Inventory)
	}
	if *state.Stats.Health != 15 {
		t.Errorf("health was reset")
	}
}

func TestMarkForDeletion(t *testing.T) {
	store, counts := newTestStore(t)
	store.Load([]fleet.WorkerSpec{testSpec("running"), testSpec("stopped")}, nil)
	store.MarkStarted("running", fakeHandle{pid: 1})
	before := counts.config

	deferred, err := store.MarkForDeletion("stopped")
	if err != nil || deferred {
		t.Fatalf("MarkForDeletion(stopped) = %v, %v; want immediate removal", deferred, err)
	}
	if _, exists := store.Get("stopped"); exists {
		t.Error("stopped worker still present")
	}
	if counts.config != before+1 {
		t.Errorf("config hook calls = %d, want %d", counts.config, before+1)
	}

	deferred, err = store.MarkForDeletion("running")
	if err != nil || !deferred {
		t.Fatalf("MarkForDeletion(running) = %v, %v; want deferred", deferred, err)
	}
	if err := store.Remove("running"); !errors.Is(err, fleet.ErrAlreadyRunning) {
		t.Errorf("Remove of running worker = %v", err)
	}
	info, err := store.MarkExited("running")
	if err != nil {
		t.Fatal(err)
	}
	if !info.Removed {
		t.Fatal("exit of a marked worker did not remove it")
	}
	if err := store.MarkStarted("running", fakeHandle{pid: 2}); !errors.Is(err, fleet.ErrNotFound) {
		t.Errorf("MarkStarted after removal = %v, want ErrNotFound", err)
	}
	if len(store.Names()) != 0 {
		t.Errorf("names = %v, want none", store.Names())
	}
}

func TestUpsertCancelsPendingDeletion(t *testing.T) {
	store, _ := newTestStore(t)
	store.Load([]fleet.WorkerSpec{testSpec("w1")}, nil)
	store.MarkStarted("w1", fakeHandle{pid: 1})
	store.MarkForDeletion("w1")

	if _, err := store.Upsert(testSpec("w1")); err != nil {
		t.Fatal(err)
	}
	info, _ := store.MarkExited("w1")
	if info.Removed {
		t.Error("upsert did not cancel the deletion")
	}
}

func TestUpsertUnchangedEmitsNothing(t *testing.T) {
	store, counts := newTestStore(t)
	store.Load([]fleet.WorkerSpec{testSpec("w1")}, nil)
	subscriber := store.Subscribe()
	drain(subscriber)
	before := counts.config

	created, err := store.Upsert(testSpec("w1"))
	if err != nil || created {
		t.Fatalf("Upsert = %v, %v", created, err)
	}
	if events := drain(subscriber); len(events) != 0 {
		t.Errorf("unchanged upsert emitted %+v", events)
	}
	if counts.config != before {
		t.Error("unchanged upsert marked the config dirty")
	}

	if _, err := store.Upsert(fleet.WorkerSpec{Name: "bad/name"}); !errors.Is(err, fleet.ErrInvalidSpec) && !errors.Is(err, fleet.ErrMissingField) {
		t.Errorf("invalid upsert = %v", err)
	}
}

func TestQueueOperations(t *testing.T) {
	store, counts := newTestStore(t)
	store.Load([]fleet.WorkerSpec{testSpec("w1")}, nil)

	for _, id := range []string{"A", "B"} {
		if err := store.Enqueue("w1", fleet.Task{ID: id, ScriptName: "test_say"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Enqueue("ghost", fleet.Task{ID: "x"}); !errors.Is(err, fleet.ErrNotFound) {
		t.Errorf("Enqueue unknown = %v", err)
	}

	task, ok, err := store.Dequeue("w1")
	if err != nil || !ok || task.ID != "A" {
		t.Fatalf("Dequeue = %+v, %v, %v", task, ok, err)
	}
	if queues := store.Queues(); len(queues["w1"]) != 1 || queues["w1"][0].ID != "B" {
		t.Fatalf("Queues = %+v, want [B]", queues)
	}
	store.Dequeue("w1")
	if _, ok, _ := store.Dequeue("w1"); ok {
		t.Error("Dequeue on empty queue returned a task")
	}
	if queues := store.Queues(); len(queues) != 0 {
		t.Errorf("empty queues persisted: %+v", queues)
	}
	if counts.queue != 4 {
		t.Errorf("queue hook calls = %d, want 4", counts.queue)
	}
}

func TestLoadDropsOrphanQueues(t *testing.T) {
	store, counts := newTestStore(t)
	store.Load([]fleet.WorkerSpec{testSpec("w1")}, map[string][]fleet.Task{
		"gone": {{ID: "x"}},
	})
	if counts.queue != 1 {
		t.Errorf("orphan queue did not mark the file dirty")
	}
	if len(store.Queues()) != 0 {
		t.Errorf("orphan queue kept: %+v", store.Queues())
	}
}

func TestResyncAfterOverflow(t *testing.T) {
	store, _ := newTestStore(t)
	store.Load([]fleet.WorkerSpec{testSpec("w1")}, nil)
	subscriber := store.Subscribe()

	for index := range broadcast.SubscriberBufferSize + 10 {
		store.MergeStats("w1", fleet.Stats{Health: float(float64(index))})
	}
	if !subscriber.TakeResync() {
		t.Fatal("overflow did not flag resync")
	}
	store.Resync(subscriber)

	events := drain(subscriber)
	if len(events) != 2 || events[0].Type != fleet.EventResync || events[1].Type != fleet.EventFullState {
		t.Fatalf("resync frames = %+v", events)
	}

	var view fleet.View
	for _, event := range events {
		view.Apply(event)
	}
	if !reflect.DeepEqual(view.Workers(), store.Snapshot()) {
		t.Error("view after resync differs from snapshot")
	}
}

func TestTaskLogReachesOnlyJoinedSubscribers(t *testing.T) {
	store, _ := newTestStore(t)
	joined := store.Subscribe()
	other := store.Subscribe()
	drain(joined)
	drain(other)
	store.Hub().Join(joined, fleet.TaskTopic("t1"))

	store.TaskLog(fleet.TaskLogLine{TaskID: "t1", Worker: "w1", Message: "step 1"})

	if events := drain(joined); len(events) != 1 || events[0].TaskLog.Message != "step 1" {
		t.Errorf("joined subscriber got %+v", events)
	}
	if events := drain(other); len(events) != 0 {
		t.Errorf("other subscriber got %+v", events)
	}
}
