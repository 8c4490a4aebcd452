// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func float(v float64) *float64 { return &v }

func TestStatsMergeReportsOnlyArrivingFields(t *testing.T) {
	var stats Stats

	first := stats.Merge(Stats{Health: float(18)})
	if first.Health == nil || *first.Health != 18 {
		t.Fatalf("first merge changed = %+v, want health 18", first)
	}
	if first.Position != nil || first.Food != nil {
		t.Errorf("first merge reported fields that did not arrive: %+v", first)
	}

	second := stats.Merge(Stats{Position: &Position{X: 1, Y: 2, Z: 3}})
	if second.Position == nil || *second.Position != (Position{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("second merge changed = %+v, want pos", second)
	}
	if second.Health != nil {
		t.Error("second merge reported health, which was absent from the message")
	}

	if stats.Health == nil || *stats.Health != 18 || stats.Position == nil {
		t.Fatalf("merged stats = %+v, want both fields", stats)
	}
}

func TestStatsMergeIgnoresUnchangedValues(t *testing.T) {
	stats := Stats{
		Health:         float(20),
		Position:       &Position{X: 5},
		NearbyEntities: &[]Entity{{Name: "zombie", Type: "Mob", Distance: 3}},
	}

	changed := stats.Merge(Stats{
		Health:         float(20),
		Position:       &Position{X: 5},
		NearbyEntities: &[]Entity{{Name: "zombie", Type: "Mob", Distance: 3}},
	})
	if !changed.IsEmpty() {
		t.Errorf("identical values reported as changed: %+v", changed)
	}

	changed = stats.Merge(Stats{
		NearbyEntities: &[]Entity{{Name: "zombie", Type: "Mob", Distance: 4}},
	})
	if changed.NearbyEntities == nil {
		t.Error("entity list with a different distance was not reported")
	}
}

func TestStatsMergeDoesNotAliasInput(t *testing.T) {
	inventory := []InventoryItem{{Slot: 36, Name: "bread", Count: 3}}
	var stats Stats
	stats.Merge(Stats{Inventory: &inventory})

	inventory[0].Count = 99
	if (*stats.Inventory)[0].Count != 3 {
		t.Error("merged inventory shares storage with the caller's slice")
	}
}

func TestResetVolatile(t *testing.T) {
	stats := Stats{
		Health:    float(12),
		Inventory: &[]InventoryItem{{Slot: 1, Name: "stone", Count: 64}},
	}
	changed := stats.ResetVolatile()

	if changed.Inventory == nil || len(*changed.Inventory) != 0 {
		t.Errorf("reset did not report an empty inventory: %+v", changed)
	}
	if changed.State == nil || *changed.State != StateStopped {
		t.Errorf("reset state = %v, want %s", changed.State, StateStopped)
	}
	if *stats.Health != 12 {
		t.Error("reset cleared health")
	}

	again := stats.ResetVolatile()
	if !again.IsEmpty() {
		t.Errorf("second reset reported changes: %+v", again)
	}
}

func TestNearestEntities(t *testing.T) {
	entities := []Entity{
		{Name: "far", Distance: 40},
		{Name: "e5", Distance: 5},
		{Name: "e1", Distance: 1},
		{Name: "e4", Distance: 4},
		{Name: "e2", Distance: 2},
		{Name: "e6", Distance: 6},
		{Name: "e3", Distance: 3},
	}
	nearest := NearestEntities(entities)
	if len(nearest) != MaxNearbyEntities {
		t.Fatalf("len = %d, want %d", len(nearest), MaxNearbyEntities)
	}
	for i, name := range []string{"e1", "e2", "e3", "e4", "e5"} {
		if nearest[i].Name != name {
			t.Errorf("nearest[%d] = %s, want %s", i, nearest[i].Name, name)
		}
	}
}

func TestWorkerSpecValidate(t *testing.T) {
	valid := WorkerSpec{Name: "miner-1", Username: "Miner1", Host: "localhost"}

	tests := []struct {
		name   string
		mutate func(*WorkerSpec)
		want   error
	}{
		{"valid", func(*WorkerSpec) {}, nil},
		{"empty name", func(s *WorkerSpec) { s.Name = "" }, ErrMissingField},
		{"path name", func(s *WorkerSpec) { s.Name = "../etc" }, ErrInvalidSpec},
		{"dot name", func(s *WorkerSpec) { s.Name = ".." }, ErrInvalidSpec},
		{"no host", func(s *WorkerSpec) { s.Host = "" }, ErrMissingField},
		{"no username", func(s *WorkerSpec) { s.Username = "" }, ErrMissingField},
		{"bad port", func(s *WorkerSpec) { s.Port = 70000 }, ErrInvalidSpec},
		{"negative delay", func(s *WorkerSpec) { s.ReconnectDelay = -1 }, ErrInvalidSpec},
		{"half proxy", func(s *WorkerSpec) { s.Proxy = &Proxy{Host: "p"} }, ErrInvalidSpec},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			spec := valid.Clone()
			test.mutate(&spec)
			err := spec.Validate()
			if test.want == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, test.want) {
				t.Fatalf("Validate() = %v, want %v", err, test.want)
			}
		})
	}
}

func TestWorkerSpecDefaults(t *testing.T) {
	spec := WorkerSpec{Name: "w"}
	if spec.EffectivePort() != DefaultPort || spec.EffectiveAuth() != DefaultAuth || spec.EffectiveBehavior() != DefaultBehavior {
		t.Errorf("defaults not applied: %d %s %s", spec.EffectivePort(), spec.EffectiveAuth(), spec.EffectiveBehavior())
	}
	if spec.ReconnectDelayDuration() != 30*time.Second {
		t.Errorf("ReconnectDelayDuration() = %v", spec.ReconnectDelayDuration())
	}
	spec.ReconnectDelay = 5
	if spec.ReconnectDelayDuration() != 5*time.Second {
		t.Errorf("ReconnectDelayDuration() = %v", spec.ReconnectDelayDuration())
	}
}

func TestWorkerSpecJSONMatchesFleetFile(t *testing.T) {
	input := `{
		"name": "afk-1",
		"username": "AfkBot",
		"host": "mc.example.net",
		"port": 25566,
		"behavior": "afk",
		"autoReconnect": true,
		"reconnectDelay": 15,
		"params": {"command": "/afk"},
		"automation": {"autoEat": true, "foodToEat": ["bread"]},
		"proxy": null
	}`
	var spec WorkerSpec
	if err := json.Unmarshal([]byte(input), &spec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if spec.Name != "afk-1" || !spec.AutoReconnect || spec.ReconnectDelay != 15 || spec.Proxy != nil {
		t.Errorf("decoded spec = %+v", spec)
	}
	if !spec.Automation.AutoEat || spec.Automation.FoodToEat[0] != "bread" {
		t.Errorf("automation = %+v", spec.Automation)
	}
	if spec.Params["command"] != "/afk" {
		t.Errorf("params = %v", spec.Params)
	}
}

func TestEmptyFullStateCarriesWorkerArray(t *testing.T) {
	data, err := json.Marshal(Event{Type: EventFullState, Workers: []WorkerState{}})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"type":"full_state","workers":[]}`; got != want {
		t.Errorf("empty full_state = %s, want %s", got, want)
	}
}

func TestViewFoldMatchesDirectState(t *testing.T) {
	running := StatusRunning
	queue := []Task{{ID: "a", ScriptName: "test_say", Status: TaskQueued}}

	events := []Event{
		{Type: EventFullState, Workers: []WorkerState{
			{Name: "w1", Status: StatusStopped, TaskQueue: []Task{}},
		}},
		{Type: EventAdded, Worker: &WorkerState{Name: "w2", Status: StatusStopped, TaskQueue: []Task{}}},
		{Type: EventDelta, Delta: &Delta{Name: "w1", Changed: Changes{Status: &running}}},
		{Type: EventDelta, Delta: &Delta{Name: "w1", Changed: Changes{Stats: &Stats{Health: float(18)}}}},
		{Type: EventDelta, Delta: &Delta{Name: "w1", Changed: Changes{Stats: &Stats{Position: &Position{X: 1, Y: 2, Z: 3}}}}},
		{Type: EventDelta, Delta: &Delta{Name: "w2", Changed: Changes{TaskQueue: &queue}}},
		{Type: EventLog, Log: &LogLine{Prefix: "w1", Message: "hello", Type: LevelLog}},
		{Type: EventRemoved, Name: "w2"},
	}

	var view View
	for _, event := range events {
		view.Apply(event)
	}

	want := []WorkerState{{
		Name:   "w1",
		Status: StatusRunning,
		Stats: Stats{
			Health:   float(18),
			Position: &Position{X: 1, Y: 2, Z: 3},
		},
		TaskQueue: []Task{},
	}}
	if got := view.Workers(); !reflect.DeepEqual(got, want) {
		t.Fatalf("folded view = %+v\nwant %+v", got, want)
	}
}

func TestViewIgnoresDeltaForUnknownWorker(t *testing.T) {
	running := StatusRunning
	var view View
	if view.Apply(Event{Type: EventDelta, Delta: &Delta{Name: "ghost", Changed: Changes{Status: &running}}}) {
		t.Error("delta for unknown worker reported a change")
	}
	if len(view.Workers()) != 0 {
		t.Error("delta for unknown worker created an entry")
	}
}
