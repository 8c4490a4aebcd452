// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/lib/codec"
	"github.com/bureau-foundation/gtool/lib/dispatch"
	"github.com/bureau-foundation/gtool/lib/history"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/service"
	"github.com/bureau-foundation/gtool/lib/testutil"
)

const testTimeout = 5 * time.Second

type handlerFunc func(raw []byte) (any, error)

// fakeController answers socket actions with canned handlers and
// records every request it receives.
type fakeController struct {
	mu       sync.Mutex
	requests map[string][][]byte
}

// request decodes the only request received for action into target.
func (f *fakeController) request(t *testing.T, action string, target any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests[action]) != 1 {
		t.Fatalf("%s received %d times, want 1", action, len(f.requests[action]))
	}
	if err := codec.Unmarshal(f.requests[action][0], target); err != nil {
		t.Fatalf("decoding %s request: %v", action, err)
	}
}

func (f *fakeController) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests[action])
}

// startFake serves handlers on a fresh socket and points GTOOL_SOCKET
// at it.
func startFake(t *testing.T, handlers map[string]handlerFunc) *fakeController {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "controller.sock")
	t.Setenv(cli.SocketEnvVar, socketPath)

	fake := &fakeController{requests: make(map[string][][]byte)}
	server := service.NewSocketServer(socketPath, nil)
	for action, handler := range handlers {
		server.Handle(action, func(_ context.Context, raw []byte) (any, error) {
			fake.mu.Lock()
			fake.requests[action] = append(fake.requests[action], raw)
			fake.mu.Unlock()
			return handler(raw)
		})
	}

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
	testutil.RequireClosed(t, server.Ready(), testTimeout, "waiting for fake controller")
	return fake
}

func reply(value any) handlerFunc {
	return func([]byte) (any, error) { return value, nil }
}

// runCommand executes the command tree with args and returns stdout.
func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	env := Env{Stdin: strings.NewReader(stdin), Stdout: &stdout, Stderr: &stderr}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	err := Root(env).Execute(ctx, args)
	return stdout.String(), err
}

func float(value float64) *float64 { return &value }

func testStatus() fleet.StatusResponse {
	state := fleet.StateBusy
	return fleet.StatusResponse{
		Workers: []fleet.WorkerState{
			{
				Name:   "alpha",
				Status: fleet.StatusRunning,
				Config: fleet.WorkerSpec{Name: "alpha", Username: "Alpha", Host: "localhost", Behavior: "task_runner"},
				Stats: fleet.Stats{
					Health:   float(20),
					Food:     float(17.5),
					Position: &fleet.Position{X: 1, Y: 64, Z: -3.5},
					State:    &state,
				},
				TaskQueue: []fleet.Task{{ID: "t2", ScriptName: "patrol", Status: fleet.TaskQueued}},
			},
			{
				Name:   "beta",
				Status: fleet.StatusStopped,
				Config: fleet.WorkerSpec{Name: "beta", Username: "Beta", Host: "localhost"},
			},
		},
		InFlight:      map[string]string{"alpha": "t1"},
		Observers:     3,
		UptimeSeconds: 90,
	}
}

func TestListPrintsTable(t *testing.T) {
	startFake(t, map[string]handlerFunc{fleet.ActionStatus: reply(testStatus())})

	output, err := runCommand(t, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(output, "\n")
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[0], "POSITION") {
		t.Errorf("header = %q", lines[0])
	}
	for _, field := range []string{"alpha", "running", "BUSY", "task_runner", "20", "17.5", "1.0, 64.0, -3.5", "t1"} {
		if !strings.Contains(lines[1], field) {
			t.Errorf("alpha row %q is missing %q", lines[1], field)
		}
	}
	if !strings.HasPrefix(lines[2], "beta") || !strings.Contains(lines[2], "idle") {
		t.Errorf("beta row = %q", lines[2])
	}
	if !strings.Contains(output, "1 of 2 running, 3 observers, controller up 1m30s") {
		t.Errorf("footer missing from:\n%s", output)
	}
}

func TestListEmptyFleet(t *testing.T) {
	startFake(t, map[string]handlerFunc{fleet.ActionStatus: reply(fleet.StatusResponse{})})

	output, err := runCommand(t, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(output, "No workers configured.") {
		t.Errorf("output = %q", output)
	}
}

func TestListJSON(t *testing.T) {
	startFake(t, map[string]handlerFunc{fleet.ActionStatus: reply(testStatus())})

	output, err := runCommand(t, "", "list", "--json")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var status fleet.StatusResponse
	if err := json.Unmarshal([]byte(output), &status); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, output)
	}
	if len(status.Workers) != 2 || status.Workers[0].Name != "alpha" || status.InFlight["alpha"] != "t1" {
		t.Errorf("status = %+v", status)
	}
}

func TestStartSuggestsKnownNames(t *testing.T) {
	startFake(t, map[string]handlerFunc{
		fleet.ActionStatus: reply(testStatus()),
		fleet.ActionStart: func(raw []byte) (any, error) {
			var request struct {
				Name string `json:"name"`
			}
			codec.Unmarshal(raw, &request)
			return nil, fmt.Errorf("worker %q: %w", request.Name, fleet.ErrNotFound)
		},
	})

	_, err := runCommand(t, "", "start", "alp")
	if err == nil {
		t.Fatal("start of an unknown worker succeeded")
	}
	if !strings.Contains(err.Error(), `worker "alp": worker not found`) || !strings.Contains(err.Error(), `did you mean "alpha"?`) {
		t.Errorf("error = %v", err)
	}
	var serviceError *service.ServiceError
	if !errors.As(err, &serviceError) {
		t.Errorf("error %v does not wrap the controller's error", err)
	}
}

func TestStopPrintsMessage(t *testing.T) {
	fake := startFake(t, map[string]handlerFunc{
		fleet.ActionStop: reply(fleet.MessageResponse{Message: "worker alpha stopped"}),
	})

	output, err := runCommand(t, "", "stop", "alpha")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if output != "worker alpha stopped\n" {
		t.Errorf("output = %q", output)
	}
	var request struct {
		Name string `json:"name"`
	}
	fake.request(t, fleet.ActionStop, &request)
	if request.Name != "alpha" {
		t.Errorf("stop name = %q", request.Name)
	}
}

func TestSendBroadcast(t *testing.T) {
	fake := startFake(t, map[string]handlerFunc{
		fleet.ActionSend: reply(fleet.SendResponse{Reached: []string{"alpha", "beta"}}),
	})

	output, err := runCommand(t, "", "send", "*", "say", "hello", "--there")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if output != "Sent \"say hello --there\" to alpha, beta.\n" {
		t.Errorf("output = %q", output)
	}
	var request struct {
		Target  string `json:"target"`
		Command string `json:"command"`
	}
	fake.request(t, fleet.ActionSend, &request)
	if request.Target != "*" || request.Command != "say hello --there" {
		t.Errorf("send request = %+v", request)
	}
}

func TestSendToNobody(t *testing.T) {
	startFake(t, map[string]handlerFunc{fleet.ActionSend: reply(fleet.SendResponse{})})

	output, err := runCommand(t, "", "send", "*", "jump")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if output != "No running workers.\n" {
		t.Errorf("output = %q", output)
	}
}

type upsertRequest struct {
	Spec fleet.WorkerSpec `json:"spec"`
}

func TestConfigSetFromFileAndFlags(t *testing.T) {
	fake := startFake(t, map[string]handlerFunc{
		fleet.ActionConfigUpsert: reply(fleet.UpsertResponse{Created: true, Message: "worker w1 created"}),
	})
	specPath := filepath.Join(t.TempDir(), "w1.jsonc")
	specFile := `{
		// The AFK worker.
		"name": "w1",
		"username": "W1",
		"host": "localhost",
		"params": {"command": "/afk"},
	}`
	if err := os.WriteFile(specPath, []byte(specFile), 0o644); err != nil {
		t.Fatal(err)
	}

	output, err := runCommand(t, "", "config", "set", "-f", specPath,
		"--port", "25570", "--param", "steps=4", "--proxy", "proxy.local:1080", "--auto-eat", "--food", "bread,apple")
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	if output != "worker w1 created\n" {
		t.Errorf("output = %q", output)
	}
	if fake.count(fleet.ActionConfigGet) != 0 {
		t.Error("config set with a file fetched the existing spec")
	}

	var request upsertRequest
	fake.request(t, fleet.ActionConfigUpsert, &request)
	spec := request.Spec
	if spec.Name != "w1" || spec.Username != "W1" || spec.Host != "localhost" || spec.Port != 25570 {
		t.Errorf("spec = %+v", spec)
	}
	if spec.Params["command"] != "/afk" || spec.Params["steps"] != float64(4) {
		t.Errorf("params = %v", spec.Params)
	}
	if spec.Proxy == nil || *spec.Proxy != (fleet.Proxy{Host: "proxy.local", Port: 1080}) {
		t.Errorf("proxy = %+v", spec.Proxy)
	}
	if !spec.Automation.AutoEat || len(spec.Automation.FoodToEat) != 2 || spec.Automation.FoodToEat[1] != "apple" {
		t.Errorf("automation = %+v", spec.Automation)
	}
}

func TestConfigSetUpdatesExistingSpec(t *testing.T) {
	existing := fleet.WorkerSpec{Name: "w1", Username: "W1", Host: "mc.example.net", Port: 25570, Behavior: "idle"}
	fake := startFake(t, map[string]handlerFunc{
		fleet.ActionConfigGet:    reply(fleet.Event{Type: fleet.EventConfigShow, Config: &existing}),
		fleet.ActionConfigUpsert: reply(fleet.UpsertResponse{Message: "worker w1 updated"}),
	})

	if _, err := runCommand(t, "", "config", "set", "--name", "w1", "--behavior", "task_runner"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	var request upsertRequest
	fake.request(t, fleet.ActionConfigUpsert, &request)
	if request.Spec.Host != "mc.example.net" || request.Spec.Port != 25570 || request.Spec.Behavior != "task_runner" {
		t.Errorf("spec = %+v", request.Spec)
	}
}

func TestConfigSetFromStdinRejectsIncompleteSpec(t *testing.T) {
	fake := startFake(t, map[string]handlerFunc{
		fleet.ActionConfigUpsert: reply(fleet.UpsertResponse{}),
	})

	_, err := runCommand(t, `{"name": "w1"}`, "config", "set", "-f", "-")
	if !errors.Is(err, fleet.ErrMissingField) {
		t.Errorf("error = %v, want ErrMissingField", err)
	}
	if fake.count(fleet.ActionConfigUpsert) != 0 {
		t.Error("an invalid spec reached the controller")
	}
}

func TestConfigGetPrintsJSON(t *testing.T) {
	spec := fleet.WorkerSpec{Name: "w1", Username: "W1", Host: "localhost"}
	startFake(t, map[string]handlerFunc{
		fleet.ActionConfigGet: reply(fleet.Event{Type: fleet.EventConfigShow, Config: &spec}),
	})

	output, err := runCommand(t, "", "config", "get", "w1")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	var decoded fleet.WorkerSpec
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, output)
	}
	if decoded.Name != "w1" || decoded.Host != "localhost" {
		t.Errorf("spec = %+v", decoded)
	}
}

func TestEnqueueParsesParams(t *testing.T) {
	fake := startFake(t, map[string]handlerFunc{
		fleet.ActionEnqueue: reply(fleet.Task{ID: "t-1", ScriptName: "patrol", Status: fleet.TaskQueued}),
	})

	output, err := runCommand(t, "", "enqueue", "w1", "patrol", "direction=left", "steps=6", "sprint=true", `route=["a","b"]`)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if output != "Queued patrol as t-1 on w1.\n" {
		t.Errorf("output = %q", output)
	}

	var request struct {
		Name   string         `json:"name"`
		Script string         `json:"script"`
		Params map[string]any `json:"params"`
	}
	fake.request(t, fleet.ActionEnqueue, &request)
	if request.Name != "w1" || request.Script != "patrol" {
		t.Errorf("request = %+v", request)
	}
	if request.Params["direction"] != "left" || request.Params["steps"] != float64(6) || request.Params["sprint"] != true {
		t.Errorf("params = %v", request.Params)
	}
	if route, ok := request.Params["route"].([]any); !ok || len(route) != 2 || route[0] != "a" {
		t.Errorf("route = %#v", request.Params["route"])
	}
}

func TestTaskHistoryTable(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	fake := startFake(t, map[string]handlerFunc{
		fleet.ActionTaskHistory: reply([]history.Record{
			{TaskID: "t2", Worker: "w1", ScriptName: "patrol", Status: fleet.TaskFailed, Error: "blocked", At: at},
			{TaskID: "t1", Worker: "w1", ScriptName: "patrol", Status: fleet.TaskCompleted, At: at.Add(-time.Minute)},
		}),
	})

	output, err := runCommand(t, "", "task", "history", "w1", "-n", "5")
	if err != nil {
		t.Fatalf("task history: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "TASK") {
		t.Fatalf("output:\n%s", output)
	}
	if !strings.HasPrefix(lines[1], "t2") || !strings.Contains(lines[1], "failed") || !strings.HasSuffix(lines[1], "blocked") {
		t.Errorf("first row = %q", lines[1])
	}

	var request struct {
		Name  string `json:"name"`
		Limit int    `json:"limit"`
	}
	fake.request(t, fleet.ActionTaskHistory, &request)
	if request.Name != "w1" || request.Limit != 5 {
		t.Errorf("request = %+v", request)
	}
}

func TestTaskLog(t *testing.T) {
	startFake(t, map[string]handlerFunc{
		fleet.ActionTaskLog: reply(fleet.TaskLogResponse{Worker: "w1", TaskID: "t1", Log: "walking\narrived"}),
	})

	output, err := runCommand(t, "", "task", "log", "w1", "t1")
	if err != nil {
		t.Fatalf("task log: %v", err)
	}
	if output != "walking\narrived\n" {
		t.Errorf("output = %q", output)
	}
}

func TestScripts(t *testing.T) {
	startFake(t, map[string]handlerFunc{
		fleet.ActionScripts: reply(dispatch.Catalog{Behaviors: []string{"idle", "task_runner"}}),
	})

	output, err := runCommand(t, "", "scripts")
	if err != nil {
		t.Fatalf("scripts: %v", err)
	}
	for _, want := range []string{"Behaviors:", "  idle\n  task_runner\n", "Tasks:\n  (none)\n"} {
		if !strings.Contains(output, want) {
			t.Errorf("output is missing %q:\n%s", want, output)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing name", []string{"start"}, "missing argument <name>"},
		{"extra argument", []string{"list", "extra"}, `unexpected argument "extra"`},
		{"bad parameter", []string{"enqueue", "w1", "patrol", "steps"}, `parameter "steps" is not key=value`},
		{"bad proxy", []string{"config", "set", "--name", "w1", "--proxy", "nowhere"}, "--proxy"},
		{"unknown command", []string{"lsit"}, `did you mean "list"?`},
		{"bad limit", []string{"task", "history", "--limit", "0"}, "--limit must be positive"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Point at a socket nobody serves so a missed usage check
			// fails fast instead of reaching a real controller.
			t.Setenv(cli.SocketEnvVar, filepath.Join(t.TempDir(), "absent.sock"))
			_, err := runCommand(t, "", test.args...)
			var usage *cli.UsageError
			if !errors.As(err, &usage) {
				t.Fatalf("error = %v, want a usage error", err)
			}
			if usage.ExitCode() != cli.UsageExitCode {
				t.Errorf("exit code = %d", usage.ExitCode())
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %q, want it to contain %q", err, test.want)
			}
		})
	}
}

func TestControllerNotRunningHint(t *testing.T) {
	t.Setenv(cli.SocketEnvVar, filepath.Join(t.TempDir(), "absent.sock"))

	_, err := runCommand(t, "", "list")
	if err == nil {
		t.Fatal("list succeeded without a controller")
	}
	if !strings.Contains(err.Error(), "is gtool-controller running?") {
		t.Errorf("error = %v", err)
	}
}
