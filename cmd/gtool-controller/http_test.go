// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/testutil"
)

func (h *harness) serveHTTP(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	h.httpHandler().ServeHTTP(recorder, request)
	return recorder
}

func TestHTTPBotEndpoints(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.addWorker(t, "w1")

	response := h.serveHTTP(t, "GET", "/bots/status", "")
	var statuses []botStatus
	if err := json.Unmarshal(response.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if len(statuses) != 1 || statuses[0] != (botStatus{Name: "w1", Status: fleet.StatusStopped, Behavior: "idle"}) {
		t.Errorf("status = %+v", statuses)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"start unknown worker", "POST", "/bots/start/ghost", "", http.StatusNotFound},
		{"start", "POST", "/bots/start/w1", "", http.StatusOK},
		{"start twice", "POST", "/bots/start/w1", "", http.StatusBadRequest},
		{"command without name", "POST", "/bots/command/w1", `{}`, http.StatusBadRequest},
		{"command malformed", "POST", "/bots/command/w1", `{"command":`, http.StatusBadRequest},
		{"command", "POST", "/bots/command/w1", `{"command":"turn","args":["north"]}`, http.StatusOK},
		{"command not running", "POST", "/bots/command/ghost", `{"command":"jump"}`, http.StatusNotFound},
		{"wrong method", "GET", "/bots/start/w1", "", http.StatusMethodNotAllowed},
	}
	for _, test := range tests {
		response := h.serveHTTP(t, test.method, test.path, test.body)
		if response.Code != test.want {
			t.Errorf("%s: status %d, want %d (body %s)", test.name, response.Code, test.want, response.Body)
		}
	}

	process := testutil.RequireReceive(t, h.spawner.spawned, testTimeout, "waiting for spawn")
	if command := process.nextCommand(t); command.Command != "turn" || len(command.Args) != 1 || command.Args[0] != "north" {
		t.Errorf("delivered command = %+v", command)
	}
}

func TestHTTPCommands(t *testing.T) {
	h := newHarness(t, testConfig(t))

	response := h.serveHTTP(t, "POST", "/commands", `{"action":"config-upsert","spec":{"name":"w1","username":"W1","host":"localhost"}}`)
	if response.Code != http.StatusOK {
		t.Fatalf("config-upsert status %d: %s", response.Code, response.Body)
	}
	var success struct {
		Success bool                 `json:"success"`
		Data    fleet.UpsertResponse `json:"data"`
	}
	if err := json.Unmarshal(response.Body.Bytes(), &success); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if !success.Success || !success.Data.Created {
		t.Errorf("reply = %+v", success)
	}

	response = h.serveHTTP(t, "POST", "/commands", `{"action":"enqueue","name":"w1","script":"patrol","params":{"steps":4}}`)
	if response.Code != http.StatusOK {
		t.Errorf("enqueue status %d: %s", response.Code, response.Body)
	}

	failures := []struct {
		body string
		want int
	}{
		{`{"action":"launch"}`, http.StatusBadRequest},
		{`{"action":"enqueue","name":"w1","script":"dig"}`, http.StatusBadRequest},
		{`{"action":"config-get","name":"ghost"}`, http.StatusNotFound},
		{`not json`, http.StatusBadRequest},
	}
	for _, failure := range failures {
		body, want := failure.body, failure.want
		response := h.serveHTTP(t, "POST", "/commands", body)
		if response.Code != want {
			t.Errorf("%s: status %d, want %d", body, response.Code, want)
		}
		var reply map[string]string
		if err := json.Unmarshal(response.Body.Bytes(), &reply); err != nil || reply["error"] == "" {
			t.Errorf("%s: body %s is not an error object", body, response.Body)
		}
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("worker %q: %w", "w", fleet.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("worker %q: %w", "w", fleet.ErrNotRunning), http.StatusNotFound},
		{fleet.ErrAlreadyRunning, http.StatusBadRequest},
		{fleet.ErrMissingField, http.StatusBadRequest},
		{fleet.ErrInvalidSpec, http.StatusBadRequest},
		{fleet.ErrUnknownScript, http.StatusBadRequest},
		{fleet.ErrUnknownBehavior, http.StatusBadRequest},
		{fmt.Errorf("%w %q", errUnknownAction, "x"), http.StatusBadRequest},
		{errors.New("spawn failed"), http.StatusInternalServerError},
	}
	for _, test := range tests {
		if got := httpStatus(test.err); got != test.want {
			t.Errorf("httpStatus(%v) = %d, want %d", test.err, got, test.want)
		}
	}
}

func TestEventStreamOverHTTP(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.addWorker(t, "w1")

	server := httptest.NewServer(h.httpHandler())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, "GET", server.URL+"/events?task=t1", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer response.Body.Close()
	if contentType := response.Header.Get("Content-Type"); contentType != "text/event-stream" {
		t.Errorf("Content-Type = %q", contentType)
	}

	reader := bufio.NewReader(response.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading first event: %v", err)
	}
	data, found := strings.CutPrefix(strings.TrimSpace(line), "data: ")
	if !found {
		t.Fatalf("first line = %q, want a data line", line)
	}
	var event fleet.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if event.Type != fleet.EventFullState || len(event.Workers) != 1 || event.Workers[0].Name != "w1" {
		t.Errorf("first event = %+v", event)
	}
	cancel()
}
