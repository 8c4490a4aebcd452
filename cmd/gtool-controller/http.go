// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/service"
)

// maxBodySize bounds a JSON request body.
const maxBodySize = 1 << 20

// botStatus is one entry of GET /bots/status.
type botStatus struct {
	Name     string             `json:"name"`
	Status   fleet.WorkerStatus `json:"status"`
	Behavior string             `json:"behavior"`
}

// botCommand is the body of POST /bots/command/{name}.
type botCommand struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// successResponse is the body of every successful REST mutation.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (c *Controller) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /bots/status", c.handleBotStatus)
	mux.HandleFunc("POST /bots/start/{name}", c.handleBotStart)
	mux.HandleFunc("POST /bots/command/{name}", c.handleBotCommand)
	mux.HandleFunc("POST /commands", c.handleCommands)
	mux.HandleFunc("GET /events", c.handleEvents)
	return mux
}

func (c *Controller) handleBotStatus(writer http.ResponseWriter, _ *http.Request) {
	workers := c.store.Snapshot()
	statuses := make([]botStatus, 0, len(workers))
	for _, worker := range workers {
		statuses = append(statuses, botStatus{
			Name:     worker.Name,
			Status:   worker.Status,
			Behavior: worker.Config.EffectiveBehavior(),
		})
	}
	service.WriteJSON(writer, http.StatusOK, statuses)
}

func (c *Controller) handleBotStart(writer http.ResponseWriter, request *http.Request) {
	name := request.PathValue("name")
	if err := c.supervisor.Start(name); err != nil {
		writeFailure(writer, err)
		return
	}
	service.WriteJSON(writer, http.StatusOK, successResponse{Success: true, Message: fmt.Sprintf("bot %s started", name)})
}

func (c *Controller) handleBotCommand(writer http.ResponseWriter, request *http.Request) {
	name := request.PathValue("name")
	var body botCommand
	if !decodeBody(writer, request, &body) {
		return
	}
	if body.Command == "" {
		service.WriteError(writer, http.StatusBadRequest, "command is required")
		return
	}
	if err := c.supervisor.SendCommand(name, body.Command, body.Args); err != nil {
		writeFailure(writer, err)
		return
	}
	service.WriteJSON(writer, http.StatusOK, successResponse{Success: true, Message: fmt.Sprintf("command %s sent to %s", body.Command, name)})
}

// handleCommands accepts the socket actions as JSON, for dashboards
// that cannot speak CBOR.
func (c *Controller) handleCommands(writer http.ResponseWriter, request *http.Request) {
	var body commandRequest
	if !decodeBody(writer, request, &body) {
		return
	}
	result, err := c.execute(request.Context(), body)
	if err != nil {
		writeFailure(writer, err)
		return
	}
	service.WriteJSON(writer, http.StatusOK, successResponse{Success: true, Message: body.Action, Data: result})
}

// handleEvents is the Server-Sent Events form of the subscribe
// stream. Repeated ?task= parameters join task log topics.
func (c *Controller) handleEvents(writer http.ResponseWriter, request *http.Request) {
	events, err := service.NewEventWriter(writer)
	if err != nil {
		service.WriteError(writer, http.StatusInternalServerError, err.Error())
		return
	}
	err = c.streamEvents(request.Context(), request.URL.Query()["task"], nil, func(event fleet.Event) error {
		return events.Send("", event)
	})
	if err != nil {
		c.logger.Debug("event stream observer disconnected", "error", err)
	}
}

func decodeBody(writer http.ResponseWriter, request *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(writer, request.Body, maxBodySize))
	if err := decoder.Decode(target); err != nil {
		service.WriteError(writer, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeFailure(writer http.ResponseWriter, err error) {
	service.WriteError(writer, httpStatus(err), err.Error())
}

// httpStatus maps an operation error to its REST status code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, fleet.ErrNotFound), errors.Is(err, fleet.ErrNotRunning):
		return http.StatusNotFound
	case errors.Is(err, fleet.ErrAlreadyRunning),
		errors.Is(err, fleet.ErrMissingField),
		errors.Is(err, fleet.ErrInvalidSpec),
		errors.Is(err, fleet.ErrUnknownScript),
		errors.Is(err, fleet.ErrUnknownBehavior),
		errors.Is(err, errUnknownAction):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
