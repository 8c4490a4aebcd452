// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/gtool/lib/codec"
	"github.com/bureau-foundation/gtool/lib/history"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/service"
)

// errUnknownAction is returned for an action name no handler serves.
var errUnknownAction = errors.New("unknown action")

// commandRequest is the union of every action's fields. The socket
// decodes it from CBOR and POST /commands from JSON; the codec falls
// back to the json tags, so both spell the fields the same way.
type commandRequest struct {
	Action  string            `json:"action"`
	Name    string            `json:"name,omitempty"`
	Target  string            `json:"target,omitempty"`
	Command string            `json:"command,omitempty"`
	Spec    *fleet.WorkerSpec `json:"spec,omitempty"`
	Script  string            `json:"script,omitempty"`
	Params  map[string]any    `json:"params,omitempty"`
	TaskID  string            `json:"task_id,omitempty"`
	Limit   int               `json:"limit,omitempty"`
	Tasks   []string          `json:"tasks,omitempty"`
}

// actionNames lists the request-response actions, in the order they
// are registered.
var actionNames = []string{
	fleet.ActionStatus,
	fleet.ActionStart,
	fleet.ActionStop,
	fleet.ActionSend,
	fleet.ActionConfigUpsert,
	fleet.ActionConfigDelete,
	fleet.ActionConfigGet,
	fleet.ActionEnqueue,
	fleet.ActionTaskLog,
	fleet.ActionTaskHistory,
	fleet.ActionScripts,
}

// registerActions registers every socket action on the server.
func (c *Controller) registerActions(server *service.SocketServer) {
	for _, action := range actionNames {
		server.Handle(action, c.handleSocketAction)
	}
	server.HandleStream(fleet.ActionSubscribe, c.handleSubscribe)
}

func (c *Controller) handleSocketAction(ctx context.Context, raw []byte) (any, error) {
	var request commandRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return c.execute(ctx, request)
}

// execute runs one action. Both observer surfaces funnel through it.
func (c *Controller) execute(ctx context.Context, request commandRequest) (any, error) {
	switch request.Action {
	case fleet.ActionStatus:
		return c.status(), nil
	case fleet.ActionStart:
		if err := requireField("name", request.Name); err != nil {
			return nil, err
		}
		if err := c.supervisor.Start(request.Name); err != nil {
			return nil, err
		}
		return fleet.MessageResponse{Message: fmt.Sprintf("%s started", request.Name)}, nil
	case fleet.ActionStop:
		if err := requireField("name", request.Name); err != nil {
			return nil, err
		}
		if err := c.supervisor.Stop(request.Name); err != nil {
			return nil, err
		}
		return fleet.MessageResponse{Message: fmt.Sprintf("stop sent to %s", request.Name)}, nil
	case fleet.ActionSend:
		return c.send(request.Target, request.Command)
	case fleet.ActionConfigUpsert:
		return c.upsert(request.Spec)
	case fleet.ActionConfigDelete:
		if err := requireField("name", request.Name); err != nil {
			return nil, err
		}
		if err := c.supervisor.Delete(request.Name); err != nil {
			return nil, err
		}
		return fleet.MessageResponse{Message: fmt.Sprintf("%s deleted", request.Name)}, nil
	case fleet.ActionConfigGet:
		if err := requireField("name", request.Name); err != nil {
			return nil, err
		}
		spec, exists := c.store.Spec(request.Name)
		if !exists {
			return nil, fmt.Errorf("worker %q: %w", request.Name, fleet.ErrNotFound)
		}
		return fleet.Event{Type: fleet.EventConfigShow, Config: &spec}, nil
	case fleet.ActionEnqueue:
		if err := requireField("name", request.Name); err != nil {
			return nil, err
		}
		if err := requireField("script", request.Script); err != nil {
			return nil, err
		}
		return c.dispatcher.Enqueue(request.Name, request.Script, request.Params)
	case fleet.ActionTaskLog:
		return c.taskLog(request.Name, request.TaskID)
	case fleet.ActionTaskHistory:
		return c.taskHistory(ctx, request.Name, request.Limit)
	case fleet.ActionScripts:
		return c.registry.Catalog(), nil
	case "":
		return nil, fmt.Errorf("action: %w", fleet.ErrMissingField)
	}
	return nil, fmt.Errorf("%w %q", errUnknownAction, request.Action)
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s: %w", name, fleet.ErrMissingField)
	}
	return nil
}

func (c *Controller) status() fleet.StatusResponse {
	workers := c.store.Snapshot()
	response := fleet.StatusResponse{
		Workers:       workers,
		Observers:     c.store.Hub().Count(),
		UptimeSeconds: c.clock.Now().Sub(c.startedAt).Seconds(),
	}
	for _, worker := range workers {
		if task, busy := c.dispatcher.InFlight(worker.Name); busy {
			if response.InFlight == nil {
				response.InFlight = make(map[string]string)
			}
			response.InFlight[worker.Name] = task.ID
		}
	}
	return response
}

// send splits line on whitespace into a command and its arguments and
// delivers it to target, which is a worker name or "*" for every
// running worker.
func (c *Controller) send(target, line string) (fleet.SendResponse, error) {
	if err := requireField("target", target); err != nil {
		return fleet.SendResponse{}, err
	}
	words := strings.Fields(line)
	if len(words) == 0 {
		return fleet.SendResponse{}, fmt.Errorf("command: %w", fleet.ErrMissingField)
	}
	command, args := words[0], words[1:]

	if target == fleet.BroadcastTarget {
		reached := c.supervisor.Broadcast(command, args)
		if reached == nil {
			reached = []string{}
		}
		c.store.Log(fleet.ControllerPrefix, fleet.LevelStatus,
			fmt.Sprintf("%s sent to %d running workers", command, len(reached)))
		return fleet.SendResponse{Reached: reached}, nil
	}
	if err := c.supervisor.SendCommand(target, command, args); err != nil {
		return fleet.SendResponse{}, err
	}
	return fleet.SendResponse{Reached: []string{target}}, nil
}

// upsert validates the behavior name against the script registry and
// stores the spec. Behavior names are only checked once a registry
// scan has succeeded.
func (c *Controller) upsert(spec *fleet.WorkerSpec) (fleet.UpsertResponse, error) {
	if spec == nil {
		return fleet.UpsertResponse{}, fmt.Errorf("spec: %w", fleet.ErrMissingField)
	}
	behavior := spec.EffectiveBehavior()
	if c.registry.Loaded() && !c.registry.HasBehavior(behavior) {
		return fleet.UpsertResponse{}, fmt.Errorf("behavior %q: %w", behavior, fleet.ErrUnknownBehavior)
	}
	created, err := c.store.Upsert(*spec)
	if err != nil {
		return fleet.UpsertResponse{}, err
	}

	message := fmt.Sprintf("config for %s saved", spec.Name)
	if created {
		message = fmt.Sprintf("%s added", spec.Name)
	} else if c.store.Handle(spec.Name) != nil {
		message += "; restart the worker to apply it"
	}
	c.logger.Info("worker config saved", "worker", spec.Name, "created", created)
	c.store.Log(fleet.ControllerPrefix, fleet.LevelStatus, message)
	return fleet.UpsertResponse{Created: created, Message: message}, nil
}

func (c *Controller) taskLog(worker, taskID string) (fleet.TaskLogResponse, error) {
	if err := requireField("name", worker); err != nil {
		return fleet.TaskLogResponse{}, err
	}
	if err := requireField("task_id", taskID); err != nil {
		return fleet.TaskLogResponse{}, err
	}
	content, err := c.dispatcher.TaskLog(worker, taskID)
	if err != nil {
		return fleet.TaskLogResponse{}, err
	}
	return fleet.TaskLogResponse{Worker: worker, TaskID: taskID, Log: string(content)}, nil
}

func (c *Controller) taskHistory(ctx context.Context, worker string, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = history.DefaultListLimit
	}
	return c.dispatcher.History(ctx, worker, limit)
}
