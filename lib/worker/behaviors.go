// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// Pull loop pacing for task_runner.
const (
	EmptyQueueDelay  = 30 * time.Second
	TaskFailureDelay = 10 * time.Second
)

const (
	defaultAFKCommand   = "/afk"
	defaultJumpInterval = 8 * time.Second
	loginDelay          = 2 * time.Second
)

// Builtin returns a registry holding the behaviors and task scripts
// gtool ships with.
func Builtin() *Registry {
	registry := NewRegistry()
	registry.AddBehavior("idle", idle)
	registry.AddBehavior("afk", afk)
	registry.AddBehavior("login", login)
	registry.AddBehavior("task_runner", taskRunner)
	registry.AddScript("test_say", testSay)
	registry.AddScript("patrol", patrol)
	return registry
}

func idle(_ context.Context, agent *Agent) error {
	return agent.Client().Chat("Worker is now idle. Behavior loaded.")
}

// afk chats params.command once, then jumps every
// params.jumpInterval milliseconds while standing on the ground.
func afk(ctx context.Context, agent *Agent) error {
	params := agent.Params()
	client := agent.Client()
	if err := client.Chat(params.String("command", defaultAFKCommand)); err != nil {
		return err
	}

	ticker := agent.clock.NewTicker(params.Milliseconds("jumpInterval", defaultJumpInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if client.World().OnGround {
				agent.jump()
			}
		}
	}
}

// login sends "/login <params.password>" shortly after spawning, for
// servers that gate offline accounts behind a login plugin.
func login(ctx context.Context, agent *Agent) error {
	password := agent.Params().String("password", "")
	if password == "" {
		return fmt.Errorf("params.password: %w", fleet.ErrMissingField)
	}
	agent.Log("Login behavior started.")
	if err := agent.Sleep(ctx, loginDelay); err != nil {
		return err
	}
	agent.Log("Sending login command.")
	return agent.Client().Chat("/login " + password)
}

// taskRunner pulls tasks from the controller and runs them one at a
// time until the worker stops.
func taskRunner(ctx context.Context, agent *Agent) error {
	agent.Log(fmt.Sprintf("Task runner started for %s.", agent.Spec().Name))
	for {
		agent.SetState(fleet.StateIdle)
		agent.Status("IDLE - waiting for next task")
		task, err := agent.NextTask(ctx)
		if err != nil {
			return err
		}

		if task == nil {
			if err := agent.Sleep(ctx, EmptyQueueDelay); err != nil {
				return err
			}
			continue
		}

		if err := agent.RunTask(ctx, *task); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := agent.Sleep(ctx, TaskFailureDelay); err != nil {
				return err
			}
		}
	}
}
