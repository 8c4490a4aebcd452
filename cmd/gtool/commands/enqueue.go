// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

func enqueueCommand(env Env) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "enqueue",
		Summary: "Queue a task script on a worker",
		Description: `Append a task to a worker's queue. The controller dispatches it when
the worker is running, idle, and has nothing in flight. Parameters are
key=value pairs; values that parse as JSON keep their type.`,
		Usage: "gtool enqueue <name> <script> [key=value...] [flags]",
		Examples: []cli.Example{
			{
				Description: "Walk six blocks to the left",
				Command:     "gtool enqueue miner patrol direction=left steps=6",
			},
			{
				Description: "Pass a list parameter",
				Command:     `gtool enqueue miner gather 'items=["oak_log","birch_log"]'`,
			},
		},
		Flags: func() *pflag.FlagSet { return params.newFlagSet("enqueue") },
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 2 {
				return cli.ExactArgs(args, "name", "script")
			}
			name, script := args[0], args[1]
			taskParams, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}

			fields := map[string]any{"name": name, "script": script}
			if len(taskParams) > 0 {
				fields["params"] = taskParams
			}
			var task fleet.Task
			if err := params.callForWorker(ctx, name, fleet.ActionEnqueue, fields, &task); err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, task); done {
				return err
			}
			_, err = fmt.Fprintf(env.Stdout, "Queued %s as %s on %s.\n", task.ScriptName, task.ID, name)
			return err
		},
	}
}
