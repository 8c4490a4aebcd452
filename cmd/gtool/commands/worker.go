// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

func startCommand(env Env) *cli.Command {
	return lifecycleCommand(env, fleet.ActionStart, "Start a configured worker",
		`Spawn the worker's process. Fails if the worker is already running.`)
}

func stopCommand(env Env) *cli.Command {
	return lifecycleCommand(env, fleet.ActionStop, "Stop a running worker",
		`Send the worker a stop command. A stopped worker is not restarted
by auto-reconnect.`)
}

// lifecycleCommand builds start and stop, which differ only in the
// action they call.
func lifecycleCommand(env Env, action, summary, description string) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:        action,
		Summary:     summary,
		Description: description,
		Usage:       "gtool " + action + " <name> [flags]",
		Flags:       func() *pflag.FlagSet { return params.newFlagSet(action) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, "name"); err != nil {
				return err
			}
			name := args[0]
			var response fleet.MessageResponse
			if err := params.callForWorker(ctx, name, action, map[string]any{"name": name}, &response); err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, response); done {
				return err
			}
			_, err := fmt.Fprintln(env.Stdout, response.Message)
			return err
		},
	}
}

func sendCommand(env Env) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "send",
		Summary: "Send a command to one worker or all running workers",
		Description: `Deliver a command line to a running worker, or to every running
worker when the target is "*". Workers understand:

  say <text>
  move forward|back|left|right|sprint [milliseconds]
  turn north|east|south|west
  jump
  stop

Flags must come before the target; everything after it is the command.`,
		Usage: "gtool send [flags] <name|*> <command> [args...]",
		Examples: []cli.Example{
			{Description: "Make one worker speak", Command: "gtool send miner say hello there"},
			{Description: "Everyone jumps", Command: "gtool send '*' jump"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := params.newFlagSet("send")
			flagSet.SetInterspersed(false)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 2 {
				return cli.ExactArgs(args, "name|*", "command")
			}
			target, line := args[0], strings.Join(args[1:], " ")
			fields := map[string]any{"target": target, "command": line}

			var response fleet.SendResponse
			var err error
			if target == fleet.BroadcastTarget {
				err = params.call(ctx, fleet.ActionSend, fields, &response)
			} else {
				err = params.callForWorker(ctx, target, fleet.ActionSend, fields, &response)
			}
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, response); done {
				return err
			}
			if len(response.Reached) == 0 {
				_, err = fmt.Fprintln(env.Stdout, "No running workers.")
				return err
			}
			_, err = fmt.Fprintf(env.Stdout, "Sent %q to %s.\n", line, strings.Join(response.Reached, ", "))
			return err
		},
	}
}
