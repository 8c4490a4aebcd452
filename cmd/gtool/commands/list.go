// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

func listCommand(env Env) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "list",
		Summary: "List workers with their status and telemetry",
		Description: `List every configured worker: process status, the state label it
last reported, its behavior, health, food, position, queued task
count, and the task it is running, if any.`,
		Usage: "gtool list [flags]",
		Examples: []cli.Example{
			{Description: "Show the fleet", Command: "gtool list"},
			{Description: "Full state as JSON", Command: "gtool list --json"},
		},
		Flags: func() *pflag.FlagSet { return params.newFlagSet("list") },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args); err != nil {
				return err
			}
			var status fleet.StatusResponse
			if err := params.call(ctx, fleet.ActionStatus, nil, &status); err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, status); done {
				return err
			}
			return printStatus(env, status)
		},
	}
}

func printStatus(env Env, status fleet.StatusResponse) error {
	styles := cli.NewStyles(env.Stdout)
	if len(status.Workers) == 0 {
		_, err := fmt.Fprintln(env.Stdout, "No workers configured. Add one with 'gtool config set'.")
		return err
	}

	table := cli.NewTable("NAME", "STATUS", "STATE", "BEHAVIOR", "HEALTH", "FOOD", "POSITION", "QUEUE", "TASK")
	running := 0
	for _, worker := range status.Workers {
		statusCell := cli.Styled(string(worker.Status), styles.Faint)
		if worker.Status == fleet.StatusRunning {
			running++
			statusCell = cli.Styled(string(worker.Status), styles.Good)
		}
		state := "-"
		if worker.Stats.State != nil {
			state = *worker.Stats.State
		}
		stateCell := cli.Plain(state)
		if state == fleet.StateBusy {
			stateCell = cli.Styled(state, styles.Warning)
		}
		task := status.InFlight[worker.Name]
		if task == "" {
			task = "-"
		}
		table.Add(
			cli.Plain(worker.Name),
			statusCell,
			stateCell,
			cli.Plain(worker.Config.EffectiveBehavior()),
			cli.Plain(formatStat(worker.Stats.Health)),
			cli.Plain(formatStat(worker.Stats.Food)),
			cli.Plain(formatPosition(worker.Stats.Position)),
			cli.Plain(strconv.Itoa(len(worker.TaskQueue))),
			cli.Plain(task),
		)
	}
	if err := table.Render(env.Stdout, styles); err != nil {
		return err
	}

	uptime := (time.Duration(status.UptimeSeconds) * time.Second).String()
	footer := fmt.Sprintf("%d of %d running, %d observers, controller up %s",
		running, len(status.Workers), status.Observers, uptime)
	_, err := fmt.Fprintf(env.Stdout, "\n%s\n", styles.Faint.Render(footer))
	return err
}

func formatStat(value *float64) string {
	if value == nil {
		return "-"
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}

func formatPosition(position *fleet.Position) string {
	if position == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f, %.1f, %.1f", position.X, position.Y, position.Z)
}
