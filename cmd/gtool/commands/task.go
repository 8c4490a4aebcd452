// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/lib/history"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

func taskCommand(env Env) *cli.Command {
	return &cli.Command{
		Name:    "task",
		Summary: "Inspect task logs and history",
		Subcommands: []*cli.Command{
			taskLogCommand(env),
			taskHistoryCommand(env),
		},
	}
}

func taskLogCommand(env Env) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "log",
		Summary: "Print the captured log of a task",
		Description: `Print the log lines a task produced. Logs are kept in the
controller's memory for recent tasks only; use 'gtool watch --task' to
follow a task while it runs.`,
		Usage: "gtool task log <worker> <task-id> [flags]",
		Flags: func() *pflag.FlagSet { return params.newFlagSet("log") },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, "worker", "task-id"); err != nil {
				return err
			}
			var response fleet.TaskLogResponse
			fields := map[string]any{"name": args[0], "task_id": args[1]}
			if err := params.callForWorker(ctx, args[0], fleet.ActionTaskLog, fields, &response); err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, response); done {
				return err
			}
			log := response.Log
			if log != "" && !strings.HasSuffix(log, "\n") {
				log += "\n"
			}
			_, err := fmt.Fprint(env.Stdout, log)
			return err
		},
	}
}

func taskHistoryCommand(env Env) *cli.Command {
	var (
		params connectionParams
		limit  int
	)
	return &cli.Command{
		Name:    "history",
		Summary: "List finished tasks, newest first",
		Usage:   "gtool task history [worker] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := params.newFlagSet("history")
			flagSet.IntVarP(&limit, "limit", "n", history.DefaultListLimit, "maximum number of rows")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return cli.Usagef("unexpected argument %q", args[1])
			}
			if limit <= 0 {
				return cli.Usagef("--limit must be positive")
			}
			fields := map[string]any{"limit": limit}
			if len(args) == 1 {
				fields["name"] = args[0]
			}

			var records []history.Record
			if err := params.call(ctx, fleet.ActionTaskHistory, fields, &records); err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, records); done {
				return err
			}
			if len(records) == 0 {
				_, err := fmt.Fprintln(env.Stdout, "No finished tasks.")
				return err
			}

			styles := cli.NewStyles(env.Stdout)
			table := cli.NewTable("TASK", "WORKER", "SCRIPT", "STATUS", "AT", "ERROR")
			for _, record := range records {
				table.Add(
					cli.Plain(record.TaskID),
					cli.Plain(record.Worker),
					cli.Plain(record.ScriptName),
					taskStatusCell(record.Status, styles),
					cli.Plain(record.At.Local().Format(time.DateTime)),
					cli.Plain(record.Error),
				)
			}
			return table.Render(env.Stdout, styles)
		},
	}
}

func taskStatusCell(status fleet.TaskStatus, styles cli.Styles) cli.Cell {
	switch status {
	case fleet.TaskCompleted:
		return cli.Styled(string(status), styles.Good)
	case fleet.TaskFailed:
		return cli.Styled(string(status), styles.Bad)
	case fleet.TaskLost:
		return cli.Styled(string(status), styles.Warning)
	}
	return cli.Plain(string(status))
}
