// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/lib/fleetui"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

func watchCommand(env Env) *cli.Command {
	var (
		params   connectionParams
		tasks    []string
		readOnly bool
	)
	return &cli.Command{
		Name:    "watch",
		Summary: "Watch the fleet live in a terminal view",
		Description: `Open a full-screen view of the fleet fed by the controller's event
stream. The view reconnects on its own if the controller restarts.

Keys: j/k move, / filters by fuzzy match, s starts and x stops the
selected worker, q quits. Pass --task to follow the log of a running
task in the log pane.`,
		Usage: "gtool watch [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			params.Connection.AddFlags(flagSet)
			flagSet.StringArrayVar(&tasks, "task", nil, "task id whose log lines to show (repeatable)")
			flagSet.BoolVar(&readOnly, "read-only", false, "disable the start and stop keys")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args); err != nil {
				return err
			}

			// Anything logged while the screen is taken over goes to
			// the log pane instead of stderr.
			handler := fleetui.NewTUILogHandler(slog.LevelInfo)
			logger := slog.New(handler)
			previous := slog.Default()
			slog.SetDefault(logger)
			defer slog.SetDefault(previous)

			source := fleetui.NewStreamSource(fleetui.StreamSourceConfig{
				Client: params.Client(),
				Tasks:  tasks,
				Logger: logger,
			})
			defer source.Close()

			var commander fleetui.Commander
			if !readOnly {
				commander = &clientCommander{params: &params}
			}
			program := tea.NewProgram(
				fleetui.NewModel(source.Updates(), commander),
				tea.WithAltScreen(),
				tea.WithContext(ctx),
				tea.WithInput(env.Stdin),
				tea.WithOutput(env.Stdout),
			)
			handler.SetProgram(program)
			defer handler.SetProgram(nil)

			if _, err := program.Run(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("running watch view: %w", err)
			}
			return nil
		},
	}
}

// clientCommander sends the view's start and stop keys to the
// controller.
type clientCommander struct {
	params *connectionParams
}

func (commander *clientCommander) Start(ctx context.Context, name string) error {
	return commander.lifecycle(ctx, fleet.ActionStart, name)
}

func (commander *clientCommander) Stop(ctx context.Context, name string) error {
	return commander.lifecycle(ctx, fleet.ActionStop, name)
}

func (commander *clientCommander) lifecycle(ctx context.Context, action, name string) error {
	var response fleet.MessageResponse
	return commander.params.callForWorker(ctx, name, action, map[string]any{"name": name}, &response)
}
