// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the gtool CLI command tree. Every command
// except version talks to a running gtool-controller over its CBOR
// socket.
package commands

import (
	"context"
	"io"
	"os"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/lib/version"
)

// Env holds the streams commands read and write. Tests substitute
// buffers.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// StandardEnv returns the process's own streams.
func StandardEnv() Env {
	return Env{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Root builds the complete command tree.
func Root(env Env) *cli.Command {
	return &cli.Command{
		Name:   "gtool",
		Output: env.Stderr,
		Description: `gtool: operate a fleet of game worker agents.

The controller (gtool-controller) supervises one gtool-worker process
per configured worker, dispatches queued tasks to them, and serves the
fleet state to observers. This CLI is one such observer.`,
		Subcommands: []*cli.Command{
			listCommand(env),
			startCommand(env),
			stopCommand(env),
			sendCommand(env),
			configCommand(env),
			enqueueCommand(env),
			taskCommand(env),
			scriptsCommand(env),
			watchCommand(env),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string) error {
					if err := cli.ExactArgs(args); err != nil {
						return err
					}
					version.Print(env.Stdout, "gtool")
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Show every worker and its telemetry",
				Command:     "gtool list",
			},
			{
				Description: "Queue a patrol on a worker",
				Command:     "gtool enqueue miner patrol direction=left steps=6",
			},
			{
				Description: "Watch the fleet live",
				Command:     "gtool watch",
			},
		},
	}
}
