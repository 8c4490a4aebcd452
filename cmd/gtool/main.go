// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// gtool is the operator CLI for a gtool-controller: list and inspect
// workers, start and stop them, edit their specs, queue tasks, and
// watch the fleet live.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/gtool/cmd/gtool/cli"
	"github.com/bureau-foundation/gtool/cmd/gtool/commands"
	"github.com/bureau-foundation/gtool/lib/process"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog.SetDefault(cli.NewCommandLogger())
	return commands.Root(commands.StandardEnv()).Execute(ctx, args)
}
