// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// gtool-worker is one supervised game agent. The controller starts it
// as "gtool-worker run" and talks to it over stdin and stdout with
// CBOR-framed IPC messages; logs go to stderr, which the controller
// appends to the worker's stderr.log.
//
// "gtool-worker scripts" prints the behaviors and task scripts compiled
// into the binary as JSON. The controller runs it to validate names
// before workers are configured or tasks are enqueued.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/lib/ipc"
	"github.com/bureau-foundation/gtool/lib/process"
	"github.com/bureau-foundation/gtool/lib/version"
	"github.com/bureau-foundation/gtool/lib/worker"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	var (
		logLevel    string
		showVersion bool
	)
	flags := pflag.NewFlagSet("gtool-worker", pflag.ContinueOnError)
	flags.StringVar(&logLevel, "log-level", "info", "stderr log level: debug, info, warn, or error")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gtool-worker [flags] run|scripts\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print(os.Stdout, "gtool-worker")
		return nil
	}

	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("expected exactly one subcommand, got %d", flags.NArg())
	}
	switch flags.Arg(0) {
	case "scripts":
		return printScripts(os.Stdout, worker.Builtin())
	case "run":
		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		return runAgent(level)
	}
	return fmt.Errorf("unknown subcommand %q (want run or scripts)", flags.Arg(0))
}

// printScripts writes the registry's catalog as one JSON document.
func printScripts(w io.Writer, registry *worker.Registry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(registry.Catalog())
}

// runAgent serves the IPC stream on stdin and stdout until the
// controller stops the worker or the game connection ends.
func runAgent(level slog.Level) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channel := ipc.NewChannel(os.Stdin, os.Stdout)
	agent := worker.New(worker.Config{
		Sender:   channel,
		Receiver: channel,
		Logger:   logger,
	})
	logger.Info("worker starting", "version", version.Short(), "pid", os.Getpid())
	err := agent.Run(ctx)
	if err != nil {
		logger.Error("worker exiting", "error", err)
		return err
	}
	logger.Info("worker stopped by controller")
	return nil
}
