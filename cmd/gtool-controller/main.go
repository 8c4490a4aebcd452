// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gtool/lib/config"
	"github.com/bureau-foundation/gtool/lib/process"
	"github.com/bureau-foundation/gtool/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flags := pflag.NewFlagSet("gtool-controller", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to the controller config file (default: $"+config.EnvVar+")")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print(os.Stdout, "gtool-controller")
		return nil
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controller, err := Open(ctx, Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer controller.Close()

	logger.Info("controller running",
		"version", version.Short(),
		"data_dir", cfg.DataDir,
		"socket", cfg.SocketPath,
		"http", cfg.HTTP.Address,
	)
	return controller.Run(ctx)
}

// newLogger builds the controller's slog handler from the logging
// section of the config.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	options := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}
