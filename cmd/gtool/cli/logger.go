// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger on stderr: text when
// stderr is a terminal, JSON when it is piped or redirected. The level
// comes from GTOOL_LOG_LEVEL and defaults to warn, so commands stay
// quiet unless asked.
func NewCommandLogger() *slog.Logger {
	level := slog.LevelWarn
	if value := os.Getenv("GTOOL_LOG_LEVEL"); value != "" {
		// An unparseable level keeps the default.
		_ = level.UnmarshalText([]byte(value))
	}
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
