// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the gtool CLI.
//
// The central type is [Command]: a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function. Commands are assembled into a tree in cmd/gtool/commands
// and dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and help output with examples. An unknown
// subcommand or flag gets the closest known name by edit distance
// (threshold: distance <= 3).
//
// Mistakes in the invocation are returned as [*UsageError], which
// exits with status 2. [Connection] carries the --socket flag shared
// by every command that talks to the controller, and [JSONOutput]
// the --json flag.
package cli
