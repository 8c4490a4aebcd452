// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch implements the pull side of task execution: workers
// ask for their next task over IPC, the Dispatcher pops it from the
// state store's queue and tracks it as in flight until the worker
// reports an outcome or exits.
//
// A task leaves the queue before it is delivered. A worker that crashes
// mid-task therefore loses that task; the Dispatcher records it as
// lost in task history instead of retrying it.
//
// ScriptRegistry holds the closed set of task scripts and behaviors the
// worker binary was compiled with, obtained by running the binary's
// "scripts" subcommand and refreshed when the binary changes on disk.
package dispatch
