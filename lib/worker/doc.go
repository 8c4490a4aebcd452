// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker is the runtime of one gtool-worker process. An Agent
// reads its WorkerSpec from the controller's init message, connects to
// the game server through package gameclient, and then serves three
// inputs until it is stopped or disconnected: controller commands and
// task replies over IPC, world events from the game connection, and a
// periodic telemetry tick.
//
// After the first spawn the agent starts the configured Behavior on
// its own goroutine. Behaviors and task Scripts are Go values compiled
// into the binary and looked up by name in a Registry; Builtin returns
// the set gtool ships with. The controller learns the names by running
// "gtool-worker scripts", which prints Registry.Catalog.
//
// Run returns nil after a stop command and an error for every other
// ending (kicked, disconnected, IPC stream closed), so the worker
// process exits 0 only when the controller asked it to.
package worker
