// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// gtool-controller is the fleet control plane. It supervises one
// gtool-worker process per configured worker, hands queued tasks to
// workers that ask for them, and publishes every state change to
// observers.
//
// State lives under the configured data directory: the fleet file
// (bots.json), the task queues (tasks.json), per-task logs, per-worker
// stderr captures, and the task history database. An exclusive lock on
// the directory keeps a second controller from writing the same files.
//
// Observers connect over two surfaces carrying the same event frames:
//
//   - a CBOR Unix socket (default <data_dir>/controller.sock), used by
//     the gtool CLI, with request-response actions and a "subscribe"
//     stream;
//   - an HTTP listener with a small REST API, a Server-Sent Events
//     stream at /events, and POST /commands accepting the socket
//     actions as JSON.
//
// Configuration is a YAML file named by --config or GTOOL_CONFIG. With
// neither, built-in defaults are used.
package main
