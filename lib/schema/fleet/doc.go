// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fleet defines the data model shared by the gtool controller,
// worker, and CLI: worker configuration (WorkerSpec), mergeable worker
// telemetry (Stats), queued work (Task), the observer view of one
// worker (WorkerState), incremental updates to that view (Delta), and
// the frames observers receive (Event).
//
// Every type here carries `json` tags only. The same definitions are
// written to the fleet and queue files, served over HTTP, and encoded
// as CBOR on the worker IPC stream and the operator socket.
//
// The observer-side fold lives here too. [View.Apply] replays full
// snapshots and deltas the same way every observer must, so the
// controller's tests can check that a stream of events always
// reconstructs the controller's own snapshot.
package fleet
