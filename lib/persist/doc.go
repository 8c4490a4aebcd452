// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package persist holds the controller's durable storage primitives.
//
// Every state file is written atomically (write to a temporary file,
// fsync, rename, fsync the directory) so a crash at any point leaves
// either the old or the new content on disk, never a partial write.
//
// Writes are batched by a Flusher: mutations call MarkDirty, and one
// deferred write covers every mutation inside the flush window.
// SnapshotFile skips the write entirely when the serialized content
// has not changed since the last successful write.
//
// Task logs are append-only text files, one per task, compressed into
// an archive once the task finishes. The data directory itself is
// guarded by an advisory lock so only one controller writes to it.
package persist
