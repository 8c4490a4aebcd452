// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash fingerprints executable files by content.
//
// The controller hashes the worker binary each time it scans the
// binary's script registry. A filesystem event on the binary triggers
// a rescan only when the digest changed, so touching the file or
// reinstalling an identical build does not re-run the scan.
package binhash
