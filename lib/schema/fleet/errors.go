// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import "errors"

// Sentinel errors returned (wrapped with context) by the store,
// supervisor, and dispatcher. Observer surfaces map them to status
// codes with errors.Is.
var (
	ErrNotFound        = errors.New("worker not found")
	ErrAlreadyRunning  = errors.New("worker already running")
	ErrNotRunning      = errors.New("worker not running")
	ErrUnknownScript   = errors.New("unknown task script")
	ErrUnknownBehavior = errors.New("unknown behavior")
	ErrInvalidSpec     = errors.New("invalid worker spec")
	ErrMissingField    = errors.New("missing required field")
)
