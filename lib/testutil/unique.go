// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"strconv"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns prefix followed by a process-wide sequence number,
// "worker-1", "worker-2" and so on.
func UniqueID(prefix string) string {
	return prefix + "-" + strconv.FormatUint(uniqueCounter.Add(1), 10)
}
