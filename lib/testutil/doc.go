// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by the gtool test suites.
//
// The Require helpers wrap a channel operation in a wall-clock
// deadline so a broken supervisor or stream fails the test instead of
// hanging it. They are the only wall-clock timeouts in the tests;
// reconnect backoff, debounce and heartbeats run on clock.Fake.
//
// SocketDir returns a short directory under /tmp for Unix sockets,
// whose paths must fit in 108 bytes. UniqueID numbers worker names and
// task ids within one test binary.
package testutil
