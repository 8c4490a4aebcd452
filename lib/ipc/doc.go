// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the controller↔worker message protocol. Both
// cmd/gtool-controller and cmd/gtool-worker import this package so the
// wire types are defined once rather than mirrored.
//
// A worker's stdin carries messages from the controller and its stdout
// carries messages back. Each message is one CBOR value; values are
// self-delimiting, so the stream needs no extra framing.
package ipc
