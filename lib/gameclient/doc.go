// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gameclient is the worker's connection to a game server
// bridge. The bridge owns the game protocol; this package speaks a
// small CBOR frame stream to it: the worker sends actions (chat,
// movement controls, look, equip, consume, quit) and receives world
// events (login, spawn, vitals, movement, nearby entities, inventory,
// chat, kick).
//
// Conn keeps a World snapshot current from the event stream, so
// telemetry and behaviors read the latest vitals, position, entities,
// and inventory without waiting on the network.
//
// Connections go direct over TCP or through a SOCKS5 proxy
// (golang.org/x/net/proxy) when the worker spec names one.
package gameclient
