// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the observer-facing servers of the gtool
// controller and the client the gtool CLI uses to reach them.
//
//   - SocketServer: a CBOR protocol on a Unix socket. Each connection
//     carries one request. Request-response actions get one reply
//     envelope; stream actions get an ok envelope followed by frames
//     until either side hangs up.
//   - Client: the matching caller, with Call for request-response
//     actions and Stream for stream actions.
//   - HTTPServer: listener lifecycle and graceful shutdown for the
//     REST and Server-Sent Events surface. The caller supplies the
//     http.Handler.
//
// The socket is not authenticated. Access is controlled by the file
// mode of the socket and its directory.
package service
