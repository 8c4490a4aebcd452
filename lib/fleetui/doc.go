// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fleetui is the terminal view behind "gtool watch". A
// [StreamSource] keeps a subscribe stream open against the controller
// socket and delivers its frames as [Update] values; [Model] folds
// them into a [fleet.View] and renders a worker table, the selected
// worker's details, and the tail of the fleet log.
//
// The worker table can be narrowed with an fzf-style fuzzy filter
// ("/"). The same matcher backs the CLI's "did you mean" suggestions
// for mistyped worker names, through [Suggest].
package fleetui
