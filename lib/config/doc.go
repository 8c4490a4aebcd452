// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gtool controller's YAML configuration.
//
// The file is named by the --config flag or, failing that, the
// GTOOL_CONFIG environment variable (see [Resolve]). With neither set
// the controller runs on [Default]. There is no file discovery.
//
// A file may carry development and production sections that override
// the logging and http sections when [Config].Environment matches.
//
// ${HOME}, ${GTOOL_DATA_DIR}, and ${VAR:-default} patterns are
// expanded in path fields after loading. GTOOL_DATA_DIR refers to the
// loaded data_dir, so other paths can be written relative to it.
// Environment variables never override configured values directly.
//
// Key exports:
//
//   - [Config] -- data directory, worker binary, socket, HTTP,
//     logging, persistence, and stream settings
//   - [Default] -- development defaults
//   - [Resolve], [Load], and [LoadFile] -- the entry points
package config
