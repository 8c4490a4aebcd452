// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gtool.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Environment != Development {
		t.Errorf("environment = %s, want development", cfg.Environment)
	}
	if cfg.SocketPath != filepath.Join(cfg.DataDir, "controller.sock") {
		t.Errorf("socket_path = %s, want it under data_dir", cfg.SocketPath)
	}
	if cfg.Stream.HeartbeatInterval != 30*time.Second || cfg.Persistence.FlushDelay != 500*time.Millisecond {
		t.Errorf("timing defaults = %+v %+v", cfg.Stream, cfg.Persistence)
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv(EnvVar, "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when GTOOL_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "GTOOL_CONFIG environment variable not set") {
		t.Errorf("error = %q", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
data_dir: /srv/gtool
worker_binary: /opt/gtool/bin/gtool-worker
http:
  address: 0.0.0.0:8080
logging:
  level: debug
persistence:
  flush_delay: 2s
  task_log_codec: lz4
stream:
  heartbeat_interval: 1m
shutdown_timeout: 3s
auto_start: true
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.DataDir != "/srv/gtool" || cfg.SocketPath != "/srv/gtool/controller.sock" {
		t.Errorf("paths = %s %s", cfg.DataDir, cfg.SocketPath)
	}
	if cfg.Persistence.FlushDelay != 2*time.Second || cfg.Stream.HeartbeatInterval != time.Minute || cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("durations = %v %v %v", cfg.Persistence.FlushDelay, cfg.Stream.HeartbeatInterval, cfg.ShutdownTimeout)
	}
	if cfg.Persistence.TaskLogCodec != "lz4" || !cfg.AutoStart || cfg.HTTP.Address != "0.0.0.0:8080" {
		t.Errorf("cfg = %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.Logging.Format != "text" {
		t.Errorf("logging.format = %s, want default text", cfg.Logging.Format)
	}
}

func TestResolvePrefersFlagOverEnv(t *testing.T) {
	fromEnv := writeConfig(t, "data_dir: /from/env\n")
	fromFlag := writeConfig(t, "data_dir: /from/flag\n")
	t.Setenv(EnvVar, fromEnv)

	cfg, err := Resolve(fromFlag)
	if err != nil {
		t.Fatalf("Resolve(flag): %v", err)
	}
	if cfg.DataDir != "/from/flag" {
		t.Errorf("data_dir = %s, want /from/flag", cfg.DataDir)
	}

	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve(env): %v", err)
	}
	if cfg.DataDir != "/from/env" {
		t.Errorf("data_dir = %s, want /from/env", cfg.DataDir)
	}

	t.Setenv(EnvVar, "")
	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve(none): %v", err)
	}
	if cfg.DataDir != Default().DataDir {
		t.Errorf("data_dir = %s, want the default", cfg.DataDir)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
logging:
  level: info
development:
  logging:
    level: debug
production:
  http:
    address: ""
  logging:
    format: json
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTP.Address != "" {
		t.Errorf("http.address = %q, want production to disable it", cfg.HTTP.Address)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Errorf("logging = %+v, want json/info", cfg.Logging)
	}
}

func TestProductionDefaultsToJSONLogs(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "environment: production\n"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging.format = %s, want json", cfg.Logging.Format)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("HOME", "/home/operator")
	t.Setenv("GTOOL_TEST_BIN", "")
	path := writeConfig(t, `
data_dir: ${HOME}/gtool
socket_path: ${GTOOL_DATA_DIR}/run/ctl.sock
worker_binary: ${GTOOL_TEST_BIN:-/usr/local/bin/gtool-worker}
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.DataDir != "/home/operator/gtool" {
		t.Errorf("data_dir = %s", cfg.DataDir)
	}
	if cfg.SocketPath != "/home/operator/gtool/run/ctl.sock" {
		t.Errorf("socket_path = %s", cfg.SocketPath)
	}
	if cfg.WorkerBinary != "/usr/local/bin/gtool-worker" {
		t.Errorf("worker_binary = %s", cfg.WorkerBinary)
	}
}

func TestValidateReportsEveryError(t *testing.T) {
	cfg := Default()
	cfg.Environment = "staging"
	cfg.DataDir = ""
	cfg.SocketPath = ""
	cfg.Logging.Level = "loud"
	cfg.Persistence.TaskLogCodec = "gzip"
	cfg.Stream.HeartbeatInterval = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{
		"invalid environment: staging",
		"data_dir is required",
		"socket_path is required",
		"logging.level",
		"persistence.task_log_codec",
		"stream.heartbeat_interval",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestMalformedYAML(t *testing.T) {
	if _, err := LoadFile(writeConfig(t, "data_dir: [unclosed\n")); err == nil {
		t.Error("LoadFile accepted malformed YAML")
	}
	if _, err := LoadFile(writeConfig(t, "stream:\n  heartbeat_interval: soon\n")); err == nil {
		t.Error("LoadFile accepted an unparseable duration")
	}
}

func TestWorkerBinaryPath(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "gtool-worker")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.WorkerBinary = binary
	if path, err := cfg.WorkerBinaryPath(); err != nil || path != binary {
		t.Errorf("absolute path = %q, %v", path, err)
	}

	t.Setenv("PATH", dir)
	cfg.WorkerBinary = "gtool-worker"
	if path, err := cfg.WorkerBinaryPath(); err != nil || path != binary {
		t.Errorf("PATH lookup = %q, %v", path, err)
	}

	cfg.WorkerBinary = filepath.Join(dir, "missing")
	if _, err := cfg.WorkerBinaryPath(); err == nil {
		t.Error("missing absolute binary resolved")
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "warn"
	if cfg.SlogLevel().String() != "WARN" {
		t.Errorf("SlogLevel() = %v", cfg.SlogLevel())
	}
}
