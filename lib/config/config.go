// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "GTOOL_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the controller configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// DataDir holds the fleet file, queue file, task logs, worker
	// stderr captures, history database, lock, and default socket.
	DataDir string `yaml:"data_dir"`

	// WorkerBinary is the gtool-worker executable: an absolute path,
	// or a name resolved against the controller's own directory and
	// then PATH.
	WorkerBinary string `yaml:"worker_binary"`

	// SocketPath is the CBOR observer socket. Empty means
	// <data_dir>/controller.sock.
	SocketPath string `yaml:"socket_path"`

	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Stream      StreamConfig      `yaml:"stream"`

	// ShutdownTimeout bounds the wait for workers to exit after the
	// stop command before their process groups are killed.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AutoStart starts every configured worker when the controller
	// comes up.
	AutoStart bool `yaml:"auto_start"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the sections an environment section may override.
type Overrides struct {
	HTTP    *HTTPConfig    `yaml:"http,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// HTTPConfig configures the REST and event stream surface.
type HTTPConfig struct {
	// Address is the TCP listen address. Empty disables HTTP.
	Address string `yaml:"address"`
}

// LoggingConfig configures the controller's slog handler.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// PersistenceConfig configures deferred writes and task log archives.
type PersistenceConfig struct {
	// FlushDelay coalesces state file writes.
	FlushDelay time.Duration `yaml:"flush_delay"`

	// TaskLogCodec compresses finished task logs: zstd, lz4, or none.
	TaskLogCodec string `yaml:"task_log_codec"`
}

// StreamConfig configures observer subscriptions.
type StreamConfig struct {
	// HeartbeatInterval is the period of heartbeat frames on idle
	// streams.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Default returns the development defaults every loaded file is merged
// onto.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment:  Development,
		DataDir:      filepath.Join(homeDir, ".local", "share", "gtool"),
		WorkerBinary: "gtool-worker",
		HTTP:         HTTPConfig{Address: "127.0.0.1:3000"},
		Logging:      LoggingConfig{Level: "info", Format: "text"},
		Persistence: PersistenceConfig{
			FlushDelay:   500 * time.Millisecond,
			TaskLogCodec: "zstd",
		},
		Stream:          StreamConfig{HeartbeatInterval: 30 * time.Second},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Resolve loads the file named by flagPath, or by GTOOL_CONFIG when
// flagPath is empty. With neither it returns Default with variables
// expanded.
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return LoadFile(flagPath)
	}
	if os.Getenv(EnvVar) != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

// Load loads the file named by GTOOL_CONFIG, failing when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your gtool.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path onto Default, applies the
// environment section, and expands variables. It does not validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &Overrides{Logging: &LoggingConfig{Format: "json"}}
		}
	}
	if overrides == nil {
		return
	}

	if overrides.HTTP != nil {
		// An environment may disable HTTP outright, so the address is
		// applied even when empty.
		c.HTTP.Address = overrides.HTTP.Address
	}
	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.DataDir = expandVars(c.DataDir, vars)
	vars["GTOOL_DATA_DIR"] = c.DataDir

	c.WorkerBinary = expandVars(c.WorkerBinary, vars)
	c.SocketPath = expandVars(c.SocketPath, vars)
	if c.SocketPath == "" && c.DataDir != "" {
		c.SocketPath = filepath.Join(c.DataDir, "controller.sock")
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var (
	logLevels    = []string{"debug", "info", "warn", "error"}
	logFormats   = []string{"json", "text"}
	logCodecs    = []string{"zstd", "lz4", "none"}
	environments = []Environment{Development, Production}
)

// Validate reports every configuration error at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(environments, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.WorkerBinary == "" {
		errs = append(errs, errors.New("worker_binary is required"))
	}
	if c.SocketPath == "" {
		errs = append(errs, errors.New("socket_path is required"))
	}
	if !slices.Contains(logLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", logFormats))
	}
	if !slices.Contains(logCodecs, c.Persistence.TaskLogCodec) {
		errs = append(errs, fmt.Errorf("persistence.task_log_codec must be one of: %v", logCodecs))
	}
	if c.Persistence.FlushDelay <= 0 {
		errs = append(errs, errors.New("persistence.flush_delay must be positive"))
	}
	if c.Stream.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("stream.heartbeat_interval must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}

	return errors.Join(errs...)
}

// SlogLevel converts Logging.Level. Unknown levels map to info;
// Validate rejects them first.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// EnsurePaths creates the data directory.
func (c *Config) EnsurePaths() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", c.DataDir, err)
	}
	if dir := filepath.Dir(c.SocketPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// WorkerBinaryPath resolves WorkerBinary. A bare name is looked up
// next to the running executable first, then on PATH.
func (c *Config) WorkerBinaryPath() (string, error) {
	if filepath.IsAbs(c.WorkerBinary) {
		if _, err := os.Stat(c.WorkerBinary); err != nil {
			return "", fmt.Errorf("worker binary: %w", err)
		}
		return c.WorkerBinary, nil
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), c.WorkerBinary)
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(c.WorkerBinary)
	if err != nil {
		return "", fmt.Errorf("%s not found next to the controller or in PATH", c.WorkerBinary)
	}
	return filepath.Abs(path)
}
