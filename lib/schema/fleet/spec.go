// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"
)

// Defaults applied when a WorkerSpec leaves a field empty.
const (
	DefaultPort           = 25565
	DefaultAuth           = "offline"
	DefaultBehavior       = "idle"
	DefaultReconnectDelay = 30 * time.Second
)

// WorkerSpec is the persisted configuration of one worker. Name is the
// primary key across the fleet file, the queue file, the per-worker
// log directories, and every observer frame.
type WorkerSpec struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Version  string `json:"version,omitempty"`
	Auth     string `json:"auth,omitempty"`

	// Behavior names the registered behavior the worker loads after
	// spawning in the world. Empty means DefaultBehavior.
	Behavior string `json:"behavior,omitempty"`

	// AutoReconnect restarts the worker after a non-zero exit.
	AutoReconnect bool `json:"autoReconnect"`

	// ReconnectDelay is the restart backoff in seconds. Zero means
	// DefaultReconnectDelay.
	ReconnectDelay int `json:"reconnectDelay,omitempty"`

	// Params is passed through to the behavior untouched.
	Params map[string]any `json:"params,omitempty"`

	Automation Automation `json:"automation"`
	Proxy      *Proxy     `json:"proxy"`
}

// Automation toggles worker-side reflexes that run while the worker
// is otherwise idle.
type Automation struct {
	AutoEat   bool     `json:"autoEat"`
	FoodToEat []string `json:"foodToEat,omitempty"`
}

// Proxy routes the worker's game connection through a SOCKS5 proxy.
type Proxy struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

var workerNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateName checks that name is usable as a worker key. Names end
// up as directory names under the data directory, so path separators
// and the dot entries are rejected.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	if name == "." || name == ".." || !workerNamePattern.MatchString(name) {
		return fmt.Errorf("%w: name %q must match %s", ErrInvalidSpec, name, workerNamePattern)
	}
	return nil
}

// Validate checks the fields the controller and worker depend on.
func (s WorkerSpec) Validate() error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	if s.Username == "" {
		return fmt.Errorf("%w: username", ErrMissingField)
	}
	if s.Host == "" {
		return fmt.Errorf("%w: host", ErrMissingField)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidSpec, s.Port)
	}
	if s.ReconnectDelay < 0 {
		return fmt.Errorf("%w: reconnectDelay %d is negative", ErrInvalidSpec, s.ReconnectDelay)
	}
	if s.Proxy != nil && (s.Proxy.Host == "" || s.Proxy.Port <= 0 || s.Proxy.Port > 65535) {
		return fmt.Errorf("%w: proxy needs host and a valid port", ErrInvalidSpec)
	}
	return nil
}

// EffectivePort returns Port or DefaultPort.
func (s WorkerSpec) EffectivePort() int {
	if s.Port == 0 {
		return DefaultPort
	}
	return s.Port
}

// EffectiveAuth returns Auth or DefaultAuth.
func (s WorkerSpec) EffectiveAuth() string {
	if s.Auth == "" {
		return DefaultAuth
	}
	return s.Auth
}

// EffectiveBehavior returns Behavior or DefaultBehavior.
func (s WorkerSpec) EffectiveBehavior() string {
	if s.Behavior == "" {
		return DefaultBehavior
	}
	return s.Behavior
}

// ReconnectDelayDuration returns the restart backoff as a duration.
func (s WorkerSpec) ReconnectDelayDuration() time.Duration {
	if s.ReconnectDelay <= 0 {
		return DefaultReconnectDelay
	}
	return time.Duration(s.ReconnectDelay) * time.Second
}

// Clone returns a copy that shares no mutable top-level state with s.
// Nested values inside Params are shared and treated as immutable.
func (s WorkerSpec) Clone() WorkerSpec {
	clone := s
	clone.Params = maps.Clone(s.Params)
	clone.Automation.FoodToEat = slices.Clone(s.Automation.FoodToEat)
	if s.Proxy != nil {
		proxy := *s.Proxy
		clone.Proxy = &proxy
	}
	return clone
}
