// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/gtool/lib/dispatch"
)

// Behavior is what a worker does once it has spawned. It runs on its
// own goroutine and should return when ctx is done; a behavior that
// only sets something up may return immediately.
type Behavior func(ctx context.Context, agent *Agent) error

// Script is one task implementation. A nil return marks the task
// completed; an error marks it failed with the error's text.
type Script func(ctx context.Context, task *Task) error

// Registry maps names to the behaviors and task scripts compiled into
// the worker binary. It is filled at startup and read-only afterwards.
type Registry struct {
	behaviors map[string]Behavior
	scripts   map[string]Script
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		behaviors: make(map[string]Behavior),
		scripts:   make(map[string]Script),
	}
}

// AddBehavior registers a behavior. Registering a name twice panics.
func (r *Registry) AddBehavior(name string, behavior Behavior) {
	if _, exists := r.behaviors[name]; exists {
		panic(fmt.Sprintf("worker: behavior %q registered twice", name))
	}
	r.behaviors[name] = behavior
}

// AddScript registers a task script. Registering a name twice panics.
func (r *Registry) AddScript(name string, script Script) {
	if _, exists := r.scripts[name]; exists {
		panic(fmt.Sprintf("worker: task script %q registered twice", name))
	}
	r.scripts[name] = script
}

func (r *Registry) Behavior(name string) (Behavior, bool) {
	behavior, found := r.behaviors[name]
	return behavior, found
}

func (r *Registry) Script(name string) (Script, bool) {
	script, found := r.scripts[name]
	return script, found
}

// Catalog lists the registered names, sorted, in the form the
// controller's script registry scans.
func (r *Registry) Catalog() dispatch.Catalog {
	return dispatch.Catalog{
		Behaviors: slices.Sorted(maps.Keys(r.behaviors)),
		Tasks:     slices.Sorted(maps.Keys(r.scripts)),
	}
}
