// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import "slices"

// View is an observer's local copy of fleet state, built by folding
// the state events of a subscription. The zero value is an empty view.
type View struct {
	order   []string
	workers map[string]*WorkerState
}

// Apply folds one event into the view and reports whether the view
// changed. Non-state events are ignored. A delta for an unknown worker
// is also ignored; a correct stream only produces one after a
// full_state or bot_added that introduced the worker.
func (v *View) Apply(event Event) bool {
	switch event.Type {
	case EventFullState:
		v.order = v.order[:0]
		v.workers = make(map[string]*WorkerState, len(event.Workers))
		for _, worker := range event.Workers {
			v.put(worker)
		}
		return true

	case EventAdded:
		if event.Worker == nil {
			return false
		}
		v.put(*event.Worker)
		return true

	case EventDelta:
		if event.Delta == nil {
			return false
		}
		worker, exists := v.workers[event.Delta.Name]
		if !exists {
			return false
		}
		worker.Apply(event.Delta.Changed)
		return true

	case EventRemoved:
		if _, exists := v.workers[event.Name]; !exists {
			return false
		}
		delete(v.workers, event.Name)
		v.order = slices.DeleteFunc(v.order, func(name string) bool { return name == event.Name })
		return true

	case EventResync:
		v.order = nil
		v.workers = nil
		return true
	}
	return false
}

// Workers returns a copy of every worker state in the order the
// workers were introduced.
func (v *View) Workers() []WorkerState {
	states := make([]WorkerState, 0, len(v.order))
	for _, name := range v.order {
		states = append(states, v.workers[name].Clone())
	}
	return states
}

// Worker returns a copy of one worker's state.
func (v *View) Worker(name string) (WorkerState, bool) {
	worker, exists := v.workers[name]
	if !exists {
		return WorkerState{}, false
	}
	return worker.Clone(), true
}

func (v *View) put(state WorkerState) {
	if v.workers == nil {
		v.workers = make(map[string]*WorkerState)
	}
	if _, exists := v.workers[state.Name]; !exists {
		v.order = append(v.order, state.Name)
	}
	clone := state.Clone()
	v.workers[state.Name] = &clone
}
