// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fleetfile reads and writes the controller's two state files:
// the fleet configuration (bots.json, an array of fleet.WorkerSpec) and
// the task queues (tasks.json, a map from worker name to its pending
// tasks).
//
// The fleet file is operator-editable and is parsed as JSONC (JSON with
// // and /* */ comments and trailing commas). Both files are always
// written back as plain pretty-printed JSON, so comments survive only
// until the controller first saves a change.
package fleetfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/gtool/lib/persist"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// File names inside the data directory.
const (
	FleetFileName  = "bots.json"
	QueuesFileName = "tasks.json"
)

// ParseFleet parses fleet file content. Every spec is validated and
// names must be unique; all problems are reported together.
func ParseFleet(data []byte) ([]fleet.WorkerSpec, error) {
	var specs []fleet.WorkerSpec
	if err := json.Unmarshal(jsonc.ToJSON(data), &specs); err != nil {
		return nil, fmt.Errorf("parsing fleet file: %w", err)
	}

	var problems []error
	seen := make(map[string]bool, len(specs))
	for index, spec := range specs {
		if err := spec.Validate(); err != nil {
			problems = append(problems, fmt.Errorf("entry %d: %w", index, err))
			continue
		}
		if seen[spec.Name] {
			problems = append(problems, fmt.Errorf("entry %d: %w: duplicate name %q", index, fleet.ErrInvalidSpec, spec.Name))
		}
		seen[spec.Name] = true
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	if specs == nil {
		specs = []fleet.WorkerSpec{}
	}
	return specs, nil
}

// ParseSpec parses one worker spec, with comments allowed. It does
// not validate, so callers can fill in fields before checking.
func ParseSpec(data []byte) (fleet.WorkerSpec, error) {
	var spec fleet.WorkerSpec
	if err := json.Unmarshal(jsonc.ToJSON(data), &spec); err != nil {
		return fleet.WorkerSpec{}, fmt.Errorf("parsing worker spec: %w", err)
	}
	return spec, nil
}

// LoadFleet reads the fleet file at path. A missing file is created
// containing an empty array.
func LoadFleet(path string) ([]fleet.WorkerSpec, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		empty := []fleet.WorkerSpec{}
		if err := persist.WriteJSON(path, empty); err != nil {
			return nil, fmt.Errorf("creating %s: %w", path, err)
		}
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	specs, err := ParseFleet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

// LoadQueues reads the queue file at path. A missing file yields an
// empty map. Tasks without an ID are dropped; every remaining task is
// marked queued, since only queued tasks live in a queue.
func LoadQueues(path string) (map[string][]fleet.Task, error) {
	queues := make(map[string][]fleet.Task)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return queues, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &queues); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for name, tasks := range queues {
		kept := tasks[:0]
		for _, task := range tasks {
			if task.ID == "" {
				continue
			}
			task.Status = fleet.TaskQueued
			kept = append(kept, task)
		}
		queues[name] = kept
	}
	return queues, nil
}

// Files is the pair of snapshot files backing a data directory.
type Files struct {
	Fleet  *persist.SnapshotFile
	Queues *persist.SnapshotFile
}

// Open loads both state files from dataDir and returns their content
// along with snapshot files seeded with it, so flushing unchanged state
// does not rewrite them.
func Open(dataDir string) (*Files, []fleet.WorkerSpec, map[string][]fleet.Task, error) {
	fleetPath := filepath.Join(dataDir, FleetFileName)
	queuesPath := filepath.Join(dataDir, QueuesFileName)

	specs, err := LoadFleet(fleetPath)
	if err != nil {
		return nil, nil, nil, err
	}
	queues, err := LoadQueues(queuesPath)
	if err != nil {
		return nil, nil, nil, err
	}

	files := &Files{
		Fleet:  persist.NewSnapshotFile(fleetPath),
		Queues: persist.NewSnapshotFile(queuesPath),
	}
	if data, err := persist.MarshalPretty(specs); err == nil {
		files.Fleet.Seed(data)
	}
	if _, err := os.Stat(queuesPath); err == nil {
		if data, err := persist.MarshalPretty(queues); err == nil {
			files.Queues.Seed(data)
		}
	}
	return files, specs, queues, nil
}

// SaveFleet writes specs to the fleet file unless unchanged.
func (f *Files) SaveFleet(specs []fleet.WorkerSpec) error {
	if specs == nil {
		specs = []fleet.WorkerSpec{}
	}
	_, err := f.Fleet.Write(specs)
	return err
}

// SaveQueues writes queues to the queue file unless unchanged.
func (f *Files) SaveQueues(queues map[string][]fleet.Task) error {
	if queues == nil {
		queues = map[string][]fleet.Task{}
	}
	_, err := f.Queues.Write(queues)
	return err
}
