// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/gtool/lib/binhash"
)

// ScanTimeout bounds one run of the worker binary's scripts
// subcommand.
const ScanTimeout = 10 * time.Second

// Catalog is the JSON document printed by "gtool-worker scripts".
// Digest is filled in by BinaryScanner with the content hash of the
// binary that produced the catalog.
type Catalog struct {
	Behaviors []string `json:"behaviors"`
	Tasks     []string `json:"tasks"`
	Digest    string   `json:"digest,omitempty"`
}

// Scanner produces a fresh Catalog.
type Scanner func(ctx context.Context) (Catalog, error)

// BinaryScanner runs "<binary> scripts" and parses its output.
func BinaryScanner(binary string) Scanner {
	return func(ctx context.Context) (Catalog, error) {
		digest, err := binhash.HashFile(binary)
		if err != nil {
			return Catalog{}, err
		}
		ctx, cancel := context.WithTimeout(ctx, ScanTimeout)
		defer cancel()
		output, err := exec.CommandContext(ctx, binary, "scripts").Output()
		if err != nil {
			return Catalog{}, fmt.Errorf("running %s scripts: %w", binary, err)
		}
		var catalog Catalog
		if err := json.Unmarshal(output, &catalog); err != nil {
			return Catalog{}, fmt.Errorf("parsing %s scripts output: %w", binary, err)
		}
		catalog.Digest = digest.String()
		return catalog, nil
	}
}

// ScriptRegistry is the set of task script and behavior names workers
// can run. Until the first successful scan it is empty and rejects
// every name.
type ScriptRegistry struct {
	scan   Scanner
	logger *slog.Logger

	mu        sync.RWMutex
	loaded    bool
	digest    binhash.Digest
	behaviors map[string]struct{}
	tasks     map[string]struct{}
}

// NewScriptRegistry returns an empty registry. Call Rescan to fill it.
func NewScriptRegistry(scan Scanner, logger *slog.Logger) *ScriptRegistry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ScriptRegistry{scan: scan, logger: logger}
}

// Rescan replaces the registry contents with a fresh scan. On failure
// the previous contents are kept and the error is returned.
func (r *ScriptRegistry) Rescan(ctx context.Context) error {
	catalog, err := r.scan(ctx)
	if err != nil {
		r.logger.Warn("script registry scan failed, keeping previous set", "error", err)
		return err
	}
	r.Set(catalog)
	r.logger.Info("script registry loaded", "behaviors", len(catalog.Behaviors), "tasks", len(catalog.Tasks))
	return nil
}

// Set replaces the registry contents directly.
func (r *ScriptRegistry) Set(catalog Catalog) {
	behaviors := make(map[string]struct{}, len(catalog.Behaviors))
	for _, name := range catalog.Behaviors {
		behaviors[name] = struct{}{}
	}
	tasks := make(map[string]struct{}, len(catalog.Tasks))
	for _, name := range catalog.Tasks {
		tasks[name] = struct{}{}
	}
	// A catalog without a digest (set directly) never matches a
	// binary, so the next change always rescans.
	digest, _ := binhash.ParseDigest(catalog.Digest)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = true
	r.digest = digest
	r.behaviors = behaviors
	r.tasks = tasks
}

// Loaded reports whether any scan has succeeded.
func (r *ScriptRegistry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// HasTask reports whether name is a known task script.
func (r *ScriptRegistry) HasTask(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tasks[name]
	return exists
}

// HasBehavior reports whether name is a known behavior.
func (r *ScriptRegistry) HasBehavior(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.behaviors[name]
	return exists
}

// Catalog returns the current contents with sorted names.
func (r *ScriptRegistry) Catalog() Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	catalog := Catalog{Behaviors: sortedKeys(r.behaviors), Tasks: sortedKeys(r.tasks)}
	if !r.digest.IsZero() {
		catalog.Digest = r.digest.String()
	}
	return catalog
}

// scannedDigest is the content hash of the binary behind the current
// contents, or zero when unknown.
func (r *ScriptRegistry) scannedDigest() binhash.Digest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.digest
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
