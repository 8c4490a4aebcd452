// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleetui

import (
	"cmp"
	"slices"
	"strings"

	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// FilterModel narrows the worker table with fuzzy matching over each
// worker's name, behavior, state label, and server.
type FilterModel struct {
	// Input is the query text.
	Input string

	// Active is true while the filter line has keyboard focus.
	Active bool

	slab *util.Slab
}

// FilterResult is one worker that matched, with the rune offsets of
// the matched characters within its name (empty when the match was in
// another field).
type FilterResult struct {
	Worker        fleet.WorkerState
	Score         int
	NamePositions []int
}

// Apply returns the matching workers, best match first. An empty
// query matches every worker in its original order with a zero score.
func (filter *FilterModel) Apply(workers []fleet.WorkerState) []FilterResult {
	results := make([]FilterResult, 0, len(workers))
	if filter.Input == "" {
		for _, worker := range workers {
			results = append(results, FilterResult{Worker: worker})
		}
		return results
	}
	if filter.slab == nil {
		filter.slab = util.MakeSlab(100*1024, 2048)
	}

	pattern := []rune(filter.Input)
	for _, worker := range workers {
		nameMatch := FuzzyMatch(worker.Name, pattern, filter.slab)
		best := nameMatch.Score
		if other := FuzzyMatch(searchText(worker), pattern, filter.slab); other.Score > best {
			best = other.Score
		}
		if best > 0 {
			results = append(results, FilterResult{
				Worker:        worker,
				Score:         best,
				NamePositions: nameMatch.Positions,
			})
		}
	}
	slices.SortStableFunc(results, func(a, b FilterResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return results
}

func searchText(worker fleet.WorkerState) string {
	fields := []string{worker.Name, worker.Config.EffectiveBehavior(), string(worker.Status), worker.Config.Host}
	if worker.Stats.State != nil {
		fields = append(fields, *worker.Stats.State)
	}
	return strings.Join(fields, " ")
}

// HandleRune appends a typed character.
func (filter *FilterModel) HandleRune(character rune) {
	filter.Input += string(character)
}

// HandleBackspace removes the last character and reports whether the
// input changed.
func (filter *FilterModel) HandleBackspace() bool {
	if filter.Input == "" {
		return false
	}
	runes := []rune(filter.Input)
	filter.Input = string(runes[:len(runes)-1])
	return true
}

// Clear resets the input and drops focus.
func (filter *FilterModel) Clear() {
	filter.Input = ""
	filter.Active = false
}
