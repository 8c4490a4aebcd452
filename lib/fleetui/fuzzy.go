// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleetui

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

var initAlgo sync.Once

// FuzzyResult is a scored match. A zero Score means no match.
// Positions are rune offsets into the text, in ascending order.
type FuzzyResult struct {
	Score     int
	Positions []int
}

// FuzzyMatch scores pattern against text with fzf's V2 algorithm. The
// match is case-insensitive: both sides are lowercased. slab may be nil;
// passing one reused across calls avoids per-call allocation.
func FuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 {
		return FuzzyResult{}
	}
	initAlgo.Do(func() { algo.Init("default") })

	lowered := []rune(strings.ToLower(string(pattern)))
	chars := util.ToChars([]byte(strings.ToLower(text)))
	result, positions := algo.FuzzyMatchV2(false, true, true, &chars, lowered, true, slab)
	if result.Score <= 0 {
		return FuzzyResult{}
	}

	var sorted []int
	if positions != nil {
		sorted = slices.Clone(*positions)
		slices.Sort(sorted)
	}
	return FuzzyResult{Score: result.Score, Positions: sorted}
}

// Suggest returns up to limit names that fuzzy-match query, best
// first. Ties keep the order of names. An exact match is never
// suggested, since it is not a correction.
func Suggest(query string, names []string, limit int) []string {
	if query == "" || limit <= 0 {
		return nil
	}
	type candidate struct {
		name  string
		score int
	}
	pattern := []rune(query)
	slab := util.MakeSlab(100*1024, 2048)

	var candidates []candidate
	for _, name := range names {
		if name == query {
			continue
		}
		if result := FuzzyMatch(name, pattern, slab); result.Score > 0 {
			candidates = append(candidates, candidate{name: name, score: result.Score})
		}
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(b.score, a.score)
	})

	suggestions := make([]string, 0, min(limit, len(candidates)))
	for _, candidate := range candidates[:min(limit, len(candidates))] {
		suggestions = append(suggestions, candidate.name)
	}
	return suggestions
}
