// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleetui

import (
	"slices"
	"testing"
)

func TestFuzzyMatch(t *testing.T) {
	result := FuzzyMatch("Miner-North", []rune("mnr"), nil)
	if result.Score <= 0 {
		t.Fatalf("expected a positive score for a subsequence match")
	}
	if len(result.Positions) != 3 || !slices.IsSorted(result.Positions) {
		t.Errorf("positions = %v, want three ascending offsets", result.Positions)
	}

	if result := FuzzyMatch("miner", []rune("MINER"), nil); result.Score <= 0 {
		t.Error("matching should ignore case")
	}
	if result := FuzzyMatch("miner", []rune("xyz"), nil); result.Score != 0 || result.Positions != nil {
		t.Errorf("non-match = %+v, want zero result", result)
	}
	if result := FuzzyMatch("miner", nil, nil); result.Score != 0 {
		t.Errorf("empty pattern score = %d, want 0", result.Score)
	}
}

func TestSuggest(t *testing.T) {
	names := []string{"farmer", "miner-1", "miner-2", "guard"}

	got := Suggest("minr", names, 3)
	if len(got) != 2 || !slices.Contains(got, "miner-1") || !slices.Contains(got, "miner-2") {
		t.Errorf("Suggest(minr) = %v, want both miners", got)
	}
	if got := Suggest("miner-1", names, 3); slices.Contains(got, "miner-1") {
		t.Errorf("Suggest should not offer the exact name back: %v", got)
	}
	if got := Suggest("qqq", names, 3); len(got) != 0 {
		t.Errorf("Suggest(qqq) = %v, want none", got)
	}
	if got := Suggest("r", names, 1); len(got) != 1 {
		t.Errorf("limit 1 returned %v", got)
	}
	if got := Suggest("", names, 3); got != nil {
		t.Errorf("empty query returned %v", got)
	}
}
