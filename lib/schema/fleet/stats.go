// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"cmp"
	"slices"
)

// Nearby entity reporting limits.
const (
	MaxNearbyEntities  = 5
	NearbyEntityRadius = 32.0
)

// Values of the free-form Stats.State label used by gtool itself.
// Behaviors may report other labels.
const (
	StateStopped = "STOPPED"
	StateIdle    = "IDLE"
	StateBusy    = "BUSY"
)

// Stats is a partial view of worker telemetry. Every field is optional:
// a nil field means "not reported", which differs from a reported zero.
// Workers send subsets; the store merges them field by field.
type Stats struct {
	Health         *float64         `json:"health,omitempty"`
	Food           *float64         `json:"food,omitempty"`
	Position       *Position        `json:"pos,omitempty"`
	State          *string          `json:"state,omitempty"`
	NearbyEntities *[]Entity        `json:"nearbyEntities,omitempty"`
	Inventory      *[]InventoryItem `json:"inventory,omitempty"`
}

// Position is a world coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Entity is one nearby entity as reported by the worker.
type Entity struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Distance float64 `json:"distance"`
}

// InventoryItem is one occupied inventory slot.
type InventoryItem struct {
	Slot  int    `json:"slot"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// IsEmpty reports whether no field is set.
func (s Stats) IsEmpty() bool {
	return s.Health == nil && s.Food == nil && s.Position == nil &&
		s.State == nil && s.NearbyEntities == nil && s.Inventory == nil
}

// Merge folds partial into s and returns the subset of partial whose
// values differ from what s held before. Fields absent from partial
// are left untouched and never appear in the result. Lists and
// positions are compared by value.
func (s *Stats) Merge(partial Stats) Stats {
	var changed Stats

	if partial.Health != nil && !equalPointer(s.Health, partial.Health) {
		s.Health = pointerTo(*partial.Health)
		changed.Health = pointerTo(*partial.Health)
	}
	if partial.Food != nil && !equalPointer(s.Food, partial.Food) {
		s.Food = pointerTo(*partial.Food)
		changed.Food = pointerTo(*partial.Food)
	}
	if partial.Position != nil && !equalPointer(s.Position, partial.Position) {
		s.Position = pointerTo(*partial.Position)
		changed.Position = pointerTo(*partial.Position)
	}
	if partial.State != nil && !equalPointer(s.State, partial.State) {
		s.State = pointerTo(*partial.State)
		changed.State = pointerTo(*partial.State)
	}
	if partial.NearbyEntities != nil && !equalSlicePointer(s.NearbyEntities, partial.NearbyEntities) {
		s.NearbyEntities = cloneSlicePointer(partial.NearbyEntities)
		changed.NearbyEntities = cloneSlicePointer(partial.NearbyEntities)
	}
	if partial.Inventory != nil && !equalSlicePointer(s.Inventory, partial.Inventory) {
		s.Inventory = cloneSlicePointer(partial.Inventory)
		changed.Inventory = cloneSlicePointer(partial.Inventory)
	}

	return changed
}

// ResetVolatile clears the fields that are meaningless once the worker
// process is gone (what it holds, what it sees, what it is doing) and
// returns the change as a mergeable partial. Health, food, and
// position keep their last reported values.
func (s *Stats) ResetVolatile() Stats {
	stopped := StateStopped
	return s.Merge(Stats{
		State:          &stopped,
		NearbyEntities: &[]Entity{},
		Inventory:      &[]InventoryItem{},
	})
}

// Clone returns a deep copy of s.
func (s Stats) Clone() Stats {
	var clone Stats
	clone.Merge(s)
	return clone
}

// NearestEntities returns at most MaxNearbyEntities entities within
// NearbyEntityRadius, closest first.
func NearestEntities(entities []Entity) []Entity {
	nearby := make([]Entity, 0, len(entities))
	for _, entity := range entities {
		if entity.Distance <= NearbyEntityRadius {
			nearby = append(nearby, entity)
		}
	}
	slices.SortStableFunc(nearby, func(a, b Entity) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if len(nearby) > MaxNearbyEntities {
		nearby = nearby[:MaxNearbyEntities]
	}
	return nearby
}

func pointerTo[T any](value T) *T { return &value }

func equalPointer[T comparable](current, incoming *T) bool {
	if current == nil || incoming == nil {
		return current == incoming
	}
	return *current == *incoming
}

func equalSlicePointer[T comparable](current, incoming *[]T) bool {
	if current == nil || incoming == nil {
		return current == incoming
	}
	return slices.Equal(*current, *incoming)
}

func cloneSlicePointer[T any](source *[]T) *[]T {
	clone := make([]T, len(*source))
	copy(clone, *source)
	return &clone
}
