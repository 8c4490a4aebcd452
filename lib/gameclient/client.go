// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gameclient

import (
	"slices"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// Client is the subset of a game connection that behaviors, tasks,
// and the worker agent use. *Conn implements it.
type Client interface {
	// Events yields world events in arrival order. It is closed when
	// the connection ends; Err then reports why.
	Events() <-chan Event

	// Err is the reason the event stream ended, or nil while it is
	// open or after a clean Quit.
	Err() error

	// World returns a copy of the current world snapshot.
	World() World

	Chat(text string) error
	SetControl(control Control, active bool) error
	Look(yaw, pitch float64) error
	Equip(item, destination string) error
	Consume() error
	Quit(reason string) error
}

// Control names a movement control state.
type Control string

const (
	ControlForward Control = "forward"
	ControlBack    Control = "back"
	ControlLeft    Control = "left"
	ControlRight   Control = "right"
	ControlSprint  Control = "sprint"
	ControlJump    Control = "jump"
)

// MoveControls are the controls a "move" command may hold down.
var MoveControls = []Control{ControlForward, ControlBack, ControlLeft, ControlRight, ControlSprint}

// ParseMoveControl returns the movement control named by name.
func ParseMoveControl(name string) (Control, bool) {
	control := Control(name)
	return control, slices.Contains(MoveControls, control)
}

// EventType discriminates Event values.
type EventType string

const (
	EventLogin     EventType = "login"
	EventSpawn     EventType = "spawn"
	EventVitals    EventType = "vitals"
	EventMove      EventType = "move"
	EventEntities  EventType = "entities"
	EventInventory EventType = "inventory"
	EventChat      EventType = "chat"
	EventKicked    EventType = "kicked"
)

// Event is one world event. Username and Message are set for chat;
// Reason for kicked.
type Event struct {
	Type     EventType
	Username string
	Message  string
	Reason   string
}

// WorldEntity is an entity the bridge reports, with its absolute
// position. Kind is "player", "mob", or anything else for objects.
type WorldEntity struct {
	Name     string         `cbor:"name"`
	Kind     string         `cbor:"kind"`
	Position fleet.Position `cbor:"pos"`
}

// World is the client's view of its own player and surroundings.
type World struct {
	Username string
	Spawned  bool

	// HasVitals is false until the first vitals event. Health and
	// Food are meaningless before it.
	HasVitals bool
	Health    float64
	Food      float64

	Position fleet.Position
	OnGround bool

	Entities  []WorldEntity
	Inventory []fleet.InventoryItem
}

// Clone returns a copy sharing no slices with w.
func (w World) Clone() World {
	clone := w
	clone.Entities = slices.Clone(w.Entities)
	clone.Inventory = slices.Clone(w.Inventory)
	return clone
}

// FindItem returns the first inventory item with the given name.
func (w World) FindItem(name string) (fleet.InventoryItem, bool) {
	for _, item := range w.Inventory {
		if item.Name == name {
			return item, true
		}
	}
	return fleet.InventoryItem{}, false
}
