// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/bureau-foundation/gtool/lib/binhash"
	"github.com/bureau-foundation/gtool/lib/codec"
	"github.com/bureau-foundation/gtool/lib/gameclient"
	"github.com/bureau-foundation/gtool/lib/ipc"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

const (
	// HungerThreshold is the food level below which autoEat eats.
	HungerThreshold = 18

	// eatDuration is how long eating keeps the worker busy.
	eatDuration = 2 * time.Second
)

// sendStats reports the core stats. Nothing is sent before the player
// has spawned and received its first vitals.
func (a *Agent) sendStats() {
	world := a.client.World()
	if !a.isSpawned() || !world.HasVitals {
		return
	}
	state := a.State()
	entities := NearbyEntities(world)
	a.send(ipc.TypeStats, fleet.Stats{
		Health:         &world.Health,
		Food:           &world.Food,
		Position:       &world.Position,
		State:          &state,
		NearbyEntities: &entities,
	})
}

// sendInventory reports the inventory when its fingerprint differs
// from the last one sent on this connection.
func (a *Agent) sendInventory() {
	inventory := a.client.World().Inventory
	if inventory == nil {
		inventory = []fleet.InventoryItem{}
	}
	encoded, err := codec.Marshal(inventory)
	if err != nil {
		a.logger.Warn("fingerprinting inventory failed", "error", err)
		return
	}
	digest := binhash.Sum(encoded)

	a.mu.Lock()
	unchanged := a.inventorySent && digest == a.inventory
	a.inventory = digest
	a.inventorySent = true
	a.mu.Unlock()
	if unchanged {
		return
	}
	a.send(ipc.TypeStats, fleet.Stats{Inventory: &inventory})
}

// NearbyEntities returns the entities within fleet.NearbyEntityRadius
// of the player, nearest first, at most fleet.MaxNearbyEntities, with
// distances rounded to one decimal.
func NearbyEntities(world gameclient.World) []fleet.Entity {
	entities := make([]fleet.Entity, 0, len(world.Entities))
	for _, entity := range world.Entities {
		distance := distanceBetween(world.Position, entity.Position)
		if distance > fleet.NearbyEntityRadius {
			continue
		}
		name := entity.Name
		if name == "" {
			name = "unknown entity"
		}
		entities = append(entities, fleet.Entity{
			Name:     name,
			Type:     entityType(entity.Kind),
			Distance: math.Round(distance*10) / 10,
		})
	}
	slices.SortStableFunc(entities, func(left, right fleet.Entity) int {
		return cmp.Compare(left.Distance, right.Distance)
	})
	if len(entities) > fleet.MaxNearbyEntities {
		entities = entities[:fleet.MaxNearbyEntities]
	}
	return entities
}

func entityType(kind string) string {
	switch kind {
	case "player":
		return "Player"
	case "mob":
		return "Mob"
	}
	return "Object"
}

func distanceBetween(from, to fleet.Position) float64 {
	return math.Sqrt((to.X-from.X)*(to.X-from.X) + (to.Y-from.Y)*(to.Y-from.Y) + (to.Z-from.Z)*(to.Z-from.Z))
}

// checkAutomation runs autoEat on a vitals update. It acts only while
// the worker is idle, and warns once per hungry spell when none of the
// configured foods is in the inventory.
func (a *Agent) checkAutomation() {
	automation := a.spec.Automation
	if !automation.AutoEat {
		return
	}
	world := a.client.World()
	if !world.HasVitals {
		return
	}

	a.mu.Lock()
	if world.Food >= HungerThreshold {
		a.hungerWarned = false
		a.mu.Unlock()
		return
	}
	if a.state != fleet.StateIdle {
		a.mu.Unlock()
		return
	}
	var food fleet.InventoryItem
	found := false
	for _, name := range automation.FoodToEat {
		if food, found = world.FindItem(name); found {
			break
		}
	}
	if !found {
		warned := a.hungerWarned
		a.hungerWarned = true
		a.mu.Unlock()
		if !warned {
			a.Warn("[automation] Hungry, but none of the configured foods is in the inventory.")
		}
		return
	}
	a.state = fleet.StateBusy
	a.mu.Unlock()

	a.Status(fmt.Sprintf("[automation] Hunger (%g/20). Eating %s...", world.Food, food.Name))
	if err := a.eat(food.Name); err != nil {
		a.Error(fmt.Sprintf("[automation] autoEat failed: %v", err))
		a.SetState(fleet.StateIdle)
		return
	}
	a.clock.AfterFunc(eatDuration, func() {
		a.SetState(fleet.StateIdle)
		a.Status("[automation] Finished eating.")
	})
}

func (a *Agent) eat(item string) error {
	if err := a.client.Equip(item, "hand"); err != nil {
		return err
	}
	return a.client.Consume()
}
