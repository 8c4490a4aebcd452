// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/gtool/lib/gameclient"
	"github.com/bureau-foundation/gtool/lib/ipc"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

const (
	// DefaultMoveDuration is how long "move" holds a control when the
	// command gives no duration.
	DefaultMoveDuration = time.Second

	// jumpHold is how long the jump control stays pressed.
	jumpHold = 500 * time.Millisecond
)

// turnYaw maps compass directions to yaw in radians.
var turnYaw = map[string]float64{
	"north": math.Pi,
	"east":  -math.Pi / 2,
	"south": 0,
	"west":  math.Pi / 2,
}

// execute runs one controller command and reports whether it was
// stop. Every command except stop needs the player to have spawned.
// Bad arguments produce an error line; the worker keeps running.
func (a *Agent) execute(command ipc.Command) bool {
	a.logger.Debug("executing command", "command", command.Command, "args", command.Args)
	if command.Command == "stop" {
		a.SetState(fleet.StateBusy)
		a.Status("Stopping by controller command...")
		if err := a.client.Quit("stopped by controller"); err != nil {
			a.logger.Warn("quitting game connection failed", "error", err)
		}
		return true
	}
	if !a.isSpawned() {
		a.Error(fmt.Sprintf("Cannot execute %s: worker has not spawned yet.", command.Command))
		return false
	}

	switch command.Command {
	case "say":
		a.say(command.Args)
	case "move":
		a.move(command.Args)
	case "turn":
		a.turn(command.Args)
	case "jump":
		if !a.client.World().OnGround {
			a.Log("Cannot jump while in the air.")
			return false
		}
		a.Log("[manual] Jumped!")
		a.jump()
	default:
		a.Warn("Unknown command: " + command.Command)
	}
	return false
}

func (a *Agent) say(args []string) {
	if len(args) == 0 {
		a.Error("say needs a message")
		return
	}
	a.reportFailure("say", a.client.Chat(strings.Join(args, " ")))
}

// move holds a movement control for a duration in milliseconds and
// marks the worker busy until it is released.
func (a *Agent) move(args []string) {
	if len(args) == 0 {
		a.Error("Invalid move direction: none given")
		return
	}
	control, valid := gameclient.ParseMoveControl(args[0])
	if !valid {
		a.Error(fmt.Sprintf("Invalid move direction: %s", args[0]))
		return
	}
	duration := DefaultMoveDuration
	if len(args) > 1 {
		milliseconds, err := strconv.Atoi(args[1])
		if err != nil || milliseconds <= 0 {
			a.Error(fmt.Sprintf("Invalid move duration: %s", args[1]))
			return
		}
		duration = time.Duration(milliseconds) * time.Millisecond
	}

	a.SetState(fleet.StateBusy)
	a.Log(fmt.Sprintf("[manual] Moving %s for %dms...", control, duration.Milliseconds()))
	if err := a.client.SetControl(control, true); err != nil {
		a.reportFailure("move", err)
		a.SetState(fleet.StateIdle)
		return
	}
	a.clock.AfterFunc(duration, func() {
		a.reportFailure("move", a.client.SetControl(control, false))
		a.SetState(fleet.StateIdle)
	})
}

func (a *Agent) turn(args []string) {
	direction := ""
	if len(args) > 0 {
		direction = args[0]
	}
	yaw, valid := turnYaw[direction]
	if !valid {
		a.Error(fmt.Sprintf("Invalid turn direction: %q", direction))
		return
	}
	if err := a.client.Look(yaw, 0); err != nil {
		a.reportFailure("turn", err)
		return
	}
	a.Log("[manual] Turned " + direction)
}

// jump presses the jump control and releases it after jumpHold.
func (a *Agent) jump() {
	if err := a.client.SetControl(gameclient.ControlJump, true); err != nil {
		a.reportFailure("jump", err)
		return
	}
	a.clock.AfterFunc(jumpHold, func() {
		a.reportFailure("jump", a.client.SetControl(gameclient.ControlJump, false))
	})
}

func (a *Agent) reportFailure(command string, err error) {
	if err != nil {
		a.Error(fmt.Sprintf("%s failed: %v", command, err))
	}
}
