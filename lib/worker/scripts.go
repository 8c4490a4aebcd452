// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/gtool/lib/gameclient"
)

// test_say defaults.
const (
	defaultSayMessage = "GTool task system test!"
	defaultSayCount   = 3
	defaultSayDelay   = 2 * time.Second
)

// patrol defaults.
const (
	defaultPatrolSteps    = 4
	defaultPatrolStepTime = time.Second
)

// reverseControl pairs each patrol direction with its opposite.
var reverseControl = map[gameclient.Control]gameclient.Control{
	gameclient.ControlForward: gameclient.ControlBack,
	gameclient.ControlBack:    gameclient.ControlForward,
	gameclient.ControlLeft:    gameclient.ControlRight,
	gameclient.ControlRight:   gameclient.ControlLeft,
}

// testSay chats params.message params.count times, params.delay_ms
// apart.
func testSay(ctx context.Context, task *Task) error {
	params := task.Params()
	message := params.String("message", defaultSayMessage)
	count := params.Int("count", defaultSayCount)
	delay := params.Milliseconds("delay_ms", defaultSayDelay)

	task.Logf("Saying %q %d times, %dms apart.", message, count, delay.Milliseconds())
	for i := range count {
		task.Logf("(%d/%d) saying: %s", i+1, count, message)
		if err := task.Client().Chat(message); err != nil {
			return err
		}
		if i < count-1 {
			if err := task.Sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	task.Logf("Done. %d messages sent.", count)
	return nil
}

// patrol walks params.steps legs of params.step_ms each, reversing
// direction after every leg, starting with params.direction.
func patrol(ctx context.Context, task *Task) error {
	params := task.Params()
	name := params.String("direction", string(gameclient.ControlForward))
	direction := gameclient.Control(name)
	reverse, valid := reverseControl[direction]
	if !valid {
		return fmt.Errorf("invalid patrol direction %q", name)
	}
	steps := params.Int("steps", defaultPatrolSteps)
	stepTime := params.Milliseconds("step_ms", defaultPatrolStepTime)

	client := task.Client()
	for i := range steps {
		task.Logf("(%d/%d) walking %s", i+1, steps, direction)
		if err := client.SetControl(direction, true); err != nil {
			return err
		}
		err := task.Sleep(ctx, stepTime)
		if releaseErr := client.SetControl(direction, false); err == nil {
			err = releaseErr
		}
		if err != nil {
			return err
		}
		direction, reverse = reverse, direction
	}
	position := client.World().Position
	task.Logf("Patrol finished at %.1f, %.1f, %.1f.", position.X, position.Y, position.Z)
	return nil
}
