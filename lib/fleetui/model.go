// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleetui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

const (
	// maxLogLines bounds the retained fleet log.
	maxLogLines = 200

	// noticeFadeDelay is how long a status bar notice stays visible.
	noticeFadeDelay = 3 * time.Second

	// commandTimeout bounds one start or stop call.
	commandTimeout = 10 * time.Second
)

// Commander performs the mutations the view offers on the selected
// worker.
type Commander interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}

// updateMsg carries one Update through the bubbletea loop.
type updateMsg struct {
	update Update
}

// sourceClosedMsg reports that the source's channel was closed.
type sourceClosedMsg struct{}

// commandResultMsg is sent when a start or stop call returns. The
// subscribe stream delivers the resulting state change.
type commandResultMsg struct {
	action string
	name   string
	err    error
}

// noticeFadeMsg clears the status bar notice it was scheduled for.
type noticeFadeMsg struct {
	generation int
}

// Model is the bubbletea model of the watch view.
type Model struct {
	updates   <-chan Update
	commander Commander
	keys      KeyMap
	theme     Theme

	view    fleet.View
	visible []FilterResult
	cursor  int

	// selected is the name under the cursor, kept across refreshes so
	// the cursor follows a worker when rows reorder.
	selected string

	filter FilterModel
	logs   []fleet.LogLine

	state      ConnectionState
	lastError  string
	notice     string
	noticeAge  int
	sawState   bool
	sourceDone bool

	width  int
	height int
}

// NewModel builds a model reading from updates. commander may be nil,
// which disables the start and stop keys.
func NewModel(updates <-chan Update, commander Commander) Model {
	return Model{
		updates:   updates,
		commander: commander,
		keys:      DefaultKeyMap,
		theme:     DefaultTheme,
		state:     StateConnecting,
	}
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return listenForUpdate(model.updates)
}

func listenForUpdate(channel <-chan Update) tea.Cmd {
	if channel == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-channel
		if !ok {
			return sourceClosedMsg{}
		}
		return updateMsg{update: update}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		if model.filter.Active {
			return model.handleFilterKeys(message)
		}
		return model.handleKeys(message)

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height

	case updateMsg:
		model.apply(message.update)
		return model, listenForUpdate(model.updates)

	case logRecordMsg:
		model.appendLog(message.line)

	case sourceClosedMsg:
		model.sourceDone = true
		model.state = StateDisconnected

	case commandResultMsg:
		if message.err != nil {
			return model, model.setNotice(fmt.Sprintf("%s %s: %v", message.action, message.name, message.err))
		}
		return model, model.setNotice(fmt.Sprintf("%s sent to %s", message.action, message.name))

	case noticeFadeMsg:
		if message.generation == model.noticeAge {
			model.notice = ""
		}
	}
	return model, nil
}

func (model Model) handleKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Up):
		model.moveCursor(model.cursor - 1)

	case key.Matches(message, model.keys.Down):
		model.moveCursor(model.cursor + 1)

	case key.Matches(message, model.keys.Home):
		model.moveCursor(0)

	case key.Matches(message, model.keys.End):
		model.moveCursor(len(model.visible) - 1)

	case key.Matches(message, model.keys.FilterActivate):
		model.filter.Active = true

	case key.Matches(message, model.keys.FilterClear):
		if model.filter.Input != "" {
			model.filter.Clear()
			model.refresh()
		}

	case key.Matches(message, model.keys.Start):
		return model, model.runCommand("start")

	case key.Matches(message, model.keys.Stop):
		return model, model.runCommand("stop")
	}
	return model, nil
}

func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyCtrlC:
		return model, tea.Quit
	case tea.KeyEsc:
		model.filter.Clear()
	case tea.KeyEnter:
		model.filter.Active = false
		return model, nil
	case tea.KeyBackspace:
		if !model.filter.HandleBackspace() {
			return model, nil
		}
	case tea.KeyRunes, tea.KeySpace:
		for _, character := range message.Runes {
			model.filter.HandleRune(character)
		}
		if message.Type == tea.KeySpace && len(message.Runes) == 0 {
			model.filter.HandleRune(' ')
		}
	default:
		return model, nil
	}
	// Typing resets the cursor so the best match is selected.
	model.selected = ""
	model.cursor = 0
	model.refresh()
	return model, nil
}

func (model *Model) apply(update Update) {
	if update.Event == nil {
		model.state = update.State
		if update.Err != nil {
			model.lastError = update.Err.Error()
		} else if update.State == StateLive {
			model.lastError = ""
		}
		return
	}

	event := *update.Event
	switch event.Type {
	case fleet.EventLog:
		if event.Log != nil {
			model.appendLog(*event.Log)
		}
	case fleet.EventTaskLog:
		if event.TaskLog != nil {
			model.appendLog(fleet.LogLine{
				Prefix:  event.TaskLog.Worker,
				Message: fmt.Sprintf("[%s] %s", event.TaskLog.TaskID, event.TaskLog.Message),
				Type:    fleet.LevelLog,
			})
		}
	case fleet.EventError:
		model.lastError = "controller: " + event.Message
	default:
		if model.view.Apply(event) {
			if event.Type == fleet.EventFullState {
				model.sawState = true
			}
			model.refresh()
		}
	}
}

func (model *Model) appendLog(line fleet.LogLine) {
	model.logs = append(model.logs, line)
	if overflow := len(model.logs) - maxLogLines; overflow > 0 {
		model.logs = append(model.logs[:0:0], model.logs[overflow:]...)
	}
}

// refresh recomputes the visible rows and keeps the cursor on the
// previously selected worker when it is still visible.
func (model *Model) refresh() {
	model.visible = model.filter.Apply(model.view.Workers())
	if model.selected != "" {
		for index, result := range model.visible {
			if result.Worker.Name == model.selected {
				model.cursor = index
				return
			}
		}
	}
	model.moveCursor(model.cursor)
}

func (model *Model) moveCursor(position int) {
	if len(model.visible) == 0 {
		model.cursor = 0
		model.selected = ""
		return
	}
	model.cursor = max(0, min(position, len(model.visible)-1))
	model.selected = model.visible[model.cursor].Worker.Name
}

// Selected returns the worker under the cursor.
func (model Model) Selected() (fleet.WorkerState, bool) {
	if len(model.visible) == 0 {
		return fleet.WorkerState{}, false
	}
	return model.visible[model.cursor].Worker, true
}

func (model *Model) runCommand(action string) tea.Cmd {
	worker, exists := model.Selected()
	if !exists || model.commander == nil {
		return nil
	}
	commander := model.commander
	name := worker.Name
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		var err error
		if action == "start" {
			err = commander.Start(ctx, name)
		} else {
			err = commander.Stop(ctx, name)
		}
		return commandResultMsg{action: action, name: name, err: err}
	}
}

func (model *Model) setNotice(text string) tea.Cmd {
	model.notice = text
	model.noticeAge++
	generation := model.noticeAge
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{generation: generation}
	})
}
