// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleetui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the watch view's key bindings.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding
	Home key.Binding
	End  key.Binding

	FilterActivate key.Binding
	FilterClear    key.Binding

	// Mutations on the selected worker.
	Start key.Binding
	Stop  key.Binding

	Quit key.Binding
}

// DefaultKeyMap pairs vim-style keys with the arrow keys.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Home: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "top"),
	),
	End: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "bottom"),
	),
	FilterActivate: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	FilterClear: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "clear filter"),
	),
	Start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start"),
	),
	Stop: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "stop"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// shortHelp lists the bindings shown in the footer.
func (keys KeyMap) shortHelp() []key.Binding {
	return []key.Binding{keys.Down, keys.Up, keys.FilterActivate, keys.Start, keys.Stop, keys.Quit}
}
