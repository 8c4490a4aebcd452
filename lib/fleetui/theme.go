// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleetui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// Theme is the watch view's palette, in ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	HelpText         lipgloss.Color

	// Process status.
	StatusRunning lipgloss.Color
	StatusStopped lipgloss.Color

	// Activity labels reported in stats.
	StateIdle lipgloss.Color
	StateBusy lipgloss.Color

	// Log line levels.
	LevelWarn  lipgloss.Color
	LevelError lipgloss.Color

	// Characters matched by the filter.
	MatchForeground lipgloss.Color
}

// DefaultTheme is the built-in palette.
var DefaultTheme = Theme{
	NormalText:         lipgloss.Color("252"),
	FaintText:          lipgloss.Color("243"),
	SelectedBackground: lipgloss.Color("237"),
	SelectedForeground: lipgloss.Color("255"),
	HeaderForeground:   lipgloss.Color("111"),
	HelpText:           lipgloss.Color("241"),
	StatusRunning:      lipgloss.Color("114"),
	StatusStopped:      lipgloss.Color("243"),
	StateIdle:          lipgloss.Color("110"),
	StateBusy:          lipgloss.Color("221"),
	LevelWarn:          lipgloss.Color("214"),
	LevelError:         lipgloss.Color("203"),
	MatchForeground:    lipgloss.Color("208"),
}

// StatusColor returns the color for a worker's process status.
func (theme Theme) StatusColor(status fleet.WorkerStatus) lipgloss.Color {
	if status == fleet.StatusRunning {
		return theme.StatusRunning
	}
	return theme.StatusStopped
}

// StateColor returns the color for a stats state label. Labels other
// than the built-in ones render as normal text.
func (theme Theme) StateColor(state string) lipgloss.Color {
	switch state {
	case fleet.StateIdle:
		return theme.StateIdle
	case fleet.StateBusy:
		return theme.StateBusy
	case fleet.StateStopped:
		return theme.FaintText
	}
	return theme.NormalText
}

// LevelColor returns the color for a log line level.
func (theme Theme) LevelColor(level string) lipgloss.Color {
	switch level {
	case fleet.LevelWarn:
		return theme.LevelWarn
	case fleet.LevelError:
		return theme.LevelError
	case fleet.LevelStatus:
		return theme.HeaderForeground
	}
	return theme.NormalText
}
