// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleetui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// LocalPrefix is the log pane prefix of lines the watch view logs
// about itself.
const LocalPrefix = "gtool"

// logRecordMsg delivers a formatted slog record to the model.
type logRecordMsg struct {
	line fleet.LogLine
}

// TUILogHandler is a slog.Handler that routes records into the log
// pane of a running program instead of writing over the screen.
// Records arriving before SetProgram are dropped. Handlers derived
// with WithAttrs and WithGroup share the program pointer.
type TUILogHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
	group   string
}

// NewTUILogHandler creates a handler for records at or above level.
func NewTUILogHandler(level slog.Level) *TUILogHandler {
	return &TUILogHandler{level: level, program: &atomic.Pointer[tea.Program]{}}
}

// SetProgram sets the program that receives records.
func (handler *TUILogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

func (handler *TUILogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

func (handler *TUILogHandler) Handle(_ context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		return nil
	}
	program.Send(logRecordMsg{line: formatRecord(record, handler.attrs, handler.group)})
	return nil
}

func (handler *TUILogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *handler
	clone.attrs = append(handler.attrs[:len(handler.attrs):len(handler.attrs)], attrs...)
	return &clone
}

func (handler *TUILogHandler) WithGroup(name string) slog.Handler {
	clone := *handler
	if clone.group != "" {
		name = clone.group + "." + name
	}
	clone.group = name
	return &clone
}

// formatRecord renders "message (key=value, ...)" at the pane level
// matching the record's severity.
func formatRecord(record slog.Record, attrs []slog.Attr, group string) fleet.LogLine {
	var parts []string
	add := func(attr slog.Attr) {
		key := attr.Key
		if group != "" {
			key = group + "." + key
		}
		parts = append(parts, fmt.Sprintf("%s=%s", key, attr.Value))
	}
	for _, attr := range attrs {
		add(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		add(attr)
		return true
	})

	message := record.Message
	if len(parts) > 0 {
		message += " (" + strings.Join(parts, ", ") + ")"
	}

	level := fleet.LevelLog
	switch {
	case record.Level >= slog.LevelError:
		level = fleet.LevelError
	case record.Level >= slog.LevelWarn:
		level = fleet.LevelWarn
	}
	return fleet.LogLine{Prefix: LocalPrefix, Message: message, Type: level}
}
