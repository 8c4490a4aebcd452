// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fleetui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// column is one table column: a header and a fixed width.
type column struct {
	title string
	width int
}

var columns = []column{
	{"NAME", 18},
	{"STATUS", 8},
	{"STATE", 9},
	{"HEALTH", 6},
	{"FOOD", 5},
	{"POSITION", 22},
	{"QUEUE", 5},
}

// defaultLogRows is the log pane height before the first window size
// message arrives.
const defaultLogRows = 8

// View implements tea.Model.
func (model Model) View() string {
	var builder strings.Builder
	builder.WriteString(model.renderHeader())
	builder.WriteByte('\n')
	if model.filter.Active || model.filter.Input != "" {
		builder.WriteString(model.renderFilterLine())
		builder.WriteByte('\n')
	}

	builder.WriteString(model.renderTable())
	builder.WriteString(model.renderDetail())
	builder.WriteString(model.renderLogs())
	builder.WriteString(model.renderFooter())
	return builder.String()
}

func (model Model) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).
		Render("gtool watch")
	workers := len(model.view.Workers())
	summary := fmt.Sprintf("%d workers, %d running", workers, model.runningCount())
	state := string(model.state)
	if model.lastError != "" {
		state += " (" + model.lastError + ")"
	}
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	return model.clip(title + "  " + faint.Render(summary) + "  " + faint.Render(state))
}

func (model Model) runningCount() int {
	running := 0
	for _, worker := range model.view.Workers() {
		if worker.Status == fleet.StatusRunning {
			running++
		}
	}
	return running
}

func (model Model) renderFilterLine() string {
	cursor := ""
	if model.filter.Active {
		cursor = "█"
	}
	return model.clip("/" + model.filter.Input + cursor)
}

func (model Model) renderTable() string {
	var builder strings.Builder
	header := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HelpText)
	var titles []string
	for _, col := range columns {
		titles = append(titles, fit(col.title, col.width))
	}
	builder.WriteString(model.clip(header.Render(strings.Join(titles, " "))))
	builder.WriteByte('\n')

	if len(model.visible) == 0 {
		message := "no workers configured"
		if !model.sawState {
			message = "waiting for the controller..."
		} else if model.filter.Input != "" {
			message = "no workers match the filter"
		}
		builder.WriteString(lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(message))
		builder.WriteByte('\n')
		return builder.String()
	}

	for index, result := range model.visible {
		builder.WriteString(model.clip(model.renderRow(result, index == model.cursor)))
		builder.WriteByte('\n')
	}
	return builder.String()
}

func (model Model) renderRow(result FilterResult, selected bool) string {
	worker := result.Worker
	base := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	if selected {
		base = base.Background(model.theme.SelectedBackground).Foreground(model.theme.SelectedForeground)
	}

	state := "-"
	if worker.Stats.State != nil {
		state = *worker.Stats.State
	}
	cells := []string{
		model.renderName(worker.Name, result.NamePositions, columns[0].width, base),
		base.Foreground(model.theme.StatusColor(worker.Status)).Render(fit(string(worker.Status), columns[1].width)),
		base.Foreground(model.theme.StateColor(state)).Render(fit(state, columns[2].width)),
		base.Render(fit(formatStat(worker.Stats.Health), columns[3].width)),
		base.Render(fit(formatStat(worker.Stats.Food), columns[4].width)),
		base.Render(fit(formatPosition(worker.Stats.Position), columns[5].width)),
		base.Render(fit(strconv.Itoa(len(worker.TaskQueue)), columns[6].width)),
	}
	return strings.Join(cells, base.Render(" "))
}

// renderName highlights the characters the filter matched.
func (model Model) renderName(name string, positions []int, width int, base lipgloss.Style) string {
	fitted := fit(name, width)
	if len(positions) == 0 {
		return base.Render(fitted)
	}
	matched := make(map[int]bool, len(positions))
	for _, position := range positions {
		matched[position] = true
	}
	highlight := base.Foreground(model.theme.MatchForeground).Bold(true)
	var builder strings.Builder
	for index, character := range []rune(fitted) {
		if matched[index] {
			builder.WriteString(highlight.Render(string(character)))
		} else {
			builder.WriteString(base.Render(string(character)))
		}
	}
	return builder.String()
}

func (model Model) renderDetail() string {
	worker, exists := model.Selected()
	if !exists {
		return ""
	}
	label := lipgloss.NewStyle().Foreground(model.theme.HelpText)
	lines := []string{
		"",
		label.Render("worker   ") + fmt.Sprintf("%s as %s on %s:%d, behavior %s",
			worker.Name, worker.Config.Username, worker.Config.Host,
			worker.Config.EffectivePort(), worker.Config.EffectiveBehavior()),
		label.Render("nearby   ") + formatEntities(worker.Stats.NearbyEntities),
		label.Render("inventory") + " " + formatInventory(worker.Stats.Inventory),
		label.Render("queue    ") + formatQueue(worker.TaskQueue),
	}
	var builder strings.Builder
	for _, line := range lines {
		builder.WriteString(model.clip(line))
		builder.WriteByte('\n')
	}
	return builder.String()
}

func (model Model) renderLogs() string {
	rows := model.logRows()
	start := max(0, len(model.logs)-rows)

	var builder strings.Builder
	builder.WriteByte('\n')
	for _, line := range model.logs[start:] {
		prefix := lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("[" + line.Prefix + "]")
		message := lipgloss.NewStyle().Foreground(model.theme.LevelColor(line.Type)).Render(line.Message)
		builder.WriteString(model.clip(prefix + " " + message))
		builder.WriteByte('\n')
	}
	return builder.String()
}

// logRows is the log pane height: what the window leaves after the
// header, filter line, table, detail block, and footer.
func (model Model) logRows() int {
	if model.height == 0 {
		return defaultLogRows
	}
	used := 1 + 1 + max(1, len(model.visible)) + 1 + 1
	if model.filter.Active || model.filter.Input != "" {
		used++
	}
	if len(model.visible) > 0 {
		used += 5
	}
	return max(3, model.height-used)
}

func (model Model) renderFooter() string {
	help := lipgloss.NewStyle().Foreground(model.theme.HelpText)
	var parts []string
	for _, binding := range model.keys.shortHelp() {
		if !binding.Enabled() {
			continue
		}
		if model.commander == nil && (binding.Help().Desc == "start" || binding.Help().Desc == "stop") {
			continue
		}
		parts = append(parts, binding.Help().Key+" "+binding.Help().Desc)
	}
	footer := help.Render(strings.Join(parts, " · "))
	if model.notice != "" {
		footer += "  " + lipgloss.NewStyle().Foreground(model.theme.StateBusy).Render(model.notice)
	}
	if model.sourceDone {
		footer += "  " + lipgloss.NewStyle().Foreground(model.theme.LevelError).Render("stream closed")
	}
	return model.clip(footer)
}

// clip truncates a rendered line to the window width.
func (model Model) clip(line string) string {
	if model.width <= 0 {
		return line
	}
	return ansi.Truncate(line, model.width, "…")
}

// fit truncates or pads text to exactly width cells.
func fit(text string, width int) string {
	text = ansi.Truncate(text, width, "…")
	if padding := width - ansi.StringWidth(text); padding > 0 {
		text += strings.Repeat(" ", padding)
	}
	return text
}

func formatStat(value *float64) string {
	if value == nil {
		return "-"
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}

func formatPosition(position *fleet.Position) string {
	if position == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f, %.1f, %.1f", position.X, position.Y, position.Z)
}

func formatEntities(entities *[]fleet.Entity) string {
	if entities == nil || len(*entities) == 0 {
		return "nothing in range"
	}
	parts := make([]string, 0, len(*entities))
	for _, entity := range *entities {
		parts = append(parts, fmt.Sprintf("%s (%s, %.1fm)", entity.Name, entity.Type, entity.Distance))
	}
	return strings.Join(parts, ", ")
}

func formatInventory(inventory *[]fleet.InventoryItem) string {
	if inventory == nil {
		return "-"
	}
	if len(*inventory) == 0 {
		return "empty"
	}
	parts := make([]string, 0, len(*inventory))
	for _, item := range *inventory {
		parts = append(parts, fmt.Sprintf("%s x%d", item.Name, item.Count))
	}
	return strings.Join(parts, ", ")
}

func formatQueue(tasks []fleet.Task) string {
	if len(tasks) == 0 {
		return "empty"
	}
	parts := make([]string, 0, len(tasks))
	for _, task := range tasks {
		parts = append(parts, task.ScriptName)
	}
	return strings.Join(parts, ", ")
}
