// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Cell is one table value. A nil Style renders the text unstyled.
type Cell struct {
	Text  string
	Style *lipgloss.Style
}

// Plain returns an unstyled cell.
func Plain(text string) Cell { return Cell{Text: text} }

// Styled returns a cell rendered with style.
func Styled(text string, style lipgloss.Style) Cell { return Cell{Text: text, Style: &style} }

// Table aligns columns by their visible width. Unlike tabwriter it
// pads before styling, so escape sequences never skew the columns.
type Table struct {
	headers []string
	rows    [][]Cell
}

// NewTable starts a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// Add appends a row. Missing cells render empty.
func (t *Table) Add(cells ...Cell) {
	t.rows = append(t.rows, cells)
}

// Render writes the table with three spaces between columns.
func (t *Table) Render(w io.Writer, styles Styles) error {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = ansi.StringWidth(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], ansi.StringWidth(cell.Text))
			}
		}
	}

	headerCells := make([]Cell, len(t.headers))
	for i, header := range t.headers {
		headerCells[i] = Styled(header, styles.Header)
	}
	if err := writeRow(w, headerCells, widths); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := writeRow(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(w io.Writer, row []Cell, widths []int) error {
	var line strings.Builder
	for i, width := range widths {
		var cell Cell
		if i < len(row) {
			cell = row[i]
		}
		text := cell.Text
		if i < len(widths)-1 {
			text += strings.Repeat(" ", width-ansi.StringWidth(cell.Text))
		}
		if cell.Style != nil {
			text = cell.Style.Render(text)
		}
		line.WriteString(text)
		if i < len(widths)-1 {
			line.WriteString("   ")
		}
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	return err
}
