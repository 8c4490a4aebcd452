// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Styles renders table text for one output stream. When the stream is
// not a terminal every style renders plain text.
type Styles struct {
	Header  lipgloss.Style
	Faint   lipgloss.Style
	Good    lipgloss.Style
	Warning lipgloss.Style
	Bad     lipgloss.Style
}

// NewStyles picks a color profile for w: the terminal's own when w is
// a TTY, none otherwise.
func NewStyles(w io.Writer) Styles {
	renderer := lipgloss.NewRenderer(w)
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		renderer.SetColorProfile(termenv.NewOutput(file).EnvColorProfile())
	} else {
		renderer.SetColorProfile(termenv.Ascii)
	}
	return Styles{
		Header:  renderer.NewStyle().Bold(true),
		Faint:   renderer.NewStyle().Foreground(lipgloss.Color("243")),
		Good:    renderer.NewStyle().Foreground(lipgloss.Color("114")),
		Warning: renderer.NewStyle().Foreground(lipgloss.Color("221")),
		Bad:     renderer.NewStyle().Foreground(lipgloss.Color("203")),
	}
}
