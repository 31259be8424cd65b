package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxPaneLines = 500

// LinePaneModel is a scrolling pane of text lines that follows new output
// while scrolled to the bottom.
type LinePaneModel struct {
	Viewport viewport.Model
	Style    lipgloss.Style
	lines    []string
	ready    bool
	atBottom bool
	width    int
}

// NewLinePane creates an empty pane.
func NewLinePane() LinePaneModel {
	return LinePaneModel{atBottom: true, Style: lipgloss.NewStyle()}
}

// SetSize sets the pane dimensions.
func (m *LinePaneModel) SetSize(w, h int) {
	m.width = w
	if !m.ready {
		m.Viewport = viewport.New(w, h)
		m.Viewport.MouseWheelEnabled = true
		m.ready = true
	} else {
		m.Viewport.Width = w
		m.Viewport.Height = h
	}
	m.refreshContent()
}

// AddLine appends text, one pane line per text line.
func (m *LinePaneModel) AddLine(text string) {
	m.lines = append(m.lines, strings.Split(strings.TrimRight(text, "\n"), "\n")...)
	if len(m.lines) > maxPaneLines {
		m.lines = m.lines[len(m.lines)-maxPaneLines:]
	}
	m.refreshContent()
}

// Lines returns the buffered lines, oldest first.
func (m LinePaneModel) Lines() []string {
	return append([]string(nil), m.lines...)
}

// Update handles scrolling.
func (m LinePaneModel) Update(msg tea.Msg) (LinePaneModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	m.atBottom = m.Viewport.AtBottom()
	return m, cmd
}

// View renders the visible lines.
func (m LinePaneModel) View() string {
	if !m.ready {
		return ""
	}
	return m.Viewport.View()
}

func (m *LinePaneModel) refreshContent() {
	if !m.ready {
		return
	}
	rendered := make([]string, len(m.lines))
	for i, l := range m.lines {
		rendered[i] = m.Style.Render(Truncate(l, m.width))
	}
	m.Viewport.SetContent(strings.Join(rendered, "\n"))
	if m.atBottom {
		m.Viewport.GotoBottom()
	}
}

// Truncate cuts s so it fits in a terminal of the given width, leaving the
// last column free.
func Truncate(s string, width int) string {
	if width <= 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width-1 {
		return s
	}
	return string(r[:width-1])
}
