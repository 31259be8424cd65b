package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"warrior/internal/adapter/tui/theme"
)

// KeyHint represents a single keybinding hint shown in the status bar.
type KeyHint struct {
	Key  string // e.g. "Ctrl+C"
	Desc string // e.g. "Stop"
}

// StatusBarModel renders a bottom status bar with keybinding hints on the
// left and run status on the right.
type StatusBarModel struct {
	Hints  []KeyHint
	Status string
	width  int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	var hints []string
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")
	right := m.Status

	// Join left and right, padding the gap.
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return theme.StatusBar.Width(m.width).MaxHeight(1).Render(left + strings.Repeat(" ", gap) + right)
}
