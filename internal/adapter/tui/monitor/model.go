package monitor

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"warrior/internal/adapter/tui/components"
	"warrior/internal/adapter/tui/theme"
	"warrior/internal/domain"
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// Model is the root Bubble Tea model of the monitor.
type Model struct {
	bus       components.LinePaneModel
	log       components.LinePaneModel
	statusBar components.StatusBarModel

	onInterrupt func()
	stopping    bool

	runID   string
	passed  int
	failed  int
	skipped int
	blocked bool

	width  int
	height int
}

// NewModel creates the monitor model. onInterrupt is called on the first
// Ctrl+C; a second Ctrl+C quits immediately.
func NewModel(onInterrupt func()) *Model {
	m := &Model{
		bus:         components.NewLinePane(),
		log:         components.NewLinePane(),
		statusBar:   components.NewStatusBar(),
		onInterrupt: onInterrupt,
	}
	m.bus.Style = theme.TextInfo
	return m
}

// Init does nothing; input arrives as messages.
func (m *Model) Init() tea.Cmd { return nil }

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			if m.stopping {
				return m, tea.Quit
			}
			m.stopping = true
			m.log.AddLine("Stopping: returning bench to nominal...")
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
			return m, nil
		}

	case BusFrameMsg:
		m.bus.AddLine(msg.Text)
		return m, nil

	case LogLineMsg:
		m.log.AddLine(msg.Text)
		return m, nil

	case EventBusMsg:
		m.handleEvent(msg.Event)
		return m, nil
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

// View renders both panes and the status bar.
func (m *Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	sb := m.statusBar
	sb.Hints = []components.KeyHint{{Key: "Ctrl+C", Desc: m.stopHint()}}
	sb.Status = m.status()
	sb.SetWidth(m.width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.bus.View(),
		theme.Dim.Render(strings.Repeat(theme.Divider, theme.Clamp(m.width-1, 0, m.width))),
		m.log.View(),
		sb.View(),
	)
}

// BusLines returns the buffered bus pane lines.
func (m *Model) BusLines() []string { return m.bus.Lines() }

// LogLines returns the buffered log pane lines.
func (m *Model) LogLines() []string { return m.log.Lines() }

// layout splits the screen: bus pane 2/3, divider, log pane, status bar.
func (m *Model) layout() {
	content := theme.Clamp(m.height-1, 3, m.height)
	busH := content / 3 * 2
	logH := theme.Clamp(content-busH-1, 1, content)
	m.bus.SetSize(m.width, busH)
	m.log.SetSize(m.width, logH)
}

func (m *Model) handleEvent(e domain.Event) {
	if e.RunID != "" {
		m.runID = e.RunID
	}
	switch e.Type {
	case domain.EventTestPassed:
		m.passed++
	case domain.EventTestFailed:
		m.failed++
	case domain.EventTestSkipped:
		m.skipped++
	case domain.EventGateBlocked:
		m.blocked = true
	case domain.EventGatePassed:
		m.blocked = false
	case domain.EventRunStopped:
		m.stopping = true
	}
}

func (m *Model) stopHint() string {
	if m.stopping {
		return "Force quit"
	}
	return "Stop"
}

func (m *Model) status() string {
	sym := theme.Symbols
	s := fmt.Sprintf("%s %d  %s %d  %s %d",
		theme.TextSuccess.Render(sym.Pass+" passed"), m.passed,
		theme.TextError.Render(sym.Fail+" failed"), m.failed,
		theme.TextMuted.Render(sym.Skip+" skipped"), m.skipped)
	if m.blocked {
		s += "  " + theme.TextWarning.Render(sym.Blocked+" gate blocked")
	}
	if m.runID != "" {
		s += "  " + theme.TextMuted.Render("run "+m.runID)
	}
	return s
}
