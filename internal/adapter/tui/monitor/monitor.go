package monitor

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"warrior/internal/domain"
)

// Monitor runs the terminal program and implements the driver's log sink.
// LogLine and LogBusFrame block until the program is running.
type Monitor struct {
	model   *Model
	program *tea.Program
}

// New creates a monitor. onInterrupt is called when the operator presses
// Ctrl+C.
func New(onInterrupt func(), opts ...tea.ProgramOption) *Monitor {
	model := NewModel(onInterrupt)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &Monitor{
		model:   model,
		program: tea.NewProgram(model, opts...),
	}
}

// Run runs the program until Quit or a forced quit.
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	return err
}

// Quit stops the program.
func (m *Monitor) Quit() { m.program.Quit() }

// LogLine shows a progress line in the log pane.
func (m *Monitor) LogLine(text string) { m.program.Send(LogLineMsg{Text: text}) }

// LogBusFrame shows a decoded bus message in the bus pane.
func (m *Monitor) LogBusFrame(text string) { m.program.Send(BusFrameMsg{Text: text}) }

// Follow feeds run events from bus into the status bar. It returns the
// unsubscribe function.
func (m *Monitor) Follow(bus domain.EventBus) func() {
	return bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		m.program.Send(EventBusMsg{Event: e})
	})
}
