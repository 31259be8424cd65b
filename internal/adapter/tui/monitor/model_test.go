package monitor

import (
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warrior/internal/domain"
)

func sized(m *Model, w, h int) *Model {
	m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	return m
}

func TestViewBeforeSize(t *testing.T) {
	m := NewModel(nil)
	assert.Equal(t, "  Initializing...", m.View())
}

func TestPanesSplitTwoThirds(t *testing.T) {
	m := sized(NewModel(nil), 40, 13)

	for i := 0; i < 20; i++ {
		m.Update(BusFrameMsg{Text: fmt.Sprintf("frame %02d", i)})
	}
	for i := 0; i < 6; i++ {
		m.Update(LogLineMsg{Text: fmt.Sprintf("log %02d", i)})
	}

	view := m.View()
	// 12 content rows: 8 bus rows, a divider and 3 log rows.
	assert.Contains(t, view, "frame 12")
	assert.Contains(t, view, "frame 19")
	assert.NotContains(t, view, "frame 11")
	assert.Contains(t, view, "log 03")
	assert.Contains(t, view, "log 05")
	assert.NotContains(t, view, "log 02")

	assert.Len(t, m.BusLines(), 20)
	assert.Len(t, m.LogLines(), 6)
}

func TestCtrlCStopsThenQuits(t *testing.T) {
	calls := 0
	m := sized(NewModel(func() { calls++ }), 40, 10)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, calls)
	assert.Contains(t, m.LogLines(), "Stopping: returning bench to nominal...")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 1, calls)
}

func TestStatusCountsEvents(t *testing.T) {
	m := sized(NewModel(nil), 120, 10)

	for _, typ := range []domain.EventType{
		domain.EventRunStarted,
		domain.EventTestPassed,
		domain.EventTestPassed,
		domain.EventTestFailed,
		domain.EventTestSkipped,
		domain.EventGateBlocked,
	} {
		m.Update(EventBusMsg{Event: domain.Event{Type: typ, RunID: "01RUN"}})
	}

	status := m.status()
	assert.Contains(t, status, "passed 2")
	assert.Contains(t, status, "failed 1")
	assert.Contains(t, status, "skipped 1")
	assert.Contains(t, status, "gate blocked")
	assert.Contains(t, status, "run 01RUN")

	m.Update(EventBusMsg{Event: domain.Event{Type: domain.EventGatePassed}})
	assert.NotContains(t, m.status(), "gate blocked")
}
