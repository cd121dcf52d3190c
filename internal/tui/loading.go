package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const spinnerInterval = 120 * time.Millisecond

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinnerFrame selects a frame from the clock so the spinner animates on re-render.
func spinnerFrame(now time.Time) string {
	return spinnerFrames[now.UnixMilli()/spinnerInterval.Milliseconds()%int64(len(spinnerFrames))]
}

// renderLoadingPlaceholder renders an animated loading indicator.
func renderLoadingPlaceholder(now time.Time, width, height int) string {
	loadingStyle := lipgloss.NewStyle().
		Foreground(ColorGray).
		Italic(true)

	text := loadingStyle.Render(spinnerFrame(now) + " Loading...")

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, text)
}

// SpinnerTickMsg triggers a re-render for loading spinners.
type SpinnerTickMsg struct{}

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg {
		return SpinnerTickMsg{}
	})
}

// anyLoading reports whether the view or any source has an attempt in flight.
func (m *DashboardModel) anyLoading() bool {
	st := m.coord.State()
	if st.Loading {
		return true
	}
	for _, s := range st.Data.Sources {
		if s.Loading {
			return true
		}
	}
	return false
}

// startSpinnerIfNeeded schedules one spinner chain while something is loading.
func (m *DashboardModel) startSpinnerIfNeeded() tea.Cmd {
	if m.spinning || !m.anyLoading() {
		return nil
	}
	m.spinning = true
	return spinnerTick()
}

// handleSpinnerTick re-schedules spinner ticks until loading settles.
func (m *DashboardModel) handleSpinnerTick() tea.Cmd {
	if m.anyLoading() {
		return spinnerTick()
	}
	m.spinning = false
	return nil
}
