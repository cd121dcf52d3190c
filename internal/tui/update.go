package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages
func (m *DashboardModel) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resizeTables()
		return nil, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case dashboardEventMsg:
		if !msg.ok {
			return nil, nil
		}
		// State holds the latest payload even when its update event was dropped.
		if st := m.coord.State(); st.HasData {
			m.setData(st.Data)
		}
		return tea.Batch(m.waitForEvent(), m.startSpinnerIfNeeded()), nil

	case TickMsg:
		return tea.Batch(tick(), m.startSpinnerIfNeeded()), nil

	case SpinnerTickMsg:
		return m.handleSpinnerTick(), nil

	case controlDoneMsg:
		m.lastAction = msg.action
		m.actionErr = msg.err
		// Pull the new statuses instead of waiting for the next poll.
		m.coord.Refresh()
		return m.startSpinnerIfNeeded(), nil
	}
	return nil, nil
}

func (m *DashboardModel) handleKeyPress(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit), key.Matches(msg, m.keys.Quit):
		return tea.Quit, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resizeTables()
		return nil, nil

	case key.Matches(msg, m.keys.Refresh):
		return m.control("refresh", func(ctx context.Context) error {
			_, err := m.client.Refresh(ctx, "", false)
			return err
		}), nil

	case key.Matches(msg, m.keys.Pause):
		if m.sourcesPaused() {
			return m.control("resume", func(ctx context.Context) error {
				_, err := m.client.Resume(ctx, "")
				return err
			}), nil
		}
		return m.control("pause", func(ctx context.Context) error {
			_, err := m.client.Pause(ctx, "")
			return err
		}), nil

	case key.Matches(msg, m.keys.NextTable):
		m.focusTable((m.activeTable + 1) % numTables)
		return nil, nil

	case key.Matches(msg, m.keys.PrevTable):
		m.focusTable((m.activeTable + numTables - 1) % numTables)
		return nil, nil

	case key.Matches(msg, m.keys.History):
		return nil, &PageNav{PageID: historyPageID}
	}

	var cmd tea.Cmd
	m.tables[m.activeTable], cmd = m.tables[m.activeTable].Update(msg)
	return cmd, nil
}

func (m *DashboardModel) focusTable(idx int) {
	m.tables[m.activeTable].Blur()
	m.activeTable = idx
	m.tables[m.activeTable].Focus()
}
