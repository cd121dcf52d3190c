package tui

import tea "github.com/charmbracelet/bubbletea"

// Page is a top-level screen routed by App.
type Page interface {
	ID() string
	Init() tea.Cmd
	Update(msg tea.Msg) (tea.Cmd, *PageNav)
	View(width, height int) string
}

// PageNav is returned from Update to request a page switch.
type PageNav struct {
	PageID string
	Params any
}

// enterer is implemented by pages that take parameters when navigated to.
type enterer interface {
	Enter(params any)
}

// closer is implemented by pages that own background work.
type closer interface {
	Close()
}
