package tui

import tea "github.com/charmbracelet/bubbletea"

// App is the top-level Bubble Tea model that routes between pages.
type App struct {
	pages      map[string]Page
	order      []string
	activePage string
	width      int
	height     int
}

// NewApp creates a new App with the given pages. The first page is the default.
func NewApp(pages ...Page) *App {
	a := &App{pages: make(map[string]Page, len(pages))}
	for _, p := range pages {
		a.pages[p.ID()] = p
		a.order = append(a.order, p.ID())
	}
	if len(a.order) > 0 {
		a.activePage = a.order[0]
	}
	return a
}

// ActivePage returns the ID of the page currently shown.
func (a *App) ActivePage() string { return a.activePage }

func (a *App) Init() tea.Cmd {
	if p, ok := a.pages[a.activePage]; ok {
		return p.Init()
	}
	return nil
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		a.width = wsm.Width
		a.height = wsm.Height
		// Every page tracks the size, not only the visible one.
		var cmds []tea.Cmd
		for _, id := range a.order {
			cmd, _ := a.pages[id].Update(msg)
			cmds = append(cmds, cmd)
		}
		return a, tea.Batch(cmds...)
	}

	p, ok := a.pages[a.activePage]
	if !ok {
		return a, nil
	}

	// Background messages (data, ticks) reach every page so hidden pages
	// keep their listeners alive; input goes to the visible page only.
	var cmds []tea.Cmd
	switch msg.(type) {
	case tea.KeyMsg, tea.MouseMsg:
	default:
		for _, id := range a.order {
			if id == a.activePage {
				continue
			}
			cmd, _ := a.pages[id].Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	cmd, nav := p.Update(msg)
	cmd = tea.Batch(append(cmds, cmd)...)
	if nav == nil {
		return a, cmd
	}
	next, exists := a.pages[nav.PageID]
	if !exists {
		return a, cmd
	}
	if e, ok := next.(enterer); ok {
		e.Enter(nav.Params)
	}
	a.activePage = nav.PageID
	return a, tea.Batch(cmd, next.Init())
}

func (a *App) View() string {
	if p, ok := a.pages[a.activePage]; ok {
		return p.View(a.width, a.height)
	}
	return "No active page"
}

// Close releases background work held by any page.
func (a *App) Close() {
	for _, id := range a.order {
		if c, ok := a.pages[id].(closer); ok {
			c.Close()
		}
	}
}
