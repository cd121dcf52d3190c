package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	minWidth  = 60
	minHeight = 20

	headerHeight = 2
	kpiHeight    = 4
)

type widths struct {
	chart  int
	tables int
}

type heights struct {
	body   int
	footer int
}

// layout splits the terminal between header, KPI row, body and footer.
// The geo chart is dropped on narrow terminals.
func (m *DashboardModel) layout() (widths, heights) {
	footer := 1
	if m.help.ShowAll {
		footer += 4
	}
	h := heights{
		footer: footer,
		body:   max(m.height-headerHeight-kpiHeight-footer, 3),
	}
	w := widths{tables: max(m.width, minWidth)}
	if m.width >= 100 {
		w.chart = m.width * 2 / 5
		w.tables = m.width - w.chart
	}
	return w, h
}

// View renders the dashboard at the size handed down by App.
func (m *DashboardModel) View(width, height int) string {
	if width != m.width || height != m.height {
		m.width, m.height = width, height
		m.resizeTables()
	}
	if m.width <= 0 || m.height <= 0 {
		return "Initializing dashboard..."
	}
	if m.height < minHeight || m.width < minWidth {
		return "Terminal too small. Resize to at least 60x20."
	}

	st := m.coord.State()
	now := m.opts.Clock.Now()
	w, h := m.layout()

	header := m.renderHeader(st, now)
	footer := m.renderStatusLine(st, now)

	var body string
	if !st.HasData {
		body = renderLoadingPlaceholder(now, m.width, h.body+kpiHeight)
		if st.Err != nil {
			body = lipgloss.Place(m.width, h.body+kpiHeight, lipgloss.Center, lipgloss.Center,
				errorTextStyle.Render(st.Err.Error()))
		}
	} else {
		d := st.Data
		kpis := renderKPICards(d, m.width)
		tables := m.renderTables(w.tables, h.body)
		row := tables
		if w.chart > 0 {
			chart := renderGeoChart(d.Geos, w.chart, h.body)
			row = lipgloss.JoinHorizontal(lipgloss.Top, chart, tables)
		}
		body = lipgloss.JoinVertical(lipgloss.Left, kpis, row)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// renderTables draws the tab row and the focused table.
func (m *DashboardModel) renderTables(width, height int) string {
	tabs := make([]string, numTables)
	for i, title := range tableTitles {
		if i == m.activeTable {
			tabs[i] = chartTitleStyle.Render("[" + title + "]")
		} else {
			tabs[i] = helpStyle.Render(" " + title + " ")
		}
	}
	title := strings.Join(tabs, " ")
	content := m.tables[m.activeTable].View()
	if len(m.tables[m.activeTable].Rows()) == 0 {
		content = helpStyle.Render("No data available")
	}
	style := activeSectionStyle.Width(width - 2).Height(height - 2)
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}
