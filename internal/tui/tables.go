package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/adpulse/internal/model"
)

const (
	tableCreatives = iota
	tablePacing
	tableSlots
	numTables
)

var tableTitles = [numTables]string{"Top Creatives", "Pacing", "Slot Health"}

type column struct {
	title  string
	weight int
}

var tableColumns = [numTables][]column{
	tableCreatives: {
		{"Name", 5}, {"Type", 3}, {"Status", 3}, {"Impr", 2}, {"Clicks", 2}, {"Load ms", 2},
	},
	tablePacing: {
		{"Campaign", 5}, {"Delivery", 2}, {"Expected", 2}, {"Variance", 2}, {"Status", 3}, {"Spent", 2},
	},
	tableSlots: {
		{"Slot", 3}, {"Health", 2}, {"Fill", 2}, {"Fails", 2}, {"Latency", 2}, {"Top reason", 4},
	},
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorGray).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(ColorWhite).
		Background(ColorNavy).
		Bold(false)
	return s
}

func newTables() [numTables]table.Model {
	var out [numTables]table.Model
	for i := range out {
		out[i] = table.New(
			table.WithColumns(columnsFor(i, 60)),
			table.WithStyles(tableStyles()),
			table.WithHeight(5),
		)
	}
	out[tableCreatives].Focus()
	return out
}

// columnsFor splits width across the table's columns by weight.
func columnsFor(idx, width int) []table.Column {
	cols := tableColumns[idx]
	total := 0
	for _, c := range cols {
		total += c.weight
	}
	// Each cell carries one column of padding on both sides.
	usable := max(width-2*len(cols), len(cols))
	out := make([]table.Column, len(cols))
	for i, c := range cols {
		out[i] = table.Column{Title: c.title, Width: max(usable*c.weight/total, 1)}
	}
	return out
}

// tablesSize returns the width and visible row count for the table section.
func (m *DashboardModel) tablesSize() (width, rows int) {
	w, h := m.layout()
	// Border (2), tab row (1) and the header with its rule (2).
	return w.tables - 4, max(h.body-5, 1)
}

func (m *DashboardModel) resizeTables() {
	width, rows := m.tablesSize()
	for i := range m.tables {
		m.tables[i].SetColumns(columnsFor(i, width))
		m.tables[i].SetWidth(width)
		m.tables[i].SetHeight(rows)
	}
}

func (m *DashboardModel) setData(d model.Dashboard) {
	m.tables[tableCreatives].SetRows(creativeRows(d.TopCreatives))
	m.tables[tablePacing].SetRows(pacingRows(d.Pacing))
	m.tables[tableSlots].SetRows(slotRows(d.Slots))
}

func creativeRows(cs []model.Creative) []table.Row {
	rows := make([]table.Row, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, table.Row{
			c.Name,
			c.Type,
			c.Status,
			strconv.Itoa(c.Impressions),
			strconv.Itoa(c.Clicks),
			strconv.Itoa(c.LoadTime),
		})
	}
	return rows
}

func pacingRows(ps []model.PacingData) []table.Row {
	rows := make([]table.Row, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, table.Row{
			p.CampaignName,
			fmt.Sprintf("%.1f%%", p.DeliveryPercent),
			fmt.Sprintf("%.1f%%", p.ExpectedPercent),
			fmt.Sprintf("%+.1f", p.Variance),
			p.Status,
			fmt.Sprintf("$%.0f/%d", p.Spent, p.DailyBudget),
		})
	}
	return rows
}

func slotRows(ss []model.SlotHealth) []table.Row {
	rows := make([]table.Row, 0, len(ss))
	for _, s := range ss {
		reason := s.FrequentFailureReason
		if reason == "" {
			reason = "-"
		}
		rows = append(rows, table.Row{
			s.SlotID,
			s.Health,
			fmt.Sprintf("%.1f%%", s.FillRate),
			strconv.Itoa(s.Failures),
			fmt.Sprintf("%dms", s.AvgLatency),
			reason,
		})
	}
	return rows
}
