package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/adpulse/internal/socketrpc"
)

type historyLoadedMsg struct {
	result socketrpc.HistoryResult
	err    error
}

// HistoryPage lists recent sync attempts and per-source aggregates.
type HistoryPage struct {
	client  Client
	timeout time.Duration
	limit   int
	keys    KeyMap

	source  string
	loading bool
	err     error
	stats   string
	records table.Model

	width  int
	height int
}

// NewHistoryPage builds the history page. Records load each time it is shown.
func NewHistoryPage(client Client, opts Options) *HistoryPage {
	opts.applyDefaults()
	return &HistoryPage{
		client:  client,
		timeout: opts.RequestTimeout,
		limit:   opts.HistoryLimit,
		keys:    DefaultKeyMap(),
		records: table.New(
			table.WithColumns(historyColumns(80)),
			table.WithStyles(tableStyles()),
			table.WithFocused(true),
		),
	}
}

func (p *HistoryPage) ID() string { return historyPageID }

// Enter selects the source to show; any non-string selects every source.
func (p *HistoryPage) Enter(params any) {
	p.source, _ = params.(string)
}

func (p *HistoryPage) Init() tea.Cmd {
	p.loading = true
	client, source, limit, timeout := p.client, p.source, p.limit, p.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := client.History(ctx, source, limit)
		return historyLoadedMsg{result: res, err: err}
	}
}

func (p *HistoryPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
		p.records.SetColumns(historyColumns(p.width - 2))
		p.records.SetHeight(max(p.height-8, 3))
		return nil, nil

	case historyLoadedMsg:
		p.loading = false
		p.err = msg.err
		if msg.err == nil {
			p.stats = renderHistoryStats(msg.result)
			p.records.SetRows(historyRows(msg.result))
		}
		return nil, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, p.keys.ForceQuit), key.Matches(msg, p.keys.Quit):
			return tea.Quit, nil
		case key.Matches(msg, p.keys.Back):
			return nil, &PageNav{PageID: dashboardPageID}
		case key.Matches(msg, p.keys.Refresh):
			return p.Init(), nil
		}
		var cmd tea.Cmd
		p.records, cmd = p.records.Update(msg)
		return cmd, nil
	}
	return nil, nil
}

func (p *HistoryPage) View(width, height int) string {
	title := chartTitleStyle.Render("Sync history")
	if p.source != "" {
		title += helpStyle.Render("  " + p.source)
	}
	footer := helpStyle.Render("esc: back • r: reload • q: quit")

	var body string
	switch {
	case p.err != nil:
		body = errorTextStyle.Render(p.err.Error())
	case p.loading && len(p.records.Rows()) == 0:
		body = renderLoadingPlaceholder(time.Now(), width, max(height-3, 1))
	default:
		body = lipgloss.JoinVertical(lipgloss.Left, p.stats, "", p.records.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, body, footer)
}

func historyColumns(width int) []table.Column {
	w := max(width-12, 40)
	return []table.Column{
		{Title: "Finished", Width: w * 2 / 10},
		{Title: "Source", Width: w * 2 / 10},
		{Title: "Seq", Width: w / 10},
		{Title: "Outcome", Width: w * 15 / 100},
		{Title: "Duration", Width: w * 15 / 100},
		{Title: "Error", Width: w * 2 / 10},
	}
}

func historyRows(res socketrpc.HistoryResult) []table.Row {
	rows := make([]table.Row, 0, len(res.Records))
	for _, r := range res.Records {
		errText := r.Error
		if errText == "" {
			errText = "-"
		}
		rows = append(rows, table.Row{
			r.FinishedAt.Local().Format("15:04:05"),
			r.Source,
			fmt.Sprintf("%d", r.Seq),
			r.Outcome,
			r.Duration.Round(time.Millisecond).String(),
			errText,
		})
	}
	return rows
}

// renderHistoryStats summarises each source on one line.
func renderHistoryStats(res socketrpc.HistoryResult) string {
	if len(res.Stats) == 0 {
		return helpStyle.Render("No attempts recorded")
	}
	lines := make([]string, 0, len(res.Stats))
	for _, s := range res.Stats {
		last := "never"
		if !s.LastSuccessAt.IsZero() {
			last = s.LastSuccessAt.Local().Format("15:04:05")
		}
		lines = append(lines, fmt.Sprintf("%-10s %4d attempts  %3d failed  %3d discarded  avg %-8s last ok %s",
			s.Source, s.Attempts, s.Failures, s.Discarded, s.AvgDuration.Round(time.Millisecond), last))
	}
	return strings.Join(lines, "\n")
}
