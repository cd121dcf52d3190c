package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/adpulse/internal/model"
	"github.com/tinytelemetry/adpulse/internal/refresh"
)

// renderBranding renders "AdPulse" with a blue to green gradient
func renderBranding() string {
	colors := []string{
		"#2F80ED", // A
		"#2B95DA", // d
		"#27AAC7", // P
		"#23BFB4", // u
		"#1FD4A1", // l
		"#1BE98E", // s
		"#17FE7B", // e
	}

	var b strings.Builder
	for i, char := range "AdPulse" {
		style := lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(lipgloss.Color(colors[i])).Bold(true)
		b.WriteString(style.Render(string(char)))
	}
	return b.String()
}

// formatAgo renders a staleness in seconds as a short duration.
func formatAgo(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		return fmt.Sprintf("%dh", seconds/3600)
	}
}

// sourceStatusText describes one source: name, spinner while loading,
// staleness, a paused marker and the last error.
func sourceStatusText(s model.SourceStatus, frame string) string {
	parts := []string{s.Name}
	if s.Loading {
		parts = append(parts, frame)
	}
	if s.HasData {
		parts = append(parts, "synced "+formatAgo(s.SecondsAgo)+" ago")
	} else if !s.Loading {
		parts = append(parts, "no data")
	}
	if s.Paused {
		parts = append(parts, "[paused]")
	}
	if s.Error != "" {
		parts = append(parts, "! "+s.Error)
	}
	return strings.Join(parts, " ")
}

// viewStatusText describes the dashboard's own poll of the agent.
func viewStatusText(st refresh.State[model.Dashboard], frame string) string {
	var b strings.Builder
	switch {
	case st.HasData:
		b.WriteString("view synced " + formatAgo(st.SecondsAgo) + " ago")
	case st.Loading:
		b.WriteString("connecting")
	default:
		b.WriteString("view not synced")
	}
	if st.Loading {
		b.WriteString(" " + frame)
	}
	if st.Err != nil {
		b.WriteString(" ! " + st.Err.Error())
	}
	return b.String()
}

func (m *DashboardModel) renderHeader(st refresh.State[model.Dashboard], now time.Time) string {
	frame := spinnerFrame(now)
	bar := lipgloss.NewStyle().Background(ColorNavy).Foreground(ColorWhite).Width(m.width)

	title := renderBranding() + lipgloss.NewStyle().Background(ColorNavy).Foreground(ColorWhite).Render("  ad-ops sync")
	line1 := bar.Render(title)

	sources := st.Data.Sources
	if len(sources) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, line1, helpStyle.Render("waiting for sources"))
	}

	maxEach := max(m.width/len(sources)-2, 12)
	segments := make([]string, 0, len(sources))
	for _, s := range sources {
		text := truncate(sourceStatusText(s, frame), maxEach)
		style := okTextStyle
		switch {
		case s.Error != "":
			style = errorTextStyle
		case s.Paused:
			style = lipgloss.NewStyle().Foreground(ColorAmber)
		case !s.HasData:
			style = helpStyle
		}
		segments = append(segments, style.Render(text))
	}
	line2 := strings.Join(segments, "  ")
	if m.sourcesPaused() {
		line2 = pausedBadgeStyle.Render("PAUSED") + " " + line2
	}
	return lipgloss.JoinVertical(lipgloss.Left, line1, lipgloss.NewStyle().MaxWidth(m.width).Render(line2))
}

// renderKPICards renders the headline numbers as a row of bordered cards.
func renderKPICards(d model.Dashboard, width int) string {
	type card struct{ label, value string }
	cards := []card{
		{"Active creatives", fmt.Sprintf("%d/%d", d.KPIs.ActiveCreatives, d.KPIs.TotalCreatives)},
		{"Failures 24h", fmt.Sprintf("%d", d.KPIs.FailuresLast24h)},
		{"Success rate", d.KPIs.SuccessRate},
	}
	if d.GeoTotals != nil {
		cards = append(cards,
			card{"Impressions", fmt.Sprintf("%d", d.GeoTotals.Impressions)},
			card{"Fill rate", d.GeoTotals.OverallFillRate},
		)
	}
	if s := d.PacingSummary; s != nil && s.TotalBudget != nil && s.TotalSpent != nil {
		cards = append(cards, card{"Spend", fmt.Sprintf("$%.0f/$%d", *s.TotalSpent, *s.TotalBudget)})
	}

	cardWidth := max(width/len(cards)-2, 10)
	rendered := make([]string, len(cards))
	for i, c := range cards {
		body := lipgloss.JoinVertical(lipgloss.Left,
			kpiValueStyle.Render(c.value),
			kpiLabelStyle.Render(c.label),
		)
		rendered[i] = sectionStyle.Width(cardWidth).Render(body)
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
}

// renderStatusLine renders the view status and key help at the bottom of the screen
func (m *DashboardModel) renderStatusLine(st refresh.State[model.Dashboard], now time.Time) string {
	baseStyle := lipgloss.NewStyle().
		Background(ColorNavy).
		Foreground(ColorWhite)

	left := viewStatusText(st, spinnerFrame(now))
	if m.actionErr != nil {
		left += fmt.Sprintf(" • %s failed: %v", m.lastAction, m.actionErr)
	} else if m.lastAction != "" {
		left += " • " + m.lastAction + " sent"
	}

	if m.help.ShowAll {
		line := baseStyle.Width(m.width).Render(left)
		return lipgloss.JoinVertical(lipgloss.Left, line, m.help.View(m.keys))
	}

	right := m.help.View(m.keys)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return baseStyle.Width(m.width).Render(truncate(left, m.width))
	}
	return baseStyle.Width(m.width).Render(" " + left + strings.Repeat(" ", gap) + right)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
