package tui

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/adpulse/internal/model"
)

const (
	geoBarWidth = 3
	geoBarGap   = 1
)

// topGeos returns at most n countries ordered by impressions.
func topGeos(geos []model.GeoStats, n int) []model.GeoStats {
	out := slices.Clone(geos)
	slices.SortStableFunc(out, func(a, b model.GeoStats) int {
		return cmp.Compare(b.Impressions, a.Impressions)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// renderGeoChart draws impressions per country, most impressions first.
// Bars whose fill rate is below 90% are drawn in amber.
func renderGeoChart(geos []model.GeoStats, width, height int) string {
	style := sectionStyle.Width(width - 2).Height(height - 2)
	title := chartTitleStyle.Render("Impressions by country")

	if len(geos) == 0 {
		return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, helpStyle.Render("No data available")))
	}

	chartWidth := max(width-4, 10)
	chartHeight := max(height-4, 3)
	maxBars := max(chartWidth/(geoBarWidth+geoBarGap), 1)
	rows := topGeos(geos, maxBars)

	bc := barchart.New(chartWidth, chartHeight,
		barchart.WithBarGap(geoBarGap),
		barchart.WithBarWidth(geoBarWidth),
	)

	healthy := lipgloss.NewStyle().Foreground(ColorBlue).Background(ColorBlue)
	degraded := lipgloss.NewStyle().Foreground(ColorAmber).Background(ColorAmber)

	total := 0
	for _, g := range rows {
		barStyle := healthy
		if g.FillRate < 90 {
			barStyle = degraded
		}
		bc.Push(barchart.BarData{
			Label: g.CountryCode,
			Values: []barchart.BarValue{
				{Name: g.CountryCode, Value: float64(g.Impressions), Style: barStyle},
			},
		})
		total += g.Impressions
	}

	bc.Draw()
	header := title + helpStyle.Render(fmt.Sprintf("  top %d • %d impr", len(rows), total))
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, header, bc.View()))
}
