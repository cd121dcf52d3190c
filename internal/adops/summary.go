package adops

import (
	"fmt"

	"github.com/tinytelemetry/adpulse/internal/model"
)

// TelemetrySummary counts events per status and the served share.
func TelemetrySummary(events []model.TelemetryEvent) *model.Summary {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Status]++
	}
	return &model.Summary{
		StatusCounts: counts,
		SuccessRate:  percent(counts[model.EventServed], len(events)),
	}
}

// PacingSummary counts campaigns per status and totals the budget.
func PacingSummary(rows []model.PacingData) *model.Summary {
	counts := make(map[string]int)
	budget := 0
	spent := 0.0
	variance := 0.0
	for _, r := range rows {
		counts[r.Status]++
		budget += r.DailyBudget
		spent += r.Spent
		variance += r.Variance
	}
	avg := 0.0
	if len(rows) > 0 {
		avg = variance / float64(len(rows))
	}
	spent = round(spent, 2)
	return &model.Summary{
		StatusCounts: counts,
		TotalBudget:  &budget,
		TotalSpent:   &spent,
		AvgVariance:  fmt.Sprintf("%.2f", avg),
	}
}

// GeoTotalsOf sums a geo breakdown.
func GeoTotalsOf(rows []model.GeoStats) *model.GeoTotals {
	t := &model.GeoTotals{}
	for _, r := range rows {
		t.Impressions += r.Impressions
		t.Failures += r.Failures
		t.Revenue += r.Revenue
	}
	t.Revenue = round(t.Revenue, 2)
	t.OverallFillRate = percent(t.Impressions-t.Failures, t.Impressions)
	return t
}

// percent formats num/den as "xx.xx%". An empty denominator yields "0.00%".
func percent(num, den int) string {
	if den <= 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(num)/float64(den)*100)
}
