package adops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/adpulse/internal/model"
)

func strp(s string) *string { return &s }

func event(slot, status string, ago time.Duration, latency int, reason *string) model.TelemetryEvent {
	return model.TelemetryEvent{
		CreativeID: "CR-" + slot,
		SlotID:     slot,
		Status:     status,
		Reason:     reason,
		Timestamp:  fixedNow.Add(-ago),
		Device:     model.Device{Type: "mobile"},
		Latency:    latency,
	}
}

func TestTelemetrySummary(t *testing.T) {
	events := []model.TelemetryEvent{
		event("A", model.EventServed, time.Minute, 100, nil),
		event("A", model.EventServed, time.Minute, 100, nil),
		event("A", model.EventServed, time.Minute, 100, nil),
		event("B", model.EventTimeout, time.Minute, 100, strp("Render timeout")),
	}
	s := TelemetrySummary(events)
	assert.Equal(t, map[string]int{model.EventServed: 3, model.EventTimeout: 1}, s.StatusCounts)
	assert.Equal(t, "75.00%", s.SuccessRate)

	assert.Equal(t, "0.00%", TelemetrySummary(nil).SuccessRate)
}

func TestPacingSummary(t *testing.T) {
	rows := []model.PacingData{
		{Status: model.PacingOnTrack, DailyBudget: 1000, Spent: 500.25, Variance: 2.5},
		{Status: model.PacingOverDelivery, DailyBudget: 2000, Spent: 1500.5, Variance: 7.5},
	}
	s := PacingSummary(rows)
	require.NotNil(t, s.TotalBudget)
	require.NotNil(t, s.TotalSpent)
	assert.Equal(t, 3000, *s.TotalBudget)
	assert.InDelta(t, 2000.75, *s.TotalSpent, 1e-9)
	assert.Equal(t, "5.00", s.AvgVariance)
	assert.Equal(t, 1, s.StatusCounts[model.PacingOnTrack])

	empty := PacingSummary(nil)
	assert.Equal(t, "0.00", empty.AvgVariance)
	assert.Equal(t, 0, *empty.TotalBudget)
}

func TestGeoTotalsOf(t *testing.T) {
	totals := GeoTotalsOf([]model.GeoStats{
		{Impressions: 1000, Failures: 100, Revenue: 10.5},
		{Impressions: 3000, Failures: 100, Revenue: 20.25},
	})
	assert.Equal(t, 4000, totals.Impressions)
	assert.Equal(t, 200, totals.Failures)
	assert.InDelta(t, 30.75, totals.Revenue, 1e-9)
	assert.Equal(t, "95.00%", totals.OverallFillRate)

	assert.Equal(t, "0.00%", GeoTotalsOf(nil).OverallFillRate)
}

func TestComputeKPIs(t *testing.T) {
	creatives := []model.Creative{
		{Status: model.CreativeActive},
		{Status: model.CreativeActive},
		{Status: model.CreativePaused},
	}
	events := []model.TelemetryEvent{
		event("A", model.EventServed, time.Hour, 10, nil),
		event("A", model.EventFailed, time.Hour, 10, strp("Script error")),
		event("A", model.EventBlocked, 30*time.Hour, 10, strp("Geo restriction")),
	}

	k := ComputeKPIs(creatives, events, &model.Summary{SuccessRate: "66.67%"}, fixedNow)
	assert.Equal(t, model.KPIs{
		TotalCreatives:  3,
		ActiveCreatives: 2,
		FailuresLast24h: 1,
		SuccessRate:     "66.67%",
	}, k)

	k = ComputeKPIs(creatives, events, nil, fixedNow)
	assert.Equal(t, "33.33%", k.SuccessRate, "falls back to computing from events")

	k = ComputeKPIs(nil, nil, nil, fixedNow)
	assert.Equal(t, "0%", k.SuccessRate)
}

func TestRecentFailures(t *testing.T) {
	events := []model.TelemetryEvent{
		event("A", model.EventFailed, 3*time.Minute, 10, nil),
		event("A", model.EventServed, time.Minute, 10, nil),
		event("B", model.EventTimeout, 2*time.Minute, 10, nil),
		event("C", model.EventBlocked, 5*time.Minute, 10, nil),
	}
	got := RecentFailures(events, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].SlotID)
	assert.Equal(t, "A", got[1].SlotID)
	assert.Nil(t, RecentFailures(events, 0))
}

func TestSlotHealthOf(t *testing.T) {
	events := []model.TelemetryEvent{
		event("good", model.EventServed, time.Minute, 100, nil),
		event("bad", model.EventFailed, time.Minute, 200, strp("Script error")),
		event("bad", model.EventFailed, 2*time.Minute, 400, strp("Script error")),
		event("bad", model.EventTimeout, 3*time.Minute, 300, strp("Render timeout")),
		event("bad", model.EventServed, 4*time.Minute, 100, nil),
	}
	slots := SlotHealthOf(events)
	require.Len(t, slots, 2)

	bad := slots[0]
	assert.Equal(t, "bad", bad.SlotID)
	assert.Equal(t, 4, bad.TotalEvents)
	assert.Equal(t, 3, bad.Failures)
	assert.Equal(t, 1, bad.Served)
	assert.InDelta(t, 25.0, bad.FillRate, 1e-9)
	assert.Equal(t, model.SlotCritical, bad.Health)
	assert.Equal(t, "Script error", bad.FrequentFailureReason)
	assert.Equal(t, 250, bad.AvgLatency)
	assert.Equal(t, fixedNow.Add(-time.Minute), bad.LastEventTime)
	assert.Equal(t, 4, bad.DeviceBreakdown.Mobile)

	good := slots[1]
	assert.Equal(t, model.SlotHealthy, good.Health)
	assert.Empty(t, good.FrequentFailureReason)
}

func TestHealthLabel(t *testing.T) {
	assert.Equal(t, model.SlotHealthy, healthLabel(90))
	assert.Equal(t, model.SlotWarning, healthLabel(89.99))
	assert.Equal(t, model.SlotWarning, healthLabel(70))
	assert.Equal(t, model.SlotCritical, healthLabel(69.9))
}
