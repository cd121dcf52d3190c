package adops

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/tinytelemetry/adpulse/internal/model"
)

const failureWindow = 24 * time.Hour

// ComputeKPIs derives the headline numbers. The success rate comes from the
// telemetry summary when the API supplied one.
func ComputeKPIs(creatives []model.Creative, events []model.TelemetryEvent, summary *model.Summary, now time.Time) model.KPIs {
	k := model.KPIs{
		TotalCreatives: len(creatives),
		SuccessRate:    "0%",
	}
	for _, c := range creatives {
		if c.Status == model.CreativeActive {
			k.ActiveCreatives++
		}
	}
	cutoff := now.Add(-failureWindow)
	for _, e := range events {
		if e.Failed() && !e.Timestamp.Before(cutoff) {
			k.FailuresLast24h++
		}
	}
	switch {
	case summary != nil && summary.SuccessRate != "":
		k.SuccessRate = summary.SuccessRate
	case len(events) > 0:
		k.SuccessRate = TelemetrySummary(events).SuccessRate
	}
	return k
}

// RecentFailures returns up to limit non-served events, newest first.
func RecentFailures(events []model.TelemetryEvent, limit int) []model.TelemetryEvent {
	if limit <= 0 {
		return nil
	}
	out := make([]model.TelemetryEvent, 0, limit)
	for _, e := range events {
		if e.Failed() {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b model.TelemetryEvent) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SlotHealthOf aggregates telemetry per slot, most failures first.
func SlotHealthOf(events []model.TelemetryEvent) []model.SlotHealth {
	type acc struct {
		total, served, failures int
		latency                 int
		latest                  model.TelemetryEvent
		reasons                 map[string]int
		devices                 model.DeviceBreakdown
	}
	bySlot := make(map[string]*acc)
	for _, e := range events {
		a, ok := bySlot[e.SlotID]
		if !ok {
			a = &acc{reasons: make(map[string]int), latest: e}
			bySlot[e.SlotID] = a
		}
		a.total++
		a.latency += e.Latency
		if e.Timestamp.After(a.latest.Timestamp) {
			a.latest = e
		}
		switch e.Device.Type {
		case "desktop":
			a.devices.Desktop++
		case "mobile":
			a.devices.Mobile++
		case "tablet":
			a.devices.Tablet++
		case "ctv":
			a.devices.CTV++
		}
		if !e.Failed() {
			a.served++
			continue
		}
		a.failures++
		if e.Reason != nil {
			a.reasons[*e.Reason]++
		}
	}

	out := make([]model.SlotHealth, 0, len(bySlot))
	for id, a := range bySlot {
		fill := float64(a.served) / float64(a.total) * 100
		out = append(out, model.SlotHealth{
			SlotID:                id,
			TotalEvents:           a.total,
			Served:                a.served,
			Failures:              a.failures,
			FillRate:              round(fill, 2),
			Health:                healthLabel(fill),
			LastSeenCreative:      a.latest.CreativeID,
			FrequentFailureReason: mostFrequent(a.reasons),
			LastEventTime:         a.latest.Timestamp,
			AvgLatency:            int(math.Round(float64(a.latency) / float64(a.total))),
			DeviceBreakdown:       a.devices,
			FailureReasons:        a.reasons,
		})
	}
	slices.SortFunc(out, func(a, b model.SlotHealth) int {
		if c := cmp.Compare(b.Failures, a.Failures); c != 0 {
			return c
		}
		return cmp.Compare(a.SlotID, b.SlotID)
	})
	return out
}

func healthLabel(fill float64) string {
	switch {
	case fill >= 90:
		return model.SlotHealthy
	case fill >= 70:
		return model.SlotWarning
	default:
		return model.SlotCritical
	}
}

// mostFrequent breaks ties alphabetically so the result is stable.
func mostFrequent(counts map[string]int) string {
	best, n := "", 0
	for reason, c := range counts {
		if c > n || (c == n && reason < best) {
			best, n = reason, c
		}
	}
	return best
}
