package adops

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/adpulse/internal/model"
)

// Options configures a Generator. Zero values select random seeding and
// the wall clock.
type Options struct {
	Seed uint64
	Now  func() time.Time
}

// Generator produces synthetic ad-server records. Every call draws fresh
// values; nothing is retained between calls. Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator.
func NewGenerator(opts Options) *Generator {
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: now,
	}
}

// Creatives returns n creatives ordered by impressions, highest first.
func (g *Generator) Creatives(n int) []model.Creative {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	out := make([]model.Creative, 0, max(n, 0))
	for range max(n, 0) {
		status := pick(g.rng, creativeStatuses)
		var reason *string
		if status == model.CreativeError || g.rng.Float64() < creativeFailureChance {
			r := pick(g.rng, creativeFailureReasons)
			reason = &r
		}
		out = append(out, model.Creative{
			ID:                g.id("CR"),
			Name:              fmt.Sprintf("%s %d", pick(g.rng, creativeNames), g.intn(1, 99)),
			Type:              pick(g.rng, creativeTypes),
			Status:            status,
			LastFailureReason: reason,
			LoadTime:          g.intn(50, 2500),
			Size:              pick(g.rng, sizes),
			Advertiser:        pick(g.rng, advertisers),
			CreatedAt:         g.pastTime(now, 720*time.Hour),
			Impressions:       g.intn(10000, 500000),
			Clicks:            g.intn(100, 15000),
		})
	}
	slices.SortStableFunc(out, func(a, b model.Creative) int {
		return b.Impressions - a.Impressions
	})
	return out
}

// Telemetry returns n serving events from the last 24 hours, newest first.
// Events share a small pool of creative and slot IDs so per-slot views
// have something to aggregate.
func (g *Generator) Telemetry(n int) []model.TelemetryEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	creativeIDs := make([]string, telemetryCreativePool)
	for i := range creativeIDs {
		creativeIDs[i] = g.id("CR")
	}
	slotIDs := make([]string, telemetrySlotPool)
	for i := range slotIDs {
		slotIDs[i] = g.id("SLOT")
	}

	out := make([]model.TelemetryEvent, 0, max(n, 0))
	for range max(n, 0) {
		status := model.EventServed
		if g.rng.Float64() >= servedProbability {
			status = pick(g.rng, failedStatuses)
		}
		var reason *string
		if reasons := telemetryReasons[status]; len(reasons) > 0 {
			r := pick(g.rng, reasons)
			reason = &r
		}
		c := pick(g.rng, countries)
		out = append(out, model.TelemetryEvent{
			CreativeID: pick(g.rng, creativeIDs),
			SlotID:     pick(g.rng, slotIDs),
			Status:     status,
			Reason:     reason,
			Timestamp:  g.pastTime(now, 24*time.Hour),
			Geo: model.Geo{
				Country: c.name,
				Region:  pick(g.rng, regions),
				City:    pick(g.rng, cities),
			},
			Device: model.Device{
				Type:    pick(g.rng, deviceTypes),
				OS:      pick(g.rng, operatingSystems),
				Browser: pick(g.rng, browsers),
			},
			Latency: g.intn(20, 800),
		})
	}
	slices.SortStableFunc(out, func(a, b model.TelemetryEvent) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

// GeoStats returns one row per tracked country ordered by impressions.
func (g *Generator) GeoStats() []model.GeoStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]model.GeoStats, 0, len(countries))
	for _, c := range countries {
		impressions := float64(g.intn(50000, 500000)) * float64(c.weight) / 10
		failures := int(math.Floor(impressions * g.float(0.02, 0.12)))
		fill := (impressions - float64(failures)) / impressions * 100
		out = append(out, model.GeoStats{
			Country:     c.name,
			CountryCode: c.code,
			Impressions: int(math.Floor(impressions)),
			Failures:    failures,
			FillRate:    round(fill, 2),
			AvgLatency:  g.intn(80, 350),
			Revenue:     g.float(1000, 25000),
		})
	}
	slices.SortStableFunc(out, func(a, b model.GeoStats) int {
		return b.Impressions - a.Impressions
	})
	return out
}

// Pacing returns n campaigns ordered by absolute variance, largest first.
func (g *Generator) Pacing(n int) []model.PacingData {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]model.PacingData, 0, max(n, 0))
	for range max(n, 0) {
		expected := g.float(30, 85)
		variance := g.float(-15, 15)
		delivery := math.Max(0, math.Min(100, expected+variance))

		status := model.PacingOnTrack
		switch {
		case variance > 5:
			status = model.PacingOverDelivery
		case variance < -5:
			status = model.PacingUnderDelivery
		}

		budget := g.intn(500, 10000)
		out = append(out, model.PacingData{
			CampaignID:      g.id("CMP"),
			CampaignName:    fmt.Sprintf("%s %d", pick(g.rng, campaignNames), g.intn(1, 50)),
			DeliveryPercent: round(delivery, 1),
			ExpectedPercent: round(expected, 1),
			Variance:        round(variance, 1),
			Status:          status,
			DailyBudget:     budget,
			Spent:           round(float64(budget)*delivery/100, 2),
			RemainingDays:   g.intn(1, 30),
		})
	}
	slices.SortStableFunc(out, func(a, b model.PacingData) int {
		av, bv := math.Abs(a.Variance), math.Abs(b.Variance)
		switch {
		case av > bv:
			return -1
		case av < bv:
			return 1
		}
		return 0
	})
	return out
}

// intn returns a uniform integer in [lo, hi].
func (g *Generator) intn(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

// float returns a uniform value in [lo, hi) rounded to two decimals.
func (g *Generator) float(lo, hi float64) float64 {
	return round(lo+g.rng.Float64()*(hi-lo), 2)
}

func (g *Generator) pastTime(now time.Time, window time.Duration) time.Time {
	offset := time.Duration(g.rng.Float64() * float64(window))
	return now.Add(-offset).UTC().Truncate(time.Millisecond)
}

func (g *Generator) id(prefix string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('-')
	for range idLength {
		b.WriteByte(idAlphabet[g.rng.IntN(len(idAlphabet))])
	}
	return b.String()
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
