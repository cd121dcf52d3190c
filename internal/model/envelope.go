package model

import "time"

// Envelope is the JSON shape returned by every analytics endpoint.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Meta    Meta   `json:"meta"`
	Error   string `json:"error,omitempty"`
}

// Meta carries record counts and per-endpoint aggregates.
type Meta struct {
	Total     int        `json:"total"`
	Timestamp time.Time  `json:"timestamp"`
	Summary   *Summary   `json:"summary,omitempty"`
	Totals    *GeoTotals `json:"totals,omitempty"`
}

// Summary holds the aggregates attached to telemetry and pacing responses.
// Fields that do not apply to an endpoint are omitted.
type Summary struct {
	StatusCounts map[string]int `json:"statusCounts"`

	// telemetry
	SuccessRate string `json:"successRate,omitempty"`

	// pacing
	TotalBudget *int     `json:"totalBudget,omitempty"`
	TotalSpent  *float64 `json:"totalSpent,omitempty"`
	AvgVariance string   `json:"avgVariance,omitempty"`
}

// GeoTotals sums the geo breakdown.
type GeoTotals struct {
	Impressions     int     `json:"impressions"`
	Failures        int     `json:"failures"`
	Revenue         float64 `json:"revenue"`
	OverallFillRate string  `json:"overallFillRate"`
}

// Health is the /api/health payload.
type Health struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

// Payload aliases for the four analytics endpoints.
type (
	CreativesResponse = Envelope[[]Creative]
	TelemetryResponse = Envelope[[]TelemetryEvent]
	GeosResponse      = Envelope[[]GeoStats]
	PacingResponse    = Envelope[[]PacingData]
)
