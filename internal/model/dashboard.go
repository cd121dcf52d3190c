package model

import "time"

// KPIs are the headline numbers on the dashboard.
type KPIs struct {
	TotalCreatives  int    `json:"totalCreatives"`
	ActiveCreatives int    `json:"activeCreatives"`
	FailuresLast24h int    `json:"failuresLast24h"`
	SuccessRate     string `json:"successRate"`
}

// DeviceBreakdown counts telemetry events per device type.
type DeviceBreakdown struct {
	Desktop int `json:"desktop"`
	Mobile  int `json:"mobile"`
	Tablet  int `json:"tablet"`
	CTV     int `json:"ctv"`
}

// Slot health labels.
const (
	SlotHealthy  = "healthy"
	SlotWarning  = "warning"
	SlotCritical = "critical"
)

// SlotHealth is the per-slot view derived from telemetry.
type SlotHealth struct {
	SlotID                string          `json:"slotId"`
	TotalEvents           int             `json:"totalEvents"`
	Served                int             `json:"served"`
	Failures              int             `json:"failures"`
	FillRate              float64         `json:"fillRate"`
	Health                string          `json:"health"`
	LastSeenCreative      string          `json:"lastSeenCreative"`
	FrequentFailureReason string          `json:"frequentFailureReason,omitempty"`
	LastEventTime         time.Time       `json:"lastEventTime"`
	AvgLatency            int             `json:"avgLatency"`
	DeviceBreakdown       DeviceBreakdown `json:"deviceBreakdown"`
	FailureReasons        map[string]int  `json:"failureReasons"`
}

// SourceStatus is the observable state of one refresh coordinator.
type SourceStatus struct {
	Name       string    `json:"name"`
	HasData    bool      `json:"hasData"`
	Loading    bool      `json:"loading"`
	InFlight   int       `json:"inFlight"`
	Paused     bool      `json:"paused"`
	LastSync   time.Time `json:"lastSync"`
	SecondsAgo int       `json:"secondsAgo"`
	Error      string    `json:"error,omitempty"`
	Started    uint64    `json:"started"`
	Applied    uint64    `json:"applied"`
}

// Dashboard is the full view served to terminal clients.
type Dashboard struct {
	GeneratedAt    time.Time        `json:"generatedAt"`
	KPIs           KPIs             `json:"kpis"`
	TopCreatives   []Creative       `json:"topCreatives"`
	RecentFailures []TelemetryEvent `json:"recentFailures"`
	Slots          []SlotHealth     `json:"slots"`
	Geos           []GeoStats       `json:"geos"`
	GeoTotals      *GeoTotals       `json:"geoTotals,omitempty"`
	Pacing         []PacingData     `json:"pacing"`
	PacingSummary  *Summary         `json:"pacingSummary,omitempty"`
	Sources        []SourceStatus   `json:"sources"`
	LastBroadcast  time.Time        `json:"lastBroadcast"`
}

// Sync outcomes recorded in history.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDiscarded = "discarded"
)

// SyncRecord is one settled refresh attempt.
type SyncRecord struct {
	Source     string        `json:"source"`
	Seq        uint64        `json:"seq"`
	Outcome    string        `json:"outcome"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Duration   time.Duration `json:"duration"`
	Records    int           `json:"records"`
	Error      string        `json:"error,omitempty"`
}

// SyncStats aggregates history for one source.
type SyncStats struct {
	Source        string        `json:"source"`
	Attempts      int64         `json:"attempts"`
	Failures      int64         `json:"failures"`
	Discarded     int64         `json:"discarded"`
	AvgDuration   time.Duration `json:"avgDuration"`
	LastSuccessAt time.Time     `json:"lastSuccessAt"`
}
