package model

import "time"

// Creative types.
const (
	CreativeImage         = "image"
	CreativeHTML5         = "html5"
	CreativeThirdPartyTag = "third_party_tag"
	CreativeVideo         = "video"
)

// Creative statuses.
const (
	CreativeActive        = "active"
	CreativePaused        = "paused"
	CreativeError         = "error"
	CreativePendingReview = "pending_review"
)

// Telemetry event statuses.
const (
	EventServed  = "served"
	EventFailed  = "failed"
	EventTimeout = "timeout"
	EventBlocked = "blocked"
)

// Pacing statuses.
const (
	PacingOnTrack       = "on_track"
	PacingUnderDelivery = "under_delivery"
	PacingOverDelivery  = "over_delivery"
)

// Creative is one ad creative as reported by the ad server.
type Creative struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Type              string    `json:"type"`
	Status            string    `json:"status"`
	LastFailureReason *string   `json:"lastFailureReason"`
	LoadTime          int       `json:"loadTime"` // milliseconds
	Size              string    `json:"size"`
	Advertiser        string    `json:"advertiser"`
	CreatedAt         time.Time `json:"createdAt"`
	Impressions       int       `json:"impressions"`
	Clicks            int       `json:"clicks"`
}

// Geo locates a telemetry event.
type Geo struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// Device describes the client that rendered a slot.
type Device struct {
	Type    string `json:"type"` // desktop, mobile, tablet, ctv
	OS      string `json:"os"`
	Browser string `json:"browser"`
}

// TelemetryEvent is a single ad-serving attempt for a slot.
type TelemetryEvent struct {
	CreativeID string    `json:"creativeId"`
	SlotID     string    `json:"slotId"`
	Status     string    `json:"status"`
	Reason     *string   `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
	Geo        Geo       `json:"geo"`
	Device     Device    `json:"device"`
	Latency    int       `json:"latency"` // milliseconds
}

// Failed reports whether the event did not serve.
func (e TelemetryEvent) Failed() bool {
	return e.Status != EventServed
}

// GeoStats aggregates delivery for one country.
type GeoStats struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Impressions int     `json:"impressions"`
	Failures    int     `json:"failures"`
	FillRate    float64 `json:"fillRate"`
	AvgLatency  int     `json:"avgLatency"`
	Revenue     float64 `json:"revenue"`
}

// PacingData compares actual and expected delivery for a campaign.
type PacingData struct {
	CampaignID      string  `json:"campaignId"`
	CampaignName    string  `json:"campaignName"`
	DeliveryPercent float64 `json:"deliveryPercent"`
	ExpectedPercent float64 `json:"expectedPercent"`
	Variance        float64 `json:"variance"`
	Status          string  `json:"status"`
	DailyBudget     int     `json:"dailyBudget"`
	Spent           float64 `json:"spent"`
	RemainingDays   int     `json:"remainingDays"`
}
