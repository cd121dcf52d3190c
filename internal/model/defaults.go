package model

import "time"

// Shared defaults used by both the server and CLI binaries.
const (
	DefaultRefreshInterval = 5 * time.Second
	DefaultGlobalRefresh   = 2 * time.Minute
	DefaultUpdateInterval  = time.Second
	DefaultAPIPort         = 3000

	DefaultCreativesCount = 20
	DefaultTelemetryCount = 100
	DefaultPacingCount    = 10
	DefaultMaxCount       = 5000
)

// Source names used for coordinators, metrics labels and RPC parameters.
const (
	SourceCreatives = "creatives"
	SourceTelemetry = "telemetry"
	SourceGeos      = "geos"
	SourcePacing    = "pacing"
)

// Sources lists the analytics sources in display order.
var Sources = []string{SourceCreatives, SourceTelemetry, SourceGeos, SourcePacing}
