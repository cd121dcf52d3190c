package model

import "context"

// Controller drives the sync agent. An empty source name addresses every source.
type Controller interface {
	Refresh(source string) error
	Pause(source string) error
	Resume(source string) error
}

// DashboardReader provides the aggregated view and per-source status.
type DashboardReader interface {
	Dashboard() Dashboard
	Sources() []SourceStatus
}

// HistoryWriter appends settled refresh attempts.
type HistoryWriter interface {
	InsertSync(rec SyncRecord) error
}

// HistoryReader queries recorded refresh attempts.
type HistoryReader interface {
	RecentSyncs(ctx context.Context, source string, limit int) ([]SyncRecord, error)
	SyncStats(ctx context.Context, source string) (SyncStats, error)
}

// AgentAPI is the unified contract for the socket RPC surface.
type AgentAPI interface {
	Controller
	DashboardReader
}
