package duckdb

import "github.com/tinytelemetry/adpulse/internal/model"

var (
	_ model.HistoryWriter = (*Store)(nil)
	_ model.HistoryReader = (*Store)(nil)
)
