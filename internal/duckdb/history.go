package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tinytelemetry/adpulse/internal/model"
)

// DefaultHistoryLimit caps RecentSyncs when the caller passes no limit.
const DefaultHistoryLimit = 50

// InsertSync appends one settled refresh attempt.
func (s *Store) InsertSync(rec model.SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.timeout(context.Background())
	defer cancel()

	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_history
		(source, seq, outcome, started_at, finished_at, duration_us, records, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Source,
		int64(rec.Seq),
		rec.Outcome,
		rec.StartedAt.UTC(),
		rec.FinishedAt.UTC(),
		rec.Duration.Microseconds(),
		rec.Records,
		sql.NullString{String: rec.Error, Valid: rec.Error != ""},
	)
	if err != nil {
		return fmt.Errorf("insert sync %s/%d: %w", rec.Source, rec.Seq, err)
	}
	return nil
}

// RecentSyncs returns the newest attempts first. An empty source selects
// every source.
func (s *Store) RecentSyncs(ctx context.Context, source string, limit int) ([]model.SyncRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	query := "SELECT source, seq, outcome, started_at, finished_at, duration_us, records, error FROM sync_history"
	args := []any{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY finished_at DESC, seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent syncs: %w", err)
	}
	defer rows.Close()

	out := make([]model.SyncRecord, 0, limit)
	for rows.Next() {
		var (
			rec model.SyncRecord
			seq int64
			us  int64
			msg sql.NullString
		)
		if err := rows.Scan(&rec.Source, &seq, &rec.Outcome, &rec.StartedAt, &rec.FinishedAt, &us, &rec.Records, &msg); err != nil {
			return nil, fmt.Errorf("scan sync row: %w", err)
		}
		rec.Seq = uint64(seq)
		rec.Duration = time.Duration(us) * time.Microsecond
		rec.Error = msg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SyncStats aggregates the recorded attempts of one source. Discarded
// attempts do not contribute to the average duration.
func (s *Store) SyncStats(ctx context.Context, source string) (model.SyncStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	stats := model.SyncStats{Source: source}
	var (
		avgUS  sql.NullFloat64
		lastOK sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `SELECT
			count(*),
			count(*) FILTER (WHERE outcome = ?),
			count(*) FILTER (WHERE outcome = ?),
			avg(duration_us) FILTER (WHERE outcome <> ?),
			max(finished_at) FILTER (WHERE outcome = ?)
		FROM sync_history
		WHERE source = ?`,
		model.OutcomeFailure, model.OutcomeDiscarded, model.OutcomeDiscarded, model.OutcomeSuccess, source,
	).Scan(&stats.Attempts, &stats.Failures, &stats.Discarded, &avgUS, &lastOK)
	if err != nil {
		return stats, fmt.Errorf("query sync stats %s: %w", source, err)
	}
	if avgUS.Valid {
		stats.AvgDuration = time.Duration(avgUS.Float64 * float64(time.Microsecond))
	}
	if lastOK.Valid {
		stats.LastSuccessAt = lastOK.Time
	}
	return stats, nil
}

// DeleteBefore removes attempts that finished before cutoff.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.timeout(context.Background())
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM sync_history WHERE finished_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete sync history: %w", err)
	}
	return res.RowsAffected()
}
