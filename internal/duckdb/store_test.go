package duckdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/adpulse/internal/model"
)

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("", 0)
	require.NoError(t, err, "NewStore(\"\")")
	t.Cleanup(func() { store.Close() })
	return store
}

func record(source string, seq uint64, outcome string, finished time.Time, d time.Duration) model.SyncRecord {
	rec := model.SyncRecord{
		Source:     source,
		Seq:        seq,
		Outcome:    outcome,
		StartedAt:  finished.Add(-d),
		FinishedAt: finished,
		Duration:   d,
	}
	switch outcome {
	case model.OutcomeSuccess:
		rec.Records = 20
	case model.OutcomeFailure:
		rec.Error = "network error"
	}
	return rec
}

func insertRecords(t *testing.T, store *Store, recs ...model.SyncRecord) {
	t.Helper()
	for _, rec := range recs {
		require.NoError(t, store.InsertSync(rec), "InsertSync(%s/%d)", rec.Source, rec.Seq)
	}
}

func TestNewStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.duckdb")
	store, err := NewStore(path, time.Second)
	require.NoError(t, err)
	insertRecords(t, store, record("geos", 1, model.OutcomeSuccess, base, time.Second))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path, time.Second)
	require.NoError(t, err, "reopen")
	defer reopened.Close()
	assert.Equal(t, path, reopened.Path())
	recs, err := reopened.RecentSyncs(context.Background(), "geos", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "rows survive a reopen")
}

func TestNewStore_DefaultTimeout(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, DefaultQueryTimeout, store.QueryTimeout)
}

func TestInsertAndRecentSyncs(t *testing.T) {
	store := newTestStore(t)
	insertRecords(t, store,
		record("creatives", 1, model.OutcomeSuccess, base, 120*time.Millisecond),
		record("creatives", 2, model.OutcomeFailure, base.Add(5*time.Second), 80*time.Millisecond),
		record("geos", 1, model.OutcomeSuccess, base.Add(6*time.Second), 40*time.Millisecond),
		record("creatives", 3, model.OutcomeDiscarded, base.Add(10*time.Second), 3*time.Second),
	)

	recs, err := store.RecentSyncs(context.Background(), "creatives", 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, want := range []uint64{3, 2, 1} {
		assert.Equal(t, want, recs[i].Seq, "recs[%d] newest first", i)
	}

	failed := recs[1]
	assert.Equal(t, model.OutcomeFailure, failed.Outcome)
	assert.Equal(t, "network error", failed.Error)
	assert.Equal(t, 80*time.Millisecond, failed.Duration)
	assert.True(t, failed.FinishedAt.Equal(base.Add(5*time.Second)), "finishedAt = %v", failed.FinishedAt)
	assert.Equal(t, 20, recs[2].Records)
	assert.Empty(t, recs[2].Error)
}

func TestRecentSyncs_AllSourcesAndLimit(t *testing.T) {
	store := newTestStore(t)
	insertRecords(t, store,
		record("creatives", 1, model.OutcomeSuccess, base, time.Millisecond),
		record("geos", 1, model.OutcomeSuccess, base.Add(time.Second), time.Millisecond),
		record("pacing", 1, model.OutcomeSuccess, base.Add(2*time.Second), time.Millisecond),
	)

	all, err := store.RecentSyncs(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := store.RecentSyncs(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "pacing", limited[0].Source)

	none, err := store.RecentSyncs(context.Background(), "telemetry", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecentSyncs_DefaultLimit(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < DefaultHistoryLimit+5; i++ {
		insertRecords(t, store, record("geos", uint64(i+1), model.OutcomeSuccess, base.Add(time.Duration(i)*time.Second), time.Millisecond))
	}

	recs, err := store.RecentSyncs(context.Background(), "geos", 0)
	require.NoError(t, err)
	assert.Len(t, recs, DefaultHistoryLimit)
}

func TestSyncStats(t *testing.T) {
	store := newTestStore(t)
	insertRecords(t, store,
		record("pacing", 1, model.OutcomeSuccess, base, 100*time.Millisecond),
		record("pacing", 2, model.OutcomeFailure, base.Add(5*time.Second), 300*time.Millisecond),
		record("pacing", 3, model.OutcomeSuccess, base.Add(10*time.Second), 200*time.Millisecond),
		record("pacing", 4, model.OutcomeDiscarded, base.Add(11*time.Second), 9*time.Second),
		record("geos", 1, model.OutcomeSuccess, base.Add(20*time.Second), time.Second),
	)

	stats, err := store.SyncStats(context.Background(), "pacing")
	require.NoError(t, err)
	assert.Equal(t, "pacing", stats.Source)
	assert.EqualValues(t, 4, stats.Attempts)
	assert.EqualValues(t, 1, stats.Failures)
	assert.EqualValues(t, 1, stats.Discarded)
	assert.Equal(t, 200*time.Millisecond, stats.AvgDuration, "discarded attempts are excluded")
	assert.True(t, stats.LastSuccessAt.Equal(base.Add(10*time.Second)), "LastSuccessAt = %v", stats.LastSuccessAt)
}

func TestSyncStats_Empty(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.SyncStats(context.Background(), "geos")
	require.NoError(t, err)
	assert.Zero(t, stats.Attempts)
	assert.Zero(t, stats.AvgDuration)
	assert.True(t, stats.LastSuccessAt.IsZero())
}

func TestDeleteBefore(t *testing.T) {
	store := newTestStore(t)
	insertRecords(t, store,
		record("geos", 1, model.OutcomeSuccess, base.Add(-2*time.Hour), time.Millisecond),
		record("geos", 2, model.OutcomeSuccess, base.Add(-90*time.Minute), time.Millisecond),
		record("geos", 3, model.OutcomeSuccess, base, time.Millisecond),
	)

	n, err := store.DeleteBefore(base.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	recs, err := store.RecentSyncs(context.Background(), "geos", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(3), recs[0].Seq)
}

func TestRecentSyncs_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.RecentSyncs(ctx, "", 10)
	assert.Error(t, err)
}
