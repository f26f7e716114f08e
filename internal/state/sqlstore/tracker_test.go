package sqlstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/schemaflow/internal/state"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tracker := NewTracker(newTestDB(t), SQLite, "")
	require.NoError(t, tracker.Initialize(context.Background()))
	return tracker
}

func TestInitializeIsIdempotent(t *testing.T) {
	tracker := newTestTracker(t)
	assert.NoError(t, tracker.Initialize(context.Background()))
}

func TestLastStatusDefaultsToNA(t *testing.T) {
	tracker := newTestTracker(t)
	status, err := tracker.LastStatus(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, state.StatusNA, status)
}

func TestLastStatusReturnsNewestRow(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)

	require.NoError(t, tracker.Record(ctx, &state.Record{
		ID: "m1", Name: "orders", Module: "core", Path: "migration/core/0001.sql",
		Status: state.StatusFailed, Log: "boom", RunID: "run-1",
	}))
	require.NoError(t, tracker.Record(ctx, &state.Record{
		ID: "m1", Name: "orders", Module: "core", Path: "migration/core/0001.sql",
		Status: state.StatusSuccessful, Checksum: "abc", RunID: "run-2",
	}))

	status, err := tracker.LastStatus(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusSuccessful, status)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)
	appliedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := []*state.Record{
		{ID: "d1", Name: "orders", Module: "core", Path: "schema/core/orders.sql", Status: state.StatusSuccessful, RunID: "r1", AppliedAt: appliedAt, DurationMs: 12, Checksum: "c1", ExecutedBy: "cli"},
		{ID: "m1", Name: "orders", Module: "core", Path: "migration/core/0001.sql", Status: state.StatusApplied, RunID: "r1", AppliedAt: appliedAt},
		{ID: "d2", Name: "invoices", Module: "billing", Path: "schema/billing/invoices.sql", Status: state.StatusFailed, RunID: "r2", AppliedAt: appliedAt},
	}
	for _, r := range rows {
		require.NoError(t, tracker.Record(ctx, r))
	}

	all, err := tracker.History(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "d2", all[0].ID, "newest first")
	assert.Equal(t, "d1", all[2].ID)
	assert.Equal(t, int64(12), all[2].DurationMs)
	assert.Equal(t, "cli", all[2].ExecutedBy)
	assert.True(t, appliedAt.Equal(all[2].AppliedAt))

	core, err := tracker.History(ctx, &state.Filters{Module: "core"})
	require.NoError(t, err)
	assert.Len(t, core, 2)

	failed, err := tracker.History(ctx, &state.Filters{Status: state.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "invoices", failed[0].Name)

	limited, err := tracker.History(ctx, &state.Filters{RunID: "r1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "m1", limited[0].ID)
}

func TestCustomTableName(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tracker := NewTracker(db, SQLite, "db_history")
	require.NoError(t, tracker.Initialize(ctx))
	require.NoError(t, tracker.Record(ctx, &state.Record{ID: "x", Name: "n", Module: "m", Path: "p", Status: state.StatusSuccessful}))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM db_history`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("mysql")
	require.NoError(t, err)
	assert.Equal(t, "`schema_registry`", d.Quote("schema_registry"))

	_, err = DialectFor("postgresql")
	assert.Error(t, err)
}
