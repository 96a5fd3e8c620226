package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-marczewski/huntdedup/internal/config"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(&config.Config{DBPath: filepath.Join(t.TempDir(), "store", "huntdedup.sqlite3")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsSetUserVersion(t *testing.T) {
	db := newTestDB(t)

	var version int
	require.NoError(t, db.GetConnection().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	for _, table := range []string{"generation_attempts", "similarity_cache"} {
		var name string
		err := db.GetConnection().QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huntdedup.sqlite3")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, NewAttemptStore(db).SaveAttempts(context.Background(), []AttemptRecord{{ID: "a1", SessionID: "s1"}}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	recent, err := NewAttemptStore(db).ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestAttemptStoreRoundTrip(t *testing.T) {
	store := NewAttemptStore(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []AttemptRecord{
		{ID: "a1", SessionID: "s1", Index: 0, Hypothesis: "Adversaries use PowerShell", Tactic: "Execution",
			Tags: []string{"powershell"}, Score: 0.625, TTPScore: 0.625, RejectionReason: "TTP overlap", CreatedAt: base},
		{ID: "a2", SessionID: "s1", Index: 1, Hypothesis: "Attackers use scheduled tasks", Tactic: "Persistence",
			Score: 0.1, Approved: true, CreatedAt: base.Add(time.Second)},
		{ID: "b1", SessionID: "s2", Index: 0, Error: "connection refused", CreatedAt: base.Add(2 * time.Second)},
	}
	require.NoError(t, store.SaveAttempts(ctx, records))

	session, err := store.ListSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, session, 2)
	assert.Equal(t, "a1", session[0].ID)
	assert.Equal(t, []string{"powershell"}, session[0].Tags)
	assert.Equal(t, 0.625, session[0].TTPScore)
	assert.False(t, session[0].Approved)
	assert.True(t, session[1].Approved)
	assert.Equal(t, []string{}, session[1].Tags)
	assert.True(t, base.Equal(session[0].CreatedAt))

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b1", recent[0].ID)
	assert.Equal(t, "a2", recent[1].ID)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalAttempts)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 2, stats.Sessions)
	assert.InDelta(t, 0.3625, stats.AvgScore, 1e-9)
	assert.Equal(t, 0.5, stats.ApprovalRate)
}

func TestAttemptStorePrune(t *testing.T) {
	store := NewAttemptStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveAttempts(ctx, []AttemptRecord{
		{ID: "old", SessionID: "s1", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "older", SessionID: "s1", CreatedAt: now.Add(-72*time.Hour + 500*time.Millisecond)},
		{ID: "new", SessionID: "s2", CreatedAt: now},
	}))

	removed, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	recent, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].ID)
}

func TestAttemptStoreEmpty(t *testing.T) {
	store := NewAttemptStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.SaveAttempts(ctx, nil))
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, HistoryStats{}, stats)

	session, err := store.ListSession(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, session)
}
