package persistence

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/clipwright/internal/engine"
)

func tempDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func outcomes(reward float64) []engine.Outcome {
	return []engine.Outcome{
		{Agent: "production", State: "p0", Action: "btnMakePaperclip", Success: true, NextState: "p1", Reward: reward, Exploration: 0.9},
		{Agent: "resource", State: "r0", Action: "btnBuyWire", Success: false, NextState: "r0", Reward: -10, Exploration: 0.9},
		{Agent: "price", State: "c0", Action: "wait", Success: true, NextState: "c0", Reward: 0.5, Exploration: 0.9},
	}
}

func TestRecordIterationAndRecentTicks(t *testing.T) {
	db := tempDB(t)
	require.NotEmpty(t, db.RunID())

	require.NoError(t, db.RecordIteration(1, outcomes(1)))
	require.NoError(t, db.RecordIteration(2, outcomes(2)))
	require.NoError(t, db.RecordIteration(3, nil))

	all, err := db.RecentTicks("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 6)
	assert.Equal(t, uint64(2), all[0].Iteration, "newest first")

	prod, err := db.RecentTicks("production", 1)
	require.NoError(t, err)
	require.Len(t, prod, 1)
	assert.Equal(t, 2.0, prod[0].Reward)
	assert.Equal(t, "p1", prod[0].NextState)
	assert.True(t, prod[0].Success)
	assert.Equal(t, db.RunID(), prod[0].RunID)

	res, err := db.RecentTicks("resource", 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.False(t, res[0].Success)

	none, err := db.RecentTicks("nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	counts, err := db.CountTicks()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"production": 2, "resource": 2, "price": 2}, counts)
}

func TestRecordCheckpointAdvancesLastIteration(t *testing.T) {
	db := tempDB(t)

	last, err := db.LastIteration()
	require.NoError(t, err)
	assert.Zero(t, last, "fresh database")

	require.NoError(t, db.RecordCheckpoint(100, nil))
	require.NoError(t, db.RecordCheckpoint(200, errors.New("disk full")))

	last, err = db.LastIteration()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), last, "failed saves do not advance")

	cps, err := db.Checkpoints(10)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.False(t, cps[0].OK)
	assert.Equal(t, "disk full", cps[0].Error)
	assert.True(t, cps[1].OK)
}

func TestReopenKeepsMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.RecordCheckpoint(42, nil))
	first := db.RunID()
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	last, err := db.LastIteration()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), last)
	assert.NotEqual(t, first, db.RunID(), "each open starts a new run")
}

func TestSaveAndGetMeta(t *testing.T) {
	db := tempDB(t)
	require.NoError(t, db.SaveMeta("k", "v1"))
	require.NoError(t, db.SaveMeta("k", "v2"))
	v, err := db.GetMeta("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}
