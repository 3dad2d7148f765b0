package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := &Record{
		JobID:        "job-1",
		FilePath:     "/gcodes/benchy.gcode",
		RecoveryPath: "/gcodes/reCover_benchy.gcode",
		BackupPath:   "/gcodes/benchy.gcode.backup",
		Offset:       1 << 33,
		FeedRate:     1500.5,
		Outcome:      OutcomeWritten,
	}
	require.NoError(t, store.Add(ctx, rec))
	assert.NotEmpty(t, rec.ID, "Add should assign an ID")
	assert.False(t, rec.CreatedAt.IsZero(), "Add should assign CreatedAt")

	got, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, "job-1", got[0].JobID)
	assert.Equal(t, rec.FilePath, got[0].FilePath)
	assert.Equal(t, rec.RecoveryPath, got[0].RecoveryPath)
	assert.Equal(t, rec.BackupPath, got[0].BackupPath)
	assert.Equal(t, uint64(1<<33), got[0].Offset)
	assert.Equal(t, 1500.5, got[0].FeedRate)
	assert.Equal(t, OutcomeWritten, got[0].Outcome)
	assert.WithinDuration(t, rec.CreatedAt, got[0].CreatedAt, time.Second)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outcomes := []Outcome{OutcomeWritten, OutcomeFailed, OutcomeNothingToResume}
	for i, o := range outcomes {
		rec := &Record{
			FilePath:  "/gcodes/part.gcode",
			Outcome:   o,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if o == OutcomeFailed {
			rec.Error = "read original: permission denied"
		}
		require.NoError(t, store.Add(ctx, rec))
	}

	got, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, OutcomeNothingToResume, got[0].Outcome)
	assert.Equal(t, OutcomeFailed, got[1].Outcome)
	assert.Equal(t, "read original: permission denied", got[1].Error)
	assert.Equal(t, OutcomeWritten, got[2].Outcome)

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListEmpty(t *testing.T) {
	got, err := newTestStore(t).List(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", FileName)

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, &Record{FilePath: "/a.gcode", Outcome: OutcomeWritten}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/a.gcode", got[0].FilePath)
}
