package runlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store
}

func TestStore_AppendAndRecent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, Entry{
		Origin:     OriginManual,
		Status:     StatusSuccess,
		Message:    "Sync completed.",
		DurationMS: 1200,
		Stats:      Stats{Processed: 10, Updated: 4, Skipped: 6},
	}))
	require.NoError(t, store.Append(ctx, Entry{
		Origin:  OriginSchedule,
		Status:  StatusError,
		Message: "Feed fetch failed.",
	}))

	entries, err := store.Recent(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, OriginSchedule, entries[0].Origin)
	assert.Equal(t, StatusError, entries[0].Status)
	assert.Equal(t, OriginManual, entries[1].Origin)
	assert.Equal(t, 10, entries[1].Processed)
	assert.Equal(t, 4, entries[1].Updated)
	assert.Equal(t, int64(1200), entries[1].DurationMS)
	assert.False(t, entries[1].CreatedAt.IsZero())
}

func TestStore_StatusFilter(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, Entry{Origin: OriginManual, Status: StatusSuccess}))
	require.NoError(t, store.Append(ctx, Entry{Origin: OriginManual, Status: StatusError}))
	require.NoError(t, store.Append(ctx, Entry{Origin: OriginLicense, Status: StatusError}))

	entries, err := store.Recent(ctx, 0, StatusError)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, StatusError, entry.Status)
	}
}

func TestStore_PrunesBeyondCap(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i := 0; i < maxEntries+10; i++ {
		require.NoError(t, store.Append(ctx, Entry{
			Origin:  OriginSchedule,
			Status:  StatusSuccess,
			Message: fmt.Sprintf("run %d", i),
		}))
	}

	entries, err := store.Recent(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, entries, maxEntries)

	// The ten oldest runs are gone.
	assert.Equal(t, fmt.Sprintf("run %d", maxEntries+9), entries[0].Message)
	assert.Equal(t, "run 10", entries[len(entries)-1].Message)
}

func TestStore_Latest(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, store.Append(ctx, Entry{Origin: OriginManual, Status: StatusSuccess, Message: "first"}))
	require.NoError(t, store.Append(ctx, Entry{Origin: OriginManual, Status: StatusPartial, Message: "second"}))

	latest, err = store.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "second", latest.Message)
	assert.Equal(t, StatusPartial, latest.Status)
}

func TestStore_Clear(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, Entry{Origin: OriginManual, Status: StatusSuccess}))
	require.NoError(t, store.Clear(ctx))

	entries, err := store.Recent(ctx, 0, "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_CreatedAtDefaultsToNow(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, store.Append(ctx, Entry{Origin: OriginManual, Status: StatusSuccess}))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.CreatedAt.After(before))
}

func TestStore_Aggregate(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	agg, err := store.Aggregate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, agg.Total)
	assert.Nil(t, agg.LastSuccessAt)

	firstSuccess := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	lastSuccess := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, Entry{CreatedAt: firstSuccess, Origin: OriginSchedule, Status: StatusSuccess, Stats: Stats{Updated: 3}}))
	require.NoError(t, store.Append(ctx, Entry{CreatedAt: lastSuccess, Origin: OriginSchedule, Status: StatusSuccess, Stats: Stats{Updated: 7}}))
	require.NoError(t, store.Append(ctx, Entry{Origin: OriginManual, Status: StatusPartial, Stats: Stats{Updated: 1, Errors: 2}}))
	require.NoError(t, store.Append(ctx, Entry{Origin: OriginSchedule, Status: StatusError, Message: "Feed fetch failed."}))

	agg, err = store.Aggregate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, agg.Total)
	assert.Equal(t, 2, agg.Success)
	assert.Equal(t, 1, agg.Partial)
	assert.Equal(t, 1, agg.Errors)
	assert.Equal(t, 11, agg.ProductsUpdated)
	require.NotNil(t, agg.LastSuccessAt)
	assert.True(t, lastSuccess.Equal(agg.LastSuccessAt.UTC()))
}
