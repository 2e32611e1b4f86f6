package settings

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksync/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.Feed.URL = "https://supplier.example.com/stock.csv"
	store, err := NewStore(testDB(t), cfg, testLogger())
	require.NoError(t, err)
	return store
}

func TestStore_SeedsFromConfigDefaults(t *testing.T) {
	store := testStore(t)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://supplier.example.com/stock.csv", got.FeedURL)
	assert.Equal(t, "sku", got.SKUColumn)
	assert.Equal(t, "quantity", got.QuantityColumn)
	assert.False(t, got.DisableSSLVerify)
	assert.Equal(t, config.MissingSKUIgnore, got.MissingSKUAction)
	assert.Equal(t, "hourly", got.Interval)
	assert.False(t, got.Enabled)
	assert.False(t, got.DisabledByLicense)
	assert.True(t, got.LastSyncAt.IsZero())
	assert.True(t, got.WatchdogBeatAt.IsZero())
}

func TestStore_SeedDoesNotOverwriteExistingValues(t *testing.T) {
	db := testDB(t)
	cfg := config.Default()
	cfg.Feed.URL = "https://first.example.com/a.csv"
	_, err := NewStore(db, cfg, testLogger())
	require.NoError(t, err)

	cfg.Feed.URL = "https://second.example.com/b.csv"
	store, err := NewStore(db, cfg, testLogger())
	require.NoError(t, err)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://first.example.com/a.csv", got.FeedURL)
}

func TestStore_SaveFeedConfig(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveFeedConfig(ctx, "https://new.example.com/feed.csv", "Artikel", "Bestand", true))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com/feed.csv", got.FeedURL)
	assert.Equal(t, "Artikel", got.SKUColumn)
	assert.Equal(t, "Bestand", got.QuantityColumn)
	assert.True(t, got.DisableSSLVerify)
}

func TestStore_ToggleAndLicenseFlags(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetEnabled(ctx, true))
	require.NoError(t, store.SetDisabledByLicense(ctx, true))
	require.NoError(t, store.SetMissingSKUAction(ctx, config.MissingSKUZero))
	require.NoError(t, store.SetInterval(ctx, "4hours"))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, got.DisabledByLicense)
	assert.Equal(t, config.MissingSKUZero, got.MissingSKUAction)
	assert.Equal(t, "4hours", got.Interval)

	require.NoError(t, store.SetEnabled(ctx, false))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestStore_Timestamps(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	syncAt := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	beatAt := syncAt.Add(5 * time.Minute)
	require.NoError(t, store.SetLastSyncAt(ctx, syncAt))
	require.NoError(t, store.Heartbeat(ctx, beatAt))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, syncAt.Equal(got.LastSyncAt))
	assert.True(t, beatAt.Equal(got.WatchdogBeatAt))
}
