package scheduler

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

func testTriggerStore(t *testing.T) *TriggerStore {
	t.Helper()
	store, err := NewTriggerStore(testDB(t))
	require.NoError(t, err)
	return store
}

func TestIntervalDuration(t *testing.T) {
	tests := []struct {
		key  string
		want time.Duration
		ok   bool
	}{
		{"5min", 5 * time.Minute, true},
		{"hourly", time.Hour, true},
		{"4hours", 4 * time.Hour, true},
		{"weekly", 7 * 24 * time.Hour, true},
		{"", 0, false},
		{"monthly", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := IntervalDuration(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTriggerStore_UpsertGetDelete(t *testing.T) {
	store := testTriggerStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, Trigger{Name: config.TriggerSync, IntervalKey: "hourly", NextRunAt: at}))

	got, err := store.Get(ctx, config.TriggerSync)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hourly", got.IntervalKey)
	assert.True(t, at.Equal(got.NextRunAt))

	// Upsert replaces the schedule.
	require.NoError(t, store.Upsert(ctx, Trigger{Name: config.TriggerSync, IntervalKey: "daily", NextRunAt: at.Add(time.Hour)}))
	got, err = store.Get(ctx, config.TriggerSync)
	require.NoError(t, err)
	assert.Equal(t, "daily", got.IntervalKey)

	require.NoError(t, store.Delete(ctx, config.TriggerSync))
	got, err = store.Get(ctx, config.TriggerSync)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Delete(ctx, config.TriggerSync))
}

func TestTriggerStore_ClaimDueAdvancesRecurring(t *testing.T) {
	store := testTriggerStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, Trigger{Name: config.TriggerSync, IntervalKey: "hourly", NextRunAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Upsert(ctx, Trigger{Name: config.TriggerWatchdog, IntervalKey: "15min", NextRunAt: now.Add(time.Minute)}))

	due, err := store.ClaimDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, config.TriggerSync, due[0].Name)

	// Advanced one interval from now, not from the stale next_run_at.
	got, err := store.Get(ctx, config.TriggerSync)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, now.Add(time.Hour).Equal(got.NextRunAt))

	// Not due again immediately.
	due, err = store.ClaimDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTriggerStore_ClaimDueConsumesOneShot(t *testing.T) {
	store := testTriggerStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, Trigger{Name: "sync_once", NextRunAt: now}))

	due, err := store.ClaimDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)

	got, err := store.Get(ctx, "sync_once")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestScheduler_ScheduleSync(t *testing.T) {
	store := testTriggerStore(t)
	sched := NewScheduler(store, time.Second, testLogger())
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	sched.now = func() time.Time { return base }
	ctx := context.Background()

	require.NoError(t, sched.ScheduleSync(ctx, "4hours"))

	next, err := sched.NextSyncAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, base.Add(4*time.Hour).Equal(*next))

	// Arming sync also arms the watchdog safety net.
	watchdog, err := store.Get(ctx, config.TriggerWatchdog)
	require.NoError(t, err)
	require.NotNil(t, watchdog)

	require.NoError(t, sched.UnscheduleSync(ctx))
	next, err = sched.NextSyncAt(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	// Unscheduling sync leaves the watchdog trigger in place.
	watchdog, err = store.Get(ctx, config.TriggerWatchdog)
	require.NoError(t, err)
	assert.NotNil(t, watchdog)
}

func TestScheduler_ScheduleSyncRejectsUnknownInterval(t *testing.T) {
	sched := NewScheduler(testTriggerStore(t), time.Second, testLogger())
	assert.Error(t, sched.ScheduleSync(context.Background(), "fortnightly"))
}

func TestScheduler_EnsureMaintenanceTriggersIsIdempotent(t *testing.T) {
	store := testTriggerStore(t)
	sched := NewScheduler(store, time.Second, testLogger())
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	sched.now = func() time.Time { return base }
	ctx := context.Background()

	require.NoError(t, sched.EnsureMaintenanceTriggers(ctx))

	watchdog, err := store.Get(ctx, config.TriggerWatchdog)
	require.NoError(t, err)
	require.NotNil(t, watchdog)
	firstAt := watchdog.NextRunAt

	licenseCheck, err := store.Get(ctx, config.TriggerLicenseCheck)
	require.NoError(t, err)
	require.NotNil(t, licenseCheck)
	assert.Equal(t, "daily", licenseCheck.IntervalKey)

	// A second ensure must not move the schedule.
	sched.now = func() time.Time { return base.Add(10 * time.Minute) }
	require.NoError(t, sched.EnsureMaintenanceTriggers(ctx))
	watchdog, err = store.Get(ctx, config.TriggerWatchdog)
	require.NoError(t, err)
	assert.True(t, firstAt.Equal(watchdog.NextRunAt))
}

func TestScheduler_DispatchDueFiresHandlers(t *testing.T) {
	store := testTriggerStore(t)
	sched := NewScheduler(store, time.Second, testLogger())
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	sched.now = func() time.Time { return base }
	ctx := context.Background()

	fired := 0
	sched.RegisterHandler(config.TriggerSync, func(ctx context.Context) error {
		fired++
		return nil
	})

	require.NoError(t, store.Upsert(ctx, Trigger{Name: config.TriggerSync, IntervalKey: "hourly", NextRunAt: base.Add(-time.Second)}))
	require.NoError(t, store.Upsert(ctx, Trigger{Name: "unhandled", NextRunAt: base.Add(-time.Second)}))

	sched.dispatchDue(ctx)
	assert.Equal(t, 1, fired)

	sched.dispatchDue(ctx)
	assert.Equal(t, 1, fired)
}

func TestRunLease_SingleFlight(t *testing.T) {
	lease := NewRunLease(30 * time.Minute)

	release, ok := lease.TryAcquire()
	require.True(t, ok)
	assert.True(t, lease.Held())

	_, ok = lease.TryAcquire()
	assert.False(t, ok)

	release()
	assert.False(t, lease.Held())

	release2, ok := lease.TryAcquire()
	require.True(t, ok)
	release2()
	release2()
}

func TestRunLease_ExpiresAfterTTL(t *testing.T) {
	lease := NewRunLease(30 * time.Minute)
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	lease.now = func() time.Time { return base }

	_, ok := lease.TryAcquire()
	require.True(t, ok)

	// A crashed run never releases; the lease frees itself after the TTL.
	lease.now = func() time.Time { return base.Add(31 * time.Minute) }
	assert.False(t, lease.Held())

	release, ok := lease.TryAcquire()
	require.True(t, ok)
	release()
}
