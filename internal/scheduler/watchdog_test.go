package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksync/internal/config"
	"stocksync/internal/runlog"
	"stocksync/internal/settings"
)

type stubGate struct {
	valid bool
}

func (g stubGate) IsValid() bool { return g.valid }

func watchdogFixture(t *testing.T, licensed bool) (*Watchdog, *TriggerStore, *settings.Store) {
	t.Helper()
	db := testDB(t)

	cfg := config.Default()
	cfg.Feed.URL = "https://supplier.example.com/stock.csv"
	settingsStore, err := settings.NewStore(db, cfg, testLogger())
	require.NoError(t, err)

	triggers, err := NewTriggerStore(db)
	require.NoError(t, err)

	sched := NewScheduler(triggers, time.Second, testLogger())
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	sched.now = func() time.Time { return base }

	history, err := runlog.NewStore(db, testLogger())
	require.NoError(t, err)

	watchdog := NewWatchdog(settingsStore, triggers, sched, stubGate{valid: licensed}, history, testLogger())
	watchdog.now = func() time.Time { return base }
	return watchdog, triggers, settingsStore
}

func TestWatchdog_ReArmsMissingTrigger(t *testing.T) {
	watchdog, triggers, settingsStore := watchdogFixture(t, true)
	ctx := context.Background()
	require.NoError(t, settingsStore.SetEnabled(ctx, true))

	require.NoError(t, watchdog.Pass(ctx))

	trigger, err := triggers.Get(ctx, config.TriggerSync)
	require.NoError(t, err)
	require.NotNil(t, trigger)
	assert.Equal(t, "hourly", trigger.IntervalKey)
}

func TestWatchdog_ReArmsStuckTrigger(t *testing.T) {
	watchdog, triggers, settingsStore := watchdogFixture(t, true)
	ctx := context.Background()
	require.NoError(t, settingsStore.SetEnabled(ctx, true))

	now := watchdog.now()
	stale := now.Add(-3 * time.Hour)
	require.NoError(t, triggers.Upsert(ctx, Trigger{Name: config.TriggerSync, IntervalKey: "hourly", NextRunAt: stale}))

	require.NoError(t, watchdog.Pass(ctx))

	trigger, err := triggers.Get(ctx, config.TriggerSync)
	require.NoError(t, err)
	require.NotNil(t, trigger)
	assert.True(t, now.Add(time.Hour).Equal(trigger.NextRunAt))

	entries, err := watchdog.history.Recent(ctx, 0, runlog.StatusWarning)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, runlog.OriginWatchdog, entries[0].Origin)
}

func TestWatchdog_LeavesHealthyTriggerAlone(t *testing.T) {
	watchdog, triggers, settingsStore := watchdogFixture(t, true)
	ctx := context.Background()
	require.NoError(t, settingsStore.SetEnabled(ctx, true))

	// Overdue is normal between ticks; only more than two intervals past
	// due counts as stuck.
	at := watchdog.now().Add(-90 * time.Minute)
	require.NoError(t, triggers.Upsert(ctx, Trigger{Name: config.TriggerSync, IntervalKey: "hourly", NextRunAt: at}))

	require.NoError(t, watchdog.Pass(ctx))

	trigger, err := triggers.Get(ctx, config.TriggerSync)
	require.NoError(t, err)
	require.NotNil(t, trigger)
	assert.True(t, at.Equal(trigger.NextRunAt))
}

func TestWatchdog_DisabledSyncOnlyHeartbeats(t *testing.T) {
	watchdog, triggers, settingsStore := watchdogFixture(t, true)
	ctx := context.Background()

	require.NoError(t, watchdog.Pass(ctx))

	trigger, err := triggers.Get(ctx, config.TriggerSync)
	require.NoError(t, err)
	assert.Nil(t, trigger)

	current, err := settingsStore.Load(ctx)
	require.NoError(t, err)
	assert.True(t, watchdog.now().Equal(current.WatchdogBeatAt))
}

func TestWatchdog_InvalidLicenseDisablesSync(t *testing.T) {
	watchdog, triggers, settingsStore := watchdogFixture(t, false)
	ctx := context.Background()
	require.NoError(t, settingsStore.SetEnabled(ctx, true))
	require.NoError(t, triggers.Upsert(ctx, Trigger{Name: config.TriggerSync, IntervalKey: "hourly", NextRunAt: watchdog.now().Add(time.Hour)}))

	require.NoError(t, watchdog.Pass(ctx))

	trigger, err := triggers.Get(ctx, config.TriggerSync)
	require.NoError(t, err)
	assert.Nil(t, trigger)

	current, err := settingsStore.Load(ctx)
	require.NoError(t, err)
	assert.False(t, current.Enabled)
	assert.True(t, current.DisabledByLicense)

	entries, err := watchdog.history.Recent(ctx, 0, runlog.StatusWarning)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, runlog.OriginWatchdog, entries[0].Origin)
}
