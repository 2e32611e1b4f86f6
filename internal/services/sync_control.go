package services

import (
	"context"
	"log/slog"

	"stocksync/internal/scheduler"
	"stocksync/internal/settings"
)

// SyncControl implements the license guard's sync controller: it is how
// a lapsed license turns sync off and a recovered one turns it back on.
type SyncControl struct {
	settings  *settings.Store
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

// NewSyncControl creates the controller
func NewSyncControl(settingsStore *settings.Store, sched *scheduler.Scheduler, logger *slog.Logger) *SyncControl {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncControl{
		settings:  settingsStore,
		scheduler: sched,
		logger:    logger.With(slog.String("component", "sync_control")),
	}
}

// DisableSyncForLicense turns sync off and remembers that the license
// caused it. Returns whether sync was enabled before the call.
func (c *SyncControl) DisableSyncForLicense(ctx context.Context) (bool, error) {
	current, err := c.settings.Load(ctx)
	if err != nil {
		return false, err
	}
	if !current.Enabled {
		return false, nil
	}

	if err := c.scheduler.UnscheduleSync(ctx); err != nil {
		return false, err
	}
	if err := c.settings.SetEnabled(ctx, false); err != nil {
		return false, err
	}
	if err := c.settings.SetDisabledByLicense(ctx, true); err != nil {
		return false, err
	}

	c.logger.WarnContext(ctx, "sync disabled after failed license check")
	return true, nil
}

// RestoreSyncAfterLicense re-enables sync if the license lapse is what
// disabled it and a feed URL is still configured. Returns whether sync
// was restored.
func (c *SyncControl) RestoreSyncAfterLicense(ctx context.Context) (bool, error) {
	current, err := c.settings.Load(ctx)
	if err != nil {
		return false, err
	}
	if !current.DisabledByLicense || current.Enabled || current.FeedURL == "" {
		return false, nil
	}

	if err := c.scheduler.ScheduleSync(ctx, current.Interval); err != nil {
		return false, err
	}
	if err := c.settings.SetEnabled(ctx, true); err != nil {
		return false, err
	}
	if err := c.settings.SetDisabledByLicense(ctx, false); err != nil {
		return false, err
	}

	c.logger.InfoContext(ctx, "sync re-enabled after license recovery")
	return true, nil
}
