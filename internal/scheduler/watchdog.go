package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"stocksync/internal/config"
	"stocksync/internal/infrastructure"
	"stocksync/internal/runlog"
	"stocksync/internal/settings"
)

// LicenseGate is the license validity check the watchdog consults
// before repairing the sync schedule.
type LicenseGate interface {
	IsValid() bool
}

// Watchdog repairs the sync schedule. Every pass it verifies that an
// enabled sync still has its recurring trigger and that the trigger has
// not silently stalled, re-arming it when either check fails.
type Watchdog struct {
	settings  *settings.Store
	triggers  *TriggerStore
	scheduler *Scheduler
	gate      LicenseGate
	history   *runlog.Store
	telemetry *infrastructure.Telemetry
	logger    *slog.Logger
	now       func() time.Time
}

// NewWatchdog creates a watchdog
func NewWatchdog(settingsStore *settings.Store, triggers *TriggerStore, sched *Scheduler, gate LicenseGate, history *runlog.Store, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		settings:  settingsStore,
		triggers:  triggers,
		scheduler: sched,
		gate:      gate,
		history:   history,
		logger:    logger.With(slog.String("component", "watchdog")),
		now:       time.Now,
	}
}

// SetTelemetry wires the metrics instruments
func (w *Watchdog) SetTelemetry(t *infrastructure.Telemetry) {
	w.telemetry = t
}

// Pass runs one watchdog inspection and records a heartbeat
func (w *Watchdog) Pass(ctx context.Context) error {
	now := w.now()
	defer func() {
		if err := w.settings.Heartbeat(ctx, now); err != nil {
			w.logger.ErrorContext(ctx, "failed to record watchdog heartbeat",
				slog.String("error", err.Error()))
		}
	}()

	current, err := w.settings.Load(ctx)
	if err != nil {
		return err
	}
	if !current.Enabled || current.FeedURL == "" {
		return nil
	}
	if !w.gate.IsValid() {
		// The watchdog doubles as a license-compliance net: an enabled
		// sync whose license has lapsed gets shut off here, not just
		// skipped until the next daily check.
		if err := w.scheduler.UnscheduleSync(ctx); err != nil {
			return err
		}
		if err := w.settings.SetEnabled(ctx, false); err != nil {
			return err
		}
		if err := w.settings.SetDisabledByLicense(ctx, true); err != nil {
			return err
		}
		w.warn(ctx, "Sync disabled: license is no longer valid.")
		return nil
	}

	every, ok := IntervalDuration(current.Interval)
	if !ok {
		w.logger.WarnContext(ctx, "cannot repair schedule with unknown interval",
			slog.String("interval", current.Interval))
		return nil
	}

	trigger, err := w.triggers.Get(ctx, config.TriggerSync)
	if err != nil {
		return err
	}

	switch {
	case trigger == nil:
		if err := w.scheduler.ScheduleSync(ctx, current.Interval); err != nil {
			return err
		}
		w.repair(ctx, "missing", "Sync schedule repaired: trigger was missing.")
	case now.Sub(trigger.NextRunAt) > 2*every:
		// Overdue by more than two intervals. The ticker loop is wedged
		// or the stored time is stale; re-arm from now.
		if err := w.scheduler.ScheduleSync(ctx, current.Interval); err != nil {
			return err
		}
		w.repair(ctx, "stuck", "Sync schedule repaired: trigger was stuck or overdue.")
	}

	return nil
}

func (w *Watchdog) repair(ctx context.Context, reason, message string) {
	w.warn(ctx, message)
	if w.telemetry != nil {
		w.telemetry.WatchdogRepairs.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (w *Watchdog) warn(ctx context.Context, message string) {
	w.logger.WarnContext(ctx, message)
	if w.history == nil {
		return
	}
	entry := runlog.Entry{
		Origin:  runlog.OriginWatchdog,
		Status:  runlog.StatusWarning,
		Message: message,
	}
	if err := w.history.Append(ctx, entry); err != nil {
		w.logger.ErrorContext(ctx, "failed to record watchdog event",
			slog.String("error", err.Error()))
	}
}
