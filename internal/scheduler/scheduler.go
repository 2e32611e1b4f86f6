package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stocksync/internal/config"
)

// Cadences for the maintenance triggers the scheduler arms itself
const (
	watchdogIntervalKey = "4hours"
	licenseIntervalKey  = "daily"
)

// Handler executes one fired trigger
type Handler func(ctx context.Context) error

// Scheduler arms durable triggers and fires their handlers from a
// single ticker loop. Trigger state lives in the database, so a restart
// resumes the existing schedule instead of resetting it.
type Scheduler struct {
	store  *TriggerStore
	tick   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewScheduler creates a scheduler polling at the given tick interval
func NewScheduler(store *TriggerStore, tick time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		tick:     tick,
		logger:   logger.With(slog.String("component", "scheduler")),
		now:      time.Now,
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler binds a handler to a trigger name
func (s *Scheduler) RegisterHandler(name string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = handler
}

// ScheduleSync arms the recurring sync trigger one full interval from
// now. An existing schedule is replaced. The watchdog trigger is
// re-ensured on every call so an armed sync always has its safety net.
func (s *Scheduler) ScheduleSync(ctx context.Context, intervalKey string) error {
	every, ok := IntervalDuration(intervalKey)
	if !ok {
		return fmt.Errorf("unknown sync interval %q", intervalKey)
	}
	if err := s.store.Upsert(ctx, Trigger{
		Name:        config.TriggerSync,
		IntervalKey: intervalKey,
		NextRunAt:   s.now().Add(every),
	}); err != nil {
		return err
	}
	return s.ensureTrigger(ctx, config.TriggerWatchdog, watchdogIntervalKey)
}

// UnscheduleSync clears the recurring sync trigger
func (s *Scheduler) UnscheduleSync(ctx context.Context) error {
	return s.store.Delete(ctx, config.TriggerSync)
}

// NextSyncAt returns the next scheduled sync firing, nil when sync is
// not scheduled.
func (s *Scheduler) NextSyncAt(ctx context.Context) (*time.Time, error) {
	trigger, err := s.store.Get(ctx, config.TriggerSync)
	if err != nil {
		return nil, err
	}
	if trigger == nil {
		return nil, nil
	}
	at := trigger.NextRunAt
	return &at, nil
}

// EnsureMaintenanceTriggers arms the watchdog and daily license check
// if they are not already scheduled. Existing schedules are left alone.
func (s *Scheduler) EnsureMaintenanceTriggers(ctx context.Context) error {
	if err := s.ensureTrigger(ctx, config.TriggerWatchdog, watchdogIntervalKey); err != nil {
		return err
	}
	return s.ensureTrigger(ctx, config.TriggerLicenseCheck, licenseIntervalKey)
}

func (s *Scheduler) ensureTrigger(ctx context.Context, name, intervalKey string) error {
	existing, err := s.store.Get(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	every, ok := IntervalDuration(intervalKey)
	if !ok {
		return fmt.Errorf("unknown interval %q for trigger %s", intervalKey, name)
	}
	return s.store.Upsert(ctx, Trigger{
		Name:        name,
		IntervalKey: intervalKey,
		NextRunAt:   s.now().Add(every),
	})
}

// Run polls for due triggers until the context is canceled
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.InfoContext(ctx, "scheduler started",
		slog.Duration("tick", s.tick))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue claims and fires every due trigger. Handlers run
// sequentially; a failing handler is logged and does not block the
// others.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	due, err := s.store.ClaimDue(ctx, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to claim due triggers",
			slog.String("error", err.Error()))
		return
	}

	for _, trigger := range due {
		s.mu.RLock()
		handler := s.handlers[trigger.Name]
		s.mu.RUnlock()

		if handler == nil {
			s.logger.WarnContext(ctx, "no handler registered for trigger",
				slog.String("trigger", trigger.Name))
			continue
		}

		s.logger.DebugContext(ctx, "firing trigger", slog.String("trigger", trigger.Name))
		if err := handler(ctx); err != nil {
			s.logger.ErrorContext(ctx, "trigger handler failed",
				slog.String("trigger", trigger.Name),
				slog.String("error", err.Error()))
		}
	}
}
