package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	syncErrors "stocksync/internal/errors"
	"stocksync/internal/feed"
	"stocksync/internal/license"
	"stocksync/internal/reconcile"
	"stocksync/internal/runlog"
	"stocksync/internal/scheduler"
	"stocksync/internal/settings"
)

// SyncService is the business surface behind the sync endpoints
type SyncService interface {
	RunNow(ctx context.Context) (*reconcile.Report, error)
	Status(ctx context.Context) (*SyncStatus, error)
	Toggle(ctx context.Context, enabled bool) (*SyncStatus, error)
	GetConfig(ctx context.Context) (*settings.Settings, error)
	UpdateConfig(ctx context.Context, req UpdateConfigRequest) (*settings.Settings, error)
	TestConnection(ctx context.Context) (*reconcile.ConnectionCheck, error)
	PreviewColumns(ctx context.Context, url string, disableSSL bool) (*feed.Preview, error)
	Intervals() []scheduler.Interval
}

// SyncStatus is the aggregate state shown by the status endpoint
type SyncStatus struct {
	Enabled           bool           `json:"enabled"`
	DisabledByLicense bool           `json:"disabled_by_license"`
	Running           bool           `json:"running"`
	Interval          string         `json:"interval"`
	MissingSKUAction  string         `json:"missing_sku_action"`
	FeedConfigured    bool           `json:"feed_configured"`
	LicenseStatus     license.Status `json:"license_status"`
	LastSyncAt        *time.Time     `json:"last_sync_at,omitempty"`
	NextSyncAt        *time.Time     `json:"next_sync_at,omitempty"`
	LastRun           *runlog.Entry  `json:"last_run,omitempty"`
}

// UpdateConfigRequest carries a settings update. Empty interval or
// missing-SKU action keeps the current value.
type UpdateConfigRequest struct {
	FeedURL          string `json:"feed_url" validate:"required,url"`
	SKUColumn        string `json:"sku_column" validate:"required"`
	QuantityColumn   string `json:"quantity_column" validate:"required"`
	DisableSSLVerify bool   `json:"disable_ssl_verify"`
	MissingSKUAction string `json:"missing_sku_action" validate:"omitempty,oneof=ignore zero private"`
	Interval         string `json:"interval" validate:"omitempty"`
}

type syncService struct {
	engine    *reconcile.Engine
	settings  *settings.Store
	scheduler *scheduler.Scheduler
	lease     *scheduler.RunLease
	guard     *license.Guard
	history   *runlog.Store
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewSyncService creates the sync service
func NewSyncService(
	engine *reconcile.Engine,
	settingsStore *settings.Store,
	sched *scheduler.Scheduler,
	lease *scheduler.RunLease,
	guard *license.Guard,
	history *runlog.Store,
	logger *slog.Logger,
) SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &syncService{
		engine:    engine,
		settings:  settingsStore,
		scheduler: sched,
		lease:     lease,
		guard:     guard,
		history:   history,
		validate:  validator.New(),
		logger:    logger.With(slog.String("component", "sync_service")),
	}
}

func (s *syncService) RunNow(ctx context.Context) (*reconcile.Report, error) {
	return s.engine.Run(ctx, runlog.OriginManual)
}

func (s *syncService) Status(ctx context.Context) (*SyncStatus, error) {
	current, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	licenseState, err := s.guard.State()
	if err != nil {
		return nil, err
	}

	nextAt, err := s.scheduler.NextSyncAt(ctx)
	if err != nil {
		return nil, err
	}

	lastRun, err := s.history.Latest(ctx)
	if err != nil {
		return nil, err
	}

	status := &SyncStatus{
		Enabled:           current.Enabled,
		DisabledByLicense: current.DisabledByLicense,
		Running:           s.lease.Held(),
		Interval:          current.Interval,
		MissingSKUAction:  current.MissingSKUAction,
		FeedConfigured:    current.FeedURL != "",
		LicenseStatus:     licenseState.Status,
		NextSyncAt:        nextAt,
		LastRun:           lastRun,
	}
	if !current.LastSyncAt.IsZero() {
		at := current.LastSyncAt
		status.LastSyncAt = &at
	}
	return status, nil
}

// Toggle flips the sync master switch. Enabling requires a valid
// license and a configured feed URL, and arms the recurring trigger;
// disabling clears it. A manual toggle always clears the
// license-disabled marker.
func (s *syncService) Toggle(ctx context.Context, enabled bool) (*SyncStatus, error) {
	current, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	if enabled {
		if !s.guard.IsValid() {
			return nil, syncErrors.ErrLicenseInvalid
		}
		if current.FeedURL == "" {
			return nil, syncErrors.NewConfigMissing("feed_url")
		}
		if err := s.scheduler.ScheduleSync(ctx, current.Interval); err != nil {
			return nil, err
		}
	} else {
		if err := s.scheduler.UnscheduleSync(ctx); err != nil {
			return nil, err
		}
	}

	if err := s.settings.SetEnabled(ctx, enabled); err != nil {
		return nil, err
	}
	if err := s.settings.SetDisabledByLicense(ctx, false); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "sync toggled", slog.Bool("enabled", enabled))
	return s.Status(ctx)
}

func (s *syncService) GetConfig(ctx context.Context) (*settings.Settings, error) {
	current, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &current, nil
}

func (s *syncService) UpdateConfig(ctx context.Context, req UpdateConfigRequest) (*settings.Settings, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, syncErrors.ErrValidation("config", err.Error())
	}
	if req.Interval != "" && !scheduler.ValidInterval(req.Interval) {
		return nil, syncErrors.ErrValidation("interval", fmt.Sprintf("unknown interval %q", req.Interval))
	}

	if err := s.settings.SaveFeedConfig(ctx, req.FeedURL, req.SKUColumn, req.QuantityColumn, req.DisableSSLVerify); err != nil {
		return nil, err
	}
	if req.MissingSKUAction != "" {
		if err := s.settings.SetMissingSKUAction(ctx, req.MissingSKUAction); err != nil {
			return nil, err
		}
	}
	if req.Interval != "" {
		if err := s.settings.SetInterval(ctx, req.Interval); err != nil {
			return nil, err
		}
	}

	// A changed interval takes effect immediately for an enabled sync.
	current, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	if current.Enabled {
		if err := s.scheduler.ScheduleSync(ctx, current.Interval); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "sync configuration updated",
		slog.String("interval", current.Interval),
		slog.String("missing_sku_action", current.MissingSKUAction))
	return &current, nil
}

func (s *syncService) TestConnection(ctx context.Context) (*reconcile.ConnectionCheck, error) {
	return s.engine.TestConnection(ctx)
}

func (s *syncService) PreviewColumns(ctx context.Context, url string, disableSSL bool) (*feed.Preview, error) {
	return s.engine.PreviewColumns(ctx, url, disableSSL)
}

func (s *syncService) Intervals() []scheduler.Interval {
	return scheduler.Intervals()
}
