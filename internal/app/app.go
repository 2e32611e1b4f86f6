package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"stocksync/internal/catalog"
	"stocksync/internal/config"
	"stocksync/internal/feed"
	"stocksync/internal/infrastructure"
	"stocksync/internal/license"
	"stocksync/internal/reconcile"
	"stocksync/internal/runlog"
	"stocksync/internal/scheduler"
	"stocksync/internal/services"
	"stocksync/internal/settings"
	transport "stocksync/internal/transport/http"
)

// Version is the reported application version, overridable at build
// time with -ldflags.
var Version = "dev"

// Application is the assembled service: every long-lived component
// wired together and ready to run.
type Application struct {
	Config    *config.Config
	DB        *sqlx.DB
	Guard     *license.Guard
	Engine    *reconcile.Engine
	Scheduler *scheduler.Scheduler
	Watchdog  *scheduler.Watchdog
	Server    *http.Server
	Telemetry *infrastructure.Telemetry
	Logger    *slog.Logger
}

// New wires the application from configuration
func New(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	telemetry, err := infrastructure.InitializeTelemetry(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := sqlx.Open("sqlite3", cfg.Paths.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	settingsStore, err := settings.NewStore(db, cfg, logger)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.NewSQLiteCatalog(db, logger)
	if err != nil {
		return nil, err
	}
	history, err := runlog.NewStore(db, logger)
	if err != nil {
		return nil, err
	}
	tracker, err := reconcile.NewHiddenTracker(db)
	if err != nil {
		return nil, err
	}
	triggers, err := scheduler.NewTriggerStore(db)
	if err != nil {
		return nil, err
	}

	stateStore := license.NewStateStore(cfg.Paths.LicenseFile)
	client := license.NewClient(cfg.License, logger)
	guard := license.NewGuard(client, stateStore, cfg.License.GracePeriod, logger)
	guard.SetTelemetry(telemetry)

	sched := scheduler.NewScheduler(triggers, cfg.Sync.TickInterval, logger)
	lease := scheduler.NewRunLease(cfg.Sync.RunLeaseTTL)
	fetcher := feed.NewFetcher(cfg.Feed.FetchTimeout, logger)

	engine := reconcile.NewEngine(fetcher, cat, settingsStore, tracker, history, lease, sched, guard, cfg, logger)
	engine.SetTelemetry(telemetry)

	watchdog := scheduler.NewWatchdog(settingsStore, triggers, sched, guard, history, logger)
	watchdog.SetTelemetry(telemetry)

	logService := services.NewLogService(history, logger)
	guard.SetController(services.NewSyncControl(settingsStore, sched, logger))
	guard.SetEventRecorder(logService)

	sched.RegisterHandler(config.TriggerSync, func(ctx context.Context) error {
		_, err := engine.Run(ctx, runlog.OriginSchedule)
		return err
	})
	sched.RegisterHandler(config.TriggerWatchdog, watchdog.Pass)
	sched.RegisterHandler(config.TriggerLicenseCheck, guard.DailyCheck)

	router := transport.NewRouter(transport.RouterDeps{
		Sync:           services.NewSyncService(engine, settingsStore, sched, lease, guard, history, logger),
		License:        services.NewLicenseService(guard, logger),
		Logs:           logService,
		Health:         services.NewHealthService(Version, db, guard, logger),
		MetricsHandler: telemetry.PrometheusHTTP,
		Server:         cfg.Server,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		Config:    cfg,
		DB:        db,
		Guard:     guard,
		Engine:    engine,
		Scheduler: sched,
		Watchdog:  watchdog,
		Server:    server,
		Telemetry: telemetry,
		Logger:    logger,
	}, nil
}

// Run starts the scheduler loop and HTTP server, blocking until the
// context ends, then shuts both down gracefully.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Scheduler.EnsureMaintenanceTriggers(ctx); err != nil {
		return fmt.Errorf("failed to arm maintenance triggers: %w", err)
	}

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go a.Scheduler.Run(schedulerCtx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("database close failed", slog.String("error", err.Error()))
	}
	infrastructure.CloseLogFile()

	return nil
}

// Close releases resources without running the serve loop, for wiring
// tests and one-shot commands.
func (a *Application) Close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Telemetry.Shutdown(shutdownCtx)
	_ = a.DB.Close()
}
