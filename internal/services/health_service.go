package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/jmoiron/sqlx"

	"stocksync/internal/license"
)

// HealthService reports process and dependency health
type HealthService struct {
	version   string
	db        *sqlx.DB
	guard     *license.Guard
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus is the health endpoint response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	UptimeSec int64             `json:"uptime_seconds"`
	Checks    map[string]string `json:"checks"`
	Runtime   map[string]any    `json:"runtime,omitempty"`
}

// NewHealthService creates the health service
func NewHealthService(version string, db *sqlx.DB, guard *license.Guard, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		db:        db,
		guard:     guard,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// Check runs all health probes. The overall status is degraded when any
// probe fails; the process itself is still serving.
func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	checks := map[string]string{}
	overall := "healthy"

	if err := s.db.PingContext(ctx); err != nil {
		checks["database"] = "error: " + err.Error()
		overall = "degraded"
	} else {
		checks["database"] = "ok"
	}

	if state, err := s.guard.State(); err != nil {
		checks["license"] = "error: " + err.Error()
		overall = "degraded"
	} else {
		checks["license"] = string(state.Status)
	}

	return &HealthStatus{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		UptimeSec: int64(time.Since(s.startTime).Seconds()),
		Checks:    checks,
		Runtime: map[string]any{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}
