package services

import (
	"context"
	"log/slog"

	"stocksync/internal/runlog"
)

// LogService is the business surface behind the run log endpoints
type LogService interface {
	Recent(ctx context.Context, limit int, status string) ([]runlog.Entry, error)
	Stats(ctx context.Context) (*runlog.Aggregate, error)
	Clear(ctx context.Context) error
	// RecordLicenseEvent satisfies the license guard's event sink
	RecordLicenseEvent(ctx context.Context, status, message string)
}

type logService struct {
	history *runlog.Store
	logger  *slog.Logger
}

// NewLogService creates the run log service
func NewLogService(history *runlog.Store, logger *slog.Logger) LogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &logService{
		history: history,
		logger:  logger.With(slog.String("component", "log_service")),
	}
}

func (s *logService) Recent(ctx context.Context, limit int, status string) ([]runlog.Entry, error) {
	return s.history.Recent(ctx, limit, status)
}

func (s *logService) Stats(ctx context.Context) (*runlog.Aggregate, error) {
	return s.history.Aggregate(ctx)
}

func (s *logService) Clear(ctx context.Context) error {
	return s.history.Clear(ctx)
}

func (s *logService) RecordLicenseEvent(ctx context.Context, status, message string) {
	entry := runlog.Entry{
		Origin:  runlog.OriginLicense,
		Status:  status,
		Message: message,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to record license event",
			slog.String("error", err.Error()))
	}
}
