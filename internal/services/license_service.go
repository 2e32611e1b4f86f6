package services

import (
	"context"
	"log/slog"
	"time"

	"stocksync/internal/license"
)

// LicenseService is the business surface behind the license endpoints
type LicenseService interface {
	Status(ctx context.Context) (*LicenseStatusResponse, error)
	Activate(ctx context.Context, key string) (*LicenseStatusResponse, error)
	Check(ctx context.Context) (*LicenseStatusResponse, error)
	Deactivate(ctx context.Context) error
}

// LicenseStatusResponse is the license state shown to the UI. The key
// is masked; only the last four characters are ever returned.
type LicenseStatusResponse struct {
	Status             license.Status       `json:"status"`
	Message            string               `json:"message,omitempty"`
	MaskedKey          string               `json:"masked_key,omitempty"`
	ExpiresAt          *time.Time           `json:"expires_at,omitempty"`
	LastCheckAt        *time.Time           `json:"last_check_at,omitempty"`
	InGrace            bool                 `json:"in_grace,omitempty"`
	GraceDaysRemaining int                  `json:"grace_days_remaining,omitempty"`
	Activations        *license.Activations `json:"activations,omitempty"`
	Product            string               `json:"product,omitempty"`
	Package            string               `json:"package,omitempty"`
}

type licenseService struct {
	guard  *license.Guard
	logger *slog.Logger
}

// NewLicenseService creates the license service
func NewLicenseService(guard *license.Guard, logger *slog.Logger) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &licenseService{
		guard:  guard,
		logger: logger.With(slog.String("component", "license_service")),
	}
}

func (s *licenseService) Status(ctx context.Context) (*LicenseStatusResponse, error) {
	state, err := s.guard.State()
	if err != nil {
		return nil, err
	}
	return responseFromState(state, nil), nil
}

func (s *licenseService) Activate(ctx context.Context, key string) (*LicenseStatusResponse, error) {
	result, err := s.guard.Activate(ctx, key)
	if err != nil {
		return nil, err
	}
	state, err := s.guard.State()
	if err != nil {
		return nil, err
	}
	return responseFromState(state, result), nil
}

func (s *licenseService) Check(ctx context.Context) (*LicenseStatusResponse, error) {
	result, err := s.guard.Check(ctx, "")
	if err != nil {
		return nil, err
	}
	state, err := s.guard.State()
	if err != nil {
		return nil, err
	}
	return responseFromState(state, result), nil
}

func (s *licenseService) Deactivate(ctx context.Context) error {
	return s.guard.Deactivate(ctx)
}

func responseFromState(state license.State, result *license.CheckResult) *LicenseStatusResponse {
	resp := &LicenseStatusResponse{
		Status:    state.Status,
		MaskedKey: maskKey(state.Key),
	}
	if !state.LastCheckAt.IsZero() {
		at := state.LastCheckAt
		resp.LastCheckAt = &at
	}
	if state.Data != nil {
		resp.ExpiresAt = state.Data.ExpiresAt
		resp.Activations = state.Data.Activations
		resp.Product = state.Data.Product
		resp.Package = state.Data.Package
	}
	if result != nil {
		resp.Message = result.Message
		resp.InGrace = result.InGrace
		resp.GraceDaysRemaining = result.GraceDaysRemaining
	}
	return resp
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
