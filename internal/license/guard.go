package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"stocksync/internal/infrastructure"
)

// ErrNoKey signals an operation that needs a license key when none is
// stored or supplied.
var ErrNoKey = errors.New("no license key configured")

// APIClient is the license verification service surface the Guard needs
type APIClient interface {
	Validate(ctx context.Context, key string) (*CheckOutcome, error)
	Activate(ctx context.Context, key string) (*CheckOutcome, error)
	Deactivate(ctx context.Context, key string) (*CheckOutcome, error)
	Check(ctx context.Context, key string) (*CheckOutcome, error)
}

// SyncController lets the Guard disable or restore the sync schedule
// when the license lapses or recovers. Implemented by the application
// wiring; the Guard never reaches into the scheduler directly.
type SyncController interface {
	// DisableSyncForLicense turns sync off and clears the recurring
	// trigger, remembering that the license caused it. Returns whether
	// sync was enabled before the call.
	DisableSyncForLicense(ctx context.Context) (bool, error)
	// RestoreSyncAfterLicense re-enables sync if it was previously
	// disabled by a license failure and a feed URL is configured.
	// Returns whether sync was restored.
	RestoreSyncAfterLicense(ctx context.Context) (bool, error)
}

// EventRecorder records license lifecycle events in the run log
type EventRecorder interface {
	RecordLicenseEvent(ctx context.Context, status, message string)
}

// CheckResult is the outcome of one license verification as seen by the
// caller, including grace-period standing.
type CheckResult struct {
	Status             Status `json:"status"`
	Message            string `json:"message"`
	InGrace            bool   `json:"in_grace"`
	GraceDaysRemaining int    `json:"grace_days_remaining,omitempty"`
}

// Guard owns the license state machine. It is the single authority on
// "is execution currently authorized" and the only mutator of the
// persisted license state.
type Guard struct {
	client     APIClient
	store      *StateStore
	grace      time.Duration
	controller SyncController
	events     EventRecorder
	telemetry  *infrastructure.Telemetry
	logger     *slog.Logger
	now        func() time.Time
	mu         sync.Mutex
}

// NewGuard creates a license guard
func NewGuard(client APIClient, store *StateStore, gracePeriod time.Duration, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		client: client,
		store:  store,
		grace:  gracePeriod,
		logger: logger.With(slog.String("component", "license_guard")),
		now:    time.Now,
	}
}

// SetController wires the sync controller used by DailyCheck
func (g *Guard) SetController(c SyncController) {
	g.controller = c
}

// SetEventRecorder wires the run log sink for license events
func (g *Guard) SetEventRecorder(r EventRecorder) {
	g.events = r
}

// SetTelemetry wires the metrics instruments
func (g *Guard) SetTelemetry(t *infrastructure.Telemetry) {
	g.telemetry = t
}

// IsValid is the single gate consulted before every reconciliation run
// and every settings mutation that enables sync.
func (g *Guard) IsValid() bool {
	state, err := g.store.Load()
	if err != nil {
		g.logger.Error("failed to load license state", slog.String("error", err.Error()))
		return false
	}
	return state.Status == StatusActive && state.Key != ""
}

// State returns a copy of the persisted license state for display
func (g *Guard) State() (State, error) {
	return g.store.Load()
}

// Activate activates a key for this domain. On a definitive rejection
// the entered key is retained for display but license data is cleared;
// on a network failure nothing is persisted and the error is surfaced
// for immediate user feedback.
func (g *Guard) Activate(ctx context.Context, key string) (*CheckResult, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNoKey
	}
	key = strings.TrimSpace(key)

	g.mu.Lock()
	defer g.mu.Unlock()

	outcome, err := g.client.Activate(ctx, key)
	if err != nil {
		if IsNetworkError(err) {
			g.recordCheck(ctx, "network_error")
			return nil, err
		}
		var rejection *APIRejectionError
		if errors.As(err, &rejection) {
			state := State{
				Key:         key,
				Status:      rejectionStatus(rejection),
				LastCheckAt: g.now(),
			}
			if saveErr := g.store.Save(state); saveErr != nil {
				return nil, saveErr
			}
			g.recordCheck(ctx, string(state.Status))
			return nil, err
		}
		return nil, err
	}

	status := g.statusFromOutcome(outcome)
	state := State{
		Key:         key,
		Status:      status,
		Data:        outcome.Data,
		LastCheckAt: g.now(),
	}
	if err := g.store.Save(state); err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "license activation completed",
		slog.String("status", string(status)))
	g.recordCheck(ctx, string(status))

	return &CheckResult{Status: status, Message: statusMessage(status)}, nil
}

// Check re-verifies the stored (or supplied) key against the server.
// Network failures engage the grace-period policy; definitive negatives
// transition to a terminal state immediately.
func (g *Guard) Check(ctx context.Context, key string) (*CheckResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkUsing(ctx, key, g.client.Check)
}

// Deactivate releases this domain's activation and clears all local
// license state. Local state is cleared even if the API call fails so
// re-activation stays possible.
func (g *Guard) Deactivate(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.store.Load()
	if err != nil {
		return err
	}
	if state.Key == "" {
		return ErrNoKey
	}

	if _, err := g.client.Deactivate(ctx, state.Key); err != nil {
		g.logger.WarnContext(ctx, "license deactivation API call failed, clearing local state anyway",
			slog.String("error", err.Error()))
	}

	return g.store.Clear()
}

// DailyCheck re-validates the license once per day. A license that
// lapses disables sync and logs the event; a license that recovers
// restores sync if the lapse is what disabled it. A network blip inside
// the grace period does neither.
func (g *Guard) DailyCheck(ctx context.Context) error {
	g.mu.Lock()
	state, err := g.store.Load()
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if state.Key == "" {
		g.mu.Unlock()
		return nil
	}

	result, err := g.checkUsing(ctx, "", g.client.Validate)
	g.mu.Unlock()

	stillValid := err == nil && result != nil && result.Status == StatusActive

	if stillValid {
		if result.InGrace {
			g.logger.WarnContext(ctx, "license check unreachable, grace period running",
				slog.Int("days_remaining", result.GraceDaysRemaining))
			return nil
		}
		if g.controller != nil {
			restored, restoreErr := g.controller.RestoreSyncAfterLicense(ctx)
			if restoreErr != nil {
				return restoreErr
			}
			if restored && g.events != nil {
				g.events.RecordLicenseEvent(ctx, "success",
					"License is valid again. Sync has been automatically re-enabled.")
			}
		}
		return nil
	}

	reason := "License validation failed."
	if result != nil && result.Message != "" {
		reason = result.Message
	} else if err != nil {
		reason = err.Error()
	}

	if g.controller != nil {
		wasEnabled, disableErr := g.controller.DisableSyncForLicense(ctx)
		if disableErr != nil {
			return disableErr
		}
		if wasEnabled {
			g.logger.WarnContext(ctx, "sync disabled by license check",
				slog.String("reason", reason))
		}
	}
	if g.events != nil {
		g.events.RecordLicenseEvent(ctx, "error", reason+" Sync has been disabled.")
	}
	return nil
}

// checkUsing runs one verification with the given endpoint. Caller holds
// the guard mutex.
func (g *Guard) checkUsing(ctx context.Context, key string, call func(context.Context, string) (*CheckOutcome, error)) (*CheckResult, error) {
	state, err := g.store.Load()
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = state.Key
	}
	if key == "" {
		return nil, ErrNoKey
	}

	outcome, err := call(ctx, key)
	if err != nil {
		if IsNetworkError(err) {
			g.recordCheck(ctx, "network_error")
			return g.handleNetworkFailure(ctx, state, err)
		}
		var rejection *APIRejectionError
		if errors.As(err, &rejection) {
			state.Key = key
			state.Status = rejectionStatus(rejection)
			state.Data = nil
			state.GraceStartedAt = nil
			state.LastCheckAt = g.now()
			if saveErr := g.store.Save(state); saveErr != nil {
				return nil, saveErr
			}
			g.recordCheck(ctx, string(state.Status))
			return &CheckResult{Status: state.Status, Message: rejection.Error()}, nil
		}
		return nil, err
	}

	// Self-healing re-entry: a valid but deactivated key found while in a
	// negative terminal state gets one automatic re-activation attempt.
	if outcome.Valid && !outcome.Activated && state.Status.terminal() {
		if reactivated, reErr := g.client.Activate(ctx, key); reErr == nil && reactivated.Valid && reactivated.Activated {
			g.logger.InfoContext(ctx, "license automatically re-activated")
			outcome = reactivated
		}
	}

	status := g.statusFromOutcome(outcome)
	state.Key = key
	state.Status = status
	state.Data = outcome.Data
	state.GraceStartedAt = nil
	state.LastCheckAt = g.now()
	if err := g.store.Save(state); err != nil {
		return nil, err
	}

	g.recordCheck(ctx, string(status))
	return &CheckResult{Status: status, Message: statusMessage(status)}, nil
}

// handleNetworkFailure applies the grace-period policy. Only engaged
// while the license is active; any other status surfaces the error.
func (g *Guard) handleNetworkFailure(ctx context.Context, state State, netErr error) (*CheckResult, error) {
	if state.Status != StatusActive {
		return nil, netErr
	}

	now := g.now()
	graceDays := int(math.Ceil(g.grace.Hours() / 24))

	if state.GraceStartedAt == nil {
		state.GraceStartedAt = &now
		if err := g.store.Save(state); err != nil {
			return nil, err
		}
		g.logger.WarnContext(ctx, "license verification unreachable, grace period started",
			slog.Int("grace_days", graceDays))
		return &CheckResult{
			Status:             StatusActive,
			InGrace:            true,
			GraceDaysRemaining: graceDays,
			Message:            fmt.Sprintf("License server unreachable. Sync continues for up to %d more days.", graceDays),
		}, nil
	}

	remaining := state.GraceStartedAt.Add(g.grace).Sub(now)
	if remaining <= 0 {
		state.Status = StatusInactive
		state.GraceStartedAt = nil
		if err := g.store.Save(state); err != nil {
			return nil, err
		}
		g.logger.WarnContext(ctx, "license grace period expired, license inactive")
		return &CheckResult{
			Status:  StatusInactive,
			Message: "License could not be verified within the grace period.",
		}, nil
	}

	daysLeft := int(math.Ceil(remaining.Hours() / 24))
	return &CheckResult{
		Status:             StatusActive,
		InGrace:            true,
		GraceDaysRemaining: daysLeft,
		Message:            fmt.Sprintf("License server unreachable. %d days remaining in grace period.", daysLeft),
	}, nil
}

// statusFromOutcome maps a successful server verdict onto the status
// enum, overriding to expired when the expiry date already passed.
func (g *Guard) statusFromOutcome(outcome *CheckOutcome) Status {
	switch {
	case outcome.Valid && outcome.Activated:
		if outcome.Data != nil && outcome.Data.ExpiresAt != nil && outcome.Data.ExpiresAt.Before(g.now()) {
			return StatusExpired
		}
		return StatusActive
	case outcome.Valid && !outcome.Activated:
		return StatusInactive
	default:
		if outcome.Data != nil && strings.Contains(strings.ToLower(outcome.Data.Status), "expired") {
			return StatusExpired
		}
		return StatusInvalid
	}
}

// rejectionStatus inspects a definitive rejection for an expiry signal
func rejectionStatus(rejection *APIRejectionError) Status {
	if strings.Contains(strings.ToLower(rejection.Message), "expired") {
		return StatusExpired
	}
	return StatusInvalid
}

// statusMessage renders a user-facing message for a status
func statusMessage(status Status) string {
	switch status {
	case StatusActive:
		return "License is active."
	case StatusExpired:
		return "License has expired."
	case StatusInactive:
		return "License is valid but not activated for this domain."
	case StatusInvalid:
		return "License is invalid."
	default:
		return "No license configured."
	}
}

func (g *Guard) recordCheck(ctx context.Context, result string) {
	if g.telemetry == nil {
		return
	}
	g.telemetry.LicenseChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
