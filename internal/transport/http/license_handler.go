package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apiErrors "stocksync/internal/errors"
	"stocksync/internal/license"
	"stocksync/internal/services"
)

// LicenseHandler exposes the license endpoints
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a license handler
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the license endpoint router
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.Status)
	r.Post("/activate", h.Activate)
	r.Post("/check", h.Check)
	r.Post("/deactivate", h.Deactivate)
	return r
}

// ActivateRequest is the activation payload
type ActivateRequest struct {
	LicenseKey string `json:"license_key"`
}

// Bind implements render.Binder
func (a *ActivateRequest) Bind(r *http.Request) error {
	if a.LicenseKey == "" {
		return errors.New("license_key is required")
	}
	return nil
}

// Status returns the persisted license state
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

// Activate activates a license key for this installation
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	req := &ActivateRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, apiErrors.InvalidRequestWithError(err))
		return
	}

	status, err := h.service.Activate(r.Context(), req.LicenseKey)
	if err != nil {
		renderError(w, r, licenseAPIError(err))
		return
	}
	render.JSON(w, r, status)
}

// Check re-verifies the stored license against the license server
func (h *LicenseHandler) Check(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Check(r.Context())
	if err != nil {
		renderError(w, r, licenseAPIError(err))
		return
	}
	render.JSON(w, r, status)
}

// Deactivate releases this installation's activation
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context()); err != nil {
		renderError(w, r, licenseAPIError(err))
		return
	}
	render.NoContent(w, r)
}

// licenseAPIError maps license client failures onto API errors before
// the generic mapping runs.
func licenseAPIError(err error) error {
	var rejection *license.APIRejectionError
	switch {
	case errors.Is(err, license.ErrNoKey):
		return apiErrors.New(http.StatusBadRequest, "NO_LICENSE_KEY", err.Error())
	case errors.As(err, &rejection):
		return apiErrors.NewWithDetails(http.StatusUnprocessableEntity, "LICENSE_REJECTED", rejection.Error(), rejection.Errors)
	case license.IsNetworkError(err):
		return apiErrors.New(http.StatusBadGateway, "LICENSE_API_UNREACHABLE", err.Error())
	default:
		return err
	}
}
