package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apiErrors "stocksync/internal/errors"
	"stocksync/internal/services"
)

// SyncHandler exposes the reconciliation endpoints
type SyncHandler struct {
	service services.SyncService
	logger  *slog.Logger
}

// NewSyncHandler creates a sync handler
func NewSyncHandler(service services.SyncService, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "sync")),
	}
}

// Routes returns the sync endpoint router
func (h *SyncHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/run", h.Run)
	r.Get("/status", h.Status)
	r.Post("/toggle", h.Toggle)
	r.Get("/config", h.GetConfig)
	r.Put("/config", h.UpdateConfig)
	r.Post("/test-connection", h.TestConnection)
	r.Post("/preview-columns", h.PreviewColumns)
	r.Get("/intervals", h.Intervals)
	return r
}

// ToggleRequest is the toggle endpoint payload
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// Bind implements render.Binder
func (t *ToggleRequest) Bind(r *http.Request) error {
	return nil
}

// PreviewRequest is the column preview payload. An empty URL previews
// the saved feed.
type PreviewRequest struct {
	URL        string `json:"url"`
	DisableSSL bool   `json:"disable_ssl"`
}

// Bind implements render.Binder
func (p *PreviewRequest) Bind(r *http.Request) error {
	return nil
}

// configRequest wraps the service request for render.Binder
type configRequest struct {
	services.UpdateConfigRequest
}

func (c *configRequest) Bind(r *http.Request) error {
	if c.FeedURL == "" {
		return errors.New("feed_url is required")
	}
	return nil
}

// Run starts a manual reconciliation run
func (h *SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RunNow(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}

// Status reports the aggregate sync state
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

// Toggle enables or disables scheduled sync
func (h *SyncHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	req := &ToggleRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, apiErrors.InvalidRequestWithError(err))
		return
	}

	status, err := h.service.Toggle(r.Context(), req.Enabled)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

// GetConfig returns the current runtime settings
func (h *SyncHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	current, err := h.service.GetConfig(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, current)
}

// UpdateConfig replaces the feed bindings and sync options
func (h *SyncHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	req := &configRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, apiErrors.InvalidRequestWithError(err))
		return
	}

	updated, err := h.service.UpdateConfig(r.Context(), req.UpdateConfigRequest)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, updated)
}

// TestConnection verifies the saved feed is reachable and parseable
func (h *SyncHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	check, err := h.service.TestConnection(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, check)
}

// PreviewColumns fetches a feed's headers and sample rows
func (h *SyncHandler) PreviewColumns(w http.ResponseWriter, r *http.Request) {
	req := &PreviewRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, apiErrors.InvalidRequestWithError(err))
		return
	}

	preview, err := h.service.PreviewColumns(r.Context(), req.URL, req.DisableSSL)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, preview)
}

// Intervals lists the selectable sync cadences
func (h *SyncHandler) Intervals(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Intervals())
}

// renderError maps any service error onto the standard envelope
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apiErrors.APIErrorFor(err)
	_ = render.Render(w, r, apiErrors.NewErrorResponse(apiErr))
}
