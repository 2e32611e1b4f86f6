package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"stocksync/internal/services"
)

// LogHandler exposes the run log endpoints
type LogHandler struct {
	service services.LogService
	logger  *slog.Logger
}

// NewLogHandler creates a log handler
func NewLogHandler(service services.LogService, logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "logs")),
	}
}

// Routes returns the run log endpoint router
func (h *LogHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Recent)
	r.Get("/stats", h.Stats)
	r.Delete("/", h.Clear)
	return r
}

// Recent lists run log entries, newest first. Supports ?limit= and
// ?status= filters.
func (h *LogHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	entries, err := h.service.Recent(r.Context(), limit, r.URL.Query().Get("status"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, entries)
}

// Stats summarizes the retained history
func (h *LogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	agg, err := h.service.Stats(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, agg)
}

// Clear empties the run log
func (h *LogHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context()); err != nil {
		renderError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
