package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"boxinvest/internal/services"
)

// HealthHandler serves the health endpoint
type HealthHandler struct {
	health *services.HealthService
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(health *services.HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{health: health, logger: logger}
}

// RegisterRoutes registers the health route
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Check)
}

// Check reports service health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := h.health.Check(r.Context())
	if status.Status != "ok" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}
