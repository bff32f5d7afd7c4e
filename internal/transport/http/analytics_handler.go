package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "boxinvest/internal/errors"
	"boxinvest/internal/storage"
)

// AnalyticsHandler serves portfolio-level aggregates
type AnalyticsHandler struct {
	store        *storage.Store
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(store *storage.Store, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		store:        store,
		logger:       logger,
		errorHandler: apierrors.NewErrorHandler(logger),
	}
}

// RegisterRoutes registers the analytics routes
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/summary", h.Summary)
	})
}

// Summary returns the portfolio summary
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.AnalyticsSummary(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrStorage)
		return
	}
	render.JSON(w, r, summary)
}
