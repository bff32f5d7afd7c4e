package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "boxinvest/internal/errors"
	"boxinvest/internal/services"
)

// JobsHandler exposes manual triggers for the background jobs
type JobsHandler struct {
	jobs         *services.JobsService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(jobs *services.JobsService, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{
		jobs:         jobs,
		logger:       logger,
		errorHandler: apierrors.NewErrorHandler(logger),
	}
}

// RegisterRoutes registers the jobs routes
func (h *JobsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/refresh-dvf", h.RefreshDVF)
		r.Post("/enrich", h.Enrich)
	})
}

// RefreshDVF triggers a baseline refresh in the background
func (h *JobsHandler) RefreshDVF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The refresh runs detached from the request context: it should
	// outlive the HTTP request that triggered it.
	go h.jobs.RunDVFRefresh(context.WithoutCancel(ctx))

	h.logger.InfoContext(ctx, "baseline refresh triggered")
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]any{"status": "refresh started"})
}

// Enrich runs an enrichment sweep synchronously
func (h *JobsHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	enriched, err := h.jobs.RunEnrichmentSweep(ctx, limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrStorage)
		return
	}
	render.JSON(w, r, map[string]any{"enriched": enriched})
}
