// Package http contains the chi HTTP handlers for the listings API.
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "boxinvest/internal/errors"
	"boxinvest/internal/services"
	"boxinvest/internal/storage"
)

// CreateListingRequest is the payload for registering a listing
type CreateListingRequest struct {
	Source      string   `json:"source" validate:"required"`
	ExternalID  string   `json:"external_id"`
	URL         string   `json:"url" validate:"omitempty,url"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Price       float64  `json:"price" validate:"required,gt=0"`
	Surface     *float64 `json:"surface" validate:"omitempty,gt=0"`
	City        string   `json:"city"`
	PostalCode  string   `json:"postal_code"`
	Lat         *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon         *float64 `json:"lon" validate:"omitempty,longitude"`
	PhotosCount int      `json:"photos_count" validate:"gte=0"`
	Tags        []string `json:"accessibility_tags"`
}

// ListingsHandler handles listing-related HTTP requests
type ListingsHandler struct {
	store        *storage.Store
	enrichment   *services.EnrichmentService
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewListingsHandler creates a new listings handler
func NewListingsHandler(store *storage.Store, enrichment *services.EnrichmentService, logger *slog.Logger) *ListingsHandler {
	return &ListingsHandler{
		store:        store,
		enrichment:   enrichment,
		validate:     validator.New(),
		logger:       logger,
		errorHandler: apierrors.NewErrorHandler(logger),
	}
}

// RegisterRoutes registers the listings routes
func (h *ListingsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/listings", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/enrich", h.Enrich)
	})
}

// Create registers a new listing and enriches it immediately
func (h *ListingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateListingRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrInvalidRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var details []apierrors.ValidationError
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, fieldErr := range validationErrs {
				details = append(details, apierrors.ValidationError{
					Field:   fieldErr.Field(),
					Message: fieldErr.Tag(),
				})
			}
		}
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", details))
		return
	}

	id, created, err := h.store.InsertListing(ctx, storage.Listing{
		Source:      req.Source,
		ExternalID:  req.ExternalID,
		URL:         req.URL,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Surface:     req.Surface,
		City:        req.City,
		PostalCode:  req.PostalCode,
		Lat:         req.Lat,
		Lon:         req.Lon,
		PhotosCount: req.PhotosCount,
		Tags:        req.Tags,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrStorage)
		return
	}

	if created {
		listing, err := h.store.GetListing(ctx, id)
		if err == nil {
			if err := h.enrichment.EnrichListing(ctx, *listing); err != nil {
				h.logger.WarnContext(ctx, "initial enrichment failed",
					slog.String("listing_id", id),
					slog.String("error", err.Error()))
			}
		}
		render.Status(r, http.StatusCreated)
	}

	render.JSON(w, r, map[string]any{"id": id, "created": created})
}

// List returns listings ranked by edge score
func (h *ListingsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	city := r.URL.Query().Get("city")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer between 1 and 500"))
			return
		}
		limit = parsed
	}

	listings, err := h.store.ListRanked(ctx, city, limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrStorage)
		return
	}
	if listings == nil {
		listings = []storage.RankedListing{}
	}
	render.JSON(w, r, map[string]any{"listings": listings, "count": len(listings)})
}

// Get returns one listing with its enrichment record
func (h *ListingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	listing, err := h.store.GetListing(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		h.errorHandler.HandleError(w, r, apierrors.ErrListingNotFound)
		return
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrStorage)
		return
	}

	response := map[string]any{"listing": listing}
	if enrichment, err := h.store.GetEnrichment(ctx, id); err == nil {
		response["enrichment"] = enrichment
	}
	render.JSON(w, r, response)
}

// Enrich re-runs the pipeline for one listing
func (h *ListingsHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	listing, err := h.store.GetListing(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		h.errorHandler.HandleError(w, r, apierrors.ErrListingNotFound)
		return
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrStorage)
		return
	}

	if err := h.enrichment.EnrichListing(ctx, *listing); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrStorage)
		return
	}

	enrichment, err := h.store.GetEnrichment(ctx, id)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrStorage)
		return
	}
	render.JSON(w, r, map[string]any{"listing_id": id, "enrichment": enrichment})
}
