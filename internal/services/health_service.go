package services

import (
	"context"
	"log/slog"
	"time"

	"boxinvest/internal/market"
	"boxinvest/internal/storage"
)

// HealthStatus is the health check response
type HealthStatus struct {
	Status       string    `json:"status"`
	Database     string    `json:"database"`
	CachedCities int       `json:"cached_cities"`
	CheckedAt    time.Time `json:"checked_at"`
}

// HealthService reports service health
type HealthService struct {
	store  *storage.Store
	cache  *market.Cache
	logger *slog.Logger
}

// NewHealthService creates a health service
func NewHealthService(store *storage.Store, cache *market.Cache, logger *slog.Logger) *HealthService {
	return &HealthService{
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "health")),
	}
}

// Check reports the current health. Database failure degrades the
// status but the endpoint itself never errors.
func (h *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       "ok",
		Database:     "ok",
		CachedCities: h.cache.Len(),
		CheckedAt:    time.Now().UTC(),
	}

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "database ping failed",
			slog.String("error", err.Error()))
		status.Status = "degraded"
		status.Database = "unavailable"
	}
	return status
}
