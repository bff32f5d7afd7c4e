package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"boxinvest/internal/enrich"
	"boxinvest/internal/market"
	"boxinvest/internal/metrics"
	"boxinvest/internal/ml"
	"boxinvest/internal/scoring"
	"boxinvest/internal/storage"
)

// EnrichmentService is the batch driver around the enrichment pipeline.
// It isolates per-listing failures: one listing's error is logged and
// skipped, never aborting the sweep.
type EnrichmentService struct {
	store     *storage.Store
	pipeline  *enrich.Pipeline
	estimator ml.Estimator
	baselines *market.Store
	metrics   *metrics.Registry
	logger    *slog.Logger
}

// NewEnrichmentService wires the batch driver
func NewEnrichmentService(
	store *storage.Store,
	pipeline *enrich.Pipeline,
	estimator ml.Estimator,
	baselines *market.Store,
	reg *metrics.Registry,
	logger *slog.Logger,
) *EnrichmentService {
	return &EnrichmentService{
		store:     store,
		pipeline:  pipeline,
		estimator: estimator,
		baselines: baselines,
		metrics:   reg,
		logger:    logger.With(slog.String("component", "enrichment_service")),
	}
}

// EnrichListing runs the pipeline for one stored listing and persists
// the resulting record.
func (s *EnrichmentService) EnrichListing(ctx context.Context, listing storage.Listing) error {
	start := time.Now()

	// The model consumes baseline and accessibility features, so resolve
	// them up front; the pipeline recomputes its own copy.
	baseline := s.baselines.Baseline(listing.City)
	preMetrics := enrichmentFeatures(listing, baseline.AvgSellPerSqm, baseline.TransportScore)
	mlPrice := s.estimator.EstimatePrice(ctx, preMetrics)

	record := s.pipeline.Enrich(ctx, enrich.Input{
		ListingID:        listing.ID,
		Price:            listing.Price,
		Surface:          listing.Surface,
		City:             listing.City,
		Lat:              listing.Lat,
		Lon:              listing.Lon,
		Tags:             listing.Tags,
		PhotosCount:      listing.PhotosCount,
		MLEstimatedPrice: mlPrice,
	})

	if err := s.store.UpsertEnrichment(ctx, listing.ID, record); err != nil {
		s.metrics.EnrichmentsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("persist enrichment: %w", err)
	}

	s.metrics.EnrichmentsTotal.WithLabelValues("ok").Inc()
	s.metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())

	s.logger.InfoContext(ctx, "listing enriched",
		slog.String("listing_id", listing.ID),
		slog.String("city", listing.City),
		slog.Float64("edge_score", record.EdgeScore))
	return nil
}

// EnrichPending sweeps listings without an enrichment record. Returns
// how many listings were successfully enriched.
func (s *EnrichmentService) EnrichPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.store.ListPendingEnrichment(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	enriched := 0
	for _, listing := range pending {
		if ctx.Err() != nil {
			return enriched, ctx.Err()
		}
		if err := s.enrichIsolated(ctx, listing); err != nil {
			s.logger.WarnContext(ctx, "enrichment failed for listing, skipping",
				slog.String("listing_id", listing.ID),
				slog.String("error", err.Error()))
			continue
		}
		enriched++
	}

	s.logger.InfoContext(ctx, "enrichment sweep complete",
		slog.Int("pending", len(pending)),
		slog.Int("enriched", enriched))
	return enriched, nil
}

// enrichIsolated shields the sweep from a panicking enrichment
func (s *EnrichmentService) enrichIsolated(ctx context.Context, listing storage.Listing) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("enrichment panicked: %v", rvr)
		}
	}()
	return s.EnrichListing(ctx, listing)
}

// enrichmentFeatures builds the model feature vector from a listing.
// The accessibility score here mirrors the metrics-layer computation so
// the model sees the same value the record will carry.
func enrichmentFeatures(listing storage.Listing, avgSellPerSqm, transportScore float64) ml.Features {
	return ml.Features{
		Surface:            listing.Surface,
		Lat:                listing.Lat,
		Lon:                listing.Lon,
		CityAvgSellPerSqm:  avgSellPerSqm,
		TransportScore:     transportScore,
		AccessibilityScore: accessibilityScore(listing),
		PhotosCount:        listing.PhotosCount,
	}
}

func accessibilityScore(listing storage.Listing) float64 {
	m := scoring.ComputeMetrics(scoring.MetricsInput{
		Price:       listing.Price,
		Surface:     listing.Surface,
		Tags:        listing.Tags,
		PhotosCount: listing.PhotosCount,
	})
	return m.AccessibilityScore
}
