package services

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"boxinvest/internal/config"
	"boxinvest/internal/dvf"
	"boxinvest/internal/market"
	"boxinvest/internal/metrics"
)

// JobsService runs the background cadence: a baseline refresh at startup
// and on a long interval, plus periodic enrichment sweeps. The cadence
// values come from configuration; the decision of when to change them is
// an operator concern.
type JobsService struct {
	refresher  *dvf.Refresher
	enrichment *EnrichmentService
	cache      *market.Cache
	cfg        config.JobsConfig
	metrics    *metrics.Registry
	logger     *slog.Logger

	refreshRunning atomic.Bool
}

// NewJobsService wires the background jobs
func NewJobsService(
	refresher *dvf.Refresher,
	enrichment *EnrichmentService,
	cache *market.Cache,
	cfg config.JobsConfig,
	reg *metrics.Registry,
	logger *slog.Logger,
) *JobsService {
	return &JobsService{
		refresher:  refresher,
		enrichment: enrichment,
		cache:      cache,
		cfg:        cfg,
		metrics:    reg,
		logger:     logger.With(slog.String("component", "jobs")),
	}
}

// Start launches the background tickers. It returns immediately; the
// goroutines stop when ctx is cancelled.
func (j *JobsService) Start(ctx context.Context) {
	if !j.cfg.Enabled {
		j.logger.InfoContext(ctx, "background jobs disabled")
		return
	}

	go func() {
		// Refresh once at startup so the first enrichments already see
		// transaction-derived baselines where available.
		j.RunDVFRefresh(ctx)

		ticker := time.NewTicker(j.cfg.DVFRefreshEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.RunDVFRefresh(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(j.cfg.EnrichEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := j.enrichment.EnrichPending(ctx, j.cfg.EnrichBatchSize); err != nil {
					j.logger.WarnContext(ctx, "scheduled enrichment sweep failed",
						slog.String("error", err.Error()))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	j.logger.InfoContext(ctx, "background jobs started",
		slog.Duration("dvf_refresh_every", j.cfg.DVFRefreshEvery),
		slog.Duration("enrich_every", j.cfg.EnrichEvery))
}

// RunDVFRefresh executes one full baseline refresh. Concurrent calls
// coalesce: a second trigger while one runs is a no-op reporting false.
func (j *JobsService) RunDVFRefresh(ctx context.Context) bool {
	if !j.refreshRunning.CompareAndSwap(false, true) {
		j.logger.InfoContext(ctx, "baseline refresh already running")
		return false
	}
	defer j.refreshRunning.Store(false)

	start := time.Now()
	j.refresher.RefreshAllCities(ctx)
	j.metrics.DVFRefreshTotal.WithLabelValues("ok").Inc()
	j.metrics.CachedCities.Set(float64(j.cache.Len()))

	j.logger.InfoContext(ctx, "baseline refresh finished",
		slog.Duration("took", time.Since(start)),
		slog.Int("cached_cities", j.cache.Len()))
	return true
}

// RunEnrichmentSweep triggers one enrichment sweep
func (j *JobsService) RunEnrichmentSweep(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = j.cfg.EnrichBatchSize
	}
	return j.enrichment.EnrichPending(ctx, limit)
}
