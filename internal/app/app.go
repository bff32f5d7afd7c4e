// Package app assembles the service: configuration, logging, tracing,
// storage, the enrichment pipeline and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"boxinvest/internal/config"
	"boxinvest/internal/dvf"
	"boxinvest/internal/enrich"
	"boxinvest/internal/geo"
	"boxinvest/internal/infrastructure"
	"boxinvest/internal/market"
	"boxinvest/internal/metrics"
	customMiddleware "boxinvest/internal/middleware"
	"boxinvest/internal/ml"
	"boxinvest/internal/scoring"
	"boxinvest/internal/services"
	"boxinvest/internal/storage"
	handlers "boxinvest/internal/transport/http"
)

// Application is the dependency container for the service
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Router        *chi.Mux
	Server        *http.Server
	Store         *storage.Store
	Cache         *market.Cache
	Baselines     *market.Store
	Refresher     *dvf.Refresher
	Enrichment    *services.EnrichmentService
	Jobs          *services.JobsService
	Health        *services.HealthService
	Metrics       *metrics.Registry
	OTelProviders *infrastructure.OTelProviders

	promRegistry *prometheus.Registry
}

// NewApplication builds the application with all dependencies wired
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("service", infrastructure.ServiceName),
		slog.String("version", infrastructure.ServiceVersion))

	if sum := cfg.WeightSum(); sum < 0.99 || sum > 1.01 {
		logger.Warn("edge score weights do not sum to 1.0, scores will be skewed",
			slog.Float64("sum", sum))
	}

	otelProviders, err := infrastructure.InitializeOTel(logger)
	if err != nil {
		logger.Warn("tracing disabled", slog.String("error", err.Error()))
		otelProviders = nil
	}

	store, err := storage.Open(cfg.Storage.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	registry := metrics.NewRegistry(promRegistry)

	cache := market.NewCache()
	baselines := market.NewStore(cache)
	refresher := dvf.NewRefresher(cfg.DVF, cache, logger)

	geoClient := geo.NewClient(cfg.Geo.Endpoint, cfg.Geo.RequestTimeout, geo.RetryPolicy{
		MaxAttempts:  cfg.Geo.MaxAttempts,
		InitialDelay: cfg.Geo.InitialBackoff,
		MaxDelay:     cfg.Geo.MaxBackoff,
		Multiplier:   2.0,
	}, logger)

	var estimator ml.Estimator = ml.NopEstimator{}
	if cfg.ML.Enabled {
		estimator = ml.NewHTTPEstimator(cfg.ML.ServiceURL, cfg.ML.RequestTimeout, logger)
	}

	pipeline := enrich.NewPipeline(baselines, geoClient, scoring.WeightsFromConfig(cfg.Scoring), logger)
	enrichment := services.NewEnrichmentService(store, pipeline, estimator, baselines, registry, logger)
	jobs := services.NewJobsService(refresher, enrichment, cache, cfg.Jobs, registry, logger)
	health := services.NewHealthService(store, cache, logger)

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		Cache:         cache,
		Baselines:     baselines,
		Refresher:     refresher,
		Enrichment:    enrichment,
		Jobs:          jobs,
		Health:        health,
		Metrics:       registry,
		OTelProviders: otelProviders,
		promRegistry:  promRegistry,
	}
	a.Router = a.buildRouter()
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return a, nil
}

// buildRouter assembles the chi router with middleware and routes
func (a *Application) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.NewRateLimiter(
		a.Config.Server.RateLimitRPS,
		a.Config.Server.RateLimitBurst,
		a.Logger,
	))

	listingsHandler := handlers.NewListingsHandler(a.Store, a.Enrichment, a.Logger)
	jobsHandler := handlers.NewJobsHandler(a.Jobs, a.Logger)
	analyticsHandler := handlers.NewAnalyticsHandler(a.Store, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.Health, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		listingsHandler.RegisterRoutes(r)
		jobsHandler.RegisterRoutes(r)
		analyticsHandler.RegisterRoutes(r)
		healthHandler.RegisterRoutes(r)
	})

	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{}))

	return r
}

// Run starts the background jobs and the HTTP server, blocking until
// shutdown completes.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Jobs.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("http server shutdown failed", slog.String("error", err.Error()))
	}
	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("tracer shutdown failed", slog.String("error", err.Error()))
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("storage close failed", slog.String("error", err.Error()))
	}
	_ = infrastructure.CloseLogFile()

	a.Logger.Info("shutdown complete")
	return nil
}

// WaitForReady polls the health endpoint until the deadline, for tests
func (a *Application) WaitForReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://localhost:%d/api/health", a.Config.Server.Port)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %s", timeout)
}
