package dvf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"boxinvest/internal/config"
	"boxinvest/internal/market"
)

// Refresher downloads commune transaction extracts and writes derived
// sale price baselines into the market cache. It is the cache's only
// writer. RefreshAllCities is idempotent and safe to call repeatedly;
// later completions simply overwrite earlier ones per city.
type Refresher struct {
	cfg    config.DVFConfig
	cache  *market.Cache
	client *http.Client
	// sem bounds simultaneous outbound fetches across all cities
	sem    *semaphore.Weighted
	logger *slog.Logger
	tracer trace.Tracer
}

// NewRefresher creates a refresher writing into the given cache
func NewRefresher(cfg config.DVFConfig, cache *market.Cache, logger *slog.Logger) *Refresher {
	return &Refresher{
		cfg:   cfg,
		cache: cache,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		sem:    semaphore.NewWeighted(cfg.Concurrency),
		logger: logger.With(slog.String("component", "dvf_refresher")),
		tracer: otel.Tracer("boxinvest/dvf"),
	}
}

// RefreshAllCities downloads and caches baselines for all tracked cities.
// Cities are refreshed concurrently; a failure or panic in one city never
// affects another, it just leaves that city's cached value untouched.
func (r *Refresher) RefreshAllCities(ctx context.Context) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0

	for city, cityCfg := range TrackedCities {
		wg.Add(1)
		go func(city string, cityCfg CityConfig) {
			defer wg.Done()
			defer func() {
				if rvr := recover(); rvr != nil {
					r.logger.ErrorContext(ctx, "city refresh panicked",
						slog.String("city", city),
						slog.Any("panic", rvr))
				}
			}()

			price, ok := r.refreshCity(ctx, city, cityCfg)
			if !ok {
				r.logger.WarnContext(ctx, "no transaction data for city, keeping fallback",
					slog.String("city", city))
				return
			}

			r.cache.Put(city, price)
			mu.Lock()
			success++
			mu.Unlock()
		}(city, cityCfg)
	}

	wg.Wait()
	r.logger.InfoContext(ctx, "baseline refresh complete",
		slog.Int("loaded", success),
		slog.Int("tracked", len(TrackedCities)))
}

// refreshCity downloads all commune files for a city, pools per-unit
// prices and returns the median converted to €/m². The second return is
// false when fewer than the minimum sample count of valid prices exist.
func (r *Refresher) refreshCity(ctx context.Context, city string, cityCfg CityConfig) (float64, bool) {
	ctx, span := r.tracer.Start(ctx, "dvf.refresh_city",
		trace.WithAttributes(attribute.String("city", city)))
	defer span.End()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var allPrices []float64

	for _, commune := range cityCfg.Communes {
		wg.Add(1)
		go func(commune string) {
			defer wg.Done()
			prices := r.fetchCommune(ctx, cityCfg.Dept, commune)
			if len(prices) == 0 {
				return
			}
			mu.Lock()
			allPrices = append(allPrices, prices...)
			mu.Unlock()
		}(commune)
	}
	wg.Wait()

	span.SetAttributes(attribute.Int("valid_transactions", len(allPrices)))

	if len(allPrices) < r.cfg.MinSamples {
		r.logger.DebugContext(ctx, "insufficient valid transactions",
			slog.String("city", city),
			slog.Int("count", len(allPrices)),
			slog.Int("min_samples", r.cfg.MinSamples))
		return 0, false
	}

	medianTotal := median(allPrices)
	pricePerSqm := round2(medianTotal / r.cfg.TypicalSurface)

	r.logger.InfoContext(ctx, "city baseline derived",
		slog.String("city", city),
		slog.Float64("median_per_unit", medianTotal),
		slog.Float64("price_per_sqm", pricePerSqm),
		slog.Int("transactions", len(allPrices)))

	return pricePerSqm, true
}

// fetchCommune downloads and parses one commune extract. Every failure
// mode degrades to an empty result: a missing file is normal (not every
// commune publishes an extract), anything else is logged.
func (r *Refresher) fetchCommune(ctx context.Context, dept, commune string) []float64 {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	defer r.sem.Release(1)

	url := fmt.Sprintf("%s/%s/communes/%s/%s.csv", r.cfg.BaseURL, r.cfg.Year, dept, commune)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.logger.WarnContext(ctx, "building extract request failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return nil
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.WarnContext(ctx, "extract download failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		r.logger.DebugContext(ctx, "no extract published for commune",
			slog.String("commune", commune))
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		r.logger.WarnContext(ctx, "extract download returned error status",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode))
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.logger.WarnContext(ctx, "reading extract body failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return nil
	}

	prices, err := ParsePerLotPrices(
		bytes.NewReader(body),
		PriceBounds{Min: r.cfg.MinPerLotPrice, Max: r.cfg.MaxPerLotPrice},
	)
	if err != nil {
		r.logger.DebugContext(ctx, "extract parse failed",
			slog.String("commune", commune),
			slog.String("error", err.Error()))
		return nil
	}
	return prices
}

// median returns the median of values. The slice is copied first so the
// caller's ordering is preserved.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
