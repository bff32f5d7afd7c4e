package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxinvest/internal/config"
	"boxinvest/internal/dvf"
	"boxinvest/internal/metrics"
	"boxinvest/internal/ml"
)

func newJobsFixture(t *testing.T) (*JobsService, *serviceFixture) {
	t.Helper()

	// every commune 404s: refreshes complete quickly without data
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	t.Cleanup(server.Close)

	fx := newFixture(t, ml.NopEstimator{})
	refresher := dvf.NewRefresher(config.DVFConfig{
		BaseURL:        server.URL,
		Year:           "2024",
		RequestTimeout: time.Second,
		Concurrency:    4,
		MinSamples:     5,
		MinPerLotPrice: 1500,
		MaxPerLotPrice: 150000,
		TypicalSurface: 12.0,
	}, fx.cache, testLogger())

	jobs := NewJobsService(refresher, fx.enrichment, fx.cache, config.JobsConfig{
		Enabled:         true,
		DVFRefreshEvery: time.Hour,
		EnrichEvery:     time.Hour,
		EnrichBatchSize: 50,
	}, metrics.NewRegistry(prometheus.NewRegistry()), testLogger())

	return jobs, fx
}

func TestRunDVFRefresh(t *testing.T) {
	jobs, _ := newJobsFixture(t)
	assert.True(t, jobs.RunDVFRefresh(context.Background()))
	// the flag is released once the run completes
	assert.True(t, jobs.RunDVFRefresh(context.Background()))
}

func TestRunDVFRefreshCoalesces(t *testing.T) {
	jobs, _ := newJobsFixture(t)

	jobs.refreshRunning.Store(true)
	assert.False(t, jobs.RunDVFRefresh(context.Background()))

	jobs.refreshRunning.Store(false)
	assert.True(t, jobs.RunDVFRefresh(context.Background()))
}

func TestRunEnrichmentSweepDefaultsBatchSize(t *testing.T) {
	jobs, fx := newJobsFixture(t)
	storedListing(t, fx.store, "ext-sweep")

	enriched, err := jobs.RunEnrichmentSweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, enriched)
}

func TestStartDisabledJobs(t *testing.T) {
	jobs, _ := newJobsFixture(t)
	jobs.cfg.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// must return immediately without launching tickers
	jobs.Start(ctx)
	assert.False(t, jobs.refreshRunning.Load())
}
