package dvf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxinvest/internal/config"
	"boxinvest/internal/market"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDVFConfig(baseURL string) config.DVFConfig {
	return config.DVFConfig{
		BaseURL:        baseURL,
		Year:           "2024",
		RequestTimeout: 5 * time.Second,
		Concurrency:    4,
		MinSamples:     5,
		MinPerLotPrice: 1500,
		MaxPerLotPrice: 150000,
		TypicalSurface: 12.0,
	}
}

// extractWithSales builds a commune CSV with n distinct single-lot sales
// priced base, base+1000, base+2000, ...
func extractWithSales(n int, base float64) string {
	out := extractHeader
	for i := 0; i < n; i++ {
		out += fmt.Sprintf("2024-%d,2024-03-12,Vente,\"%.2f\",Dépendance\n", i+1, base+float64(i)*1000)
	}
	return out
}

func TestRefreshCityDerivesMedianBaseline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2024/communes/33/33063.csv" {
			http.NotFound(w, r)
			return
		}
		// 5 sales: 20000..24000, median 22000
		io.WriteString(w, extractWithSales(5, 20000))
	}))
	defer server.Close()

	cache := market.NewCache()
	refresher := NewRefresher(testDVFConfig(server.URL), cache, testLogger())

	price, ok := refresher.refreshCity(context.Background(), "Bordeaux", CityConfig{
		Dept:     "33",
		Communes: []string{"33063"},
	})

	require.True(t, ok)
	// median 22000€ per unit over 12m²
	assert.InDelta(t, 1833.33, price, 0.001)
}

func TestRefreshCityPoolsCommunes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2024/communes/69/69381.csv":
			io.WriteString(w, extractWithSales(3, 18000))
		case "/2024/communes/69/69382.csv":
			io.WriteString(w, extractWithSales(4, 30000))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cache := market.NewCache()
	refresher := NewRefresher(testDVFConfig(server.URL), cache, testLogger())

	// 3 + 4 samples clears the minimum only because communes are pooled
	price, ok := refresher.refreshCity(context.Background(), "Lyon", CityConfig{
		Dept:     "69",
		Communes: []string{"69381", "69382", "69383"},
	})

	require.True(t, ok)
	// pooled: 18000,19000,20000,30000,31000,32000,33000 → median 30000
	assert.InDelta(t, 2500.0, price, 0.001)
}

func TestRefreshCityInsufficientSamples(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, extractWithSales(4, 20000))
	}))
	defer server.Close()

	cache := market.NewCache()
	refresher := NewRefresher(testDVFConfig(server.URL), cache, testLogger())

	_, ok := refresher.refreshCity(context.Background(), "Bordeaux", CityConfig{
		Dept:     "33",
		Communes: []string{"33063"},
	})
	assert.False(t, ok)
}

func TestRefreshAllCitiesKeepsCacheOnMissingData(t *testing.T) {
	// Every commune 404s: previously cached values must survive untouched.
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	cache := market.NewCache()
	cache.Put("Paris", 2650.0)
	cache.Put("Lyon", 1380.0)

	refresher := NewRefresher(testDVFConfig(server.URL), cache, testLogger())
	refresher.RefreshAllCities(context.Background())

	assert.Equal(t, map[string]float64{"Paris": 2650.0, "Lyon": 1380.0}, cache.Snapshot())
}

func TestRefreshAllCitiesPopulatesCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/2024/communes/33/33063.csv" {
			io.WriteString(w, extractWithSales(6, 15000))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	cache := market.NewCache()
	refresher := NewRefresher(testDVFConfig(server.URL), cache, testLogger())
	refresher.RefreshAllCities(context.Background())

	price, ok := cache.Get("Bordeaux")
	require.True(t, ok)
	// samples 15000..20000, median 17500, over 12m²
	assert.InDelta(t, 1458.33, price, 0.001)
	assert.Equal(t, 1, cache.Len())
}

func TestFetchCommuneErrorStatusIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cache := market.NewCache()
	refresher := NewRefresher(testDVFConfig(server.URL), cache, testLogger())

	assert.Empty(t, refresher.fetchCommune(context.Background(), "75", "75101"))
}

func TestRefresherBoundsConcurrentDownloads(t *testing.T) {
	var inFlight, peak atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := inFlight.Add(1)
		for {
			observed := peak.Load()
			if current <= observed || peak.CompareAndSwap(observed, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	cfg := testDVFConfig(server.URL)
	cfg.Concurrency = 2

	cache := market.NewCache()
	refresher := NewRefresher(cfg, cache, testLogger())
	refresher.refreshCity(context.Background(), "Paris", CityConfig{
		Dept:     "75",
		Communes: communeRange("751%02d", 1, 20),
	})

	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestRefreshCityCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, extractWithSales(6, 20000))
	}))
	defer server.Close()

	cache := market.NewCache()
	refresher := NewRefresher(testDVFConfig(server.URL), cache, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := refresher.refreshCity(ctx, "Bordeaux", CityConfig{
		Dept:     "33",
		Communes: []string{"33063"},
	})
	assert.False(t, ok)
}
