package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaselineStaticLookup(t *testing.T) {
	store := NewStore(nil)

	lyon := store.Baseline("Lyon")
	assert.InDelta(t, 13.0, lyon.AvgRentPerSqm, 0.001)
	assert.InDelta(t, 1400.0, lyon.AvgSellPerSqm, 0.001)
	assert.InDelta(t, 78.0, lyon.TransportScore, 0.001)

	paris := store.Baseline("Paris")
	assert.InDelta(t, 2800.0, paris.AvgSellPerSqm, 0.001)
	assert.InDelta(t, 21000.0, paris.PopulationDensity, 0.001)
}

func TestBaselineUnknownCityFallsBackToDefault(t *testing.T) {
	store := NewStore(NewCache())

	tests := []string{"Clermont-Ferrand", "", "lyon"}
	for _, city := range tests {
		b := store.Baseline(city)
		assert.InDelta(t, 9.0, b.AvgRentPerSqm, 0.001, "city %q", city)
		assert.InDelta(t, 800.0, b.AvgSellPerSqm, 0.001, "city %q", city)
		assert.InDelta(t, 40.0, b.TransportScore, 0.001, "city %q", city)
	}
}

func TestBaselineCacheSubstitutesSellPriceOnly(t *testing.T) {
	cache := NewCache()
	cache.Put("Lyon", 1525.50)
	store := NewStore(cache)

	lyon := store.Baseline("Lyon")
	assert.InDelta(t, 1525.50, lyon.AvgSellPerSqm, 0.001)

	// every other field stays on the static table
	assert.InDelta(t, 13.0, lyon.AvgRentPerSqm, 0.001)
	assert.InDelta(t, 10500.0, lyon.PopulationDensity, 0.001)
	assert.InDelta(t, 78.0, lyon.TransportScore, 0.001)
	assert.InDelta(t, 18.0, lyon.CommercialDensity, 0.001)
}

func TestBaselineCacheAppliesOverDefaultEntry(t *testing.T) {
	cache := NewCache()
	cache.Put("Annecy", 2100.0)
	store := NewStore(cache)

	b := store.Baseline("Annecy")
	assert.InDelta(t, 2100.0, b.AvgSellPerSqm, 0.001)
	assert.InDelta(t, 9.0, b.AvgRentPerSqm, 0.001)
}

func TestCacheOperations(t *testing.T) {
	cache := NewCache()
	assert.Equal(t, 0, cache.Len())

	_, ok := cache.Get("Paris")
	assert.False(t, ok)

	cache.Put("Paris", 2700.0)
	cache.Put("Paris", 2750.0) // replace

	price, ok := cache.Get("Paris")
	require.True(t, ok)
	assert.InDelta(t, 2750.0, price, 0.001)
	assert.Equal(t, 1, cache.Len())

	snapshot := cache.Snapshot()
	snapshot["Paris"] = 0 // mutating the snapshot must not touch the cache
	price, _ = cache.Get("Paris")
	assert.InDelta(t, 2750.0, price, 0.001)
}

func TestTrackedCitiesCoversStaticTable(t *testing.T) {
	cities := TrackedCities()
	assert.Len(t, cities, 12)
	assert.Contains(t, cities, "Strasbourg")
}
