package market

// Store resolves the market baseline for a city. Lookup order:
//
//  1. transaction-derived sale price from the cache, substituted for
//     AvgSellPerSqm only (all other fields stay static)
//  2. static table entry for the city
//  3. static default entry
//
// Baseline is pure and synchronous; it always returns a value.
type Store struct {
	cache *Cache
}

// NewStore creates a baseline store backed by the given cache.
// A nil cache disables the substitution step.
func NewStore(cache *Cache) *Store {
	return &Store{cache: cache}
}

// Baseline returns the market baseline for the given city
func (s *Store) Baseline(city string) Baseline {
	baseline, ok := cityTable[city]
	if !ok {
		baseline = defaultBaseline
	}

	if s.cache != nil {
		if price, ok := s.cache.Get(city); ok {
			baseline.AvgSellPerSqm = price
		}
	}

	return baseline
}

// TrackedCities returns the names of cities with a static table entry
func TrackedCities() []string {
	cities := make([]string, 0, len(cityTable))
	for city := range cityTable {
		cities = append(cities, city)
	}
	return cities
}
