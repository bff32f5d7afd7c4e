package market

import "sync"

// Cache is the process-wide store for transaction-derived sale price
// baselines (€/m²), keyed by city name.
//
// Single-writer discipline: only the DVF refresher calls Put; every other
// component reads. Entries are replaced atomically per city and never
// expire here — staleness is the scheduler's concern.
type Cache struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewCache creates an empty baseline cache
func NewCache() *Cache {
	return &Cache{prices: make(map[string]float64)}
}

// Put stores or replaces the sale price baseline for a city
func (c *Cache) Put(city string, pricePerSqm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[city] = pricePerSqm
}

// Get returns the cached sale price baseline for a city, if present
func (c *Cache) Get(city string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[city]
	return price, ok
}

// Len returns the number of cities with a cached baseline
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

// Snapshot returns a copy of the current cache contents
func (c *Cache) Snapshot() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.prices))
	for city, price := range c.prices {
		out[city] = price
	}
	return out
}
