package market

import (
	"sync"

	"invertrack-go/internal/models"
)

// SeriesCache holds one generated daily series per symbol for the lifetime
// of the process, so repeated requests return the identical series instead
// of regenerating (regeneration would cause chart discontinuities).
//
// Generation runs at most once per symbol; different symbols may generate
// concurrently, and cached series are read-shared afterwards.
type SeriesCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once   sync.Once
	points []models.PricePoint
}

// NewSeriesCache creates an empty cache.
func NewSeriesCache() *SeriesCache {
	return &SeriesCache{entries: make(map[string]*cacheEntry)}
}

// GetOrGenerate returns the cached series for symbol, invoking generate
// exactly once on first access.
func (c *SeriesCache) GetOrGenerate(symbol string, generate func() []models.PricePoint) []models.PricePoint {
	c.mu.Lock()
	entry, ok := c.entries[symbol]
	if !ok {
		entry = &cacheEntry{}
		c.entries[symbol] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.points = generate()
	})
	return entry.points
}
