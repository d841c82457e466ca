package cache

import (
	"math/big"
	"sync"
	"time"
)

// entry is a cached gas price with its timestamp
type entry struct {
	price     *big.Int
	timestamp time.Time
}

// GasPriceCache is a thread-safe TTL cache for chain gas prices, keyed by
// RPC endpoint. Gas prices move slowly relative to request volume, so a
// short TTL saves one RPC round trip per relay without risking a stale
// price outliving a block.
type GasPriceCache struct {
	data   map[string]*entry
	mutex  sync.RWMutex
	ttl    time.Duration
	stopCh chan struct{}
}

// New creates a GasPriceCache with the specified TTL
func New(ttl time.Duration) *GasPriceCache {
	c := &GasPriceCache{
		data:   make(map[string]*entry),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// Get retrieves a cached gas price if it exists and hasn't expired.
// The returned value is a copy; callers may mutate it freely.
func (c *GasPriceCache) Get(key string) (*big.Int, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, exists := c.data[key]
	if !exists {
		return nil, false
	}
	if time.Since(e.timestamp) > c.ttl {
		return nil, false
	}

	return new(big.Int).Set(e.price), true
}

// Set stores a gas price with the current timestamp
func (c *GasPriceCache) Set(key string, price *big.Int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = &entry{
		price:     new(big.Int).Set(price),
		timestamp: time.Now(),
	}
}

// Size returns the number of entries in the cache
func (c *GasPriceCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// cleanup runs periodically to remove expired entries
func (c *GasPriceCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// removeExpired removes all expired entries from the cache
func (c *GasPriceCache) removeExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	for key, e := range c.data {
		if now.Sub(e.timestamp) > c.ttl {
			delete(c.data, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (c *GasPriceCache) Stop() {
	close(c.stopCh)
}
