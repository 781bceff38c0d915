package chainclient

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DecimalsCache caches token decimals to avoid a ledger read per session
type DecimalsCache struct {
	mu       sync.RWMutex
	cache    map[common.Address]*cachedDecimals
	cacheTTL time.Duration
}

type cachedDecimals struct {
	decimals  uint8
	timestamp time.Time
}

// NewDecimalsCache creates a new decimals cache
func NewDecimalsCache(cacheTTL time.Duration) *DecimalsCache {
	return &DecimalsCache{
		cache:    make(map[common.Address]*cachedDecimals),
		cacheTTL: cacheTTL,
	}
}

// Get retrieves cached decimals if they are still valid
func (c *DecimalsCache) Get(token common.Address) (uint8, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.cache[token]
	if !exists {
		return 0, false
	}

	if time.Since(cached.timestamp) > c.cacheTTL {
		return 0, false
	}

	return cached.decimals, true
}

// Set stores token decimals with the current timestamp
func (c *DecimalsCache) Set(token common.Address, decimals uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[token] = &cachedDecimals{
		decimals:  decimals,
		timestamp: time.Now(),
	}
}

// Clear removes all cached entries
func (c *DecimalsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[common.Address]*cachedDecimals)
}

// Len returns the number of cached entries, expired or not
func (c *DecimalsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
