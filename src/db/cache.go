package db

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"horizon-server/src/models"
	"horizon-server/src/observability"
)

const transactionCacheName = "transactions"

// TransactionCache holds fetched aggregator transactions per Plaid item id.
// Entries expire after the TTL and are dropped early when a webhook reports
// new data for the item.
//
// Each item has a generation that Invalidate bumps. A fetch records the
// generation before it starts and Set stores its result only if the
// generation is unchanged, so a fetch that raced a webhook cannot write the
// old feed back.
type TransactionCache struct {
	cache   *ristretto.Cache[string, []models.Transaction]
	ttl     time.Duration
	metrics *observability.Metrics

	mu          sync.Mutex
	generations map[string]uint64
}

func NewTransactionCache(ttl time.Duration, metrics *observability.Metrics) (*TransactionCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []models.Transaction]{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     100000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return &TransactionCache{
		cache:       cache,
		ttl:         ttl,
		metrics:     metrics,
		generations: make(map[string]uint64),
	}, nil
}

func (c *TransactionCache) Get(itemID string) ([]models.Transaction, bool) {
	txns, ok := c.cache.Get(itemID)
	if ok {
		c.metrics.IncrCacheHit(transactionCacheName)
	} else {
		c.metrics.IncrCacheMiss(transactionCacheName)
	}
	return txns, ok
}

func (c *TransactionCache) Generation(itemID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[itemID]
}

// Set stores txns if the item is still at generation and reports whether it
// did. Entries are costed by record count so large histories evict first.
func (c *TransactionCache) Set(itemID string, generation uint64, txns []models.Transaction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[itemID] != generation {
		return false
	}
	cost := int64(len(txns))
	if cost == 0 {
		cost = 1
	}
	return c.cache.SetWithTTL(itemID, txns, cost, c.ttl)
}

func (c *TransactionCache) Invalidate(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[itemID]++
	c.cache.Del(itemID)
}

// Wait blocks until buffered writes are applied.
func (c *TransactionCache) Wait() {
	c.cache.Wait()
}

func (c *TransactionCache) Close() {
	c.cache.Close()
}
