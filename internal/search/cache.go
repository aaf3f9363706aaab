package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 15 * time.Minute
)

// CacheStats tracks cache performance
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// HitRate returns hits over lookups, or zero before the first lookup
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cached memoizes a backend's results for a bounded time.
// Failed searches are not cached.
type Cached struct {
	backend Backend
	entries *expirable.LRU[string, []Result]
	hits    atomic.Int64
	misses  atomic.Int64
}

var _ Backend = &Cached{}

// NewCached wraps backend with an LRU of size entries expiring after ttl.
// Non-positive values select the defaults.
func NewCached(backend Backend, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		backend: backend,
		entries: expirable.NewLRU[string, []Result](size, nil, ttl),
	}
}

func (c *Cached) Name() string {
	return c.backend.Name()
}

func (c *Cached) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	key := cacheKey(c.backend.Name(), query, limit)
	if results, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return slices.Clone(results), nil
	}
	c.misses.Add(1)

	results, err := c.backend.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, slices.Clone(results))
	return results, nil
}

// Stats returns a snapshot of the cache counters
func (c *Cached) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.entries.Len(),
	}
}

// cacheKey hashes the normalized query so keys stay small
func cacheKey(backend, query string, limit int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", backend, normalized, limit)))
	return hex.EncodeToString(sum[:])
}
