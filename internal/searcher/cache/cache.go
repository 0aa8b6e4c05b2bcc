// Package cache memoizes search results in Redis. Keys embed the commit ID,
// which is unique per commit, so a new commit, a rebuilt directory or another
// index sharing the same Redis never serves results of a different snapshot.
// Stale entries simply expire.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Store is the key/value backend; *pkgredis.Client satisfies it. Get returns
// pkgredis.ErrMiss for absent keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, commitID string, q query.Query, limit int) (*searcher.TopDocs, bool) {
	key := BuildKey(commitID, q, limit)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, pkgredis.ErrMiss) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.recordMiss()
		return nil, false
	}
	var result searcher.TopDocs
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	c.logger.Debug("cache hit", "query", q.String(), "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, commitID string, q query.Query, limit int, result *searcher.TopDocs) {
	key := BuildKey(commitID, q, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs compute once per key even
// under concurrent callers. The bool reports a cache hit. Errors from compute
// are returned and not cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	commitID string,
	q query.Query,
	limit int,
	compute func() (*searcher.TopDocs, error),
) (*searcher.TopDocs, bool, error) {
	if result, ok := c.Get(ctx, commitID, q, limit); ok {
		return result, true, nil
	}
	key := BuildKey(commitID, q, limit)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, commitID, q, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*searcher.TopDocs), false, nil
}

// Invalidate drops every cached search.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey derives the cache key from the commit ID, the canonical query
// string and the limit. An uncommitted index has an empty commit ID and
// always yields no hits.
func BuildKey(commitID string, q query.Query, limit int) string {
	if commitID == "" {
		commitID = "none"
	}
	raw := fmt.Sprintf("%s|limit=%d", q.String(), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, commitID, hash[:16])
}
