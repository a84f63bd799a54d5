package version

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/spider-rs/headless-browser/internal/infrastructure/monitoring"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a successful version body is reused
const DefaultTTL = 10 * time.Second

// FetchFunc produces a value for a key. ok=false marks a failure that must
// not be remembered.
type FetchFunc func(ctx context.Context) (body []byte, ok bool)

// Cache deduplicates concurrent fetches per key and remembers successful
// results for a TTL. Returned slices are shared and must not be modified.
type Cache struct {
	ttl     time.Duration
	store   *cache.Cache
	group   singleflight.Group
	gen     atomic.Uint64
	metrics *monitoring.Metrics
}

type result struct {
	body []byte
	ok   bool
}

// NewCache creates a cache. A zero ttl uses DefaultTTL.
func NewCache(ttl time.Duration, metrics *monitoring.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		store:   cache.New(ttl, 2*ttl),
		metrics: metrics,
	}
}

// TTL returns the retention of successful results
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Generation identifies the current purge epoch
func (c *Cache) Generation() uint64 {
	return c.gen.Load()
}

// GetOrFetch returns the cached value for key or runs fetch. At most one
// fetch per key is in flight; concurrent callers share its result. Only
// non-empty successful results are stored. A caller whose ctx ends stops
// waiting without cancelling the shared fetch.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) ([]byte, bool) {
	return c.GetOrFetchSince(ctx, key, c.gen.Load(), fetch)
}

// GetOrFetchSince is GetOrFetch for a caller that decided to use the cache
// during generation gen. The result is not stored if a Purge happened
// since, even when the purge landed before the fetch started.
func (c *Cache) GetOrFetchSince(ctx context.Context, key string, gen uint64, fetch FetchFunc) ([]byte, bool) {
	if body, found := c.lookup(key); found {
		c.record("hit")
		return body, true
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// a leader that finished between lookup and DoChan may have stored it
		if body, found := c.lookup(key); found {
			return result{body: body, ok: true}, nil
		}

		c.record("miss")
		body, ok := fetch(shared)
		if ok && len(body) > 0 && c.gen.Load() == gen {
			c.store.Set(key, body, cache.DefaultExpiration)
			c.record("store")
		}
		return result{body: body, ok: ok && len(body) > 0}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false
	case res := <-ch:
		r := res.Val.(result)
		return r.body, r.ok
	}
}

// Purge drops every entry. Fetches already in flight will not store.
func (c *Cache) Purge() {
	c.gen.Add(1)
	c.store.Flush()
}

// Len returns the stored entry count, expired entries included until evicted
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

func (c *Cache) lookup(key string) ([]byte, bool) {
	v, found := c.store.Get(key)
	if !found {
		return nil, false
	}
	return v.([]byte), true
}

func (c *Cache) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordCache(result)
	}
}
