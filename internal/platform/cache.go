package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// CachedSource wraps a CovariateSource with an in-memory LRU cache. Several
// covariates share a dataset (NDVI and NDWI both read Sentinel-2), and
// reruns after a partial failure revisit the same sites, so identical
// queries are common within a run.
type CachedSource struct {
	inner domain.CovariateSource
	cache *lruCache
}

// NewCachedSource creates a cache decorator around a covariate source.
func NewCachedSource(inner domain.CovariateSource, maxEntries int) *CachedSource {
	return &CachedSource{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedSource) FetchSeries(ctx context.Context, q domain.SeriesQuery) (domain.Series, error) {
	key := queryKey(q)
	if series, ok := c.cache.get(key); ok {
		return series, nil
	}
	series, err := c.inner.FetchSeries(ctx, q)
	if err != nil {
		return series, err
	}
	// Empty results are cached too: absence of imagery for a range is as
	// stable as its presence, and repolling on every index would double the
	// platform traffic.
	c.cache.put(key, series)
	return series, nil
}

func queryKey(q domain.SeriesQuery) string {
	return fmt.Sprintf("%s|%s|%.6f,%.6f|%s|%s",
		q.Dataset,
		strings.Join(q.Bands, ","),
		q.Latitude, q.Longitude,
		q.Start.Format("2006-01-02"), q.End.Format("2006-01-02"),
	)
}

// lruCache is a simple thread-safe LRU cache for covariate series.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.Series
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Series, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.Series) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
