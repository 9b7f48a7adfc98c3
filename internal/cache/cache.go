package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through cache over the external data store. Values
// fresher than ttl are served without a fetch; past ttl the next reader
// triggers exactly one re-fetch (concurrent readers wait on it); when
// the fetch fails a stale value may still be served, but never one
// older than 2×ttl — entries are stored with the ceiling as their
// expiration, so anything older is already gone.
type Cache struct {
	ttl     time.Duration
	entries *gocache.Cache
	group   singleflight.Group
	logger  *zap.Logger
}

type entry struct {
	value     interface{}
	fetchedAt time.Time
}

type FetchFunc func(ctx context.Context) (interface{}, error)

func New(ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		ttl:     ttl,
		entries: gocache.New(2*ttl, ttl),
		logger:  logger,
	}
}

func (c *Cache) Get(ctx context.Context, key string, fetch FetchFunc) (interface{}, error) {
	if v, ok := c.fresh(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another waiter may have refreshed while we queued for the flight.
		if v, ok := c.fresh(key); ok {
			return v, nil
		}

		val, err := fetch(ctx)
		if err != nil {
			if stale, ok := c.entries.Get(key); ok {
				e := stale.(entry)
				c.logger.Warn("fetch failed, serving stale value",
					zap.String("key", key),
					zap.Duration("age", time.Since(e.fetchedAt)),
					zap.Error(err))
				return e.value, nil
			}
			return nil, err
		}

		c.entries.Set(key, entry{value: val, fetchedAt: time.Now()}, gocache.DefaultExpiration)
		return val, nil
	})
	return v, err
}

func (c *Cache) Invalidate(key string) {
	c.entries.Delete(key)
}

func (c *Cache) fresh(key string) (interface{}, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if time.Since(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.value, true
}
