package utils

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheItem wraps a cached value with its expiry.
type CacheItem struct {
	Data      any
	ExpiresAt time.Time
}

// Cache is a bounded in-process LRU whose entries expire after a TTL.
type Cache struct {
	mu       sync.Mutex
	lruCache *lru.Cache[string, CacheItem]
	now      func() time.Time
}

func NewCache(size int) (*Cache, error) {
	l, err := lru.New[string, CacheItem](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lruCache: l, now: time.Now}, nil
}

// Set stores data under key for ttl.
func (c *Cache) Set(key string, data any, ttl time.Duration) {
	c.lruCache.Add(key, CacheItem{
		Data:      data,
		ExpiresAt: c.now().Add(ttl),
	})
}

// Get returns the cached value, or nil when it is missing or expired.
func (c *Cache) Get(key string) any {
	val, ok := c.lruCache.Get(key)
	if !ok {
		return nil
	}
	if c.now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return nil
	}
	return val.Data
}

// SeenRecently records key for ttl and reports whether it was already
// recorded and still fresh. Check and insert happen atomically.
func (c *Cache) SeenRecently(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Get(key) != nil {
		return true
	}
	c.Set(key, true, ttl)
	return false
}
