// Package local is the single-process cache and pub/sub used when no Redis
// address is configured, and in tests.
package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds Cache settings.
type Config struct {
	GCInterval time.Duration
}

// item is either a plain string or a hash; a zero expireAt never expires.
type item struct {
	str      string
	hash     map[string]string
	expireAt time.Time
}

func (it *item) expired(now time.Time) bool {
	return !it.expireAt.IsZero() && now.After(it.expireAt)
}

// Cache keeps session tokens and stats snapshots in memory. Strings and
// hashes share one key space, as they do in Redis.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*item

	stop      chan struct{}
	closeOnce sync.Once
}

// NewCache creates a Cache and starts sweeping expired keys every
// cfg.GCInterval (30s when unset).
func NewCache(cfg Config) *Cache {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &Cache{
		items: make(map[string]*item),
		stop:  make(chan struct{}),
	}
	go c.sweep(interval)
	return c
}

// Close stops the sweeper.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.mu.Lock()
			for k, it := range c.items {
				if it.expired(now) {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// live returns the unexpired item under key. Caller holds mu.
func (c *Cache) live(key string) *item {
	it, ok := c.items[key]
	if !ok || it.expired(time.Now()) {
		return nil
	}
	return it
}

func (c *Cache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it := c.live(key)
	if it == nil || it.hash != nil {
		return "", ErrNotFound
	}
	return it.str, nil
}

// Set stores value under key; ttl <= 0 keeps it until deleted.
func (c *Cache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	it := &item{str: value}
	if ttl > 0 {
		it.expireAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = it
	c.mu.Unlock()
	return nil
}

func (c *Cache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.live(key) != nil, nil
}

// HSet merges fields into the hash at key, replacing a string value if one
// was stored there.
func (c *Cache) HSet(_ context.Context, key string, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.live(key)
	if it == nil || it.hash == nil {
		it = &item{hash: make(map[string]string, len(fields))}
		c.items[key] = it
	}
	for f, v := range fields {
		it.hash[f] = v
	}
	return nil
}

// HGetAll returns a copy of the hash at key, empty when absent.
func (c *Cache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string)
	if it := c.live(key); it != nil {
		for f, v := range it.hash {
			out[f] = v
		}
	}
	return out, nil
}
