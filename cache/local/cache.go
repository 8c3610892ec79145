package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type entry struct {
	data     string
	expireAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// LocalCache is an in-process KV cache with per-key TTL.
type LocalCache struct {
	mu     sync.RWMutex
	kv     map[string]entry
	now    func() time.Time
	stopGC chan struct{}
	once   sync.Once
}

// NewCache creates a LocalCache and starts the background GC goroutine.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	c := &LocalCache{
		kv:     make(map[string]entry),
		now:    now,
		stopGC: make(chan struct{}),
	}
	go c.runGC(interval)
	return c, nil
}

// Close stops the background GC goroutine. It is safe to call twice.
func (c *LocalCache) Close() error {
	c.once.Do(func() { close(c.stopGC) })
	return nil
}

func (c *LocalCache) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopGC:
			return
		}
	}
}

func (c *LocalCache) sweep() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.kv {
		if e.expired(now) {
			delete(c.kv, k)
		}
	}
}

func (c *LocalCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// lookup returns the live entry for key. Callers hold at least a read lock.
func (c *LocalCache) lookup(key string) (entry, bool) {
	e, ok := c.kv[key]
	if !ok || e.expired(c.now()) {
		return entry{}, false
	}
	return e, true
}

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.lookup(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	c.kv[key] = entry{data: value, expireAt: c.expiry(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.kv, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.lookup(key)
	return ok, nil
}

func (c *LocalCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lookup(key); ok {
		return false, nil
	}
	c.kv[key] = entry{data: value, expireAt: c.expiry(ttl)}
	return true, nil
}
