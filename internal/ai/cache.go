package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultCacheEntries = 256

type cacheEntry struct {
	text      string
	expiresAt time.Time
}

// responseCache memoizes successful generations. Concurrent misses for the
// same key share one provider call.
type responseCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	items map[string]cacheEntry
	sf    singleflight.Group
	now   func() time.Time
}

func newResponseCache(ttl time.Duration, maxEntries int) *responseCache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	return &responseCache{
		ttl:   ttl,
		max:   maxEntries,
		items: make(map[string]cacheEntry),
		now:   time.Now,
	}
}

func cacheKey(req TextRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	h.Write([]byte(req.PlatformHint))
	h.Write([]byte{0})
	h.Write([]byte(req.Context))
	return hex.EncodeToString(h.Sum(nil))
}

// get returns the cached text for key or loads it. Errors are never stored.
func (c *responseCache) get(key string, load func() (string, error)) (string, bool, error) {
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		if c.now().Before(e.expiresAt) {
			c.mu.Unlock()
			return e.text, true, nil
		}
		delete(c.items, key)
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		if e, ok := c.items[key]; ok && c.now().Before(e.expiresAt) {
			c.mu.Unlock()
			return e.text, nil
		}
		c.mu.Unlock()
		text, err := load()
		if err != nil {
			return "", err
		}
		c.store(key, text)
		return text, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

func (c *responseCache) store(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.items) >= c.max {
		c.evictLocked(now)
	}
	c.items[key] = cacheEntry{text: text, expiresAt: now.Add(c.ttl)}
}

// evictLocked drops expired entries, then the one closest to expiry if the
// cache is still full.
func (c *responseCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if len(c.items) >= c.max && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

func (c *responseCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cacheEntry)
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
