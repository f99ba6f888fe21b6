// Package cache provides a small TTL-based embedding cache, adapted
// from the teacher's internal/agent.RoutingCache. Repeated identical
// text — the same hook context string fired on every editor keystroke,
// or a query re-asked across turns — would otherwise re-acquire the
// Embedder's single-writer mutex (§4.1, §5) for no new result; caching
// the embedding keeps that contention off the hot path.
package cache

import (
	"strings"
	"sync"
	"time"
)

// entry holds one cached embedding.
type entry struct {
	vector   []float32
	cachedAt time.Time
}

// EmbeddingCache is a TTL-based cache keyed by normalized input text.
// Mirrors RoutingCache's shape: a mutex-guarded map plus a background
// cleanup goroutine started at construction time.
type EmbeddingCache struct {
	mu    sync.RWMutex
	cache map[string]entry
	ttl   time.Duration
	stop  chan struct{}
}

// New creates a cache with the given TTL and starts its background
// cleanup goroutine. Call Close to stop it.
func New(ttl time.Duration) *EmbeddingCache {
	c := &EmbeddingCache{
		cache: make(map[string]entry),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the cached vector for text if present and not expired.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.cache[normalize(text)]; ok {
		if time.Since(e.cachedAt) < c.ttl {
			return e.vector, true
		}
	}
	return nil, false
}

// Set stores vec under text's normalized key.
func (c *EmbeddingCache) Set(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[normalize(text)] = entry{vector: vec, cachedAt: time.Now()}
}

// Close stops the background cleanup goroutine.
func (c *EmbeddingCache) Close() {
	close(c.stop)
}

func (c *EmbeddingCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.cache {
				if now.Sub(e.cachedAt) > c.ttl {
					delete(c.cache, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
