package cache

import (
	"context"
	"time"

	"github.com/memorize-mcp/memorize/internal/embedding"
)

// CachedEmbedder decorates an embedding.Embedder with an EmbeddingCache,
// so repeated identical inputs skip the encoder's single-writer mutex
// entirely.
type CachedEmbedder struct {
	inner embedding.Embedder
	cache *EmbeddingCache
}

// WrapEmbedder returns an embedding.Embedder backed by inner, caching
// results for ttl.
func WrapEmbedder(inner embedding.Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: New(ttl)}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, v)
	return v, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Close releases the underlying cache's cleanup goroutine.
func (c *CachedEmbedder) Close() { c.cache.Close() }
