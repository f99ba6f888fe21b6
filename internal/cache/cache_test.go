package cache

import (
	"context"
	"testing"
	"time"

	"github.com/memorize-mcp/memorize/internal/vectormath"
)

// countingEmbedder counts how many times Embed is actually invoked, so
// tests can assert the cache is shielding it from repeated calls.
type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	v := make([]float32, vectormath.Dim)
	v[0] = 1
	return v, nil
}

func (c *countingEmbedder) Dimensions() int { return vectormath.Dim }

// TestEmbeddingCacheGetSetRoundTrip checks basic storage.
func TestEmbeddingCacheGetSetRoundTrip(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	if _, ok := c.Get("hello"); ok {
		t.Fatal("expected miss before any Set")
	}
	v := []float32{1, 2, 3}
	c.Set("hello", v)
	got, ok := c.Get("HELLO  ")
	if !ok {
		t.Fatal("expected a hit for a case/whitespace-normalized key")
	}
	if len(got) != len(v) {
		t.Errorf("unexpected cached vector: %v", got)
	}
}

// TestEmbeddingCacheExpires checks that an entry older than its TTL is
// no longer returned.
func TestEmbeddingCacheExpires(t *testing.T) {
	c := New(10 * time.Millisecond)
	defer c.Close()

	c.Set("transient", []float32{1})
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("transient"); ok {
		t.Error("expected entry to have expired")
	}
}

// TestCachedEmbedderAvoidsRepeatedCalls checks that CachedEmbedder only
// calls through to the inner Embedder on a cache miss.
func TestCachedEmbedderAvoidsRepeatedCalls(t *testing.T) {
	inner := &countingEmbedder{}
	wrapped := WrapEmbedder(inner, time.Minute)
	defer wrapped.Close()

	ctx := context.Background()
	if _, err := wrapped.Embed(ctx, "repeat me"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := wrapped.Embed(ctx, "repeat me"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected exactly 1 inner call for 2 identical requests, got %d", inner.calls)
	}
}
