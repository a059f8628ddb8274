package embed

import (
	"context"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachingProvider memoises embeddings by exact text.
type CachingProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

// NewCachingProvider wraps inner with an LRU of the given size.
func NewCachingProvider(inner Provider, size int) (*CachingProvider, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachingProvider{inner: inner, cache: c}, nil
}

func (c *CachingProvider) Name() string { return c.inner.Name() }

func (c *CachingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return slices.Clone(v), nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, slices.Clone(v))
	return v, nil
}

// Len returns the number of cached embeddings.
func (c *CachingProvider) Len() int { return c.cache.Len() }
