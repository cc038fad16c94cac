package memora

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// EmbedCache memoizes embedding vectors by exact text. Lookups are strict:
// no normalization, no partial match. Concurrent GetOrCompute calls for
// the same text collapse to a single provider call; all callers observe
// the identical vector. The cache is unbounded.
type EmbedCache struct {
	provider EmbeddingProvider

	mu      sync.RWMutex
	entries map[string][]float32
	flight  singleflight.Group
}

// NewEmbedCache creates a cache backed by the given provider.
func NewEmbedCache(provider EmbeddingProvider) *EmbedCache {
	return &EmbedCache{
		provider: provider,
		entries:  make(map[string][]float32),
	}
}

// GetOrCompute returns the cached vector for text, computing and caching
// it on a miss. Returns ErrEmbedding-wrapped failures from the provider.
func (c *EmbedCache) GetOrCompute(ctx context.Context, text string) ([]float32, error) {
	c.mu.RLock()
	v, ok := c.entries[text]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	result, err, _ := c.flight.Do(text, func() (any, error) {
		// Re-check under flight: a previous flight may have stored it
		// between our read miss and Do acquiring the key.
		c.mu.RLock()
		v, ok := c.entries[text]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}

		embs, err := c.provider.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(embs) == 0 || len(embs[0]) == 0 {
			return nil, ErrEmbedding
		}

		c.mu.Lock()
		c.entries[text] = embs[0]
		c.mu.Unlock()
		return embs[0], nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// Len returns the number of cached entries.
func (c *EmbedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dimensions reports the provider's embedding size.
func (c *EmbedCache) Dimensions() int {
	return c.provider.Dimensions()
}
