package memora

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestEmbedCacheHit(t *testing.T) {
	emb := &stubEmbedder{}
	cache := NewEmbedCache(emb)

	v1, err := cache.GetOrCompute(context.Background(), "hello world")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := cache.GetOrCompute(context.Background(), "hello world")
	if err != nil {
		t.Fatal(err)
	}
	if &v1[0] != &v2[0] {
		t.Error("second lookup did not return the cached vector")
	}
	if emb.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", emb.callCount())
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
}

func TestEmbedCacheDistinctTexts(t *testing.T) {
	emb := &stubEmbedder{}
	cache := NewEmbedCache(emb)

	if _, err := cache.GetOrCompute(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.GetOrCompute(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}
	if cache.Len() != 2 {
		t.Errorf("Len = %d, want 2", cache.Len())
	}
	if emb.callCount() != 2 {
		t.Errorf("provider called %d times, want 2", emb.callCount())
	}
}

func TestEmbedCacheSingleFlight(t *testing.T) {
	release := make(chan struct{})
	emb := &stubEmbedder{
		vecFn: func(text string) []float32 {
			<-release
			return []float32{1, 2, 3}
		},
	}
	cache := NewEmbedCache(emb)

	const workers = 8
	var wg sync.WaitGroup
	results := make([][]float32, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrCompute(context.Background(), "same text")
		}(i)
	}
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if len(results[i]) != 3 {
			t.Fatalf("worker %d got vector of length %d", i, len(results[i]))
		}
	}
	// Concurrent identical lookups collapse; a stray second call can only
	// happen if a flight completes before another worker enters Do, which
	// still reads the cache first.
	if emb.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", emb.callCount())
	}
}

func TestEmbedCacheProviderError(t *testing.T) {
	sentinel := errors.New("backend down")
	emb := &stubEmbedder{err: sentinel}
	cache := NewEmbedCache(emb)

	_, err := cache.GetOrCompute(context.Background(), "text")
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want %v", err, sentinel)
	}
	if cache.Len() != 0 {
		t.Errorf("failed lookup was cached: Len = %d", cache.Len())
	}

	// Errors are not cached; the next call retries the provider.
	emb.err = nil
	if _, err := cache.GetOrCompute(context.Background(), "text"); err != nil {
		t.Fatalf("retry after error failed: %v", err)
	}
}

func TestEmbedCacheEmptyVector(t *testing.T) {
	emb := &stubEmbedder{vecFn: func(string) []float32 { return nil }}
	cache := NewEmbedCache(emb)

	_, err := cache.GetOrCompute(context.Background(), "text")
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("error = %v, want ErrEmbedding", err)
	}
}
