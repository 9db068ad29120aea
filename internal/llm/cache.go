package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ModelCache keeps loaded model handles resident for reuse across
// sequential jobs, so a worker pays the multi-gigabyte load cost at most
// once per key per process lifetime.
//
// The worker loop is single-threaded, so the cache never sees concurrent
// GetOrLoad calls for the same key; the mutex only guards map access for
// incidental readers (stats, tests).
type ModelCache struct {
	mu          sync.Mutex
	runtime     Runtime
	maxResident int // 0 = unbounded
	entries     map[string]*cacheEntry
}

type cacheEntry struct {
	model    Model
	lastUsed time.Time
}

// NewModelCache creates a cache backed by the given runtime. maxResident
// bounds how many handles stay loaded; the least-recently-used handle is
// closed and dropped when the bound is exceeded.
func NewModelCache(runtime Runtime, maxResident int) *ModelCache {
	return &ModelCache{
		runtime:     runtime,
		maxResident: maxResident,
		entries:     make(map[string]*cacheEntry),
	}
}

// GetOrLoad returns the cached handle for key, loading it through the
// runtime on first use. A second call with the same key returns the
// identical handle without touching the runtime.
func (c *ModelCache) GetOrLoad(ctx context.Context, key string) (Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.lastUsed = time.Now()
		return e.model, nil
	}

	model, err := c.runtime.LoadModel(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", key, err)
	}
	c.entries[key] = &cacheEntry{model: model, lastUsed: time.Now()}
	c.evictLocked()
	return model, nil
}

// Resident returns the number of loaded handles.
func (c *ModelCache) Resident() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close releases every cached handle.
func (c *ModelCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		_ = e.model.Close()
		delete(c.entries, key)
	}
}

func (c *ModelCache) evictLocked() {
	if c.maxResident <= 0 {
		return
	}
	for len(c.entries) > c.maxResident {
		var oldestKey string
		var oldest time.Time
		for key, e := range c.entries {
			if oldestKey == "" || e.lastUsed.Before(oldest) {
				oldestKey, oldest = key, e.lastUsed
			}
		}
		_ = c.entries[oldestKey].model.Close()
		delete(c.entries, oldestKey)
	}
}
