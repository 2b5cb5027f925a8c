package llm

import (
	"path/filepath"
	"sync"
)

// cacheKey identifies a loaded model: backend name plus the absolute model
// path (empty string when no path is configured).
type cacheKey struct {
	backend string
	path    string
}

// ModelCache maps (backend, absolute model path) to loaded model handles.
// Loading a model is expensive, so entries live for the process lifetime and
// at most one handle exists per key: concurrent callers must not
// race-construct two handles for the same model.
type ModelCache struct {
	mu     sync.RWMutex
	models map[cacheKey]ModelHandle
}

// NewModelCache creates an empty cache.
func NewModelCache() *ModelCache {
	return &ModelCache{models: make(map[cacheKey]ModelHandle)}
}

// defaultCache backs clients constructed from the environment.
var defaultCache = NewModelCache()

// DefaultModelCache returns the process-wide cache shared by
// from-environment clients.
func DefaultModelCache() *ModelCache { return defaultCache }

func newCacheKey(backendName, modelPath string) cacheKey {
	path := ""
	if modelPath != "" {
		abs, err := filepath.Abs(modelPath)
		if err != nil {
			abs = modelPath
		}
		path = abs
	}
	return cacheKey{backend: backendName, path: path}
}

// GetOrCreate returns the cached handle for the key, constructing it with
// load on first use. The construction is double-checked under the cache
// lock so concurrent callers observe exactly one load per key.
func (c *ModelCache) GetOrCreate(backendName, modelPath string, load func() (ModelHandle, error)) (ModelHandle, error) {
	key := newCacheKey(backendName, modelPath)

	c.mu.RLock()
	handle, ok := c.models[key]
	c.mu.RUnlock()
	if ok {
		return handle, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if handle, ok := c.models[key]; ok {
		return handle, nil
	}
	handle, err := load()
	if err != nil {
		return nil, err
	}
	c.models[key] = handle
	return handle, nil
}

// Clear wipes all entries. Intended for test isolation and explicit
// reloads, not normal request handling.
func (c *ModelCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = make(map[cacheKey]ModelHandle)
}

// Len reports the number of cached models.
func (c *ModelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}
