// Package template resolves template definitions and caches their parsed
// button metadata.
package template

import "sync"

// buttonCache is a concurrent parse cache keyed by
// business|provider|name|language. No eviction: template versions are
// effectively immutable and the size is bounded by the active template count.
type buttonCache struct {
	mu      sync.RWMutex
	entries map[string][]parsedButton
}

func newButtonCache() *buttonCache {
	return &buttonCache{entries: make(map[string][]parsedButton)}
}

func (c *buttonCache) get(key string) ([]parsedButton, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *buttonCache) put(key string, v []parsedButton) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
}
