package processor

import (
	"sort"
	"sync"
)

// Context is the ordered key-value state threaded through one chain run.
// It is created fresh per file, passed by pointer to every step, and
// discarded when the run completes. Earlier steps' contributions are
// visible to later steps.
//
// Access is synchronized: a step abandoned by the chain's timeout may
// still read the context after the run has moved on.
type Context struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]any
}

// NewContext returns an empty processing context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Get returns the value for key and whether it is present.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores a value. New keys are appended in insertion order; existing
// keys keep their position.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Keys returns the keys in insertion order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of entries.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// Apply merges a delta into the context. Existing keys are overwritten in
// place; new keys are appended in sorted order so merges are deterministic.
func (c *Context) Apply(delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	added := make([]string, 0, len(delta))
	for k, v := range delta {
		if _, exists := c.values[k]; exists {
			c.values[k] = v
			continue
		}
		c.values[k] = v
		added = append(added, k)
	}
	sort.Strings(added)
	c.keys = append(c.keys, added...)
}

// Snapshot returns a copy of the current values.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
