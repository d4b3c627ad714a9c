// Package tier provides the two cache tiers used for read-mostly data:
// LoadOnce keeps the first successful load of each key for the life of the
// process, PassThrough reloads on every access. Callers pick a tier per
// data category when they wire a loader.
package tier

import (
	"context"
	"sync"
)

// Loader fetches the value for key from its source.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Tier serves values by key.
type Tier[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, error)
}

type entry[V any] struct {
	ready chan struct{}
	val   V
	err   error
}

// LoadOnce caches the first successful load per key. Concurrent callers for
// the same key share one load. Failed loads are not cached.
type LoadOnce[K comparable, V any] struct {
	load Loader[K, V]

	mu      sync.Mutex
	entries map[K]*entry[V]
}

// NewLoadOnce wraps load.
func NewLoadOnce[K comparable, V any](load Loader[K, V]) *LoadOnce[K, V] {
	return &LoadOnce[K, V]{load: load, entries: make(map[K]*entry[V])}
}

// Get returns the cached value for key, loading it on first use.
func (c *LoadOnce[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry[V]{ready: make(chan struct{})}
		c.entries[key] = e
		c.mu.Unlock()

		e.val, e.err = c.load(ctx, key)
		if e.err != nil {
			c.mu.Lock()
			if c.entries[key] == e {
				delete(c.entries, key)
			}
			c.mu.Unlock()
		}
		close(e.ready)
		return e.val, e.err
	}
	c.mu.Unlock()

	select {
	case <-e.ready:
		return e.val, e.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Preload loads keys eagerly, stopping at the first error.
func (c *LoadOnce[K, V]) Preload(ctx context.Context, keys ...K) error {
	for _, k := range keys {
		if _, err := c.Get(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of cached or in-flight keys.
func (c *LoadOnce[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every cached value so the next Get reloads it. In-flight
// loads complete for their callers but are not kept.
func (c *LoadOnce[K, V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[V])
}

// PassThrough calls its loader on every Get.
type PassThrough[K comparable, V any] struct {
	load Loader[K, V]
}

// NewPassThrough wraps load.
func NewPassThrough[K comparable, V any](load Loader[K, V]) *PassThrough[K, V] {
	return &PassThrough[K, V]{load: load}
}

// Get loads the current value for key.
func (p *PassThrough[K, V]) Get(ctx context.Context, key K) (V, error) {
	return p.load(ctx, key)
}

var (
	_ Tier[string, int] = (*LoadOnce[string, int])(nil)
	_ Tier[string, int] = (*PassThrough[string, int])(nil)
)
