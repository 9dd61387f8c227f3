package projection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultSize bounds the cache when no size is configured.
const DefaultSize = 512

// ErrCacheClosed is returned by GetOrCompute after Close.
var ErrCacheClosed = errors.New("projection cache is closed")

// CacheComputationError is the failure of a shared computation. Every caller
// coalesced onto the computation receives the same error value.
type CacheComputationError struct {
	Fingerprint Fingerprint
	Err         error
}

func (e *CacheComputationError) Error() string {
	if e == nil {
		return "projection computation failed"
	}
	return fmt.Sprintf("compute projection %s: %v", e.Fingerprint.Short(), e.Err)
}

func (e *CacheComputationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Observer receives cache events. Implementations must be safe for concurrent
// use.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheEvicted()
	ComputationFailed()
}

type nopObserver struct{}

func (nopObserver) CacheHit()          {}
func (nopObserver) CacheMiss()         {}
func (nopObserver) CacheEvicted()      {}
func (nopObserver) ComputationFailed() {}

// Cache is a bounded, coalescing memo of values keyed by Fingerprint.
type Cache[V any] struct {
	entries  *lru.Cache[Fingerprint, V]
	flight   singleflight.Group
	observer Observer
	closed   atomic.Bool
}

// NewCache returns a cache holding at most size entries. A nil observer is
// allowed.
func NewCache[V any](size int, observer Observer) (*Cache[V], error) {
	if size <= 0 {
		size = DefaultSize
	}
	if observer == nil {
		observer = nopObserver{}
	}
	c := &Cache[V]{observer: observer}
	entries, err := lru.NewWithEvict(size, func(Fingerprint, V) {
		c.observer.CacheEvicted()
	})
	if err != nil {
		return nil, fmt.Errorf("create projection lru: %w", err)
	}
	c.entries = entries
	return c, nil
}

// GetOrCompute returns the cached value for key or runs compute to produce it.
//
// At most one compute runs per key at a time; concurrent callers wait on it.
// compute receives a context that keeps the caller's values but is never
// canceled, and its result is cached before any waiter is released. A caller
// whose ctx ends stops waiting and gets ctx.Err(). Failures are not cached and
// are returned as *CacheComputationError.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key Fingerprint, compute func(context.Context) (V, error)) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, ErrCacheClosed
	}
	if v, ok := c.entries.Get(key); ok {
		c.observer.CacheHit()
		return v, nil
	}
	c.observer.CacheMiss()

	detached := context.WithoutCancel(ctx)
	results := c.flight.DoChan(string(key), func() (any, error) {
		if v, ok := c.entries.Peek(key); ok {
			return v, nil
		}
		v, err := compute(detached)
		if err != nil {
			c.observer.ComputationFailed()
			return nil, &CacheComputationError{Fingerprint: key, Err: err}
		}
		if !c.closed.Load() {
			c.entries.Add(key, v)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Peek returns a cached value without touching recency or running anything.
func (c *Cache[V]) Peek(key Fingerprint) (V, bool) {
	return c.entries.Peek(key)
}

// Len reports the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

// Close purges the cache and rejects further lookups.
func (c *Cache[V]) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.entries.Purge()
}
