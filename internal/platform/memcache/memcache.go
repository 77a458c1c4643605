// Package memcache provides the small read caches used by lookups that can
// tolerate staleness: product search, laboratory search and the pharmacy
// directory. Callers depend on Store so the in-process Bounded cache can be
// swapped for RedisStore in a multi-instance deployment.
package memcache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the cache capability handed to services.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V) error
	Evict(ctx context.Context, key string) error
}

// Options configure a Bounded cache.
type Options struct {
	TTL        time.Duration
	MaxEntries int
	EvictBatch int
	Now        func() time.Time
}

type entry[V any] struct {
	value     V
	writtenAt time.Time
}

// Bounded is an in-process TTL cache. Once it holds more than MaxEntries
// values, the EvictBatch oldest writes are dropped.
type Bounded[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	ttl     time.Duration
	max     int
	batch   int
	now     func() time.Time
}

// NewBounded builds a Bounded cache. Zero options fall back to one hour, 1000
// entries and a batch of 200.
func NewBounded[V any](opts Options) *Bounded[V] {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	if opts.EvictBatch <= 0 {
		opts.EvictBatch = 200
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bounded[V]{
		entries: make(map[string]entry[V]),
		ttl:     opts.TTL,
		max:     opts.MaxEntries,
		batch:   opts.EvictBatch,
		now:     opts.Now,
	}
}

// Get returns the cached value unless it is missing or expired.
func (b *Bounded[V]) Get(_ context.Context, key string) (V, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero V
	e, ok := b.entries[key]
	if !ok {
		return zero, false, nil
	}
	if b.now().Sub(e.writtenAt) >= b.ttl {
		delete(b.entries, key)
		return zero, false, nil
	}
	return e.value, true, nil
}

// Set stores value, overwriting any previous write for key.
func (b *Bounded[V]) Set(_ context.Context, key string, value V) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = entry[V]{value: value, writtenAt: b.now()}
	if len(b.entries) > b.max {
		b.evictOldest()
	}
	return nil
}

// Evict drops key.
func (b *Bounded[V]) Evict(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (b *Bounded[V]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Bounded[V]) evictOldest() {
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(b.entries))
	for k, e := range b.entries {
		all = append(all, aged{key: k, at: e.writtenAt})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].at.Equal(all[j].at) {
			return all[i].key < all[j].key
		}
		return all[i].at.Before(all[j].at)
	})
	n := b.batch
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(b.entries, a.key)
	}
}
