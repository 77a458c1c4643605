package memcache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestBoundedExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	cache := NewBounded[string](Options{TTL: time.Hour, Now: clock.Now})

	require.NoError(t, cache.Set(ctx, "doli", "DOLIPRANE 1000MG"))
	got, ok, err := cache.Get(ctx, "doli")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "DOLIPRANE 1000MG", got)

	clock.Advance(time.Hour)
	_, ok, err = cache.Get(ctx, "doli")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestBoundedEvictsOldestBatch(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	cache := NewBounded[int](Options{MaxEntries: 10, EvictBatch: 4, Now: clock.Now})

	for i := 0; i < 11; i++ {
		require.NoError(t, cache.Set(ctx, fmt.Sprintf("k%02d", i), i))
		clock.Advance(time.Second)
	}
	assert.Equal(t, 7, cache.Len())
	for i := 0; i < 4; i++ {
		_, ok, _ := cache.Get(ctx, fmt.Sprintf("k%02d", i))
		assert.False(t, ok, "k%02d should be evicted", i)
	}
	v, ok, _ := cache.Get(ctx, "k10")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestBoundedRewriteRefreshesAge(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	cache := NewBounded[int](Options{MaxEntries: 2, EvictBatch: 1, Now: clock.Now})

	_ = cache.Set(ctx, "a", 1)
	clock.Advance(time.Second)
	_ = cache.Set(ctx, "b", 2)
	clock.Advance(time.Second)
	_ = cache.Set(ctx, "a", 3)
	clock.Advance(time.Second)
	_ = cache.Set(ctx, "c", 4)

	_, ok, _ := cache.Get(ctx, "b")
	assert.False(t, ok)
	v, ok, _ := cache.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestBoundedEvict(t *testing.T) {
	ctx := context.Background()
	cache := NewBounded[int](Options{})
	_ = cache.Set(ctx, "a", 1)
	require.NoError(t, cache.Evict(ctx, "a"))
	_, ok, _ := cache.Get(ctx, "a")
	assert.False(t, ok)
}

func TestBoundedConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	cache := NewBounded[int](Options{MaxEntries: 50, EvictBatch: 10})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("%d-%d", w, i)
				_ = cache.Set(ctx, key, i)
				_, _, _ = cache.Get(ctx, key)
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, cache.Len(), 50)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	type lab struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	store := NewRedisStore[[]lab](client, "search:labs", time.Hour)

	_, ok, err := store.Get(ctx, "bio")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "bio", []lab{{Name: "BIOGARAN", Count: 812}}))
	got, ok, err := store.Get(ctx, "bio")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []lab{{Name: "BIOGARAN", Count: 812}}, got)
	assert.Equal(t, time.Hour, mr.TTL("search:labs:bio"))

	require.NoError(t, store.Evict(ctx, "bio"))
	assert.False(t, mr.Exists("search:labs:bio"))
}
