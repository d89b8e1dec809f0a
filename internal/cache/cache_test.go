package cache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"recordstore/internal/cache"
	"recordstore/internal/domain"
)

func rec(id string) domain.Record {
	return domain.Record{
		ID:            id,
		Payload:       map[string]any{"name": id},
		SchemaVersion: 1,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestLRU_PutGetRoundTrip(t *testing.T) {
	c := cache.NewLRU(10, time.Minute)
	ctx := context.Background()

	c.Put(ctx, "r1", rec("r1"))

	got, ok := c.Get(ctx, "r1")
	assert.True(t, ok)
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, "r1", got.Payload["name"])
}

func TestLRU_MissForUnknownID(t *testing.T) {
	c := cache.NewLRU(10, time.Minute)

	_, ok := c.Get(context.Background(), "never-written")
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := cache.NewLRU(2, 0)
	ctx := context.Background()

	c.Put(ctx, "a", rec("a"))
	c.Put(ctx, "b", rec("b"))

	// Touch "a" so "b" is the least recently used.
	_, ok := c.Get(ctx, "a")
	assert.True(t, ok)

	c.Put(ctx, "c", rec("c"))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_TieBrokenByInsertionOrder(t *testing.T) {
	c := cache.NewLRU(2, 0)
	ctx := context.Background()

	// Neither entry is ever read; the older insert falls out first.
	c.Put(ctx, "old", rec("old"))
	c.Put(ctx, "new", rec("new"))
	c.Put(ctx, "newest", rec("newest"))

	_, ok := c.Get(ctx, "old")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "new")
	assert.True(t, ok)
}

func TestLRU_TTLExpiry(t *testing.T) {
	now := time.Now()
	c := cache.NewLRU(10, time.Minute, cache.WithClock(func() time.Time { return now }))

	c.Put(context.Background(), "r1", rec("r1"))

	_, ok := c.Get(context.Background(), "r1")
	assert.True(t, ok)

	now = now.Add(time.Minute + time.Second)
	_, ok = c.Get(context.Background(), "r1")
	assert.False(t, ok, "entry past TTL should be treated as absent")
	assert.Equal(t, 0, c.Len())
}

func TestLRU_PutRefreshesExistingEntry(t *testing.T) {
	c := cache.NewLRU(10, time.Minute)
	ctx := context.Background()

	c.Put(ctx, "r1", rec("r1"))
	updated := rec("r1")
	updated.Payload["name"] = "updated"
	c.Put(ctx, "r1", updated)

	got, ok := c.Get(ctx, "r1")
	assert.True(t, ok)
	assert.Equal(t, "updated", got.Payload["name"])
	assert.Equal(t, 1, c.Len())
}

func TestLRU_ZeroCapacityNeverStores(t *testing.T) {
	c := cache.NewLRU(0, time.Minute)
	ctx := context.Background()

	c.Put(ctx, "r1", rec("r1"))
	_, ok := c.Get(ctx, "r1")
	assert.False(t, ok)
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := cache.NewLRU(128, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				id := fmt.Sprintf("r-%d-%d", i, j%10)
				c.Put(ctx, id, rec(id))
				c.Get(ctx, id)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 128)
}
