package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordstore/internal/domain"
	"recordstore/internal/store"
)

func testRecord(id, name string) domain.Record {
	return domain.Record{
		ID:            id,
		Payload:       map[string]any{"name": name},
		SchemaVersion: 1,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestMemoryClient_PutGetRoundTrip(t *testing.T) {
	c := store.NewMemoryClient(4)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 2, testRecord("r1", "a")))

	got, err := c.Get(ctx, 2, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, "a", got.Payload["name"])
}

func TestMemoryClient_GetMissingReturnsNotFound(t *testing.T) {
	c := store.NewMemoryClient(4)

	_, err := c.Get(context.Background(), 0, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryClient_IdenticalReplayIsAccepted(t *testing.T) {
	c := store.NewMemoryClient(4)
	ctx := context.Background()

	first := testRecord("r1", "a")
	require.NoError(t, c.Put(ctx, 1, first))

	replay := testRecord("r1", "a")
	assert.NoError(t, c.Put(ctx, 1, replay), "identical re-put is an idempotent replay")
}

func TestMemoryClient_DifferentPayloadIsConflict(t *testing.T) {
	c := store.NewMemoryClient(4)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, testRecord("r1", "a")))

	err := c.Put(ctx, 1, testRecord("r1", "b"))
	assert.ErrorIs(t, err, store.ErrConflict)

	// The original record must not be overwritten.
	got, err := c.Get(ctx, 1, "r1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Payload["name"])
}

func TestMemoryClient_Exists(t *testing.T) {
	c := store.NewMemoryClient(4)
	ctx := context.Background()

	ok, err := c.Exists(ctx, 0, "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, 0, testRecord("r1", "a")))

	ok, err = c.Exists(ctx, 0, "r1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryClient_ShardsAreIsolated(t *testing.T) {
	c := store.NewMemoryClient(4)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 0, testRecord("r1", "a")))

	_, err := c.Get(ctx, 1, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryClient_ShardOutOfRange(t *testing.T) {
	c := store.NewMemoryClient(2)
	ctx := context.Background()

	assert.Error(t, c.Put(ctx, 2, testRecord("r1", "a")))
	_, err := c.Get(ctx, -1, "r1")
	assert.Error(t, err)
}

func TestMemoryClient_ConcurrentDistinctWrites(t *testing.T) {
	c := store.NewMemoryClient(8)
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 100
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("r-%d", i)
			assert.NoError(t, c.Put(ctx, i%8, testRecord(id, id)))
		}()
	}
	wg.Wait()

	for i := range n {
		id := fmt.Sprintf("r-%d", i)
		got, err := c.Get(ctx, i%8, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	}
}
