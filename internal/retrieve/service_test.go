package retrieve_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordstore/internal/cache"
	"recordstore/internal/domain"
	"recordstore/internal/retrieve"
	"recordstore/internal/shard"
	"recordstore/internal/store"
	pkgerrors "recordstore/pkg/errors"
	"recordstore/pkg/platform/retry"
)

// countingStore wraps the memory client, counts Gets, and can fail a number
// of them with a transient error.
type countingStore struct {
	store.Client
	mu       sync.Mutex
	getCalls int
	failGets int
}

func (c *countingStore) Get(ctx context.Context, shardID int, id string) (domain.Record, error) {
	c.mu.Lock()
	c.getCalls++
	fail := c.failGets > 0
	if fail {
		c.failGets--
	}
	c.mu.Unlock()
	if fail {
		return domain.Record{}, store.ErrUnavailable
	}
	return c.Client.Get(ctx, shardID, id)
}

func (c *countingStore) gets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getCalls
}

type fixture struct {
	svc    *retrieve.Service
	store  *countingStore
	cache  *cache.LRU
	router *shard.Router
}

func newFixture(t *testing.T, opts ...retrieve.Option) *fixture {
	t.Helper()

	router, err := shard.NewRouter(shard.Mapping{Version: 1, Partitions: 4})
	require.NoError(t, err)

	counting := &countingStore{Client: store.NewMemoryClient(4)}
	lru := cache.NewLRU(32, time.Minute)

	policy := retry.Policy{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		Jitter:      func(time.Duration) time.Duration { return 0 },
	}
	base := []retrieve.Option{
		retrieve.WithCache(lru),
		retrieve.WithRetryPolicy(policy),
	}
	svc := retrieve.New(router, counting, append(base, opts...)...)
	return &fixture{svc: svc, store: counting, cache: lru, router: router}
}

func (f *fixture) seed(t *testing.T, id, name string) domain.Record {
	t.Helper()
	rec := domain.Record{
		ID:            id,
		Payload:       map[string]any{"name": name},
		SchemaVersion: 1,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, f.store.Client.Put(context.Background(), f.router.Route(id).Shard, rec))
	return rec
}

func TestRetrieve_ReturnsJustWrittenRecord(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "r1", "a")

	rec, err := f.svc.Retrieve(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, "a", rec.Payload["name"])
}

func TestRetrieve_MissPopulatesCache(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "r1", "a")
	ctx := context.Background()

	_, err := f.svc.Retrieve(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.gets())

	// Second identical read hits the cache, not the store.
	rec, err := f.svc.Retrieve(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Payload["name"])
	assert.Equal(t, 1, f.store.gets())
}

func TestRetrieve_NotFoundIsNotAnError(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Retrieve(context.Background(), "never-written")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindNotFound))
}

func TestRetrieve_NotFoundIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Retrieve(ctx, "r1")
	require.Error(t, err)

	// A write completing right after the failed read must be visible: no
	// stale negative entry may mask it.
	f.seed(t, "r1", "late")

	rec, err := f.svc.Retrieve(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "late", rec.Payload["name"])
}

func TestRetrieve_TransientFailureIsRetried(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "r1", "a")
	f.store.failGets = 2

	rec, err := f.svc.Retrieve(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Payload["name"])
	assert.Equal(t, 3, f.store.gets())
}

func TestRetrieve_ExhaustedRetriesSurfaceRetryableError(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "r1", "a")
	f.store.failGets = 10

	_, err := f.svc.Retrieve(context.Background(), "r1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindUnavailable),
		"an outage must surface as retryable, never as a false not_found")
}

func TestRetrieve_LatencyBudgetSurfacesDeadline(t *testing.T) {
	f := newFixture(t, retrieve.WithRetryPolicy(retry.Policy{
		MaxAttempts: 100,
		BaseBackoff: 50 * time.Millisecond,
		Jitter:      func(time.Duration) time.Duration { return 0 },
	}), retrieve.WithLatencyBudget(10*time.Millisecond))
	f.seed(t, "r1", "a")
	f.store.failGets = 1000

	_, err := f.svc.Retrieve(context.Background(), "r1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindDeadline))
}

func TestRetrieve_WorksWithoutCache(t *testing.T) {
	f := newFixture(t, retrieve.WithCache(nil))
	f.seed(t, "r1", "a")
	ctx := context.Background()

	for range 3 {
		rec, err := f.svc.Retrieve(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "a", rec.Payload["name"])
	}
	assert.Equal(t, 3, f.store.gets(), "without a cache every read goes to the store")
}

func TestRetrieve_EmptyIDIsRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Retrieve(context.Background(), "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindValidation))
}

func TestRetrieve_ConcurrentReadersSeeConsistentRecord(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "r1", "a")
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.svc.Retrieve(ctx, "r1")
			assert.NoError(t, err)
			assert.Equal(t, "a", rec.Payload["name"])
		}()
	}
	wg.Wait()
}
