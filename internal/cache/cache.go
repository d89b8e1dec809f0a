// Package cache implements the read-through cache in front of the store
// client. The cache is a pure latency optimization: it is never the source of
// truth, never stores negative results, and its absence changes nothing but
// latency.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"recordstore/internal/domain"
)

// Cache is the seam between the retrieval service and a cache tier. A failed
// tier behaves as a miss; it never fails a read.
type Cache interface {
	Get(ctx context.Context, id string) (domain.Record, bool)
	Put(ctx context.Context, id string, rec domain.Record)
}

type lruEntry struct {
	id         string
	record     domain.Record
	insertedAt time.Time
}

// LRU is the instance-local tier: bounded by entry count, expired by TTL,
// evicted least-recently-used with insertion order as the tie-break (a fresh
// insert goes to the back of the recency list, so among entries touched at
// the same instant the older insert falls out first).
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	clock    func() time.Time
}

// LRUOption configures an LRU.
type LRUOption func(*LRU)

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) LRUOption {
	return func(c *LRU) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewLRU builds a bounded cache. TTL zero disables expiry.
func NewLRU(capacity int, ttl time.Duration, opts ...LRUOption) *LRU {
	c := &LRU{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LRU) Get(_ context.Context, id string) (domain.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[id]
	if !ok {
		return domain.Record{}, false
	}
	entry := el.Value.(*lruEntry)
	if c.ttl > 0 && c.clock().Sub(entry.insertedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, id)
		return domain.Record{}, false
	}
	c.order.MoveToFront(el)
	return entry.record, true
}

func (c *LRU) Put(_ context.Context, id string, rec domain.Record) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[id]; ok {
		entry := el.Value.(*lruEntry)
		entry.record = rec
		entry.insertedAt = c.clock()
		c.order.MoveToFront(el)
		return
	}
	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry).id)
	}
	c.entries[id] = c.order.PushFront(&lruEntry{
		id:         id,
		record:     rec,
		insertedAt: c.clock(),
	})
}

// Len reports the current entry count.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
