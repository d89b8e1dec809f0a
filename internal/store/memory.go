package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"recordstore/internal/domain"
)

// MemoryClient keeps one map and one lock per shard so unrelated shards never
// serialize on each other. It favors clarity over performance and doubles as
// the test backend.
type MemoryClient struct {
	shards []*memoryShard
}

type memoryShard struct {
	mu      sync.RWMutex
	records map[string]domain.Record
}

// NewMemoryClient builds a client with the given shard count.
func NewMemoryClient(shardCount int) *MemoryClient {
	shards := make([]*memoryShard, shardCount)
	for i := range shards {
		shards[i] = &memoryShard{records: make(map[string]domain.Record)}
	}
	return &MemoryClient{shards: shards}
}

func (c *MemoryClient) shard(n int) (*memoryShard, error) {
	if n < 0 || n >= len(c.shards) {
		return nil, fmt.Errorf("shard %d out of range [0,%d)", n, len(c.shards))
	}
	return c.shards[n], nil
}

func (c *MemoryClient) Put(_ context.Context, shard int, rec domain.Record) error {
	s, err := c.shard(shard)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.ID]; ok {
		if bytes.Equal(existing.Fingerprint(), rec.Fingerprint()) {
			// Idempotent replay of the same record.
			return nil
		}
		return ErrConflict
	}
	s.records[rec.ID] = rec
	return nil
}

func (c *MemoryClient) Get(_ context.Context, shard int, id string) (domain.Record, error) {
	s, err := c.shard(shard)
	if err != nil {
		return domain.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[id]; ok {
		return rec, nil
	}
	return domain.Record{}, ErrNotFound
}

func (c *MemoryClient) Exists(_ context.Context, shard int, id string) (bool, error) {
	s, err := c.shard(shard)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

func (c *MemoryClient) Ping(context.Context) error { return nil }

func (c *MemoryClient) Close() error { return nil }
