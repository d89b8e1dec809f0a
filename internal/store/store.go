// Package store defines the seam to the horizontally-partitioned persistence
// backend and ships two implementations: an in-memory client for tests and
// single-process use, and a Postgres client with one handle per shard.
// Durability is the backend's job; the core only needs per-shard linearizable
// point writes and reads.
package store

import (
	"context"

	"recordstore/internal/domain"
)

// Client is the persistence seam. Put is single-record and single-shard; the
// shard is decided before the call and never changes for a given id.
//
// Error contract: Put returns ErrConflict when the id exists with a different
// payload and ErrUnavailable on transient backend failure; a re-Put of the
// identical record succeeds (idempotent replay). Get returns ErrNotFound or
// ErrUnavailable.
type Client interface {
	Put(ctx context.Context, shard int, rec domain.Record) error
	Get(ctx context.Context, shard int, id string) (domain.Record, error)
	Exists(ctx context.Context, shard int, id string) (bool, error)
	// Ping is the cheap liveness probe consumed by the readiness endpoint.
	Ping(ctx context.Context) error
	Close() error
}
