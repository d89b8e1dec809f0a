// Package idempotency deduplicates retried writes within a bounded window.
// The tracker is a dedup window, not an audit log: entries expire and memory
// stays bounded. Writes without a key bypass it entirely; duplicate submission
// without a key is the caller's risk.
package idempotency

import (
	"context"

	pkgerrors "recordstore/pkg/errors"
)

// Result is the outcome of CheckAndReserve.
type Result struct {
	// Fresh means the key was reserved and the write should proceed to
	// persistence.
	Fresh bool
	// ResultID carries the original write's record id when Fresh is false.
	ResultID string
}

// ErrInFlight is returned when another request holding the same key is still
// between reservation and commit. The reservation serializes concurrent
// duplicates so only one reaches persistence; the losers get a retryable
// error and will find the committed entry on retry.
var ErrInFlight = pkgerrors.New(pkgerrors.KindUnavailable, "write with this idempotency key is in flight")

// Tracker is the dedup seam. Implementations must be safe for concurrent use
// and must make CheckAndReserve atomic per key.
type Tracker interface {
	// CheckAndReserve atomically looks the key up. A committed entry within
	// the window yields {Fresh: false, ResultID}; an absent or expired key is
	// reserved and yields {Fresh: true}; a pending reservation yields
	// ErrInFlight.
	//
	// The fingerprint is recorded with the reservation for diagnostics; the
	// tracker is first-writer-wins and never overwrites on a payload
	// mismatch.
	CheckAndReserve(ctx context.Context, key string, fingerprint []byte) (Result, error)

	// Commit finalizes a reservation with the persisted record id. The entry
	// then answers duplicates until the window expires.
	Commit(ctx context.Context, key, resultID string) error

	// Release drops a reservation after a failed write so a legitimate retry
	// is not permanently blocked.
	Release(ctx context.Context, key string) error
}
