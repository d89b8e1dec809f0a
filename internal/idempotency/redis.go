package idempotency

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "recordstore/pkg/errors"
)

const keyPrefix = "idem:key:"

// redisEntry is the stored shape of one idempotency key.
type redisEntry struct {
	Status      string    `json:"status"` // "pending" | "committed"
	ResultID    string    `json:"result_id,omitempty"`
	RequestHash string    `json:"request_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RedisTracker shares the dedup window across service instances. SET NX gives
// the atomic check-and-reserve; the window TTL rides on the key itself so
// expiry needs no sweeper.
type RedisTracker struct {
	client *redis.Client
	window time.Duration
}

// NewRedisTracker builds a tracker over an externally managed client.
func NewRedisTracker(client *redis.Client, window time.Duration) *RedisTracker {
	return &RedisTracker{client: client, window: window}
}

func (t *RedisTracker) CheckAndReserve(ctx context.Context, key string, fingerprint []byte) (Result, error) {
	pending, err := json.Marshal(redisEntry{
		Status:      "pending",
		RequestHash: hex.EncodeToString(fingerprint),
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal reservation: %w", err)
	}

	set, err := t.client.SetNX(ctx, keyPrefix+key, pending, t.window).Result()
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.KindUnavailable, "idempotency reserve failed", err)
	}
	if set {
		return Result{Fresh: true}, nil
	}

	raw, err := t.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as a lost race the caller can
		// retry.
		return Result{}, ErrInFlight
	}
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.KindUnavailable, "idempotency lookup failed", err)
	}

	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Result{}, fmt.Errorf("decode idempotency entry: %w", err)
	}
	if e.Status != "committed" {
		return Result{}, ErrInFlight
	}
	return Result{Fresh: false, ResultID: e.ResultID}, nil
}

func (t *RedisTracker) Commit(ctx context.Context, key, resultID string) error {
	committed, err := json.Marshal(redisEntry{
		Status:    "committed",
		ResultID:  resultID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal commit: %w", err)
	}
	if err := t.client.Set(ctx, keyPrefix+key, committed, t.window).Err(); err != nil {
		return pkgerrors.Wrap(pkgerrors.KindUnavailable, "idempotency commit failed", err)
	}
	return nil
}

// Release drops a pending reservation. Only the reserving request calls this,
// and only before commit, so check-then-delete does not race a concurrent
// commit of the same key.
func (t *RedisTracker) Release(ctx context.Context, key string) error {
	raw, err := t.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.KindUnavailable, "idempotency release failed", err)
	}
	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil || e.Status != "pending" {
		return nil
	}
	if err := t.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return pkgerrors.Wrap(pkgerrors.KindUnavailable, "idempotency release failed", err)
	}
	return nil
}
