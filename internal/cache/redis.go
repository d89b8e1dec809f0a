package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"recordstore/internal/domain"
)

const recordKeyPrefix = "rc:rec:"

// RedisTier is the optional shared cache tier for deployments where instance
// local caches would each pay their own cold misses. Staleness across
// instances stays bounded by the TTL. Redis failures degrade to misses; the
// cache must never fail a read.
type RedisTier struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisTier builds a shared tier. The client lifecycle is managed by the
// caller.
func NewRedisTier(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisTier {
	return &RedisTier{client: client, ttl: ttl, logger: logger}
}

func (t *RedisTier) Get(ctx context.Context, id string) (domain.Record, bool) {
	raw, err := t.client.Get(ctx, recordKeyPrefix+id).Bytes()
	if err != nil {
		if t.logger != nil && err != redis.Nil {
			t.logger.WarnContext(ctx, "cache tier read failed", "id", id, "error", err)
		}
		return domain.Record{}, false
	}
	var rec domain.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Record{}, false
	}
	return rec, true
}

func (t *RedisTier) Put(ctx context.Context, id string, rec domain.Record) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := t.client.Set(ctx, recordKeyPrefix+id, raw, t.ttl).Err(); err != nil && t.logger != nil {
		t.logger.WarnContext(ctx, "cache tier write failed", "id", id, "error", err)
	}
}
