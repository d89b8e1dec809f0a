// Package config builds the runtime configuration from environment variables
// so main stays lean. The core consumes this surface; it does not own it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Schema bounds what the validator accepts.
type Schema struct {
	// MaxPayloadBytes caps the serialized payload size to bound persistence
	// and network cost.
	MaxPayloadBytes int
	// FailFast makes the validator report only the first failing field.
	FailFast bool
	// File optionally points at a JSON schema-set document loaded at startup.
	File string
}

// Idempotency controls the dedup window.
type Idempotency struct {
	Window        time.Duration
	SweepInterval time.Duration
}

// Shard fixes the partition topology for this process.
type Shard struct {
	Partitions     int
	MappingVersion int
}

// Store selects and parameterizes the persistence backend.
type Store struct {
	// Backend is "memory" or "postgres".
	Backend string
	// ShardDSNs lists one Postgres DSN per shard, in shard order.
	ShardDSNs []string
}

// Cache bounds the read cache.
type Cache struct {
	Capacity int
	TTL      time.Duration
	// Tier is "local" or "redis".
	Tier string
}

// RedisConfig carries connection settings for the optional Redis-backed
// idempotency tracker and shared cache tier.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Retry bounds backend retries on the write and read paths.
type Retry struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Audit configures the optional Kafka event trail.
type Audit struct {
	Brokers []string
	Topic   string
}

// Config is the full configuration surface consumed by the core.
type Config struct {
	Server      Server
	Schema      Schema
	Idempotency Idempotency
	Shard       Shard
	Store       Store
	Cache       Cache
	Redis       RedisConfig
	Retry       Retry
	Audit       Audit
	// LatencyBudget bounds a single request end to end; retry deadlines
	// derive from it.
	LatencyBudget time.Duration
}

// FromEnv builds a Config from environment variables with defaults suitable
// for local development.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envString("RECORDSTORE_ADDR", ":8080"),
			ShutdownTimeout: envDuration("RECORDSTORE_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Schema: Schema{
			MaxPayloadBytes: envInt("RECORDSTORE_MAX_PAYLOAD_BYTES", 1<<20),
			FailFast:        envBool("RECORDSTORE_VALIDATE_FAIL_FAST", false),
			File:            os.Getenv("RECORDSTORE_SCHEMA_FILE"),
		},
		Idempotency: Idempotency{
			Window:        envDuration("RECORDSTORE_IDEMPOTENCY_WINDOW", 30*time.Minute),
			SweepInterval: envDuration("RECORDSTORE_IDEMPOTENCY_SWEEP", time.Minute),
		},
		Shard: Shard{
			Partitions:     envInt("RECORDSTORE_PARTITIONS", 16),
			MappingVersion: envInt("RECORDSTORE_MAPPING_VERSION", 1),
		},
		Store: Store{
			Backend:   envString("RECORDSTORE_STORE_BACKEND", "memory"),
			ShardDSNs: envList("RECORDSTORE_SHARD_DSNS"),
		},
		Cache: Cache{
			Capacity: envInt("RECORDSTORE_CACHE_CAPACITY", 10000),
			TTL:      envDuration("RECORDSTORE_CACHE_TTL", 5*time.Minute),
			Tier:     envString("RECORDSTORE_CACHE_TIER", "local"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("RECORDSTORE_REDIS_URL"),
			PoolSize:     envInt("RECORDSTORE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("RECORDSTORE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("RECORDSTORE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("RECORDSTORE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("RECORDSTORE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Retry: Retry{
			MaxAttempts: envInt("RECORDSTORE_RETRY_ATTEMPTS", 3),
			BaseBackoff: envDuration("RECORDSTORE_RETRY_BASE_BACKOFF", 25*time.Millisecond),
			MaxBackoff:  envDuration("RECORDSTORE_RETRY_MAX_BACKOFF", 250*time.Millisecond),
		},
		Audit: Audit{
			Brokers: envList("RECORDSTORE_AUDIT_BROKERS"),
			Topic:   envString("RECORDSTORE_AUDIT_TOPIC", "recordstore.writes"),
		},
		LatencyBudget: envDuration("RECORDSTORE_LATENCY_BUDGET", 450*time.Millisecond),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
