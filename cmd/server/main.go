// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recordstore/internal/audit"
	"recordstore/internal/cache"
	"recordstore/internal/health"
	"recordstore/internal/idempotency"
	"recordstore/internal/ingest"
	"recordstore/internal/platform/config"
	"recordstore/internal/platform/httpserver"
	"recordstore/internal/platform/logger"
	"recordstore/internal/platform/metrics"
	platformredis "recordstore/internal/platform/redis"
	"recordstore/internal/retrieve"
	"recordstore/internal/schema"
	"recordstore/internal/shard"
	"recordstore/internal/store"
	httptransport "recordstore/internal/transport/http"
	"recordstore/pkg/platform/retry"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	m := metrics.New()

	schemas, err := loadSchemas(cfg.Schema)
	if err != nil {
		return err
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var tracker idempotency.Tracker
	if redisClient != nil {
		tracker = idempotency.NewRedisTracker(redisClient.Client, cfg.Idempotency.Window)
	} else {
		memTracker := idempotency.NewMemoryTracker(cfg.Idempotency.Window, cfg.Idempotency.SweepInterval)
		defer memTracker.Stop()
		tracker = memTracker
	}

	router, err := shard.NewRouter(shard.Mapping{
		Version:    cfg.Shard.MappingVersion,
		Partitions: cfg.Shard.Partitions,
	})
	if err != nil {
		return err
	}

	storeClient, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer storeClient.Close()

	var readCache cache.Cache
	if cfg.Cache.Tier == "redis" && redisClient != nil {
		readCache = cache.NewRedisTier(redisClient.Client, cfg.Cache.TTL, log)
	} else {
		readCache = cache.NewLRU(cfg.Cache.Capacity, cfg.Cache.TTL)
	}

	var auditPublisher audit.Publisher
	if len(cfg.Audit.Brokers) > 0 {
		kafkaPublisher, err := audit.NewKafkaPublisher(cfg.Audit.Brokers, cfg.Audit.Topic, audit.WithLogger(log))
		if err != nil {
			return err
		}
		defer kafkaPublisher.Close()
		auditPublisher = kafkaPublisher
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseBackoff: cfg.Retry.BaseBackoff,
		MaxBackoff:  cfg.Retry.MaxBackoff,
	}

	ingestOpts := []ingest.Option{
		ingest.WithLogger(log),
		ingest.WithMetrics(m),
		ingest.WithRetryPolicy(policy),
		ingest.WithLatencyBudget(cfg.LatencyBudget),
	}
	if auditPublisher != nil {
		ingestOpts = append(ingestOpts, ingest.WithAudit(auditPublisher))
	}
	ingestSvc := ingest.New(schemas, tracker, router, storeClient, ingestOpts...)

	retrieveSvc := retrieve.New(router, storeClient,
		retrieve.WithCache(readCache),
		retrieve.WithLogger(log),
		retrieve.WithMetrics(m),
		retrieve.WithRetryPolicy(policy),
		retrieve.WithLatencyBudget(cfg.LatencyBudget),
	)

	checker := health.NewChecker()
	checker.Register("store", storeClient)
	if redisClient != nil {
		checker.Register("redis", health.PingerFunc(redisClient.Health))
	}

	handler := httptransport.New(ingestSvc, retrieveSvc, checker, log,
		int64(cfg.Schema.MaxPayloadBytes)+64*1024)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler, log, cfg.LatencyBudget))

	log.Info("starting recordstore",
		"addr", cfg.Server.Addr,
		"store_backend", cfg.Store.Backend,
		"partitions", cfg.Shard.Partitions,
		"mapping_version", cfg.Shard.MappingVersion,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func buildStore(cfg config.Config) (store.Client, error) {
	if cfg.Store.Backend != "postgres" {
		return store.NewMemoryClient(cfg.Shard.Partitions), nil
	}
	if len(cfg.Store.ShardDSNs) != cfg.Shard.Partitions {
		return nil, fmt.Errorf("store has %d shard DSNs but the mapping has %d partitions",
			len(cfg.Store.ShardDSNs), cfg.Shard.Partitions)
	}
	client, err := store.NewPostgresClient(cfg.Store.ShardDSNs)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.EnsureSchema(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func loadSchemas(cfg config.Schema) (*schema.Registry, error) {
	opts := []schema.Option{schema.WithMaxPayloadBytes(cfg.MaxPayloadBytes)}
	if cfg.FailFast {
		opts = append(opts, schema.WithFailFast())
	}
	if cfg.File != "" {
		return schema.LoadFile(cfg.File, opts...)
	}
	// Without a schema document, version 1 accepts any JSON object within
	// the size cap. Deployments declare real schemas via the file.
	return schema.NewRegistry([]schema.Schema{
		{Version: 1, AllowUnknown: true},
	}, opts...)
}
