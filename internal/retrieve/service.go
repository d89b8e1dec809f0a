// Package retrieve orchestrates the read path: cache check, route, fetch,
// cache fill. The cache is a latency optimization only; every correctness
// property holds with it absent.
package retrieve

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"recordstore/internal/cache"
	"recordstore/internal/domain"
	"recordstore/internal/platform/metrics"
	"recordstore/internal/shard"
	"recordstore/internal/store"
	pkgerrors "recordstore/pkg/errors"
	"recordstore/pkg/platform/retry"
)

// Service serves point reads. Concurrent misses for the same id are coalesced
// into a single store fetch.
type Service struct {
	cache  cache.Cache
	router *shard.Router
	store  store.Client

	logger  *slog.Logger
	metrics *metrics.Metrics
	policy  retry.Policy
	budget  time.Duration
	tracer  trace.Tracer
	group   singleflight.Group
}

// Option configures the Service.
type Option func(*Service)

// WithCache attaches a read cache tier. Nil disables caching.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRetryPolicy bounds the fetch retry loop.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLatencyBudget bounds a read when the caller supplied no deadline.
func WithLatencyBudget(d time.Duration) Option {
	return func(s *Service) { s.budget = d }
}

// New wires the read path.
func New(router *shard.Router, st store.Client, opts ...Option) *Service {
	s := &Service{
		router: router,
		store:  st,
		logger: slog.Default(),
		policy: retry.Policy{MaxAttempts: 3, BaseBackoff: 25 * time.Millisecond, MaxBackoff: 250 * time.Millisecond},
		tracer: otel.Tracer("recordstore/retrieve"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve returns the record for id, or a not_found error. A backend outage
// surfaces as a retryable server error, never a false not_found.
func (s *Service) Retrieve(ctx context.Context, id string) (domain.Record, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "retrieve.read")
	defer span.End()

	if id == "" {
		return domain.Record{}, pkgerrors.Validation("record id is required", "id")
	}

	if s.cache != nil {
		if rec, ok := s.cache.Get(ctx, id); ok {
			s.metrics.IncCacheHit()
			s.metrics.ObserveRead("hit", time.Since(start).Seconds())
			return rec, nil
		}
		s.metrics.IncCacheMiss()
	}

	rec, err := s.fetch(ctx, id)
	if err != nil {
		s.metrics.ObserveRead(outcomeOf(err), time.Since(start).Seconds())
		return domain.Record{}, err
	}
	s.metrics.ObserveRead("miss", time.Since(start).Seconds())
	return rec, nil
}

// fetch routes and reads through the store, coalescing concurrent misses for
// the same id. Only a successful fetch populates the cache; not_found is
// never cached, so a write completing right after a failed read is not
// masked by a stale negative entry.
func (s *Service) fetch(ctx context.Context, id string) (domain.Record, error) {
	v, err, _ := s.group.Do(id, func() (any, error) {
		assignment := s.router.Route(id)

		ctx, cancel := s.withBudget(ctx)
		defer cancel()

		var rec domain.Record
		err := retry.Do(ctx, s.retryPolicy(), func(err error) bool {
			return pkgerrors.IsKind(err, pkgerrors.KindUnavailable)
		}, func(ctx context.Context) error {
			var err error
			rec, err = s.store.Get(ctx, assignment.Shard, id)
			return err
		})
		if err != nil {
			var deadline *retry.DeadlineError
			if errors.As(err, &deadline) {
				return nil, pkgerrors.Wrap(pkgerrors.KindDeadline, "read abandoned by latency budget", err)
			}
			return nil, err
		}

		if s.cache != nil {
			s.cache.Put(ctx, id, rec)
		}
		return rec, nil
	})
	if err != nil {
		return domain.Record{}, err
	}
	return v.(domain.Record), nil
}

func (s *Service) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.budget <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.budget)
}

func (s *Service) retryPolicy() retry.Policy {
	p := s.policy
	p.OnRetry = func(int, error) { s.metrics.IncStoreRetry() }
	return p
}

func outcomeOf(err error) string {
	if errors.Is(err, store.ErrNotFound) || pkgerrors.IsKind(err, pkgerrors.KindNotFound) {
		return "not_found"
	}
	return "error"
}
