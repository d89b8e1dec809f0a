// Package ingest orchestrates the write path: validate, dedupe, route,
// persist, acknowledge. This is the one place that guarantees a client retry
// never produces two stored records and that validation failures never reach
// the store.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"recordstore/internal/audit"
	"recordstore/internal/domain"
	"recordstore/internal/idempotency"
	"recordstore/internal/platform/metrics"
	"recordstore/internal/shard"
	"recordstore/internal/store"
	pkgerrors "recordstore/pkg/errors"
	"recordstore/pkg/platform/retry"
)

// writeIDNamespace derives record ids from idempotency keys, so a keyed write
// maps to the same id on every retry even if the tracker entry is lost. The
// store then absorbs the replay as an identical re-put instead of creating a
// second record.
var writeIDNamespace = uuid.MustParse("9f2c1f7e-5a1d-4c7b-9f6e-3d8a2b4c5d6e")

// Validator is the schema seam consumed by the write path.
type Validator interface {
	Validate(payload map[string]any, version int) error
}

// Service runs each write through the state machine
// Received → Validated → Deduped → Routed → Persisted → Acknowledged, exiting
// to a client error (validation, conflict) or a server error (unavailable,
// deadline) on failure.
type Service struct {
	schemas Validator
	tracker idempotency.Tracker
	router  *shard.Router
	store   store.Client

	audit   audit.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	policy  retry.Policy
	budget  time.Duration
	tracer  trace.Tracer
	clock   func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithAudit attaches the write event trail.
func WithAudit(p audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRetryPolicy bounds the persistence retry loop.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLatencyBudget bounds a write when the caller supplied no deadline.
func WithLatencyBudget(d time.Duration) Option {
	return func(s *Service) { s.budget = d }
}

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New wires the write path. Tracker may be nil only if every request is
// keyless.
func New(schemas Validator, tracker idempotency.Tracker, router *shard.Router, st store.Client, opts ...Option) *Service {
	s := &Service{
		schemas: schemas,
		tracker: tracker,
		router:  router,
		store:   st,
		logger:  slog.Default(),
		policy:  retry.Policy{MaxAttempts: 3, BaseBackoff: 25 * time.Millisecond, MaxBackoff: 250 * time.Millisecond},
		tracer:  otel.Tracer("recordstore/ingest"),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest processes one parsed, authenticated write request.
func (s *Service) Ingest(ctx context.Context, req domain.WriteRequest) (domain.WriteAck, error) {
	start := s.clock()
	ctx, span := s.tracer.Start(ctx, "ingest.write")
	defer span.End()

	// Received → Validated. Rejections never touch the tracker or the store.
	if err := s.schemas.Validate(req.Payload, req.SchemaVersion); err != nil {
		s.observe("rejected", start)
		return domain.WriteAck{}, err
	}
	fingerprint := domain.FingerprintPayload(req.Payload)

	// Validated → Deduped. Keyless writes skip the tracker; duplicate
	// submission without a key is the caller's risk.
	reserved := false
	if req.IdempotencyKey != "" {
		if s.tracker == nil {
			return domain.WriteAck{}, pkgerrors.New(pkgerrors.KindInternal, "idempotency key supplied but no tracker configured")
		}
		res, err := s.tracker.CheckAndReserve(ctx, req.IdempotencyKey, fingerprint)
		if err != nil {
			s.observe("failed", start)
			return domain.WriteAck{}, err
		}
		if !res.Fresh {
			// Prior write wins regardless of payload: first-writer-wins,
			// the tracker never overwrites.
			s.metrics.IncDuplicate()
			s.observe("duplicate", start)
			return domain.WriteAck{ID: res.ResultID, Status: domain.WriteStatusDuplicate}, nil
		}
		reserved = true
	}

	// Deduped → Routed. The id is fixed here, before persistence, because
	// the shard key must never change once the record lands.
	rec := domain.Record{
		ID:            s.assignID(req),
		Payload:       req.Payload,
		CreatedAt:     s.clock().UTC(),
		SchemaVersion: req.SchemaVersion,
	}
	assignment := s.router.Route(rec.ID)
	span.AddEvent("routed")

	// Routed → Persisted, with bounded backoff on transient failure. The
	// deadline derives from the latency budget; we do not retry forever.
	ctx, cancel := s.withBudget(ctx)
	defer cancel()
	err := retry.Do(ctx, s.retryPolicy(), retryableStoreErr, func(ctx context.Context) error {
		return s.store.Put(ctx, assignment.Shard, rec)
	})
	if err != nil {
		if reserved {
			s.release(req.IdempotencyKey)
		}
		s.observe("failed", start)
		return domain.WriteAck{}, s.mapPersistError(err)
	}

	// Persisted → Acknowledged. The commit is best-effort-retried; if it
	// still fails we keep the reservation rather than release it, so a
	// retried request cannot slip past the tracker and the derived id lets
	// the store absorb it as a replay either way.
	if reserved {
		if err := s.commit(ctx, req.IdempotencyKey, rec.ID); err != nil {
			s.logger.ErrorContext(ctx, "idempotency commit failed after persist",
				"record_id", rec.ID,
				"error", err,
			)
		}
	}

	s.emitAudit(ctx, rec, assignment)
	s.observe("created", start)
	return domain.WriteAck{ID: rec.ID, Status: domain.WriteStatusCreated}, nil
}

// assignID honors a caller-assigned id, derives one from the idempotency key,
// or mints a random one, in that order.
func (s *Service) assignID(req domain.WriteRequest) string {
	if req.ID != "" {
		return req.ID
	}
	if req.IdempotencyKey != "" {
		return uuid.NewSHA1(writeIDNamespace, []byte(req.IdempotencyKey)).String()
	}
	return uuid.NewString()
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

func (s *Service) commit(ctx context.Context, key, resultID string) error {
	return retry.Do(ctx, s.retryPolicy(), func(err error) bool {
		return pkgerrors.IsKind(err, pkgerrors.KindUnavailable)
	}, func(ctx context.Context) error {
		return s.tracker.Commit(ctx, key, resultID)
	})
}

// release drops a reservation after a failed write so a legitimate retry is
// not blocked for the rest of the window. Detached context: the request may
// already be past its deadline.
func (s *Service) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.tracker.Release(ctx, key); err != nil {
		s.logger.ErrorContext(ctx, "idempotency release failed", "error", err)
	}
}

// emitAudit is fail-open: the trail never fails a write.
func (s *Service) emitAudit(ctx context.Context, rec domain.Record, assignment shard.Assignment) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Event{
		RecordID:       rec.ID,
		Status:         string(domain.WriteStatusCreated),
		Shard:          assignment.Shard,
		MappingVersion: assignment.Version,
		SchemaVersion:  rec.SchemaVersion,
		Timestamp:      rec.CreatedAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "record_id", rec.ID, "error", err)
	}
}

func (s *Service) mapPersistError(err error) error {
	var deadline *retry.DeadlineError
	if errors.As(err, &deadline) {
		return pkgerrors.Wrap(pkgerrors.KindDeadline, "write abandoned by latency budget", err)
	}
	return err
}

func (s *Service) observe(status string, start time.Time) {
	s.metrics.ObserveWrite(status, s.clock().Sub(start).Seconds())
}

// retryableStoreErr retries only transient backend failures. Conflicts and
// validation problems are final.
func retryableStoreErr(err error) bool {
	return pkgerrors.IsKind(err, pkgerrors.KindUnavailable)
}
