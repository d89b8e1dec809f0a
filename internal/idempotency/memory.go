package idempotency

import (
	"context"
	"sync"
	"time"
)

type entryStatus int

const (
	statusPending entryStatus = iota
	statusCommitted
)

type entry struct {
	status      entryStatus
	resultID    string
	fingerprint []byte
	expiresAt   time.Time
}

// MemoryTracker is the instance-local tracker. A background sweeper drops
// expired entries so the window bounds memory; lookups also treat expired
// entries as absent, so correctness never depends on sweep timing.
type MemoryTracker struct {
	mu      sync.Mutex
	entries map[string]entry
	window  time.Duration
	clock   func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// MemoryOption configures a MemoryTracker.
type MemoryOption func(*MemoryTracker)

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(t *MemoryTracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewMemoryTracker builds a tracker with the given dedup window. A positive
// sweepInterval starts the background janitor; Stop tears it down.
func NewMemoryTracker(window, sweepInterval time.Duration, opts ...MemoryOption) *MemoryTracker {
	t := &MemoryTracker{
		entries: make(map[string]entry),
		window:  window,
		clock:   time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if sweepInterval > 0 {
		go t.sweep(sweepInterval)
	}
	return t
}

func (t *MemoryTracker) CheckAndReserve(_ context.Context, key string, fingerprint []byte) (Result, error) {
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[key]; ok && now.Before(e.expiresAt) {
		if e.status == statusPending {
			return Result{}, ErrInFlight
		}
		return Result{Fresh: false, ResultID: e.resultID}, nil
	}

	t.entries[key] = entry{
		status:      statusPending,
		fingerprint: fingerprint,
		expiresAt:   now.Add(t.window),
	}
	return Result{Fresh: true}, nil
}

func (t *MemoryTracker) Commit(_ context.Context, key, resultID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		// Reservation expired mid-write. Record the result anyway so late
		// duplicates still collapse.
		e = entry{}
	}
	e.status = statusCommitted
	e.resultID = resultID
	e.expiresAt = t.clock().Add(t.window)
	t.entries[key] = e
	return nil
}

func (t *MemoryTracker) Release(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok && e.status == statusPending {
		delete(t.entries, key)
	}
	return nil
}

// Stop terminates the background sweeper. Idempotent.
func (t *MemoryTracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *MemoryTracker) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.removeExpired()
		case <-t.stop:
			return
		}
	}
}

func (t *MemoryTracker) removeExpired() int {
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, e := range t.entries {
		if !now.Before(e.expiresAt) {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}
