// Package audit emits the write-path event trail. Publishing is fail-open:
// an emit failure is logged and never fails the business write, so the trail
// is an observability aid, not a second system of record.
package audit

import (
	"context"
	"sync"
	"time"
)

// Event captures one acknowledged write.
type Event struct {
	RecordID       string      `json:"record_id"`
	Status         string      `json:"status"`
	Shard          int         `json:"shard"`
	MappingVersion int         `json:"mapping_version"`
	SchemaVersion  int         `json:"schema_version"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Publisher is the event sink seam.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}

// MemoryPublisher accumulates events for tests and single-process use.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher builds an in-memory sink.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event{}, p.events...)
}

func (p *MemoryPublisher) Close() error { return nil }
