// Package domain holds the value types shared across the core. Types here are
// plain data; behavior lives in the component packages.
package domain

import (
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Record is the unit of storage. ID is immutable once assigned and globally
// unique within the dataset; Payload must have passed validation against the
// schema registered for SchemaVersion.
type Record struct {
	ID            string         `json:"id"`
	Payload       map[string]any `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
	SchemaVersion int            `json:"schema_version"`
}

// Fingerprint returns a stable digest of the payload, used to distinguish an
// idempotent replay of the same record from an identifier collision with
// different content. json.Marshal sorts map keys, so the digest is
// deterministic for equal payloads.
func (r Record) Fingerprint() []byte {
	return FingerprintPayload(r.Payload)
}

// FingerprintPayload digests an arbitrary JSON-compatible payload.
func FingerprintPayload(payload map[string]any) []byte {
	b, err := json.Marshal(payload)
	if err != nil {
		// map[string]any built from decoded JSON always marshals; a payload
		// that does not is treated as unique.
		return nil
	}
	sum := blake2b.Sum256(b)
	return sum[:]
}

// WriteStatus reports how a write concluded from the caller's perspective.
type WriteStatus string

const (
	// WriteStatusCreated means a new record was persisted by this request.
	WriteStatusCreated WriteStatus = "created"
	// WriteStatusDuplicate means the idempotency key matched a prior write
	// and its original result was returned without touching the store.
	WriteStatusDuplicate WriteStatus = "duplicate"
)

// WriteRequest is the parsed, authenticated write handed to the core by the
// gateway layer. ID is optional; when empty the core assigns one.
type WriteRequest struct {
	ID             string         `json:"id,omitempty"`
	Payload        map[string]any `json:"payload"`
	SchemaVersion  int            `json:"schema_version"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// WriteAck is the acknowledgment returned for a successful write.
type WriteAck struct {
	ID     string      `json:"id"`
	Status WriteStatus `json:"status"`
}
