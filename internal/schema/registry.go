package schema

import (
	"encoding/json"
	"fmt"
	"os"

	pkgerrors "recordstore/pkg/errors"
)

// Registry resolves schema versions to rule sets. It is immutable after
// construction, so concurrent validation needs no locking.
type Registry struct {
	schemas  map[int]Schema
	maxBytes int
	failFast bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxPayloadBytes caps serialized payload size.
func WithMaxPayloadBytes(n int) Option {
	return func(r *Registry) { r.maxBytes = n }
}

// WithFailFast reports only the first failing field.
func WithFailFast() Option {
	return func(r *Registry) { r.failFast = true }
}

// NewRegistry builds a registry from the given schemas.
func NewRegistry(schemas []Schema, opts ...Option) (*Registry, error) {
	r := &Registry{schemas: make(map[int]Schema, len(schemas))}
	for _, opt := range opts {
		opt(r)
	}
	for _, s := range schemas {
		if s.Version <= 0 {
			return nil, fmt.Errorf("schema version must be positive, got %d", s.Version)
		}
		if _, dup := r.schemas[s.Version]; dup {
			return nil, fmt.Errorf("duplicate schema version %d", s.Version)
		}
		r.schemas[s.Version] = s
	}
	return r, nil
}

// LoadFile builds a registry from a JSON document of the form
// {"schemas": [...]}. Schema changes ship as data, not code.
func LoadFile(path string, opts ...Option) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var doc struct {
		Schemas []Schema `json:"schemas"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	return NewRegistry(doc.Schemas, opts...)
}

// Validate checks a payload against the schema registered for version.
// An unregistered version is a client error, not an internal one.
func (r *Registry) Validate(payload map[string]any, version int) error {
	s, ok := r.schemas[version]
	if !ok {
		return pkgerrors.Validation(
			fmt.Sprintf("unknown schema version %d", version), "schema_version")
	}
	return s.Validate(payload, r.maxBytes, r.failFast)
}
