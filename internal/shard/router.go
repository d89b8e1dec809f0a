// Package shard maps record identifiers to partitions of the backing store.
// Assignments are a pure function of (mapping version, id): the same id always
// routes to the same shard under a fixed version, and versions are immutable
// once registered so a migration can run two mappings side by side.
package shard

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// Mapping is one immutable shard topology.
type Mapping struct {
	Version    int
	Partitions int
}

// Assignment is the routing decision for one record id.
type Assignment struct {
	Shard   int
	Version int
}

// Router answers "given this mapping version, which shard". The router knows
// nothing about migration mechanics; it only keeps versions addressable.
type Router struct {
	mu       sync.RWMutex
	current  int
	mappings map[int]Mapping
}

// NewRouter builds a router with an initial current mapping.
func NewRouter(m Mapping) (*Router, error) {
	if m.Partitions <= 0 {
		return nil, fmt.Errorf("partitions must be positive, got %d", m.Partitions)
	}
	if m.Version <= 0 {
		return nil, fmt.Errorf("mapping version must be positive, got %d", m.Version)
	}
	return &Router{
		current:  m.Version,
		mappings: map[int]Mapping{m.Version: m},
	}, nil
}

// Route assigns a shard under the current mapping.
func (r *Router) Route(id string) Assignment {
	r.mu.RLock()
	m := r.mappings[r.current]
	r.mu.RUnlock()
	return Assignment{Shard: shardFor(id, m.Partitions), Version: m.Version}
}

// RouteAt assigns a shard under a specific registered mapping version, so a
// dual-read/dual-write migration can consult old and new topologies.
func (r *Router) RouteAt(version int, id string) (Assignment, error) {
	r.mu.RLock()
	m, ok := r.mappings[version]
	r.mu.RUnlock()
	if !ok {
		return Assignment{}, fmt.Errorf("unknown mapping version %d", version)
	}
	return Assignment{Shard: shardFor(id, m.Partitions), Version: version}, nil
}

// CurrentVersion reports the mapping new writes route under.
func (r *Router) CurrentVersion() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Register adds a mapping without promoting it, allowing dual routing during
// a migration. Registered versions cannot be redefined.
func (r *Router) Register(m Mapping) error {
	if m.Partitions <= 0 {
		return fmt.Errorf("partitions must be positive, got %d", m.Partitions)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mappings[m.Version]; exists {
		return fmt.Errorf("mapping version %d already registered", m.Version)
	}
	r.mappings[m.Version] = m
	return nil
}

// Promote makes a registered mapping the current one.
func (r *Router) Promote(version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mappings[version]; !ok {
		return fmt.Errorf("unknown mapping version %d", version)
	}
	r.current = version
	return nil
}

// shardFor hashes the id with FNV-1a 64 modulo the partition count. Stability
// across the cluster's lifetime matters more than distribution elegance here;
// topology changes go through a new mapping version, never a rehash in place.
func shardFor(id string, partitions int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum64() % uint64(partitions))
}
