// Package immutable is the Immutable Manager (C4): it wraps the Block
// Manager with a replicated location registry and a clone-on-miss read
// path that transparently pulls a remote block into the local store on
// first access (spec §4.4).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package immutable

import (
	"sync"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/consensus"
)

// Registry is the location-registry state machine: registry_id -> key ->
// set<server_id> (spec §3). registry_id equals the owning task id.
// Entries are monotonic within a registry's lifetime: set_location only
// ever adds to the replica set (spec §5 ordering guarantees).
type Registry struct {
	seq     consensus.Sequencer
	mu      sync.RWMutex
	entries map[cos.UUID]map[cos.UUID]map[cos.UUID]struct{} // id -> key -> servers
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[cos.UUID]map[cos.UUID]map[cos.UUID]struct{})}
}

// CreateRegistry installs an empty registry, failing if id already exists.
func (r *Registry) CreateRegistry(id cos.UUID) error {
	return r.seq.Do(func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.entries[id]; ok {
			return cos.ErrExists("registry", id.String())
		}
		r.entries[id] = make(map[cos.UUID]map[cos.UUID]struct{})
		return nil
	})
}

// DisposeRegistry removes a registry; any clone damper entries tied to it
// are released by the Manager, not here (spec §9 supplemented behavior).
func (r *Registry) DisposeRegistry(id cos.UUID) {
	r.seq.Do(func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.entries, id)
		return nil
	})
}

// Keys returns a snapshot of every key (block or KV key) currently held
// under registry id, letting a caller forget per-key bookkeeping before
// disposing of the registry itself.
func (r *Registry) Keys(id cos.UUID) []cos.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]cos.UUID, 0, len(r.entries[id]))
	for key := range r.entries[id] {
		keys = append(keys, key)
	}
	return keys
}

// SetLocation adds server to the replica set for (id, key); a no-op if
// already present (monotonic, spec §5).
func (r *Registry) SetLocation(id, key, server cos.UUID) error {
	return r.seq.Do(func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		byKey, ok := r.entries[id]
		if !ok {
			byKey = make(map[cos.UUID]map[cos.UUID]struct{})
			r.entries[id] = byKey
		}
		servers, ok := byKey[key]
		if !ok {
			servers = make(map[cos.UUID]struct{})
			byKey[key] = servers
		}
		servers[server] = struct{}{}
		return nil
	})
}

// GetLocation returns the replica set for (id, key), or (nil, false) if
// key is unknown.
func (r *Registry) GetLocation(id, key cos.UUID) ([]cos.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byKey, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	servers, ok := byKey[key]
	if !ok {
		return nil, false
	}
	out := make([]cos.UUID, 0, len(servers))
	for s := range servers {
		out = append(out, s)
	}
	return out, true
}

// KnowsLocally reports whether server is already recorded as a holder of
// (id, key), used to skip a redundant SetLocation on the write path.
func (r *Registry) KnowsLocally(id, key, server cos.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byKey, ok := r.entries[id]
	if !ok {
		return false
	}
	servers, ok := byKey[key]
	if !ok {
		return false
	}
	_, ok = servers[server]
	return ok
}
