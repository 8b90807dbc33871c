// Package gstore is the Global Store (C5): a replicated K/V state machine
// plus a per-node cached client with subscription-driven invalidation and
// compare-and-swap semantics (spec §4.5).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package gstore

import (
	"bytes"
	"sync"

	"github.com/tidwall/buntdb"
	"github.com/tinylib/msgp/msgp"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/cmn/nlog"
	"github.com/ShisoftResearch/hivemind-go/internal/consensus"
)

// Delta is what on_changed(id) carries to subscribers: the key that
// changed and its new value, or nil if it was deleted (spec §4.5).
type Delta struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

func topic(id cos.UUID) string { return "gstore:" + id.String() }

type namespace struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// StateMachine is the replicated command/query surface of spec §4.5. It
// totally orders every mutating command through consensus.Sequencer and,
// when a durable path is configured, mirrors every committed key write
// into an embedded buntdb index. The mirror is write-only: New does not
// load from it, and Dump serves in-memory state only.
type StateMachine struct {
	seq    consensus.Sequencer
	broker *consensus.Broker

	mu   sync.RWMutex
	ns   map[cos.UUID]*namespace
	durable *buntdb.DB // nil if no durability path configured
}

// New constructs a StateMachine. durablePath == "" runs purely in memory
// (":memory:" passed to buntdb.Open also works and is equivalent).
func New(durablePath string) (*StateMachine, error) {
	sm := &StateMachine{
		broker: consensus.NewBroker(),
		ns:     make(map[cos.UUID]*namespace),
	}
	if durablePath != "" {
		db, err := buntdb.Open(durablePath)
		if err != nil {
			return nil, cos.ErrIOf("gstore.New", err)
		}
		sm.durable = db
	}
	return sm, nil
}

func (sm *StateMachine) durableKey(id cos.UUID, key []byte) string {
	return id.String() + "\x00" + string(key)
}

func (sm *StateMachine) mirror(id cos.UUID, key, value []byte, deleted bool) {
	if sm.durable == nil {
		return
	}
	dk := sm.durableKey(id, key)
	err := sm.durable.Update(func(tx *buntdb.Tx) error {
		if deleted {
			_, err := tx.Delete(dk)
			if err != nil && err != buntdb.ErrNotFound {
				return err
			}
			return nil
		}
		_, _, err := tx.Set(dk, string(value), nil)
		return err
	})
	if err != nil {
		nlog.Warningf("gstore: durability mirror write failed for %s: %v", id, err)
	}
}

// CreateStore installs an empty namespace, failing if it already exists
// (spec §4.5).
func (sm *StateMachine) CreateStore(id cos.UUID) error {
	return sm.seq.Do(func() error {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.ns[id]; ok {
			return cos.ErrExists("namespace", id.String())
		}
		sm.ns[id] = &namespace{data: make(map[string][]byte)}
		return nil
	})
}

// Invalidate removes a namespace, failing if it does not exist (spec §4.5).
func (sm *StateMachine) Invalidate(id cos.UUID) error {
	return sm.seq.Do(func() error {
		sm.mu.Lock()
		_, ok := sm.ns[id]
		if !ok {
			sm.mu.Unlock()
			return cos.ErrNotFound
		}
		delete(sm.ns, id)
		sm.mu.Unlock()
		return nil
	})
}

func (sm *StateMachine) lookup(id cos.UUID) (*namespace, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	n, ok := sm.ns[id]
	return n, ok
}

// Set installs value at key, or deletes it if value is nil (spec §4.5).
// Every call emits on_changed(id) to subscribers after the write commits.
func (sm *StateMachine) Set(id cos.UUID, key, value []byte) error {
	return sm.seq.Do(func() error {
		n, ok := sm.lookup(id)
		if !ok {
			return cos.ErrNotFound
		}
		n.mu.Lock()
		if value == nil {
			delete(n.data, string(key))
		} else {
			n.data[string(key)] = append([]byte(nil), value...)
		}
		n.mu.Unlock()

		sm.mirror(id, key, value, value == nil)
		sm.broker.Publish(topic(id), Delta{Key: key, Value: value, Deleted: value == nil})
		return nil
	})
}

// Swap installs value at key and returns the previous value (spec §4.5).
func (sm *StateMachine) Swap(id cos.UUID, key, value []byte) (prev []byte, err error) {
	err = sm.seq.Do(func() error {
		n, ok := sm.lookup(id)
		if !ok {
			return cos.ErrNotFound
		}
		n.mu.Lock()
		prev = n.data[string(key)]
		if value == nil {
			delete(n.data, string(key))
		} else {
			n.data[string(key)] = append([]byte(nil), value...)
		}
		n.mu.Unlock()

		sm.mirror(id, key, value, value == nil)
		sm.broker.Publish(topic(id), Delta{Key: key, Value: value, Deleted: value == nil})
		return nil
	})
	return prev, err
}

// CompareAndSwap atomically applies new iff the stored value equals
// expect; it always returns the actual value observed at the moment of
// the CAS, whether or not the write applied (spec §4.5, §8 "Global CAS").
func (sm *StateMachine) CompareAndSwap(id cos.UUID, key, expect, newVal []byte) (actual []byte, applied bool, err error) {
	err = sm.seq.Do(func() error {
		n, ok := sm.lookup(id)
		if !ok {
			return cos.ErrNotFound
		}
		n.mu.Lock()
		cur, exists := n.data[string(key)]
		match := (expect == nil && !exists) || (expect != nil && exists && bytes.Equal(cur, expect))
		actual = cur
		if match {
			if newVal == nil {
				delete(n.data, string(key))
			} else {
				n.data[string(key)] = append([]byte(nil), newVal...)
			}
			applied = true
		}
		n.mu.Unlock()

		if applied {
			sm.mirror(id, key, newVal, newVal == nil)
			sm.broker.Publish(topic(id), Delta{Key: key, Value: newVal, Deleted: newVal == nil})
		}
		return nil
	})
	return actual, applied, err
}

// Get performs a point read directly against committed state.
func (sm *StateMachine) Get(id cos.UUID, key []byte) ([]byte, error) {
	n, ok := sm.lookup(id)
	if !ok {
		return nil, cos.ErrNotFound
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.data[string(key)], nil
}

// Dump returns the whole map, used for cache warm-up in Prepare.
func (sm *StateMachine) Dump(id cos.UUID) (map[string][]byte, error) {
	n, ok := sm.lookup(id)
	if !ok {
		return nil, cos.ErrNotFound
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string][]byte, len(n.data))
	for k, v := range n.data {
		out[k] = v
	}
	return out, nil
}

// Subscribe registers fn for every on_changed(id) notification, returning
// a cancel function.
func (sm *StateMachine) Subscribe(id cos.UUID, fn func(Delta)) (cancel func()) {
	return sm.broker.Subscribe(topic(id), func(n consensus.Notification) {
		fn(n.Payload.(Delta))
	})
}

// Snapshot serializes every namespace as a length-prefixed, msgpack-encoded
// blob (spec §6: "component-versioned byte blobs").
func (sm *StateMachine) Snapshot() ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := w.WriteInt(1); err != nil { // component version
		return nil, err
	}
	if err := w.WriteMapHeader(uint32(len(sm.ns))); err != nil {
		return nil, err
	}
	for id, n := range sm.ns {
		if err := w.WriteBytes(id[:]); err != nil {
			return nil, err
		}
		n.mu.RLock()
		err := w.WriteMapHeader(uint32(len(n.data)))
		if err == nil {
			for k, v := range n.data {
				if err = w.WriteString(k); err != nil {
					break
				}
				if err = w.WriteBytes(v); err != nil {
					break
				}
			}
		}
		n.mu.RUnlock()
		if err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Recover restores every namespace verbatim from a Snapshot blob.
func (sm *StateMachine) Recover(blob []byte) error {
	r := msgp.NewReader(bytes.NewReader(blob))
	if _, err := r.ReadInt(); err != nil {
		return cos.ErrTypeMismatchf("gstore.Recover: version: %v", err)
	}
	nstores, err := r.ReadMapHeader()
	if err != nil {
		return cos.ErrTypeMismatchf("gstore.Recover: %v", err)
	}
	restored := make(map[cos.UUID]*namespace, nstores)
	for i := uint32(0); i < nstores; i++ {
		idb, err := r.ReadBytes(nil)
		if err != nil {
			return cos.ErrTypeMismatchf("gstore.Recover: id: %v", err)
		}
		var id cos.UUID
		copy(id[:], idb)
		nkeys, err := r.ReadMapHeader()
		if err != nil {
			return cos.ErrTypeMismatchf("gstore.Recover: map: %v", err)
		}
		n := &namespace{data: make(map[string][]byte, nkeys)}
		for j := uint32(0); j < nkeys; j++ {
			k, err := r.ReadString()
			if err != nil {
				return cos.ErrTypeMismatchf("gstore.Recover: key: %v", err)
			}
			v, err := r.ReadBytes(nil)
			if err != nil {
				return cos.ErrTypeMismatchf("gstore.Recover: value: %v", err)
			}
			n.data[k] = v
		}
		restored[id] = n
	}

	sm.mu.Lock()
	sm.ns = restored
	sm.mu.Unlock()
	return nil
}
