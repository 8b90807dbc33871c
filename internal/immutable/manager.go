/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package immutable

import (
	"context"
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/cmn/nlog"
	"github.com/ShisoftResearch/hivemind-go/cmn/stats"
	"github.com/ShisoftResearch/hivemind-go/internal/blockmgr"
	"github.com/ShisoftResearch/hivemind-go/internal/blockstore"
	"github.com/ShisoftResearch/hivemind-go/internal/blocksvc"
)

// BlockCopyBuffer is how many records one clone round-trip pulls at a time
// (spec §4.4).
const BlockCopyBuffer = 64

// DefaultCloneTimeout bounds how long the clone loop spends on a single
// candidate server before moving to the next one (spec §9 Open Question:
// "a timeout or retry budget should be added").
const DefaultCloneTimeout = 30 * time.Second

// Manager is the Immutable Manager (C4).
type Manager struct {
	localID cos.UUID
	bm      *blockmgr.Manager
	reg     *Registry
	damper  singleflight.Group
	filter  *cuckoo.Filter

	CloneTimeout time.Duration
}

func New(localID cos.UUID, bm *blockmgr.Manager, reg *Registry) *Manager {
	return &Manager{
		localID:      localID,
		bm:           bm,
		reg:          reg,
		filter:       cuckoo.NewFilter(1 << 20),
		CloneTimeout: DefaultCloneTimeout,
	}
}

func damperKey(task, block cos.UUID) string { return task.String() + ":" + block.String() }

// DisposeRegistry tears down task's location registry and forgets any
// outstanding clone-damper entries for its blocks first, so a concurrent
// ensureLocal call racing the disposal doesn't hand back a damped result
// for a (task, block) pair the registry no longer knows about (spec §9
// supplemented behavior).
func (m *Manager) DisposeRegistry(task cos.UUID) {
	for _, block := range m.reg.Keys(task) {
		m.damper.Forget(damperKey(task, block))
	}
	m.reg.DisposeRegistry(task)
}

func filterKey(task, block cos.UUID) []byte {
	b := make([]byte, 0, 32)
	b = append(b, task[:]...)
	b = append(b, block[:]...)
	return b
}

// Write records the local node as a holder of (task, block) in the
// registry if it is not already known, then forwards the append to the
// Block Manager (spec §4.4 write path).
func (m *Manager) Write(task, block cos.UUID, items [][]byte) ([]int64, error) {
	if !m.reg.KnowsLocally(task, block, m.localID) {
		if err := m.reg.SetLocation(task, block, m.localID); err != nil {
			return nil, err
		}
		m.filter.InsertUnique(filterKey(task, block))
	}
	return m.bm.Write(m.localID, blocksvc.WriteArgs{Task: task, Block: block, Items: items})
}

// Set aggregates every immutable KV value of a task into one block keyed
// by the task id itself (spec §4.4: "one block per task aggregates all KV
// values of that task"). NOTE: as spec §9 observes, this conflates
// namespaces if multiple immutable blocks share a task id; kept
// intentional per spec.
func (m *Manager) Set(task, key cos.UUID, value []byte) error {
	if !m.reg.KnowsLocally(task, key, m.localID) {
		if err := m.reg.SetLocation(task, key, m.localID); err != nil {
			return err
		}
	}
	return m.bm.Set(m.localID, blocksvc.SetArgs{Task: task, Block: task, Key: key, Value: value})
}

// Read serves from the local store if present; otherwise clones the block
// from a replica before serving (spec §4.4 read path).
func (m *Manager) Read(task, block cos.UUID, cur blockstore.Cursor) ([][]byte, blockstore.Cursor, error) {
	exists, err := m.bm.Exists(m.localID, blocksvc.ExistsArgs{Task: task, Block: block})
	if err != nil {
		return nil, cur, err
	}
	if !exists {
		if err := m.ensureLocal(task, block); err != nil {
			return nil, cur, err
		}
	}
	reply, err := m.bm.Read(m.localID, blocksvc.ReadArgs{Task: task, Block: block, Cursor: cur})
	if err != nil {
		return nil, cur, err
	}
	return reply.Records, reply.Cursor, nil
}

// ensureLocal runs the clone-on-miss state machine damped per (task,
// block) via singleflight, so N concurrent readers of an absent block
// result in exactly one clone (spec §8 "Clone damping").
func (m *Manager) ensureLocal(task, block cos.UUID) error {
	start := time.Now()
	_, err, _ := m.damper.Do(damperKey(task, block), func() (any, error) {
		// Re-check: a previous damped caller may have just finished.
		exists, err := m.bm.Exists(m.localID, blocksvc.ExistsArgs{Task: task, Block: block})
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
		if !m.filter.Lookup(filterKey(task, block)) {
			nlog.Debugln("immutable: cuckoo filter reports no known holder for", task, block)
		}
		candidates, ok := m.reg.GetLocation(task, block)
		if !ok || len(candidates) == 0 {
			return nil, cos.ErrRemote(cos.Nil, cos.ErrNotFound)
		}
		// Rank candidates by consistent-hash affinity so repeated misses
		// of the same block converge on the same first-try server instead
		// of racing every replica in registry insertion order.
		candidates = blockmgr.Ring{}.Rank(block, candidates)
		return nil, m.cloneFromAny(task, block, candidates)
	})
	stats.CloneWaits.Observe(time.Since(start).Seconds())
	return err
}

// cloneFromAny tries each candidate server in turn, stopping at the first
// that completes a full clone (spec §4.4: "If every candidate fails, fail
// the read").
func (m *Manager) cloneFromAny(task, block cos.UUID, candidates []cos.UUID) error {
	var lastErr error
	for _, server := range candidates {
		if server == m.localID {
			continue
		}
		deadline := time.Now().Add(m.cloneTimeout())
		if err := m.cloneFrom(task, block, server, deadline); err != nil {
			nlog.Warningf("immutable: clone of task=%s block=%s from server=%s failed: %v", task, block, server, err)
			lastErr = err
			continue
		}
		if err := m.reg.SetLocation(task, block, m.localID); err != nil {
			return err
		}
		return nil
	}
	if lastErr == nil {
		lastErr = cos.ErrNotFound
	}
	return cos.ErrRemote(candidates[len(candidates)-1], lastErr)
}

func (m *Manager) cloneTimeout() time.Duration {
	if m.CloneTimeout <= 0 {
		return DefaultCloneTimeout
	}
	return m.CloneTimeout
}

// cloneFrom pulls BlockCopyBuffer records at a time from server into the
// local store until the remote returns an empty batch (spec §4.4).
func (m *Manager) cloneFrom(task, block, server cos.UUID, deadline time.Time) error {
	stats.ClonesStarted.Inc()
	cur := blockstore.Cursor{Limit: blockstore.Items(BlockCopyBuffer)}
	for {
		if time.Now().After(deadline) {
			return cos.ErrRemote(server, cos.ErrRemoteUnavailable)
		}
		reply, err := m.bm.Read(server, blocksvc.ReadArgs{Task: task, Block: block, Cursor: cur})
		if err != nil {
			return err
		}
		if len(reply.Records) == 0 {
			return nil
		}
		if _, err := m.bm.Write(m.localID, blocksvc.WriteArgs{Task: task, Block: block, Items: reply.Records}); err != nil {
			return err
		}
		cur = reply.Cursor
	}
}

// Get serves a KV read from the local aggregate block, cloning a single
// value from a replica on miss (spec §4.4 get path).
func (m *Manager) Get(task, key cos.UUID) ([]byte, error) {
	val, err := m.bm.Get(m.localID, blocksvc.KeyArgs{Task: task, Block: task, Key: key})
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}
	candidates, ok := m.reg.GetLocation(task, key)
	if !ok {
		return nil, nil
	}
	remote, found, err := m.probeCandidates(task, key, candidates)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, cos.ErrRemote(candidates[0], cos.ErrNotFound)
	}
	if err := m.bm.Set(m.localID, blocksvc.SetArgs{Task: task, Block: task, Key: key, Value: remote}); err != nil {
		return nil, err
	}
	if err := m.reg.SetLocation(task, key, m.localID); err != nil {
		return nil, err
	}
	return remote, nil
}

// probeCandidates races a KV get against every registry candidate at once
// instead of trying them one at a time, so a single slow or dead replica
// never delays a get that another replica could have answered immediately;
// the first successful hit wins, and the remaining probes' results are
// discarded rather than awaited.
func (m *Manager) probeCandidates(task, key cos.UUID, candidates []cos.UUID) ([]byte, bool, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	hits := make(chan []byte, len(candidates))

	for _, server := range candidates {
		if server == m.localID {
			continue
		}
		server := server
		g.Go(func() error {
			v, err := m.bm.Get(server, blocksvc.KeyArgs{Task: task, Block: task, Key: key})
			if err != nil || v == nil {
				return nil
			}
			select {
			case hits <- v:
			case <-gctx.Done():
			}
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait(); close(hits) }()

	select {
	case v, ok := <-hits:
		if ok {
			cancel()
			return v, true, nil
		}
		return nil, false, <-done
	case err := <-done:
		// hits is closed right after done is sent; a hit may still be buffered.
		if v, ok := <-hits; ok {
			return v, true, nil
		}
		return nil, false, err
	}
}
