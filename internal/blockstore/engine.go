// Package blockstore is the Local Block Engine (C1): a per-node
// (task, block) -> Block map with memory-to-disk spill and a resumable
// cursor read path (spec §4.1).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blockstore

import (
	"sync"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/cmn/nlog"
)

// DefaultBufCap is the per-block in-memory buffer capacity (C_BUF) before a
// spill is triggered.
const DefaultBufCap = 4 << 20 // 4MiB

// taskNS is one task's block namespace: block id -> Block.
type taskNS struct {
	mu     sync.RWMutex
	blocks map[cos.UUID]*Block
}

// Engine owns every task namespace on this node.
type Engine struct {
	mu      sync.RWMutex
	tasks   map[cos.UUID]*taskNS
	bufCap  int64
	spillFn func(task, block cos.UUID) string
}

// NewEngine constructs an Engine. spillPath computes the on-disk path for a
// block's spill file (normally cmn/config.Config.SpillPath, keyed only by
// block id per spec §6, but the task is threaded through for callers that
// want task-scoped storage roots).
func NewEngine(bufCap int64, spillPath func(task, block cos.UUID) string) *Engine {
	if bufCap <= 0 {
		bufCap = DefaultBufCap
	}
	return &Engine{
		tasks:   make(map[cos.UUID]*taskNS),
		bufCap:  bufCap,
		spillFn: spillPath,
	}
}

// NewTask installs an empty block map for task; idempotent (spec §4.1).
func (e *Engine) NewTask(task cos.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[task]; ok {
		return
	}
	e.tasks[task] = &taskNS{blocks: make(map[cos.UUID]*Block)}
	nlog.Infof("engine: new_task %s", task)
}

// RemoveTask removes the task's block map; every Block it owned is
// destroyed and its spill file deleted (spec §4.1).
func (e *Engine) RemoveTask(task cos.UUID) {
	e.mu.Lock()
	ns, ok := e.tasks[task]
	if ok {
		delete(e.tasks, task)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	ns.mu.Lock()
	for _, blk := range ns.blocks {
		blk.close()
	}
	ns.mu.Unlock()
	nlog.Infof("engine: remove_task %s", task)
}

func (e *Engine) namespace(task cos.UUID) (*taskNS, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ns, ok := e.tasks[task]
	return ns, ok
}

// Exists reports whether (task, block) names an existing block.
func (e *Engine) Exists(task, block cos.UUID) bool {
	ns, ok := e.namespace(task)
	if !ok {
		return false
	}
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	_, ok = ns.blocks[block]
	return ok
}

// getOrCreate lazily creates a block on first write (spec §3 lifecycle);
// requires the task namespace to already exist.
func (ns *taskNS) getOrCreate(id cos.UUID, bufCap int64, spillPath string) *Block {
	ns.mu.RLock()
	b, ok := ns.blocks[id]
	ns.mu.RUnlock()
	if ok {
		return b
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if b, ok = ns.blocks[id]; ok {
		return b
	}
	b = newBlock(id, bufCap, spillPath)
	ns.blocks[id] = b
	return b
}

func (ns *taskNS) get(id cos.UUID) (*Block, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	b, ok := ns.blocks[id]
	return b, ok
}

// Append appends items to (task, block), creating the block lazily, and
// returns the starting offset of each item (spec §4.1).
func (e *Engine) Append(task, block cos.UUID, items [][]byte) ([]int64, error) {
	ns, ok := e.namespace(task)
	if !ok {
		return nil, cos.ErrNoTask(task)
	}
	b := ns.getOrCreate(block, e.bufCap, e.spillFn(task, block))
	return b.append(items)
}

// Read reads forward from cursor until its limit is satisfied or
// end-of-stream (spec §4.1). A missing block behaves as an empty one at
// cursor.Pos == 0 so that a reader racing a writer's first append does not
// see an error; any other starting position against a missing block is
// reported as ErrNoBlock.
func (e *Engine) Read(task, block cos.UUID, cur Cursor) ([][]byte, Cursor, error) {
	ns, ok := e.namespace(task)
	if !ok {
		return nil, cur, cos.ErrNoTask(task)
	}
	b, ok := ns.get(block)
	if !ok {
		if cur.Pos == 0 {
			return nil, cur, nil
		}
		return nil, cur, cos.ErrNoBlock(task, block)
	}
	return b.read(cur)
}

// KVSet appends value then indexes key at its offset (spec §4.1).
func (e *Engine) KVSet(task, block, key cos.UUID, value []byte) error {
	ns, ok := e.namespace(task)
	if !ok {
		return cos.ErrNoTask(task)
	}
	b := ns.getOrCreate(block, e.bufCap, e.spillFn(task, block))
	return b.kvSet(key, value)
}

// KVGet fetches the indexed offset and reads exactly one record from it
// (spec §4.1). A missing key returns (nil, nil).
func (e *Engine) KVGet(task, block, key cos.UUID) ([]byte, error) {
	ns, ok := e.namespace(task)
	if !ok {
		return nil, cos.ErrNoTask(task)
	}
	b, ok := ns.get(block)
	if !ok {
		return nil, nil
	}
	v, found, err := b.kvGet(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return v, nil
}

// KVUnset removes key from the index only (spec §4.1).
func (e *Engine) KVUnset(task, block, key cos.UUID) error {
	ns, ok := e.namespace(task)
	if !ok {
		return cos.ErrNoTask(task)
	}
	b, ok := ns.get(block)
	if !ok {
		return cos.ErrNoBlock(task, block)
	}
	b.kvUnset(key)
	return nil
}

// Size returns a block's current logical length, and false if the task or
// block does not exist.
func (e *Engine) Size(task, block cos.UUID) (int64, bool) {
	ns, ok := e.namespace(task)
	if !ok {
		return 0, false
	}
	b, ok := ns.get(block)
	if !ok {
		return 0, false
	}
	return b.logicalSize(), true
}
