/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package gstore

import (
	"sync"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/cmn/nlog"
	"github.com/ShisoftResearch/hivemind-go/cmn/stats"
)

type cacheEntry struct {
	mu       sync.RWMutex
	data     map[string][]byte
	cancel   func()
	degraded bool // set true on subscription loss; falls back to get_newest
}

// Client is the per-node read-through cache over StateMachine (spec §4.5).
type Client struct {
	sm *StateMachine

	mu     sync.RWMutex
	caches map[cos.UUID]*cacheEntry
}

func NewClient(sm *StateMachine) *Client {
	return &Client{sm: sm, caches: make(map[cos.UUID]*cacheEntry)}
}

// Prepare performs dump(id), stores the result locally, and if watch is
// true subscribes to on_changed(id) so every future delta applies to the
// cache (spec §4.5).
func (c *Client) Prepare(id cos.UUID, watch bool) error {
	dump, err := c.sm.Dump(id)
	if err != nil {
		return err
	}
	entry := &cacheEntry{data: dump}
	if watch {
		entry.cancel = c.sm.Subscribe(id, func(d Delta) {
			c.applyDelta(id, d)
		})
	}
	c.mu.Lock()
	c.caches[id] = entry
	c.mu.Unlock()
	return nil
}

func (c *Client) entry(id cos.UUID) (*cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.caches[id]
	return e, ok
}

func (c *Client) applyDelta(id cos.UUID, d Delta) {
	e, ok := c.entry(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if d.Deleted {
		delete(e.data, string(d.Key))
	} else {
		e.data[string(d.Key)] = d.Value
	}
}

// degrade marks id's cache as best-effort-only after a subscription
// failure, so subsequent get_cached calls transparently fall back to
// get_newest and log a warning (spec §7).
func (c *Client) degrade(id cos.UUID, cause error) {
	e, ok := c.entry(id)
	if !ok {
		return
	}
	e.mu.Lock()
	e.degraded = true
	e.mu.Unlock()
	nlog.Warningf("gstore: subscription for %s lost (%v), degrading to get_newest", id, cause)
}

// GetCached returns whatever the last delivered delta said; best-effort
// eventually consistent (spec §4.5). Falls back to GetNewest once the
// cache has been marked degraded.
func (c *Client) GetCached(id cos.UUID, key []byte) ([]byte, bool, error) {
	e, ok := c.entry(id)
	if !ok {
		return c.GetNewest(id, key)
	}
	e.mu.RLock()
	degraded := e.degraded
	v, found := e.data[string(key)]
	e.mu.RUnlock()
	if degraded {
		stats.GlobalCacheMisses.Inc()
		val, ok, err := c.GetNewest(id, key)
		return val, ok, err
	}
	stats.GlobalCacheHits.Inc()
	return v, found, nil
}

// GetNewest bypasses the cache and performs a fresh consensus read.
func (c *Client) GetNewest(id cos.UUID, key []byte) ([]byte, bool, error) {
	v, err := c.sm.Get(id, key)
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

// Set writes through consensus then applies the write to the local cache
// so a subsequent local GetCached never observes a stale value written by
// this client (spec §4.5 contract, §8 "Cache write visibility").
func (c *Client) Set(id cos.UUID, key, value []byte) error {
	if err := c.sm.Set(id, key, value); err != nil {
		return err
	}
	c.applyDelta(id, Delta{Key: key, Value: value, Deleted: value == nil})
	return nil
}

func (c *Client) Swap(id cos.UUID, key, value []byte) ([]byte, error) {
	prev, err := c.sm.Swap(id, key, value)
	if err != nil {
		return nil, err
	}
	c.applyDelta(id, Delta{Key: key, Value: value, Deleted: value == nil})
	return prev, nil
}

func (c *Client) CompareAndSwap(id cos.UUID, key, expect, newVal []byte) (actual []byte, applied bool, err error) {
	actual, applied, err = c.sm.CompareAndSwap(id, key, expect, newVal)
	if err != nil {
		return nil, false, err
	}
	if applied {
		c.applyDelta(id, Delta{Key: key, Value: newVal, Deleted: newVal == nil})
	}
	return actual, applied, nil
}

// Invalidate drops the cache entry locally and cancels its subscription
// (spec §4.5).
func (c *Client) Invalidate(id cos.UUID) error {
	if err := c.sm.Invalidate(id); err != nil {
		return err
	}
	c.mu.Lock()
	e, ok := c.caches[id]
	delete(c.caches, id)
	c.mu.Unlock()
	if ok && e.cancel != nil {
		e.cancel()
	}
	return nil
}

// CreateStore is a pass-through convenience so callers need only hold a
// Client.
func (c *Client) CreateStore(id cos.UUID) error { return c.sm.CreateStore(id) }
