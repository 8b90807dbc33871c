// Package membership is the LiveMembers external collaborator (spec §4.3):
// it maintains a live node-id -> address map from membership events and
// lets every other component resolve a peer's address without itself
// owning cluster-membership logic.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package membership

import (
	"sync"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/cmn/nlog"
)

// EventKind is one of the four membership transitions spec §4.3 requires
// LiveMembers to subscribe to.
type EventKind int

const (
	Joined EventKind = iota
	Online
	Left
	Offline
)

type Event struct {
	Kind    EventKind
	NodeID  cos.UUID
	Address string
}

// Table is the live node-id -> address map. Readers take the read lock and
// must never hold it across network I/O (spec §4.3, §5 shared-resource
// policy) -- enforced here by copying the address out before releasing.
type Table struct {
	mu      sync.RWMutex
	members map[cos.UUID]string
	subs    []chan Event
}

func New() *Table {
	return &Table{members: make(map[cos.UUID]string)}
}

// Address resolves a node id to its current network address.
func (t *Table) Address(id cos.UUID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr, ok := t.members[id]
	return addr, ok
}

// Snapshot returns a copy of the whole live map.
func (t *Table) Snapshot() map[cos.UUID]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[cos.UUID]string, len(t.members))
	for k, v := range t.members {
		out[k] = v
	}
	return out
}

// Apply folds one membership event into the table and fans it out to
// subscribers (used by internal/resmgr to toggle node.online).
func (t *Table) Apply(ev Event) {
	t.mu.Lock()
	switch ev.Kind {
	case Joined, Online:
		t.members[ev.NodeID] = ev.Address
	case Left, Offline:
		delete(t.members, ev.NodeID)
	}
	subs := append([]chan Event(nil), t.subs...)
	t.mu.Unlock()

	nlog.Infof("membership: %v node=%s addr=%s", ev.Kind, ev.NodeID, ev.Address)
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			nlog.Warningln("membership: subscriber channel full, dropping event")
		}
	}
}

// Subscribe returns a channel that receives every future membership event.
func (t *Table) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}
