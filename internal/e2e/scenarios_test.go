// Package e2e exercises the core runtime's testable properties end to end
// by wiring several components together the way cmd/hivenode does, rather
// than unit-testing any one of them in isolation (spec §8).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package e2e

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/blockmgr"
	"github.com/ShisoftResearch/hivemind-go/internal/blockstore"
	"github.com/ShisoftResearch/hivemind-go/internal/blocksvc"
	"github.com/ShisoftResearch/hivemind-go/internal/gstore"
	"github.com/ShisoftResearch/hivemind-go/internal/immutable"
	"github.com/ShisoftResearch/hivemind-go/internal/membership"
	"github.com/ShisoftResearch/hivemind-go/internal/resmgr"
)

func newNode(t *testing.T, localID cos.UUID, members *membership.Table, tp blockmgr.Transport) (*blockmgr.Manager, *blocksvc.Service) {
	t.Helper()
	dir := t.TempDir()
	engine := blockstore.NewEngine(blockstore.DefaultBufCap, func(_, block cos.UUID) string {
		return filepath.Join(dir, block.String()+".bin")
	})
	svc := blocksvc.New(engine, 4)
	t.Cleanup(svc.Close)
	return blockmgr.New(localID, svc, members, tp), svc
}

// TestSingleNodeStreaming walks spec §8 scenario 1: a task's block accepts
// an append, a cursor-bounded read returns exactly the requested items,
// and a second read resumes from where the first left off.
func TestSingleNodeStreaming(t *testing.T) {
	members := membership.New()
	local := cos.NewUUID()
	bm, _ := newNode(t, local, members, nil)

	task, block := cos.NewUUID(), cos.NewUUID()
	if err := bm.NewTask(local, task); err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	items := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	if _, err := bm.Write(local, blocksvc.WriteArgs{Task: task, Block: block, Items: items}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	first, err := bm.Read(local, blocksvc.ReadArgs{Task: task, Block: block, Cursor: blockstore.Cursor{Limit: blockstore.Items(2)}})
	if err != nil {
		t.Fatalf("Read (first): %v", err)
	}
	if len(first.Records) != 2 || string(first.Records[0]) != "a" || string(first.Records[1]) != "b" {
		t.Fatalf("unexpected first read: %v", first.Records)
	}

	second, err := bm.Read(local, blocksvc.ReadArgs{Task: task, Block: block, Cursor: first.Cursor})
	if err != nil {
		t.Fatalf("Read (second): %v", err)
	}
	if len(second.Records) != 1 || string(second.Records[0]) != "c" {
		t.Fatalf("unexpected resumed read: %v", second.Records)
	}
}

// TestCloneOnRead walks spec §8 scenario 5: a node with no local copy of an
// immutable block transparently clones it from the server the location
// registry names, and the read succeeds once the clone lands.
func TestCloneOnRead(t *testing.T) {
	members := membership.New()
	ownerID, readerID := cos.NewUUID(), cos.NewUUID()
	members.Apply(membership.Event{Kind: membership.Joined, NodeID: ownerID, Address: "owner"})
	members.Apply(membership.Event{Kind: membership.Joined, NodeID: readerID, Address: "reader"})

	ownerBM, _ := newNode(t, ownerID, members, nil)

	// a single shared Transport lets the reader's Manager dial the
	// owner's Manager in-process, standing in for two real nodes.
	route := &localTransport{byAddr: map[string]*blockmgr.Manager{"owner": ownerBM}}
	readerBM, _ := newNode(t, readerID, members, route)

	task, block := cos.NewUUID(), cos.NewUUID()
	if err := ownerBM.NewTask(ownerID, task); err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if _, err := ownerBM.Write(ownerID, blocksvc.WriteArgs{Task: task, Block: block, Items: [][]byte{[]byte("payload")}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// the reader participates in the task, so its task namespace is open.
	if err := readerBM.NewTask(readerID, task); err != nil {
		t.Fatalf("NewTask (reader): %v", err)
	}

	reg := immutable.NewRegistry()
	if err := reg.CreateRegistry(task); err != nil {
		t.Fatalf("CreateRegistry: %v", err)
	}
	if err := reg.SetLocation(task, block, ownerID); err != nil {
		t.Fatalf("SetLocation: %v", err)
	}

	imm := immutable.New(readerID, readerBM, reg)
	records, _, err := imm.Read(task, block, blockstore.Cursor{Limit: blockstore.Items(1)})
	if err != nil {
		t.Fatalf("Read (clone-on-miss): %v", err)
	}
	if len(records) != 1 || string(records[0]) != "payload" {
		t.Fatalf("unexpected cloned content: %v", records)
	}
}

// TestImmutableGetProbesMultipleCandidates walks spec §8 scenario 5's KV
// analogue: a reader with no local copy of an aggregate value races every
// registry candidate concurrently and clones from whichever answers first,
// leaving the other candidates' in-flight probes to be discarded.
func TestImmutableGetProbesMultipleCandidates(t *testing.T) {
	members := membership.New()
	ownerID, deadID, readerID := cos.NewUUID(), cos.NewUUID(), cos.NewUUID()
	members.Apply(membership.Event{Kind: membership.Joined, NodeID: ownerID, Address: "owner"})
	members.Apply(membership.Event{Kind: membership.Joined, NodeID: readerID, Address: "reader"})

	ownerBM, _ := newNode(t, ownerID, members, nil)
	route := &localTransport{byAddr: map[string]*blockmgr.Manager{"owner": ownerBM}}
	readerBM, _ := newNode(t, readerID, members, route)

	task, key := cos.NewUUID(), cos.NewUUID()
	if err := ownerBM.NewTask(ownerID, task); err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := ownerBM.Set(ownerID, blocksvc.SetArgs{Task: task, Block: task, Key: key, Value: []byte("v")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := readerBM.NewTask(readerID, task); err != nil {
		t.Fatalf("NewTask (reader): %v", err)
	}

	reg := immutable.NewRegistry()
	if err := reg.CreateRegistry(task); err != nil {
		t.Fatalf("CreateRegistry: %v", err)
	}
	// deadID is a registry candidate the reader can't actually reach;
	// Get must still succeed via ownerID without blocking on it.
	if err := reg.SetLocation(task, key, deadID); err != nil {
		t.Fatalf("SetLocation(dead): %v", err)
	}
	if err := reg.SetLocation(task, key, ownerID); err != nil {
		t.Fatalf("SetLocation(owner): %v", err)
	}

	imm := immutable.New(readerID, readerBM, reg)
	v, err := imm.Get(task, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v" {
		t.Fatalf("unexpected value: %q", v)
	}
}

// localTransport routes by address to an in-process Manager, avoiding a
// real network listener in the test.
type localTransport struct{ byAddr map[string]*blockmgr.Manager }

func (l *localTransport) Read(addr string, args blocksvc.ReadArgs) (blocksvc.ReadReply, error) {
	return l.byAddr[addr].Read(l.byAddr[addr].LocalID(), args)
}
func (l *localTransport) Write(addr string, args blocksvc.WriteArgs) ([]int64, error) {
	return l.byAddr[addr].Write(l.byAddr[addr].LocalID(), args)
}
func (l *localTransport) Get(addr string, args blocksvc.KeyArgs) ([]byte, error) {
	return l.byAddr[addr].Get(l.byAddr[addr].LocalID(), args)
}
func (l *localTransport) Set(addr string, args blocksvc.SetArgs) error {
	return l.byAddr[addr].Set(l.byAddr[addr].LocalID(), args)
}
func (l *localTransport) Unset(addr string, args blocksvc.KeyArgs) error {
	return l.byAddr[addr].Unset(l.byAddr[addr].LocalID(), args)
}
func (l *localTransport) Exists(addr string, args blocksvc.ExistsArgs) (bool, error) {
	return l.byAddr[addr].Exists(l.byAddr[addr].LocalID(), args)
}
func (l *localTransport) NewTask(addr string, task cos.UUID) error {
	return l.byAddr[addr].NewTask(l.byAddr[addr].LocalID(), task)
}
func (l *localTransport) RemoveTask(addr string, task cos.UUID) error {
	return l.byAddr[addr].RemoveTask(l.byAddr[addr].LocalID(), task)
}

// TestGlobalCachedScenario checks set/get_cached and compare_and_swap at the
// Client level against a buntdb-backed StateMachine, with Prepare's dump()
// warm-up in the path.
func TestGlobalCachedScenario(t *testing.T) {
	sm, err := gstore.New(filepath.Join(t.TempDir(), "gstore.db"))
	if err != nil {
		t.Fatalf("gstore.New: %v", err)
	}
	cli := gstore.NewClient(sm)
	ns := cos.NewUUID()
	if err := cli.CreateStore(ns); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if err := cli.Prepare(ns, true); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if err := cli.Set(ns, []byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := cli.GetCached(ns, []byte("k"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("GetCached after Set: v=%q ok=%v err=%v", v, ok, err)
	}

	actual, applied, err := cli.CompareAndSwap(ns, []byte("k"), []byte("v1"), []byte("v2"))
	if err != nil || !applied || string(actual) != "v1" {
		t.Fatalf("CompareAndSwap: actual=%q applied=%v err=%v", actual, applied, err)
	}
	v, ok, err = cli.GetCached(ns, []byte("k"))
	if err != nil || !ok || string(v) != "v2" {
		t.Fatalf("GetCached after CompareAndSwap: v=%q ok=%v err=%v", v, ok, err)
	}
}

// TestMemberOfflineEndToEnd wires the resource manager to a membership
// table and checks that an Offline event fires on_member_changed and marks
// the node offline.
func TestMemberOfflineEndToEnd(t *testing.T) {
	members := membership.New()
	rm := resmgr.New(members)

	node := cos.NewUUID()
	if err := rm.RegisterNode(resmgr.ComputeNode{NodeID: node, MemoryTotal: 50, MemoryFree: 50, ProcessorsTotal: 2, ProcessorsFree: 2}); err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	cancel := rm.OnMemberChanged(func(resmgr.MemberChanged) { wg.Done() })
	defer cancel()
	members.Apply(membership.Event{Kind: membership.Offline, NodeID: node})
	wg.Wait()

	for _, n := range rm.Nodes() {
		if n.NodeID == node && n.Online {
			t.Fatalf("expected node to be marked offline after membership event")
		}
	}
}
