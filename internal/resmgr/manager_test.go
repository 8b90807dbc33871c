/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package resmgr_test

import (
	"sync"
	"testing"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/resmgr"
)

func TestResourcePromotion(t *testing.T) {
	m := resmgr.New(nil)

	node := cos.NewUUID()
	if err := m.RegisterNode(resmgr.ComputeNode{
		NodeID: node, MemoryTotal: 100, MemoryFree: 100, ProcessorsTotal: 4, ProcessorsFree: 4, Online: true,
	}); err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}

	task := cos.NewUUID()
	stage1, stage2 := cos.NewUUID(), cos.NewUUID()
	occs := []resmgr.Occupation{
		{TaskID: task, StageID: stage1, NodeID: node, Memory: 40, Workers: 2},
		{TaskID: task, StageID: stage2, NodeID: node, Memory: 80, Workers: 2},
	}

	promoted, err := m.RegisterTask(resmgr.Task{ID: task, Name: "job"}, occs)
	if err != nil {
		t.Fatalf("RegisterTask: %v", err)
	}
	if len(promoted) != 1 || promoted[0].StageID != stage1 {
		t.Fatalf("expected only stage1 promoted, got %+v", promoted)
	}

	var nodeAfter resmgr.ComputeNode
	for _, n := range m.Nodes() {
		if n.NodeID == node {
			nodeAfter = n
		}
	}
	if nodeAfter.Occupations[stage2].Status != resmgr.Scheduled {
		t.Fatalf("expected stage2 to remain Scheduled, got %v", nodeAfter.Occupations[stage2].Status)
	}

	var fired sync.WaitGroup
	fired.Add(1)
	cancel := m.OnResourceAvailable(func(ev resmgr.ResourceAvailable) {
		if ev.NodeID == node {
			fired.Done()
		}
	})
	defer cancel()

	if err := m.ReleaseOccupation(task, stage1, node); err != nil {
		t.Fatalf("ReleaseOccupation: %v", err)
	}
	fired.Wait()

	ok, err := m.TryAcquireNodeResource(task, stage2, node)
	if err != nil {
		t.Fatalf("TryAcquireNodeResource: %v", err)
	}
	if !ok {
		t.Fatalf("expected stage2 to acquire capacity freed by stage1's release")
	}
}

func TestResourceConservation(t *testing.T) {
	m := resmgr.New(nil)
	node := cos.NewUUID()
	if err := m.RegisterNode(resmgr.ComputeNode{
		NodeID: node, MemoryTotal: 100, MemoryFree: 100, ProcessorsTotal: 4, ProcessorsFree: 4,
	}); err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}

	task := cos.NewUUID()
	stage := cos.NewUUID()
	promoted, err := m.RegisterTask(resmgr.Task{ID: task}, []resmgr.Occupation{
		{TaskID: task, StageID: stage, NodeID: node, Memory: 60, Workers: 1},
	})
	if err != nil || len(promoted) != 1 {
		t.Fatalf("RegisterTask: promoted=%v err=%v", promoted, err)
	}

	if err := m.ReleaseOccupation(task, stage, node); err != nil {
		t.Fatalf("ReleaseOccupation: %v", err)
	}

	for _, n := range m.Nodes() {
		if n.NodeID != node {
			continue
		}
		if n.MemoryFree != n.MemoryTotal || n.ProcessorsFree != n.ProcessorsTotal {
			t.Fatalf("resources not fully restored: free=%d/%d total=%d/%d",
				n.MemoryFree, n.ProcessorsFree, n.MemoryTotal, n.ProcessorsTotal)
		}
	}
}

func TestSnapshotRecover(t *testing.T) {
	m := resmgr.New(nil)
	node := cos.NewUUID()
	if err := m.RegisterNode(resmgr.ComputeNode{
		NodeID: node, MemoryTotal: 100, MemoryFree: 100, ProcessorsTotal: 4, ProcessorsFree: 4, Online: true,
	}); err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}
	task := cos.NewUUID()
	stage := cos.NewUUID()
	if _, err := m.RegisterTask(resmgr.Task{ID: task, Name: "job"}, []resmgr.Occupation{
		{TaskID: task, StageID: stage, NodeID: node, Memory: 10, Workers: 1},
	}); err != nil {
		t.Fatalf("RegisterTask: %v", err)
	}

	blob, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	m2 := resmgr.New(nil)
	if err := m2.Recover(blob); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	nodes := m2.Nodes()
	if len(nodes) != 1 || nodes[0].NodeID != node {
		t.Fatalf("recovered nodes mismatch: %+v", nodes)
	}
	tasks := m2.Tasks()
	if len(tasks) != 1 || tasks[0].ID != task || tasks[0].Name != "job" {
		t.Fatalf("recovered tasks mismatch: %+v", tasks)
	}
	if nodes[0].Occupations[stage].Status != resmgr.Running {
		t.Fatalf("recovered occupation status mismatch: %v", nodes[0].Occupations[stage].Status)
	}
}
