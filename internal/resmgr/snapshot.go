/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package resmgr

import (
	"bytes"

	"github.com/tinylib/msgp/msgp"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
)

// Snapshot serializes (nodes, tasks) as a single length-prefixed,
// component-versioned msgpack blob (spec §4.6 "Snapshot/recover").
func (m *Manager) Snapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := w.WriteInt(1); err != nil {
		return nil, err
	}

	if err := w.WriteMapHeader(uint32(len(m.nodes))); err != nil {
		return nil, err
	}
	for id, n := range m.nodes {
		if err := writeNode(w, id, n); err != nil {
			return nil, err
		}
	}

	if err := w.WriteMapHeader(uint32(len(m.tasks))); err != nil {
		return nil, err
	}
	for id, t := range m.tasks {
		if err := writeTask(w, id, t); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNode(w *msgp.Writer, id cos.UUID, n *ComputeNode) error {
	if err := w.WriteBytes(id[:]); err != nil {
		return err
	}
	if err := w.WriteString(n.Address); err != nil {
		return err
	}
	if err := w.WriteInt64(n.MemoryTotal); err != nil {
		return err
	}
	if err := w.WriteInt64(n.MemoryFree); err != nil {
		return err
	}
	if err := w.WriteInt32(n.ProcessorsTotal); err != nil {
		return err
	}
	if err := w.WriteInt32(n.ProcessorsFree); err != nil {
		return err
	}
	if err := w.WriteBool(n.Online); err != nil {
		return err
	}
	if err := w.WriteMapHeader(uint32(len(n.Occupations))); err != nil {
		return err
	}
	for stage, occ := range n.Occupations {
		if err := w.WriteBytes(stage[:]); err != nil {
			return err
		}
		if err := w.WriteBytes(occ.TaskID[:]); err != nil {
			return err
		}
		if err := w.WriteInt32(occ.Workers); err != nil {
			return err
		}
		if err := w.WriteInt64(occ.Memory); err != nil {
			return err
		}
		if err := w.WriteInt(int(occ.Status)); err != nil {
			return err
		}
	}
	return nil
}

func writeTask(w *msgp.Writer, id cos.UUID, t *Task) error {
	if err := w.WriteBytes(id[:]); err != nil {
		return err
	}
	if err := w.WriteString(t.Name); err != nil {
		return err
	}
	return w.WriteInt(int(t.Status))
}

// Recover restores (nodes, tasks) verbatim from a Snapshot blob.
func (m *Manager) Recover(blob []byte) error {
	r := msgp.NewReader(bytes.NewReader(blob))
	if _, err := r.ReadInt(); err != nil {
		return cos.ErrTypeMismatchf("resmgr.Recover: version: %v", err)
	}

	nnodes, err := r.ReadMapHeader()
	if err != nil {
		return cos.ErrTypeMismatchf("resmgr.Recover: nodes: %v", err)
	}
	nodes := make(map[cos.UUID]*ComputeNode, nnodes)
	for i := uint32(0); i < nnodes; i++ {
		id, n, err := readNode(r)
		if err != nil {
			return err
		}
		nodes[id] = n
	}

	ntasks, err := r.ReadMapHeader()
	if err != nil {
		return cos.ErrTypeMismatchf("resmgr.Recover: tasks: %v", err)
	}
	tasks := make(map[cos.UUID]*Task, ntasks)
	for i := uint32(0); i < ntasks; i++ {
		id, t, err := readTask(r)
		if err != nil {
			return err
		}
		tasks[id] = t
	}

	m.mu.Lock()
	m.nodes = nodes
	m.tasks = tasks
	m.mu.Unlock()
	return nil
}

func readNode(r *msgp.Reader) (cos.UUID, *ComputeNode, error) {
	var id cos.UUID
	idb, err := r.ReadBytes(nil)
	if err != nil {
		return id, nil, cos.ErrTypeMismatchf("resmgr.Recover: node id: %v", err)
	}
	copy(id[:], idb)

	n := &ComputeNode{NodeID: id, Occupations: make(map[cos.UUID]*Occupation)}
	if n.Address, err = r.ReadString(); err != nil {
		return id, nil, err
	}
	if n.MemoryTotal, err = r.ReadInt64(); err != nil {
		return id, nil, err
	}
	if n.MemoryFree, err = r.ReadInt64(); err != nil {
		return id, nil, err
	}
	if n.ProcessorsTotal, err = r.ReadInt32(); err != nil {
		return id, nil, err
	}
	if n.ProcessorsFree, err = r.ReadInt32(); err != nil {
		return id, nil, err
	}
	if n.Online, err = r.ReadBool(); err != nil {
		return id, nil, err
	}
	nocc, err := r.ReadMapHeader()
	if err != nil {
		return id, nil, err
	}
	for i := uint32(0); i < nocc; i++ {
		var stage, task cos.UUID
		sb, err := r.ReadBytes(nil)
		if err != nil {
			return id, nil, err
		}
		copy(stage[:], sb)
		tb, err := r.ReadBytes(nil)
		if err != nil {
			return id, nil, err
		}
		copy(task[:], tb)
		occ := &Occupation{TaskID: task, StageID: stage, NodeID: id}
		if occ.Workers, err = r.ReadInt32(); err != nil {
			return id, nil, err
		}
		if occ.Memory, err = r.ReadInt64(); err != nil {
			return id, nil, err
		}
		status, err := r.ReadInt()
		if err != nil {
			return id, nil, err
		}
		occ.Status = OccStatus(status)
		n.Occupations[stage] = occ
	}
	return id, n, nil
}

func readTask(r *msgp.Reader) (cos.UUID, *Task, error) {
	var id cos.UUID
	idb, err := r.ReadBytes(nil)
	if err != nil {
		return id, nil, err
	}
	copy(id[:], idb)
	t := &Task{ID: id}
	if t.Name, err = r.ReadString(); err != nil {
		return id, nil, err
	}
	status, err := r.ReadInt()
	if err != nil {
		return id, nil, err
	}
	t.Status = TaskStatus(status)
	return id, t, nil
}
