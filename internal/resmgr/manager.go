/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package resmgr

import (
	"sync"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/cmn/nlog"
	"github.com/ShisoftResearch/hivemind-go/cmn/stats"
	"github.com/ShisoftResearch/hivemind-go/internal/consensus"
	"github.com/ShisoftResearch/hivemind-go/internal/membership"
)

const (
	topicMemberChanged     = "resmgr:member_changed"
	topicOccupationChanged = "resmgr:occupation_changed"
	topicResourceAvailable = "resmgr:resource_available"
)

// Manager is the Resource Manager state machine (spec §4.6).
type Manager struct {
	seq    consensus.Sequencer
	broker *consensus.Broker

	mu    sync.RWMutex
	nodes map[cos.UUID]*ComputeNode
	tasks map[cos.UUID]*Task
}

// New constructs a Manager wired to a LiveMembers table: the manager
// subscribes to membership events and toggles node.online, emitting
// on_member_changed (spec §4.6 "Membership wiring").
func New(members *membership.Table) *Manager {
	m := &Manager{
		broker: consensus.NewBroker(),
		nodes:  make(map[cos.UUID]*ComputeNode),
		tasks:  make(map[cos.UUID]*Task),
	}
	if members != nil {
		go m.followMembership(members.Subscribe())
	}
	return m
}

func (m *Manager) followMembership(events <-chan membership.Event) {
	for ev := range events {
		online := ev.Kind == membership.Joined || ev.Kind == membership.Online
		m.mu.Lock()
		n, ok := m.nodes[ev.NodeID]
		if ok {
			n.Online = online
		}
		m.mu.Unlock()
		if ok {
			nlog.Infof("resmgr: node %s online=%v", ev.NodeID, online)
			m.broker.Publish(topicMemberChanged, MemberChanged{NodeID: ev.NodeID, Online: online})
		}
	}
}

type MemberChanged struct {
	NodeID cos.UUID
	Online bool
}

type OccupationChanged struct {
	Task, Stage, Node cos.UUID
	Status            OccStatus
}

type ResourceAvailable struct {
	NodeID cos.UUID
}

// RegisterNode adds a node, failing if its id already exists (spec §4.6).
func (m *Manager) RegisterNode(n ComputeNode) error {
	return m.seq.Do(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.nodes[n.NodeID]; ok {
			return cos.ErrExists("node", n.NodeID.String())
		}
		if n.Occupations == nil {
			n.Occupations = make(map[cos.UUID]*Occupation)
		}
		cp := n
		m.nodes[n.NodeID] = &cp
		return nil
	})
}

// DeregisterNode removes a node unconditionally.
func (m *Manager) DeregisterNode(id cos.UUID) {
	m.seq.Do(func() error {
		m.mu.Lock()
		delete(m.nodes, id)
		m.mu.Unlock()
		return nil
	})
}

// RegisterTask installs a task with its occupations entering as Scheduled;
// every occupation whose node already has capacity is atomically promoted
// to Running, and the promoted subset is returned so the caller knows
// exactly which ones to start immediately (spec §4.6).
func (m *Manager) RegisterTask(task Task, occs []Occupation) ([]Occupation, error) {
	var promoted []Occupation
	err := m.seq.Do(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		if _, ok := m.tasks[task.ID]; ok {
			return cos.ErrExists("task", task.ID.String())
		}
		t := task
		t.Stages = make([]cos.UUID, 0, len(occs))
		t.Nodes = make([]cos.UUID, 0, len(occs))
		m.tasks[task.ID] = &t

		for _, occ := range occs {
			occ.Status = Scheduled
			node, ok := m.nodes[occ.NodeID]
			if !ok {
				return cos.ErrNotFound
			}
			node.Occupations[occ.StageID] = &occ
			t.Stages = append(t.Stages, occ.StageID)
			t.Nodes = append(t.Nodes, occ.NodeID)

			if node.MemoryFree >= occ.Memory && node.ProcessorsFree >= occ.Workers {
				node.MemoryFree -= occ.Memory
				node.ProcessorsFree -= occ.Workers
				node.Occupations[occ.StageID].Status = Running
				stats.OccupationsRunning.Inc()
				promoted = append(promoted, *node.Occupations[occ.StageID])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, occ := range promoted {
		m.broker.Publish(topicOccupationChanged, OccupationChanged{Task: occ.TaskID, Stage: occ.StageID, Node: occ.NodeID, Status: Running})
	}
	return promoted, nil
}

// TaskEnded sets a task's terminal status.
func (m *Manager) TaskEnded(taskID cos.UUID, status TaskStatus) error {
	return m.seq.Do(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		t, ok := m.tasks[taskID]
		if !ok {
			return cos.ErrNotFound
		}
		t.Status = status
		return nil
	})
}

// TryAcquireNodeResource atomically promotes a Scheduled occupation to
// Running if capacity now fits, notifying on_occupation_changed on
// success (spec §4.6).
func (m *Manager) TryAcquireNodeResource(task, stage, node cos.UUID) (bool, error) {
	var acquired bool
	err := m.seq.Do(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		n, ok := m.nodes[node]
		if !ok {
			return cos.ErrNotFound
		}
		occ, ok := n.Occupations[stage]
		if !ok || occ.TaskID != task {
			return cos.ErrNotFound
		}
		if occ.Status != Scheduled {
			return nil
		}
		if n.MemoryFree < occ.Memory || n.ProcessorsFree < occ.Workers {
			return nil
		}
		n.MemoryFree -= occ.Memory
		n.ProcessorsFree -= occ.Workers
		occ.Status = Running
		stats.OccupationsRunning.Inc()
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if acquired {
		m.broker.Publish(topicOccupationChanged, OccupationChanged{Task: task, Stage: stage, Node: node, Status: Running})
	}
	return acquired, nil
}

// ReleaseOccupation transitions Running -> Released, restores the node's
// free counters, and notifies both on_occupation_changed and
// on_resource_available (spec §4.6).
func (m *Manager) ReleaseOccupation(task, stage, node cos.UUID) error {
	err := m.seq.Do(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		n, ok := m.nodes[node]
		if !ok {
			return cos.ErrNotFound
		}
		occ, ok := n.Occupations[stage]
		if !ok || occ.TaskID != task {
			return cos.ErrNotFound
		}
		if occ.Status != Running {
			return cos.ErrCapacity(task, node)
		}
		n.MemoryFree += occ.Memory
		n.ProcessorsFree += occ.Workers
		occ.Status = Released
		stats.OccupationsRunning.Dec()
		return nil
	})
	if err != nil {
		return err
	}
	m.broker.Publish(topicOccupationChanged, OccupationChanged{Task: task, Stage: stage, Node: node, Status: Released})
	m.broker.Publish(topicResourceAvailable, ResourceAvailable{NodeID: node})
	return nil
}

// Tasks returns a snapshot of every tracked task.
func (m *Manager) Tasks() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out
}

// Nodes returns a snapshot of every tracked node.
func (m *Manager) Nodes() []ComputeNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ComputeNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *n.clone())
	}
	return out
}

func (m *Manager) OnMemberChanged(fn func(MemberChanged)) (cancel func()) {
	return m.broker.Subscribe(topicMemberChanged, func(n consensus.Notification) { fn(n.Payload.(MemberChanged)) })
}

func (m *Manager) OnOccupationChanged(fn func(OccupationChanged)) (cancel func()) {
	return m.broker.Subscribe(topicOccupationChanged, func(n consensus.Notification) { fn(n.Payload.(OccupationChanged)) })
}

func (m *Manager) OnResourceAvailable(fn func(ResourceAvailable)) (cancel func()) {
	return m.broker.Subscribe(topicResourceAvailable, func(n consensus.Notification) { fn(n.Payload.(ResourceAvailable)) })
}
