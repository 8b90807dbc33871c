// Package resmgr is the Resource Manager (C6): a replicated state machine
// tracking compute nodes, task occupations, and resource availability,
// with callback-based notifications for scheduler coordination (spec §4.6).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package resmgr

import "github.com/ShisoftResearch/hivemind-go/cmn/cos"

// ComputeNode tracks one node's capacity and its active occupations.
type ComputeNode struct {
	Address         string
	NodeID          cos.UUID
	MemoryTotal     int64
	MemoryFree      int64
	ProcessorsTotal int32
	ProcessorsFree  int32
	Online          bool
	Occupations     map[cos.UUID]*Occupation // keyed by stage id
}

func (n *ComputeNode) clone() *ComputeNode {
	cp := *n
	cp.Occupations = make(map[cos.UUID]*Occupation, len(n.Occupations))
	for k, v := range n.Occupations {
		occ := *v
		cp.Occupations[k] = &occ
	}
	return &cp
}

// OccStatus is an occupation's lifecycle state (spec §3).
type OccStatus int

const (
	Scheduled OccStatus = iota
	Running
	Released
)

func (s OccStatus) String() string {
	switch s {
	case Running:
		return "Running"
	case Released:
		return "Released"
	default:
		return "Scheduled"
	}
}

// Occupation is a reservation of workers+memory at one node for one stage
// of one task (spec §3).
type Occupation struct {
	TaskID  cos.UUID
	StageID cos.UUID
	NodeID  cos.UUID
	Workers int32
	Memory  int64
	Status  OccStatus
}

// TaskStatus is a task's terminal/non-terminal lifecycle marker.
type TaskStatus int

const (
	TaskRunning TaskStatus = iota
	TaskSucceeded
	TaskFailed
)

// Task is the resource manager's bookkeeping record for one scheduled job
// (spec §4.6). Stages and Nodes are rollups filled from the occupation
// list by RegisterTask; no later call changes them.
type Task struct {
	ID     cos.UUID
	Name   string
	Status TaskStatus
	Stages []cos.UUID
	Nodes  []cos.UUID
	Meta   map[string]string
}
