/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blockmgr

import (
	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/blocksvc"
	"github.com/ShisoftResearch/hivemind-go/internal/membership"
)

// Manager routes block-service calls to the node that owns the target
// (task, block) or (task, key) pair. When the target node id equals the
// local node id it calls the local Service in-process instead of paying
// for a network round trip (spec §4.3).
type Manager struct {
	localID cos.UUID
	local   *blocksvc.Service
	members *membership.Table
	tp      Transport
}

func New(localID cos.UUID, local *blocksvc.Service, members *membership.Table, tp Transport) *Manager {
	if tp == nil {
		tp = RPCTransport{}
	}
	return &Manager{localID: localID, local: local, members: members, tp: tp}
}

func (m *Manager) addr(server cos.UUID) (string, error) {
	addr, ok := m.members.Address(server)
	if !ok {
		return "", cos.ErrRemote(server, cos.ErrNotFound)
	}
	return addr, nil
}

func (m *Manager) Read(server cos.UUID, args blocksvc.ReadArgs) (blocksvc.ReadReply, error) {
	if server == m.localID {
		return m.local.Read(args)
	}
	addr, err := m.addr(server)
	if err != nil {
		return blocksvc.ReadReply{}, err
	}
	reply, err := m.tp.Read(addr, args)
	if err != nil {
		return reply, cos.ErrRemote(server, err)
	}
	return reply, nil
}

func (m *Manager) Write(server cos.UUID, args blocksvc.WriteArgs) ([]int64, error) {
	if server == m.localID {
		return m.local.Write(args)
	}
	addr, err := m.addr(server)
	if err != nil {
		return nil, err
	}
	offsets, err := m.tp.Write(addr, args)
	if err != nil {
		return nil, cos.ErrRemote(server, err)
	}
	return offsets, nil
}

func (m *Manager) Get(server cos.UUID, args blocksvc.KeyArgs) ([]byte, error) {
	if server == m.localID {
		return m.local.Get(args)
	}
	addr, err := m.addr(server)
	if err != nil {
		return nil, err
	}
	val, err := m.tp.Get(addr, args)
	if err != nil {
		return nil, cos.ErrRemote(server, err)
	}
	return val, nil
}

func (m *Manager) Set(server cos.UUID, args blocksvc.SetArgs) error {
	if server == m.localID {
		return m.local.Set(args)
	}
	addr, err := m.addr(server)
	if err != nil {
		return err
	}
	if err := m.tp.Set(addr, args); err != nil {
		return cos.ErrRemote(server, err)
	}
	return nil
}

func (m *Manager) Unset(server cos.UUID, args blocksvc.KeyArgs) error {
	if server == m.localID {
		return m.local.Unset(args)
	}
	addr, err := m.addr(server)
	if err != nil {
		return err
	}
	if err := m.tp.Unset(addr, args); err != nil {
		return cos.ErrRemote(server, err)
	}
	return nil
}

func (m *Manager) Exists(server cos.UUID, args blocksvc.ExistsArgs) (bool, error) {
	if server == m.localID {
		return m.local.Exists(args)
	}
	addr, err := m.addr(server)
	if err != nil {
		return false, err
	}
	exists, err := m.tp.Exists(addr, args)
	if err != nil {
		return false, cos.ErrRemote(server, err)
	}
	return exists, nil
}

func (m *Manager) NewTask(server, task cos.UUID) error {
	if server == m.localID {
		return m.local.NewTask(task)
	}
	addr, err := m.addr(server)
	if err != nil {
		return err
	}
	if err := m.tp.NewTask(addr, task); err != nil {
		return cos.ErrRemote(server, err)
	}
	return nil
}

func (m *Manager) RemoveTask(server, task cos.UUID) error {
	if server == m.localID {
		return m.local.RemoveTask(task)
	}
	addr, err := m.addr(server)
	if err != nil {
		return err
	}
	if err := m.tp.RemoveTask(addr, task); err != nil {
		return cos.ErrRemote(server, err)
	}
	return nil
}

// LocalID reports the node id this manager treats as "local".
func (m *Manager) LocalID() cos.UUID { return m.localID }
