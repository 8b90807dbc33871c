// Package blockmgr is the Block Manager / client (C3): it routes every
// block-service operation to the owning node, bypassing the network with
// an in-process shortcut when that node is the local one (spec §4.3).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blockmgr

import (
	"net/rpc"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/blocksvc"
)

// Transport is the network edge to a remote node's Block Service. The
// default implementation dials net/rpc; tests substitute an in-memory
// fake.
type Transport interface {
	Read(addr string, args blocksvc.ReadArgs) (blocksvc.ReadReply, error)
	Write(addr string, args blocksvc.WriteArgs) ([]int64, error)
	Get(addr string, args blocksvc.KeyArgs) ([]byte, error)
	Set(addr string, args blocksvc.SetArgs) error
	Unset(addr string, args blocksvc.KeyArgs) error
	Exists(addr string, args blocksvc.ExistsArgs) (bool, error)
	NewTask(addr string, task cos.UUID) error
	RemoveTask(addr string, task cos.UUID) error
}

// RPCTransport dials net/rpc, aistore-style, on each call; connections are
// short-lived because cross-node block traffic in this engine is bursty
// and batch-shaped (spec §7's suspension points), not a steady stream.
type RPCTransport struct{}

func (RPCTransport) dial(addr string) (*rpc.Client, error) {
	return rpc.Dial("tcp", addr)
}

func (t RPCTransport) Read(addr string, args blocksvc.ReadArgs) (blocksvc.ReadReply, error) {
	var reply blocksvc.ReadReply
	c, err := t.dial(addr)
	if err != nil {
		return reply, err
	}
	defer c.Close()
	err = c.Call("BlockService.Read", args, &reply)
	return reply, err
}

func (t RPCTransport) Write(addr string, args blocksvc.WriteArgs) ([]int64, error) {
	var offsets []int64
	c, err := t.dial(addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	err = c.Call("BlockService.Write", args, &offsets)
	return offsets, err
}

func (t RPCTransport) Get(addr string, args blocksvc.KeyArgs) ([]byte, error) {
	var val []byte
	c, err := t.dial(addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	err = c.Call("BlockService.Get", args, &val)
	return val, err
}

func (t RPCTransport) Set(addr string, args blocksvc.SetArgs) error {
	c, err := t.dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	var ignored struct{}
	return c.Call("BlockService.Set", args, &ignored)
}

func (t RPCTransport) Unset(addr string, args blocksvc.KeyArgs) error {
	c, err := t.dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	var ignored struct{}
	return c.Call("BlockService.Unset", args, &ignored)
}

func (t RPCTransport) Exists(addr string, args blocksvc.ExistsArgs) (bool, error) {
	var exists bool
	c, err := t.dial(addr)
	if err != nil {
		return false, err
	}
	defer c.Close()
	err = c.Call("BlockService.Exists", args, &exists)
	return exists, err
}

func (t RPCTransport) NewTask(addr string, task cos.UUID) error {
	c, err := t.dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	var ignored struct{}
	return c.Call("BlockService.NewTask", task, &ignored)
}

func (t RPCTransport) RemoveTask(addr string, task cos.UUID) error {
	c, err := t.dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	var ignored struct{}
	return c.Call("BlockService.RemoveTask", task, &ignored)
}
