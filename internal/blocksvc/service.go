// Package blocksvc is the Block Service (C2): a thin RPC wrapper around
// the Local Block Engine that dispatches every call onto a bounded worker
// pool so an RPC goroutine is never blocked on file I/O (spec §4.2).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blocksvc

import (
	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/blockstore"
)

// Service exposes the engine's operations verbatim, plus NewTask/RemoveTask
// (spec §4.2), dispatched through a bounded worker pool.
type Service struct {
	engine *blockstore.Engine
	pool   *workerPool
}

func New(engine *blockstore.Engine, workers int) *Service {
	return &Service{engine: engine, pool: newWorkerPool(workers)}
}

func (s *Service) Close() { s.pool.close() }

type ReadArgs struct {
	Task, Block cos.UUID
	Cursor      blockstore.Cursor
}

type ReadReply struct {
	Records [][]byte
	Cursor  blockstore.Cursor
}

func (s *Service) Read(args ReadArgs) (ReadReply, error) {
	var reply ReadReply
	err := s.pool.submit(func() error {
		recs, cur, err := s.engine.Read(args.Task, args.Block, args.Cursor)
		reply = ReadReply{Records: recs, Cursor: cur}
		return err
	})
	return reply, err
}

type WriteArgs struct {
	Task, Block cos.UUID
	Items       [][]byte
}

func (s *Service) Write(args WriteArgs) ([]int64, error) {
	var offsets []int64
	err := s.pool.submit(func() error {
		var err error
		offsets, err = s.engine.Append(args.Task, args.Block, args.Items)
		return err
	})
	return offsets, err
}

type KeyArgs struct {
	Task, Block, Key cos.UUID
}

func (s *Service) Get(args KeyArgs) ([]byte, error) {
	var val []byte
	err := s.pool.submit(func() error {
		var err error
		val, err = s.engine.KVGet(args.Task, args.Block, args.Key)
		return err
	})
	return val, err
}

type SetArgs struct {
	Task, Block, Key cos.UUID
	Value            []byte
}

func (s *Service) Set(args SetArgs) error {
	return s.pool.submit(func() error {
		return s.engine.KVSet(args.Task, args.Block, args.Key, args.Value)
	})
}

func (s *Service) Unset(args KeyArgs) error {
	return s.pool.submit(func() error {
		return s.engine.KVUnset(args.Task, args.Block, args.Key)
	})
}

type ExistsArgs struct {
	Task, Block cos.UUID
}

func (s *Service) Exists(args ExistsArgs) (bool, error) {
	var exists bool
	err := s.pool.submit(func() error {
		exists = s.engine.Exists(args.Task, args.Block)
		return nil
	})
	return exists, err
}

func (s *Service) NewTask(task cos.UUID) error {
	return s.pool.submit(func() error {
		s.engine.NewTask(task)
		return nil
	})
}

func (s *Service) RemoveTask(task cos.UUID) error {
	return s.pool.submit(func() error {
		s.engine.RemoveTask(task)
		return nil
	})
}
