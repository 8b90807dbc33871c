/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package dataset

import (
	"context"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/blockmgr"
	"github.com/ShisoftResearch/hivemind-go/internal/blockstore"
	"github.com/ShisoftResearch/hivemind-go/internal/blocksvc"
	"github.com/ShisoftResearch/hivemind-go/internal/immutable"
)

// NewBlockStorage wraps a BlockStorage-source Dataset (spec §4.7): reads
// via the Block Manager in STORAGE_BUFFER-sized batches from the named
// server, decoding each raw record with decode.
func NewBlockStorage[T any](bm *blockmgr.Manager, server, task, block cos.UUID, members []cos.UUID, decode Decoder[T]) *Dataset[T] {
	cur := blockstore.Cursor{Limit: blockstore.Items(STORAGE_BUFFER)}
	fetch := func(_ context.Context) ([][]byte, error) {
		reply, err := bm.Read(server, blocksvc.ReadArgs{Task: task, Block: block, Cursor: cur})
		if err != nil {
			return nil, err
		}
		cur = reply.Cursor
		return reply.Records, nil
	}
	return NewStorage(SourceBlockStorage, members, fetch, decode)
}

// NewImmutableStorage wraps an ImmutableStorage-source Dataset (spec
// §4.7): reads via the Immutable Manager's clone-on-miss path in
// STORAGE_BUFFER-sized batches.
func NewImmutableStorage[T any](im *immutable.Manager, task, block cos.UUID, decode Decoder[T]) *Dataset[T] {
	cur := blockstore.Cursor{Limit: blockstore.Items(STORAGE_BUFFER)}
	fetch := func(_ context.Context) ([][]byte, error) {
		records, next, err := im.Read(task, block, cur)
		if err != nil {
			return nil, err
		}
		cur = next
		return records, nil
	}
	return NewStorage[T](SourceImmutableStorage, nil, fetch, decode)
}

// DataKind discriminates a Data[T] handle's backing source (spec §4.7).
type DataKind int

const (
	DataRuntime DataKind = iota
	DataGlobal
	DataImmutable
)

// GlobalGetter is the subset of the Global Store client a Global-source
// Data handle needs.
type GlobalGetter interface {
	GetCached(id cos.UUID, key []byte) ([]byte, bool, error)
}

// ImmutableGetter is the subset of the Immutable Manager a
// Immutable-source Data handle needs.
type ImmutableGetter interface {
	Get(task, key cos.UUID) ([]byte, error)
}

// Data is the single-value analogue of Dataset (spec §4.7): Runtime
// wraps an already-resolved value; Global and Immutable resolve lazily
// from their respective stores on every Get call.
type Data[T any] struct {
	Kind DataKind

	value T
	has   bool

	decode Decoder[T]

	global    GlobalGetter
	namespace cos.UUID
	gkey      []byte

	imm  ImmutableGetter
	task cos.UUID
	ikey cos.UUID
}

// NewDataRuntime wraps a resolved value.
func NewDataRuntime[T any](v T) *Data[T] {
	return &Data[T]{Kind: DataRuntime, value: v, has: true}
}

// NewDataGlobal wraps a Global Store (namespace, key) lookup.
func NewDataGlobal[T any](g GlobalGetter, namespace cos.UUID, key []byte, decode Decoder[T]) *Data[T] {
	return &Data[T]{Kind: DataGlobal, global: g, namespace: namespace, gkey: key, decode: decode}
}

// NewDataImmutable wraps an Immutable Manager (task, key) lookup.
func NewDataImmutable[T any](im ImmutableGetter, task, key cos.UUID, decode Decoder[T]) *Data[T] {
	return &Data[T]{Kind: DataImmutable, imm: im, task: task, ikey: key, decode: decode}
}

// Get resolves the handle's value, hitting the backing store for Global
// and Immutable sources on every call (no caching at this layer; the
// Global Store client and Immutable Manager each do their own).
func (d *Data[T]) Get() (T, error) {
	var zero T
	switch d.Kind {
	case DataRuntime:
		return d.value, nil
	case DataGlobal:
		raw, ok, err := d.global.GetCached(d.namespace, d.gkey)
		if err != nil {
			return zero, err
		}
		if !ok {
			return zero, cos.ErrNoKey(d.namespace, d.namespace, cos.Nil)
		}
		return d.decode(raw)
	case DataImmutable:
		raw, err := d.imm.Get(d.task, d.ikey)
		if err != nil {
			return zero, err
		}
		if raw == nil {
			return zero, cos.ErrNoKey(d.task, d.task, d.ikey)
		}
		return d.decode(raw)
	default:
		return zero, cos.ErrTypeMismatchf("dataset.Data: unknown kind %d", d.Kind)
	}
}
