// Package dataset is the Dataset / Data abstraction (C7): a lazy,
// single-pass, batch-fetching sequence type and its single-value analogue
// over three source kinds (spec §4.7).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package dataset

import (
	"context"
	"errors"

	"github.com/tinylib/msgp/msgp"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
)

// EOF terminates a Dataset's sequence; it is returned from Next once the
// underlying source is exhausted, mirroring sliceio's reader contract.
var EOF = errors.New("EOF")

// STORAGE_BUFFER is the fixed number of records one batch fetch pulls
// from a block- or immutable-backed Dataset (spec §4.7).
const STORAGE_BUFFER = 10

// SourceKind discriminates a Dataset's backing store.
type SourceKind int

const (
	SourceRuntime SourceKind = iota
	SourceBlockStorage
	SourceImmutableStorage
)

// Decoder turns one raw record into a T; BlockStorage and ImmutableStorage
// sources always decode through it, Runtime sources never need it.
type Decoder[T any] func([]byte) (T, error)

// fetcher pulls the next batch of up to STORAGE_BUFFER raw records, or
// returns fewer than STORAGE_BUFFER (including zero) to signal the last
// batch (spec §4.7 "An empty batch terminates the sequence").
type fetcher func(ctx context.Context) ([][]byte, error)

// Dataset is a lazy, single-pass sequence over one of the three source
// kinds spec §4.7 names. It holds either a pending fetch or a buffered
// iterator over the last decoded batch; callers pull one element at a
// time via Next.
type Dataset[T any] struct {
	Kind SourceKind

	// Runtime-source state: a pre-materialized in-memory sequence.
	inline []T
	pos    int

	// Storage-source state (BlockStorage / ImmutableStorage).
	fetch   fetcher
	decode  Decoder[T]
	buf     []T
	bufPos  int
	done    bool
	Members []cos.UUID // location affinity: nodes known to hold a replica
}

// NewRuntime wraps an already-materialized sequence (spec §4.7 "Runtime
// (inline sequence)").
func NewRuntime[T any](items []T) *Dataset[T] {
	return &Dataset[T]{Kind: SourceRuntime, inline: items}
}

// NewStorage wraps a batch-fetching source (BlockStorage or
// ImmutableStorage); kind must be one of those two.
func NewStorage[T any](kind SourceKind, members []cos.UUID, fetch fetcher, decode Decoder[T]) *Dataset[T] {
	return &Dataset[T]{Kind: kind, Members: members, fetch: fetch, decode: decode}
}

// Next pulls the next element, fetching a new batch when the current one
// is exhausted. Returns EOF once the source is drained (spec §4.7).
func (d *Dataset[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if d.Kind == SourceRuntime {
		if d.pos >= len(d.inline) {
			return zero, EOF
		}
		v := d.inline[d.pos]
		d.pos++
		return v, nil
	}

	for d.bufPos >= len(d.buf) {
		if d.done {
			return zero, EOF
		}
		raw, err := d.fetch(ctx)
		if err != nil {
			d.done = true
			return zero, err
		}
		d.buf = d.buf[:0]
		for _, r := range raw {
			v, err := d.decode(r)
			if err != nil {
				d.done = true
				return zero, err
			}
			d.buf = append(d.buf, v)
		}
		d.bufPos = 0
		if len(raw) < STORAGE_BUFFER {
			d.done = true
		}
		if len(raw) == 0 {
			return zero, EOF
		}
	}
	v := d.buf[d.bufPos]
	d.bufPos++
	return v, nil
}

// Drain pulls every remaining element into a slice, consuming the
// Dataset. Used by Runtime serialization (spec §4.7: "serializable as a
// buffered byte-encoded list of items consumed by draining the sequence
// at serialization time").
func (d *Dataset[T]) Drain(ctx context.Context) ([]T, error) {
	var out []T
	for {
		v, err := d.Next(ctx)
		if err == EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// WriteRuntime msgp-encodes a drained Runtime Dataset's items as a
// length-prefixed sequence of byte-encoded records, for handle transfer
// to a remote node (spec §3 "Handles are serializable").
func WriteRuntime(w *msgp.Writer, items [][]byte) error {
	if err := w.WriteArrayHeader(uint32(len(items))); err != nil {
		return err
	}
	for _, it := range items {
		if err := w.WriteBytes(it); err != nil {
			return err
		}
	}
	return nil
}

// ReadRuntime is WriteRuntime's inverse.
func ReadRuntime(r *msgp.Reader) ([][]byte, error) {
	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, n)
	for i := uint32(0); i < n; i++ {
		b, err := r.ReadBytes(nil)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
