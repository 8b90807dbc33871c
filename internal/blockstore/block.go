/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blockstore

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/cmn/debug"
	"github.com/ShisoftResearch/hivemind-go/cmn/nlog"
	"github.com/ShisoftResearch/hivemind-go/cmn/stats"
)

const headerLen = 8 // 8-byte little-endian length prefix (spec §3, §6)

// Block is a single append-only byte log plus an optional key index
// (spec §3). While size stays within bufCap, records live in the
// in-memory buffer; the first record that would exceed it triggers a
// one-time spill of the whole buffer to disk, after which every further
// append and read goes straight to the spill file.
type Block struct {
	mu   sync.RWMutex
	id   cos.UUID
	buf  []byte
	size int64 // logical length of the byte stream, headers included

	bufCap    int64
	spillPath string
	file      *os.File
	spilled   bool

	index map[cos.UUID]int64 // key -> offset of its one-record value
}

func newBlock(id cos.UUID, bufCap int64, spillPath string) *Block {
	return &Block{
		id:        id,
		bufCap:    bufCap,
		spillPath: spillPath,
		buf:       make([]byte, 0, bufCap),
		index:     make(map[cos.UUID]int64),
	}
}

// close removes the spill file, if any (spec §3: "destruction deletes any
// spill file").
func (b *Block) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file != nil {
		_ = b.file.Close()
		_ = os.Remove(b.spillPath)
		b.file = nil
	}
}

// append writes each item as [header][payload] and returns the starting
// offset (of the length header) of every item.
func (b *Block) append(items [][]byte) ([]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	offsets := make([]int64, len(items))
	for i, p := range items {
		off, err := b.appendOne(p)
		if err != nil {
			return offsets[:i], err
		}
		offsets[i] = off
	}
	return offsets, nil
}

func (b *Block) appendOne(p []byte) (int64, error) {
	recLen := int64(headerLen + len(p))
	off := b.size

	if !b.spilled && b.size+recLen > b.bufCap {
		if err := b.spillToDisk(); err != nil {
			return 0, err
		}
	}

	var hdr [headerLen]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(len(p)))

	if b.spilled {
		if _, err := b.file.Write(hdr[:]); err != nil {
			return 0, cos.ErrIOf("block.append", err)
		}
		if _, err := b.file.Write(p); err != nil {
			return 0, cos.ErrIOf("block.append", err)
		}
	} else {
		b.buf = append(b.buf, hdr[:]...)
		b.buf = append(b.buf, p...)
	}
	b.size += recLen
	return off, nil
}

// spillToDisk flushes the current in-memory buffer to a freshly created
// spill file in one write and clears the buffer (spec §4.1 spill policy).
func (b *Block) spillToDisk() error {
	debug.Assert(!b.spilled, "block already spilled")
	f, err := os.OpenFile(b.spillPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return cos.ErrIOf("block.spillToDisk: create", err)
	}
	if err := preallocate(f, b.bufCap); err != nil {
		_ = f.Close()
		return cos.ErrIOf("block.spillToDisk: fallocate", err)
	}
	if len(b.buf) > 0 {
		if _, err := f.Write(b.buf); err != nil {
			_ = f.Close()
			return cos.ErrIOf("block.spillToDisk: flush", err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return cos.ErrIOf("block.spillToDisk: fsync", err)
		}
	}
	b.file = f
	b.spilled = true
	b.buf = nil
	stats.BlockSpills.Inc()
	nlog.Infof("block %s spilled to %s at size=%d", b.id, b.spillPath, b.size)
	return nil
}

// readAt reads exactly n bytes starting at logical offset pos. Once a block
// has spilled, the entire logical stream lives in the file; until then, it
// lives entirely in the buffer (spec §4.1: the spill is all-or-nothing per
// block, never a mix of both).
func (b *Block) readAt(pos, n int64) ([]byte, error) {
	if b.spilled {
		out := make([]byte, n)
		if _, err := b.file.ReadAt(out, pos); err != nil {
			return nil, cos.ErrIOf("block.readAt", err)
		}
		return out, nil
	}
	if pos+n > int64(len(b.buf)) {
		return nil, cos.ErrIOf("block.readAt", os.ErrClosed)
	}
	out := make([]byte, n)
	copy(out, b.buf[pos:pos+n])
	return out, nil
}

// read decodes records forward from cursor.Pos until cursor.Limit is
// satisfied or end-of-stream (spec §4.1).
func (b *Block) read(cur Cursor) ([][]byte, Cursor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pos := cur.Pos
	var records [][]byte
	var bytesRead int64

	for pos < b.size {
		switch cur.Limit.Kind {
		case LimitItems:
			if int64(len(records)) >= cur.Limit.N {
				return records, Cursor{Pos: pos, Limit: cur.Limit}, nil
			}
		case LimitSize:
			if bytesRead >= cur.Limit.N {
				return records, Cursor{Pos: pos, Limit: cur.Limit}, nil
			}
		}

		hdr, err := b.readAt(pos, headerLen)
		if err != nil {
			return records, Cursor{Pos: pos, Limit: cur.Limit}, err
		}
		plen := int64(binary.LittleEndian.Uint64(hdr))
		payload, err := b.readAt(pos+headerLen, plen)
		if err != nil {
			return records, Cursor{Pos: pos, Limit: cur.Limit}, err
		}
		records = append(records, payload)
		bytesRead += headerLen + plen
		pos += headerLen + plen
	}
	return records, Cursor{Pos: pos, Limit: cur.Limit}, nil
}

// readOne decodes exactly the single record starting at pos, used by kvGet.
func (b *Block) readOne(pos int64) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if pos >= b.size {
		return nil, cos.ErrIOf("block.readOne", os.ErrNotExist)
	}
	hdr, err := b.readAt(pos, headerLen)
	if err != nil {
		return nil, err
	}
	plen := int64(binary.LittleEndian.Uint64(hdr))
	return b.readAt(pos+headerLen, plen)
}

func (b *Block) kvSet(key cos.UUID, value []byte) error {
	offs, err := b.append([][]byte{value})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.index[key] = offs[0]
	b.mu.Unlock()
	return nil
}

func (b *Block) kvGet(key cos.UUID) ([]byte, bool, error) {
	b.mu.RLock()
	off, ok := b.index[key]
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	v, err := b.readOne(off)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// kvUnset removes key from the index only; the appended bytes remain and
// their space is not reclaimed (spec §4.1).
func (b *Block) kvUnset(key cos.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.index[key]
	delete(b.index, key)
	return ok
}

func (b *Block) logicalSize() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
