/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blockstore

// LimitKind discriminates a Cursor's termination condition (spec §3, §9 Open
// Question #1: original_source mixes bytes/items limits; this module keeps
// both as a tagged union and always reasons in logical stream offsets).
type LimitKind int

const (
	LimitItems LimitKind = iota
	LimitSize
)

// Limit bounds how much a single Read call will decode.
type Limit struct {
	Kind LimitKind
	N    int64 // item count for LimitItems, byte count for LimitSize
}

func Items(n int64) Limit { return Limit{Kind: LimitItems, N: n} }
func Size(n int64) Limit  { return Limit{Kind: LimitSize, N: n} }

// Cursor is a resumable read position within one block (spec §3, §4.1).
// Pos is always a logical stream offset pointing at a record's length
// header, never a buffer- or file-relative offset.
type Cursor struct {
	Pos   int64
	Limit Limit
}
