// Package cos ("common os") holds small dependency-free types shared by
// every component: the UUID identity used for tasks, blocks, KV keys and
// nodes, plus the error taxonomy and JSON codec.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/OneOfOne/xxhash"
)

// UUID is a 128-bit identifier used as task id, block id, KV key, and node id.
// Equality is byte-exact; the textual form is 32 uppercase hex digits.
type UUID [16]byte

var Nil UUID

// NewUUID returns a random (v4-style) UUID.
func NewUUID() UUID {
	var u UUID
	if _, err := rand.Read(u[:]); err != nil {
		// crypto/rand on a supported platform does not fail; a failure here
		// indicates a broken host entropy source, which callers cannot repair.
		panic(fmt.Sprintf("cos: crypto/rand failed: %v", err))
	}
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return u
}

// UUIDFromHalves constructs a UUID from two little-endian 64-bit halves,
// as used when a caller wants a deterministic, reproducible identity
// (e.g. tests, or ids derived from an existing numeric scheme).
func UUIDFromHalves(hi, lo uint64) UUID {
	var u UUID
	binary.LittleEndian.PutUint64(u[0:8], hi)
	binary.LittleEndian.PutUint64(u[8:16], lo)
	return u
}

func (u UUID) IsNil() bool { return u == Nil }

// String renders the 32 uppercase hex digit textual form (spec §6).
func (u UUID) String() string {
	return fmt.Sprintf("%X", u[:])
}

// ParseUUID parses the 32 uppercase (or lowercase) hex digit textual form.
func ParseUUID(s string) (UUID, error) {
	var u UUID
	if len(s) != 32 {
		return u, fmt.Errorf("cos: invalid uuid length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return u, fmt.Errorf("cos: invalid uuid %q: %w", s, err)
	}
	copy(u[:], b)
	return u, nil
}

// Hash64 returns a consistent-hash-friendly 64-bit xxhash digest of the
// UUID.
func (u UUID) Hash64() uint64 {
	h := xxhash.New64()
	_, _ = h.Write(u[:])
	return h.Sum64()
}
