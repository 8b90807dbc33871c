/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blockstore

import (
	"github.com/klauspost/reedsolomon"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
)

// ECEncode splits a spilled block's bytes into dataShards data shards plus
// parityShards recovery shards (SPEC_FULL §3 "optional block-level erasure
// coding for the spill file"). This is never on the append/read hot path:
// it is an opt-in backup transform a node runs over a block it already
// has, so a later Reconstruct can tolerate losing up to parityShards
// shards without consulting the immutable manager's replica registry.
func ECEncode(data []byte, dataShards, parityShards int) ([][]byte, error) {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, cos.ErrIOf("blockstore.ECEncode: new", err)
	}
	shards, err := enc.Split(data)
	if err != nil {
		return nil, cos.ErrIOf("blockstore.ECEncode: split", err)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, cos.ErrIOf("blockstore.ECEncode: encode", err)
	}
	return shards, nil
}

// ECReconstruct rebuilds any missing (nil) shards in place and reports
// whether the shard set is intact afterward.
func ECReconstruct(shards [][]byte, dataShards, parityShards int) error {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return cos.ErrIOf("blockstore.ECReconstruct: new", err)
	}
	if err := enc.Reconstruct(shards); err != nil {
		return cos.ErrIOf("blockstore.ECReconstruct: reconstruct", err)
	}
	return nil
}
