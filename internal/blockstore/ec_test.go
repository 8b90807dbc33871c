/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blockstore_test

import (
	"bytes"
	"testing"

	"github.com/ShisoftResearch/hivemind-go/internal/blockstore"
)

func TestECEncodeReconstruct(t *testing.T) {
	data := bytes.Repeat([]byte("hivemind-spill-shard-payload "), 256)

	shards, err := blockstore.ECEncode(data, 4, 2)
	if err != nil {
		t.Fatalf("ECEncode: %v", err)
	}
	if len(shards) != 6 {
		t.Fatalf("expected 6 shards, got %d", len(shards))
	}

	shards[1] = nil
	shards[4] = nil
	if err := blockstore.ECReconstruct(shards, 4, 2); err != nil {
		t.Fatalf("ECReconstruct: %v", err)
	}
	for i, s := range shards {
		if s == nil {
			t.Fatalf("shard %d still missing after reconstruct", i)
		}
	}
}
