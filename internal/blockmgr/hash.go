/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blockmgr

import (
	"sort"

	"github.com/OneOfOne/xxhash"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
)

// Ring is an optional consistent-hash placement helper: given a block id
// and a set of candidate server ids, it orders servers by hashed affinity
// so schedulers can pick a deterministic primary without consulting the
// immutable registry (SPEC_FULL §3 domain stack: xxhash placement).
type Ring struct{}

func (Ring) Rank(block cos.UUID, servers []cos.UUID) []cos.UUID {
	type scored struct {
		id    cos.UUID
		score uint64
	}
	h := xxhash.New64()
	scores := make([]scored, len(servers))
	for i, s := range servers {
		h.Reset()
		_, _ = h.Write(block[:])
		_, _ = h.Write(s[:])
		scores[i] = scored{id: s, score: h.Sum64()}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score < scores[j].score })
	out := make([]cos.UUID, len(scores))
	for i, s := range scores {
		out[i] = s.id
	}
	return out
}
