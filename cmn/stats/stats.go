// Package stats exposes per-component Prometheus metrics: spill events,
// clone-damper waits, occupation gauges, global-store cache hit ratio.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import "github.com/prometheus/client_golang/prometheus"

var (
	BlockSpills = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hivemind_block_spills_total",
		Help: "Number of blocks that spilled from the in-memory buffer to disk.",
	})
	CloneWaits = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "hivemind_clone_wait_seconds",
		Help: "Time a reader spent waiting on the clone damper for an in-flight clone.",
	})
	ClonesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hivemind_clones_started_total",
		Help: "Number of block clones initiated by the immutable manager.",
	})
	OccupationsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hivemind_occupations_running",
		Help: "Occupations currently in the Running state across all nodes.",
	})
	GlobalCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hivemind_global_cache_hits_total",
		Help: "get_cached calls served from the local global-store cache.",
	})
	GlobalCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hivemind_global_cache_misses_total",
		Help: "get_cached calls that fell through to get_newest.",
	})
)

func init() {
	prometheus.MustRegister(
		BlockSpills, CloneWaits, ClonesStarted,
		OccupationsRunning, GlobalCacheHits, GlobalCacheMisses,
	)
}
