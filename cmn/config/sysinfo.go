//go:build linux

/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package config

import "golang.org/x/sys/unix"

// detectProcessors counts the CPUs in this process's scheduling affinity
// mask, so a node with no explicit "processors" setting sizes its worker
// pool to what the host (or its container cgroup) actually grants it
// rather than a fixed guess.
func detectProcessors() uint16 {
	var mask unix.CPUSet
	if err := unix.SchedGetaffinity(0, &mask); err != nil {
		return defaultProcessors
	}
	n := mask.Count()
	if n <= 0 {
		return defaultProcessors
	}
	if n > int(^uint16(0)) {
		return ^uint16(0)
	}
	return uint16(n)
}
