//go:build linux

/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blockstore

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves size bytes for f's spill file with a single
// fallocate(2) call so the append loop that follows never pays for
// incremental block-by-block disk extension. ENOTSUP/ENOSYS (common on
// network filesystems) is not an error; the append path still works, just
// without the preallocation hint.
func preallocate(f *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	err := unix.Fallocate(int(f.Fd()), 0, 0, size)
	if err == unix.ENOTSUP || err == unix.ENOSYS {
		return nil
	}
	return err
}
