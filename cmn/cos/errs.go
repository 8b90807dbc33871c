/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"

	"github.com/pkg/errors"
)

// Taxonomy of error kinds (spec §7). Each is a distinct sentinel so callers
// can branch with errors.Is; components wrap it with task/block/server
// context via errors.Wrap before returning it across a layer boundary.
var (
	ErrNotFound        = errors.New("NOT FOUND")
	ErrAlreadyExists   = errors.New("ALREADY EXISTS")
	ErrCapacityDenied  = errors.New("CAPACITY DENIED")
	ErrIO              = errors.New("IO")
	ErrRemoteUnavailable = errors.New("REMOTE UNAVAILABLE")
	ErrConsensus       = errors.New("CONSENSUS")
	ErrSubscription    = errors.New("SUBSCRIPTION")
	ErrTypeMismatch    = errors.New("TYPE MISMATCH")
)

// errNoTask and errNoBlock and errNoKey are the three tagged strings the
// RPC surface (C2) is required to produce (spec §4.2).
var (
	errNoTask  = "NO TASK"
	errNoBlock = "NO BLOCK"
	errNoKey   = "NO KEY"
)

// ErrNoTask tags ErrNotFound for a missing task namespace.
func ErrNoTask(task UUID) error {
	return errors.Wrapf(ErrNotFound, "%s: task=%s", errNoTask, task)
}

// ErrNoBlock tags ErrNotFound for a missing (task, block) pair.
func ErrNoBlock(task, block UUID) error {
	return errors.Wrapf(ErrNotFound, "%s: task=%s block=%s", errNoBlock, task, block)
}

// ErrNoKey tags ErrNotFound for a missing KV key within a block.
func ErrNoKey(task, block, key UUID) error {
	return errors.Wrapf(ErrNotFound, "%s: task=%s block=%s key=%s", errNoKey, task, block, key)
}

// ErrExists tags ErrAlreadyExists with the entity kind and id.
func ErrExists(kind, id string) error {
	return errors.Wrapf(ErrAlreadyExists, "%s %s already exists", kind, id)
}

// ErrIOf wraps an underlying I/O failure, keeping the block valid for retry
// per spec §7's recovery column.
func ErrIOf(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrIO, "%s: %v", op, err)
}

// ErrRemote tags ErrRemoteUnavailable with the originating server (spec §4.3:
// "C3 converts transport errors to strings and tags the originating server").
func ErrRemote(server UUID, err error) error {
	return errors.Wrapf(ErrRemoteUnavailable, "server=%s: %v", server, err)
}

// ErrCapacity reports that a resource-manager promotion could not proceed.
func ErrCapacity(task, node UUID) error {
	return errors.Wrapf(ErrCapacityDenied, "task=%s node=%s: insufficient capacity", task, node)
}

// ErrConsensusf wraps a rejected or unreachable consensus command.
func ErrConsensusf(format string, args ...any) error {
	return errors.Wrap(ErrConsensus, fmt.Sprintf(format, args...))
}

// ErrTypeMismatchf reports a decoded payload that does not match the
// expected schema; non-retriable per spec §7.
func ErrTypeMismatchf(format string, args ...any) error {
	return errors.Wrap(ErrTypeMismatch, fmt.Sprintf(format, args...))
}
