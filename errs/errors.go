// Copyright 2022 bnb-chain. All Rights Reserved.
//
// Distributed under MIT license.
// See file LICENSE for detail or copy at https://opensource.org/licenses/MIT

// Package errs collects the error taxonomy shared by the trees, the
// engine, and the message dispatcher.
package errs

import "github.com/pkg/errors"

var (
	// ErrNotFound addresses a valid position with no leaf or node
	// present. Read paths surface this as a false/zero-value result
	// rather than propagating it, except where the caller explicitly
	// asked for a leaf that must exist (e.g. find_low_leaf).
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned by a nullifier tree when inserting a
	// value whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrTreeFull is returned when a write would grow a tree past 2^depth
	// leaves.
	ErrTreeFull = errors.New("tree full")

	// ErrInvalidRevision is returned for an unsupported or out-of-range
	// HistoricalBlock revision.
	ErrInvalidRevision = errors.New("invalid revision")

	// ErrBlockStateMismatch is returned by sync_block when the resulting
	// per-tree (root, size) differs from the block's expected_state_refs.
	ErrBlockStateMismatch = errors.New("block state mismatch")

	// ErrStorageError wraps a persistent KV environment failure.
	ErrStorageError = errors.New("storage error")

	// ErrUnknownMessage is returned by the dispatcher for a msg_type with
	// no registered handler.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrShutdown is returned to a request whose task could not be
	// submitted because the worker pool has been released; tasks already
	// running when the pool is released complete normally.
	ErrShutdown = errors.New("shutdown")
)
