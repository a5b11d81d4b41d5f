package kv

import "github.com/pkg/errors"

var (
	// ErrStorageFull is returned when the underlying volume has no space
	// left to satisfy a write.
	ErrStorageFull = errors.New("storage full")

	// ErrMapFull is returned when a write would grow the environment past
	// its configured map_size_kb budget.
	ErrMapFull = errors.New("map full")

	// ErrTooManyReaders is returned when Snapshot is called while the
	// configured maximum number of concurrent readers is already open.
	ErrTooManyReaders = errors.New("too many readers")

	// ErrIO wraps an unexpected failure from the underlying store.
	ErrIO = errors.New("io error")

	// ErrClosed is returned by any operation on a closed environment.
	ErrClosed = errors.New("environment closed")

	// ErrUnordered is returned when an indexed-tree predecessor lookup is
	// attempted against an Environment whose snapshots don't implement
	// OrderedSnapshot.
	ErrUnordered = errors.New("environment does not support ordered lookups")
)
