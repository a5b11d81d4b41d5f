// Package kv specifies the persistent key-value environment the cached
// tree store builds on: named databases inside a single environment,
// consistent point-in-time read snapshots, and write batches that apply
// atomically or not at all.
package kv

// Snapshot is a consistent point-in-time view across every named database
// in the environment. It must be released after use.
type Snapshot interface {
	// Get returns the value stored for key in db, or ok=false if absent.
	Get(db string, key []byte) (value []byte, ok bool, err error)
	// Release returns any resources held by the snapshot. Safe to call
	// more than once.
	Release()
}

// OrderedSnapshot is implemented by environments whose keys are stored in
// byte-lexicographic order and can therefore answer a reverse-lower-bound
// query. The indexed tree's predecessor search uses this to resolve a
// key's low leaf from the persistent by_key secondary index; environments
// that cannot support it (e.g. redis) simply don't implement it, and the
// indexed tree falls back to an error rather than a silent linear scan
// across arbitrarily large trees.
type OrderedSnapshot interface {
	Snapshot
	// SeekLastLE returns the entry with the greatest key k such that
	// lowerBound <= k <= upperBound, or ok=false if no such key is
	// present in db.
	SeekLastLE(db string, lowerBound, upperBound []byte) (key, value []byte, ok bool, err error)
}

// Batch accumulates writes across any number of named databases to be
// applied atomically by Environment.Update.
type Batch interface {
	Put(db string, key, value []byte)
	Delete(db string, key []byte)
}

// Environment is the persistent collaborator C3 builds its overlays on.
// A single Environment hosts every tree's named database.
type Environment interface {
	// Snapshot opens a consistent read-only view of every database.
	Snapshot() (Snapshot, error)
	// Update runs fn against a fresh batch and commits it atomically if fn
	// returns a nil error; the batch is discarded on any error, including
	// one returned by the underlying store during commit.
	Update(fn func(Batch) error) error
	// Close releases the environment's resources. Idempotent.
	Close() error
}
