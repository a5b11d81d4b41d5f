// Package appendonly implements the append-only Merkle tree (C4): a
// sequential-leaf tree of fixed depth.
package appendonly

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/ytrtdfkgf/merkle-worldstate/errs"
	"github.com/ytrtdfkgf/merkle-worldstate/fr"
	"github.com/ytrtdfkgf/merkle-worldstate/pool"
	"github.com/ytrtdfkgf/merkle-worldstate/store"
)

// Tree is a Merkle tree whose leaves are written in strictly increasing
// index order.
type Tree struct {
	Name  string
	Depth uint32

	store *store.Store[Leaf]
	zero  *fr.ZeroHashes
	pool  *pool.Pool

	// mu is the tree's single-exclusive-writer lock: Append, Commit, and
	// Rollback take it; reads against Committed do not need it since they
	// go straight to the environment's own snapshot isolation.
	mu sync.Mutex
}

// New constructs an append-only tree backed by st. pool may be nil, in
// which case level hashing runs sequentially on the caller's goroutine.
func New(name string, depth uint32, st *store.Store[Leaf], zero *fr.ZeroHashes, workers *pool.Pool) *Tree {
	return &Tree{Name: name, Depth: depth, store: st, zero: zero, pool: workers}
}

func (t *Tree) nodeAt(level uint32, index uint64, includeUncommitted bool) (fr.Element, error) {
	if level == t.Depth {
		leaf, ok, err := t.store.GetLeaf(index, includeUncommitted)
		if err != nil {
			return fr.Zero(), err
		}
		if !ok {
			return t.zero.At(t.Depth, level), nil
		}
		return leaf.Value, nil
	}
	return t.store.GetNode(level, index, includeUncommitted)
}

// Append writes leaves at positions [size, size+len(leaves)) and
// recomputes every internal node they touch, parallelizing the hashing
// of independent siblings at each level.
func (t *Tree) Append(leaves []fr.Element) (fr.Element, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	root, size, err := t.store.GetMeta(true)
	if err != nil {
		return fr.Zero(), 0, errors.Wrap(err, "append: read meta")
	}

	n := uint64(len(leaves))
	if n == 0 {
		return root, size, nil
	}
	if size+n > uint64(1)<<t.Depth {
		return fr.Zero(), 0, errs.ErrTreeFull
	}

	dirty := make(map[uint64]struct{}, n)
	for i, v := range leaves {
		idx := size + uint64(i)
		t.store.PutLeaf(idx, Leaf{Value: v})
		dirty[idx] = struct{}{}
	}

	for level := t.Depth; level > 0; level-- {
		parents := make(map[uint64]struct{}, len(dirty))
		for idx := range dirty {
			parents[idx/2] = struct{}{}
		}

		hashes := make(map[uint64]fr.Element, len(parents))
		var hmu sync.Mutex
		var group *pool.Group
		if t.pool != nil {
			group = t.pool.NewGroup()
		}

		for parent := range parents {
			parent := parent
			task := func() error {
				left, err := t.nodeAt(level, parent*2, true)
				if err != nil {
					return err
				}
				right, err := t.nodeAt(level, parent*2+1, true)
				if err != nil {
					return err
				}
				h := fr.HashPair(left, right)
				hmu.Lock()
				hashes[parent] = h
				hmu.Unlock()
				return nil
			}
			if group != nil {
				group.Go(task)
			} else if err := task(); err != nil {
				return fr.Zero(), 0, err
			}
		}
		if group != nil {
			if err := group.Wait(); err != nil {
				return fr.Zero(), 0, errors.Wrap(err, "append: hash level")
			}
		}

		for parent, h := range hashes {
			if level == 1 {
				root = h
			} else {
				t.store.PutNode(level-1, parent, h)
			}
		}
		dirty = parents
	}

	size += n
	t.store.SetMeta(root, size)
	return root, size, nil
}

// GetLeaf returns the leaf at index, if any.
func (t *Tree) GetLeaf(index uint64, includeUncommitted bool) (fr.Element, bool, error) {
	leaf, ok, err := t.store.GetLeaf(index, includeUncommitted)
	return leaf.Value, ok, err
}

// FindLeaf linearly scans from fromIndex for a leaf equal to value. No
// ordering is implied; this is not a predecessor search.
func (t *Tree) FindLeaf(value fr.Element, fromIndex uint64, includeUncommitted bool) (uint64, bool, error) {
	_, size, err := t.store.GetMeta(includeUncommitted)
	if err != nil {
		return 0, false, err
	}
	for i := fromIndex; i < size; i++ {
		leaf, ok, err := t.store.GetLeaf(i, includeUncommitted)
		if err != nil {
			return 0, false, err
		}
		if ok && fr.Equal(leaf.Value, value) {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// SiblingPath returns the depth hashes that, combined with leaf_hash(index),
// rehash to the root: from the leaf level up to but not including the root.
func (t *Tree) SiblingPath(index uint64, includeUncommitted bool) ([]fr.Element, error) {
	path := make([]fr.Element, 0, t.Depth)
	idx := index
	for level := t.Depth; level >= 1; level-- {
		sibling := idx ^ 1
		v, err := t.nodeAt(level, sibling, includeUncommitted)
		if err != nil {
			return nil, err
		}
		path = append(path, v)
		idx /= 2
	}
	return path, nil
}

// Meta returns the tree's current (root, size).
func (t *Tree) Meta(includeUncommitted bool) (fr.Element, uint64, error) {
	return t.store.GetMeta(includeUncommitted)
}

// Commit and Rollback delegate to the underlying cached store.
func (t *Tree) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Commit()
}

func (t *Tree) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store.Rollback()
}
