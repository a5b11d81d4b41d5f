package indexed

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/ytrtdfkgf/merkle-worldstate/errs"
	"github.com/ytrtdfkgf/merkle-worldstate/fr"
	"github.com/ytrtdfkgf/merkle-worldstate/pool"
	"github.com/ytrtdfkgf/merkle-worldstate/store"
)

// Kind distinguishes the two indexed-tree flavors, which differ only in
// how they handle an insertion whose key already exists.
type Kind int

const (
	// Nullifier rejects a duplicate key with DuplicateKey.
	Nullifier Kind = iota
	// PublicData updates the existing leaf's payload in place, leaving
	// size and the linked list untouched.
	PublicData
)

// LowLeafWitness records a low leaf's state as observed at the moment a
// single insertion resolved it as the predecessor, before that
// insertion's modifications were applied.
type LowLeafWitness struct {
	Index                  uint64
	LeafBeforeModification IndexedLeaf
}

// SortedLeaf pairs a batch-inserted value with its position in the
// caller's original input slice.
type SortedLeaf struct {
	Value     LeafValue
	OrigIndex int
}

// BatchResult is the output of BatchInsert: witnesses in descending-key
// processing order, and the same-order record of which original input
// position each witness belongs to.
type BatchResult struct {
	Witnesses    []LowLeafWitness
	SortedLeaves []SortedLeaf
}

// Tree is a sparse-sorted Merkle tree of fixed depth.
type Tree struct {
	Name  string
	Depth uint32
	Kind  Kind

	store *store.Store[IndexedLeaf]
	zero  *fr.ZeroHashes
	pool  *pool.Pool

	mu sync.Mutex
}

// New constructs an indexed tree backed by st, prefilling the two
// sentinel leaves (key 0 at index 0, key 1 at index 1, pre-linked into a
// cycle) and committing them immediately if the tree is fresh.
func New(name string, depth uint32, st *store.Store[IndexedLeaf], zero *fr.ZeroHashes, workers *pool.Pool, kind Kind) (*Tree, error) {
	t := &Tree{Name: name, Depth: depth, Kind: kind, store: st, zero: zero, pool: workers}

	_, size, err := st.GetMeta(false)
	if err != nil {
		return nil, errors.Wrap(err, "indexed tree: read meta")
	}
	if size == 0 {
		if err := t.prefill(); err != nil {
			return nil, errors.Wrap(err, "indexed tree: prefill")
		}
	}
	return t, nil
}

func (t *Tree) prefill() error {
	head := IndexedLeaf{Key: fr.Zero(), Payload: fr.Zero(), NextIndex: 1, NextValue: fr.FromUint64(1)}
	tail := IndexedLeaf{Key: fr.FromUint64(1), Payload: fr.FromUint64(1), NextIndex: 0, NextValue: fr.Zero()}

	t.store.PutLeaf(0, head)
	t.store.PutLeaf(1, tail)
	t.store.PutLowLeafIndex(head.Key, 0)
	t.store.PutLowLeafIndex(tail.Key, 1)

	root, err := t.recomputeRoot(map[uint64]struct{}{0: {}, 1: {}})
	if err != nil {
		return err
	}
	t.store.SetMeta(root, 2)
	return t.store.Commit()
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
		return leaf.Hash(), nil
	}
	return t.store.GetNode(level, index, includeUncommitted)
}

// recomputeRoot rehashes every internal node on the path from each index
// in dirtyLeaves up to the root, parallelizing independent siblings at
// each level, and returns the resulting root. Every affected non-root
// node is staged via PutNode as a side effect.
func (t *Tree) recomputeRoot(dirtyLeaves map[uint64]struct{}) (fr.Element, error) {
	var root fr.Element
	dirty := dirtyLeaves

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
				return fr.Zero(), err
			}
		}
		if group != nil {
			if err := group.Wait(); err != nil {
				return fr.Zero(), err
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
	return root, nil
}

type mutation struct {
	witness  LowLeafWitness
	appended bool
}

// applyInsert resolves v's low leaf and applies the single-insertion
// rule against it: update-in-place (public-data, exact key match),
// reject (nullifier, exact key match), or append at newIndex. It stages
// leaf and low-leaf-index writes but does not recompute hashes or
// advance meta; it returns the set of leaf positions it touched so the
// caller can batch the rehash.
func (t *Tree) applyInsert(v LeafValue, newIndex uint64) (mutation, map[uint64]struct{}, error) {
	key := v.Key()

	lowIndex, ok, err := t.store.GetLowLeafIndex(key, true)
	if err != nil {
		return mutation{}, nil, err
	}
	if !ok {
		return mutation{}, nil, errors.Wrap(errs.ErrNotFound, "indexed tree: no low leaf (sentinels missing)")
	}

	lowLeaf, ok, err := t.store.GetLeaf(lowIndex, true)
	if err != nil {
		return mutation{}, nil, err
	}
	if !ok {
		return mutation{}, nil, errors.Wrap(errs.ErrNotFound, "indexed tree: low leaf index has no leaf")
	}

	witness := LowLeafWitness{Index: lowIndex, LeafBeforeModification: lowLeaf}

	if fr.Equal(lowLeaf.Key, key) {
		if t.Kind != PublicData {
			return mutation{witness: witness}, nil, errs.ErrDuplicateKey
		}
		lowLeaf.Payload = v.Payload()
		t.store.PutLeaf(lowIndex, lowLeaf)
		return mutation{witness: witness}, map[uint64]struct{}{lowIndex: {}}, nil
	}

	newLeaf := IndexedLeaf{
		Key:       key,
		Payload:   v.Payload(),
		NextIndex: lowLeaf.NextIndex,
		NextValue: lowLeaf.NextValue,
	}
	lowLeaf.NextIndex = newIndex
	lowLeaf.NextValue = key

	t.store.PutLeaf(lowIndex, lowLeaf)
	t.store.PutLeaf(newIndex, newLeaf)
	t.store.PutLowLeafIndex(key, newIndex)

	return mutation{witness: witness, appended: true}, map[uint64]struct{}{lowIndex: {}, newIndex: {}}, nil
}

// Insert applies the single-insertion rule for v and returns the witness
// recording its low leaf's pre-modification state.
func (t *Tree) Insert(v LeafValue) (LowLeafWitness, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, size, err := t.store.GetMeta(true)
	if err != nil {
		return LowLeafWitness{}, err
	}
	if size >= uint64(1)<<t.Depth {
		return LowLeafWitness{}, errs.ErrTreeFull
	}

	m, dirty, err := t.applyInsert(v, size)
	if err != nil {
		return m.witness, err
	}

	root, err := t.recomputeRoot(dirty)
	if err != nil {
		return m.witness, err
	}

	newSize := size
	if m.appended {
		newSize++
	}
	t.store.SetMeta(root, newSize)
	return m.witness, nil
}

// UpdatePublic is a thin wrapper around Insert for the public-data tree:
// inserting a slot that already exists updates it in place, exactly as
// Insert already does; inserting a new slot appends it.
func (t *Tree) UpdatePublic(v PublicDataValue) (LowLeafWitness, error) {
	if t.Kind != PublicData {
		return LowLeafWitness{}, errors.New("update_public is only valid on a public-data tree")
	}
	return t.Insert(v)
}

// BatchInsert inserts every value in a single logical step. Processing
// order is descending by key (ties broken by input order, and rejected
// outright for nullifiers); each value's final tree position is
// size+origIndex regardless of processing order, matching a caller that
// reconstructs per-input results by indexing sortedLeaves.
func (t *Tree) BatchInsert(values []LeafValue) (BatchResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, size, err := t.store.GetMeta(true)
	if err != nil {
		return BatchResult{}, err
	}
	n := uint64(len(values))
	if size+n > uint64(1)<<t.Depth {
		return BatchResult{}, errs.ErrTreeFull
	}

	type entry struct {
		value     LeafValue
		origIndex int
	}
	order := make([]entry, len(values))
	for i, v := range values {
		order[i] = entry{value: v, origIndex: i}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return fr.Cmp(order[i].value.Key(), order[j].value.Key()) > 0
	})

	if t.Kind == Nullifier {
		for i := 1; i < len(order); i++ {
			if fr.Equal(order[i].value.Key(), order[i-1].value.Key()) {
				return BatchResult{}, errs.ErrDuplicateKey
			}
		}
	}

	witnesses := make([]LowLeafWitness, len(order))
	sortedLeaves := make([]SortedLeaf, len(order))
	dirty := make(map[uint64]struct{})

	for i, item := range order {
		newIndex := size + uint64(item.origIndex)
		m, d, err := t.applyInsert(item.value, newIndex)
		if err != nil {
			return BatchResult{}, err
		}
		witnesses[i] = m.witness
		sortedLeaves[i] = SortedLeaf{Value: item.value, OrigIndex: item.origIndex}
		for k := range d {
			dirty[k] = struct{}{}
		}
	}

	root, err := t.recomputeRoot(dirty)
	if err != nil {
		return BatchResult{}, err
	}
	t.store.SetMeta(root, size+n)

	return BatchResult{Witnesses: witnesses, SortedLeaves: sortedLeaves}, nil
}

// FindLowLeaf returns the live leaf with the greatest key <= key.
func (t *Tree) FindLowLeaf(key fr.Element, includeUncommitted bool) (IndexedLeaf, error) {
	idx, ok, err := t.store.GetLowLeafIndex(key, includeUncommitted)
	if err != nil {
		return IndexedLeaf{}, err
	}
	if !ok {
		return IndexedLeaf{}, errs.ErrNotFound
	}
	leaf, ok, err := t.store.GetLeaf(idx, includeUncommitted)
	if err != nil {
		return IndexedLeaf{}, err
	}
	if !ok {
		return IndexedLeaf{}, errs.ErrNotFound
	}
	return leaf, nil
}

// FindIndex returns the index of the live leaf whose key is exactly
// value, if any.
func (t *Tree) FindIndex(value fr.Element, includeUncommitted bool) (uint64, bool, error) {
	idx, ok, err := t.store.GetLowLeafIndex(value, includeUncommitted)
	if err != nil || !ok {
		return 0, false, err
	}
	leaf, ok, err := t.store.GetLeaf(idx, includeUncommitted)
	if err != nil || !ok {
		return 0, false, err
	}
	if !fr.Equal(leaf.Key, value) {
		return 0, false, nil
	}
	return idx, true, nil
}

// GetIndexedLeaf returns the leaf stored at index, if any.
func (t *Tree) GetIndexedLeaf(index uint64, includeUncommitted bool) (IndexedLeaf, bool, error) {
	return t.store.GetLeaf(index, includeUncommitted)
}

// SiblingPath returns the depth hashes that, combined with
// leaf_hash(index), rehash to the root.
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
