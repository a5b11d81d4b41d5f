package store

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ytrtdfkgf/merkle-worldstate/fr"
	"github.com/ytrtdfkgf/merkle-worldstate/kv"
)

// Leaf is the contract every stored leaf type (a bare fr.Element for
// append-only trees, or an IndexedLeaf for indexed trees) must satisfy.
type Leaf interface {
	Encode() []byte
}

type nodeAddr struct {
	level uint32
	index uint64
}

// Meta is the tree metadata shadowed by the overlay while a tree is dirty.
type Meta struct {
	Root fr.Element
	Size uint64
}

// Store is the cached tree store (C3): a per-tree overlay of uncommitted
// nodes, leaves, and low-leaf index entries layered atop a named database
// inside a persistent kv.Environment.
type Store[L Leaf] struct {
	env    kv.Environment
	dbName string
	decode func([]byte) (L, error)
	zero   *fr.ZeroHashes
	depth  uint32

	// mu guards every overlay below: a multi-reader/single-writer lock
	// shared by concurrent Uncommitted readers and the tree's single
	// writer.
	mu sync.RWMutex

	pendingNodes        map[nodeAddr]fr.Element
	pendingLeaves       map[uint64]L
	pendingLowLeafIndex map[string]uint64
	pendingMeta         *Meta
	dirty               bool

	// nodeCache memoizes persistent reads so repeated committed-revision
	// lookups of hot internal nodes don't round-trip to the environment.
	nodeCache *lru.Cache
}

// New constructs a cached store for one tree. decode parses a persisted
// leaf blob back into L; zero/depth let GetNode answer for never-written
// subtrees without touching the environment.
func New[L Leaf](env kv.Environment, dbName string, decode func([]byte) (L, error), zero *fr.ZeroHashes, depth uint32) *Store[L] {
	cache, _ := lru.New(4096)
	return &Store[L]{
		env:                 env,
		dbName:              dbName,
		decode:              decode,
		zero:                zero,
		depth:               depth,
		pendingNodes:        make(map[nodeAddr]fr.Element),
		pendingLeaves:       make(map[uint64]L),
		pendingLowLeafIndex: make(map[string]uint64),
		nodeCache:           cache,
	}
}

// GetNode returns the hash at (level, index). If includeUncommitted is
// true the overlay is consulted first; a node that has never been
// written anywhere returns zero_hash(level).
func (s *Store[L]) GetNode(level uint32, index uint64, includeUncommitted bool) (fr.Element, error) {
	if includeUncommitted {
		s.mu.RLock()
		v, ok := s.pendingNodes[nodeAddr{level, index}]
		s.mu.RUnlock()
		if ok {
			return v, nil
		}
	}

	addr := nodeAddr{level, index}
	if cached, ok := s.nodeCache.Get(addr); ok {
		return cached.(fr.Element), nil
	}

	snap, err := s.env.Snapshot()
	if err != nil {
		return fr.Zero(), err
	}
	defer snap.Release()

	raw, ok, err := snap.Get(s.dbName, nodeKey(level, index))
	if err != nil {
		return fr.Zero(), err
	}
	if !ok {
		return s.zero.At(s.depth, level), nil
	}
	v, err := fr.SetBytes(raw)
	if err != nil {
		return fr.Zero(), err
	}
	s.nodeCache.Add(addr, v)
	return v, nil
}

// GetLeaf returns the stored leaf at index, if any.
func (s *Store[L]) GetLeaf(index uint64, includeUncommitted bool) (L, bool, error) {
	var zero L
	if includeUncommitted {
		s.mu.RLock()
		v, ok := s.pendingLeaves[index]
		s.mu.RUnlock()
		if ok {
			return v, true, nil
		}
	}

	snap, err := s.env.Snapshot()
	if err != nil {
		return zero, false, err
	}
	defer snap.Release()

	raw, ok, err := snap.Get(s.dbName, leafKey(index))
	if err != nil || !ok {
		return zero, false, err
	}
	leaf, err := s.decode(raw)
	if err != nil {
		return zero, false, err
	}
	return leaf, true, nil
}

// PutNode stages a node write in the overlay.
func (s *Store[L]) PutNode(level uint32, index uint64, value fr.Element) {
	s.mu.Lock()
	s.pendingNodes[nodeAddr{level, index}] = value
	s.dirty = true
	s.mu.Unlock()
}

// PutLeaf stages a leaf write in the overlay.
func (s *Store[L]) PutLeaf(index uint64, leaf L) {
	s.mu.Lock()
	s.pendingLeaves[index] = leaf
	s.dirty = true
	s.mu.Unlock()
}

// GetMeta returns the tree's (root, size). A tree with no stored meta is
// empty: its root is zero_hash(0) and its size 0.
func (s *Store[L]) GetMeta(includeUncommitted bool) (fr.Element, uint64, error) {
	if includeUncommitted {
		s.mu.RLock()
		if s.pendingMeta != nil {
			root, size := s.pendingMeta.Root, s.pendingMeta.Size
			s.mu.RUnlock()
			return root, size, nil
		}
		s.mu.RUnlock()
	}

	snap, err := s.env.Snapshot()
	if err != nil {
		return fr.Zero(), 0, err
	}
	defer snap.Release()

	raw, ok, err := snap.Get(s.dbName, metaKey())
	if err != nil {
		return fr.Zero(), 0, err
	}
	if !ok {
		return s.zero.At(s.depth, 0), 0, nil
	}
	return decodeMeta(raw)
}

// SetMeta stages the tentative (root, size) in the overlay.
func (s *Store[L]) SetMeta(root fr.Element, size uint64) {
	s.mu.Lock()
	s.pendingMeta = &Meta{Root: root, Size: size}
	s.dirty = true
	s.mu.Unlock()
}

// GetLowLeafIndex resolves key to the index of its low leaf: the live
// leaf with the greatest key' <= key in the indexed tree's sorted linked
// list. It merges the persistent secondary index with any in-overlay
// pending_low_leaf_index entries, which is what lets batch insertion see
// predecessor links introduced earlier in the same uncommitted batch; for
// a key present in both, the overlay's entry wins.
func (s *Store[L]) GetLowLeafIndex(key fr.Element, includeUncommitted bool) (uint64, bool, error) {
	var bestKey fr.Element
	var bestIndex uint64
	found := false

	if includeUncommitted {
		s.mu.RLock()
		for raw, idx := range s.pendingLowLeafIndex {
			k, err := fr.SetBytes([]byte(raw))
			if err != nil {
				s.mu.RUnlock()
				return 0, false, err
			}
			if fr.Cmp(k, key) <= 0 && (!found || fr.Cmp(k, bestKey) > 0) {
				bestKey, bestIndex, found = k, idx, true
			}
		}
		s.mu.RUnlock()
	}

	snap, err := s.env.Snapshot()
	if err != nil {
		return 0, false, err
	}
	defer snap.Release()

	ordered, ok := snap.(kv.OrderedSnapshot)
	if !ok {
		return 0, false, kv.ErrUnordered
	}

	rawKey, rawVal, ok, err := ordered.SeekLastLE(s.dbName, byKeyLowerBound(), byKeyUpperBound(key))
	if err != nil {
		return 0, false, err
	}
	if ok {
		pkey, err := decodeByKeyKey(rawKey)
		if err != nil {
			return 0, false, err
		}
		if !found || fr.Cmp(pkey, bestKey) > 0 {
			bestKey, bestIndex, found = pkey, decodeIndex(rawVal), true
		}
	}
	return bestIndex, found, nil
}

// PutLowLeafIndex stages a key -> index mapping. It is overlay only: the
// persistent secondary index is written as part of Commit.
func (s *Store[L]) PutLowLeafIndex(key fr.Element, index uint64) {
	s.mu.Lock()
	s.pendingLowLeafIndex[string(fr.Bytes(key)[:])] = index
	s.dirty = true
	s.mu.Unlock()
}

// IsDirty reports whether the tree has uncommitted writes.
func (s *Store[L]) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Commit flushes every overlay entry and the new meta to the environment
// as a single atomic batch, then clears the overlay. If the environment
// fails, the overlay is preserved and the caller may retry.
func (s *Store[L]) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	err := s.env.Update(func(b kv.Batch) error {
		for addr, v := range s.pendingNodes {
			enc := fr.Bytes(v)
			b.Put(s.dbName, nodeKey(addr.level, addr.index), enc[:])
		}
		for index, leaf := range s.pendingLeaves {
			b.Put(s.dbName, leafKey(index), leaf.Encode())
		}
		for raw, index := range s.pendingLowLeafIndex {
			key, err := fr.SetBytes([]byte(raw))
			if err != nil {
				return err
			}
			b.Put(s.dbName, byKeyKey(key), encodeIndex(index))
		}
		if s.pendingMeta != nil {
			b.Put(s.dbName, metaKey(), encodeMeta(s.pendingMeta.Root, s.pendingMeta.Size))
		}
		return nil
	})
	if err != nil {
		return err
	}

	for addr, v := range s.pendingNodes {
		s.nodeCache.Add(addr, v)
	}
	s.pendingNodes = make(map[nodeAddr]fr.Element)
	s.pendingLeaves = make(map[uint64]L)
	s.pendingLowLeafIndex = make(map[string]uint64)
	s.pendingMeta = nil
	s.dirty = false
	return nil
}

// Rollback drops every overlay entry in O(1) logical work. A rollback
// never touches the persistent layer, so committed data is never lost.
func (s *Store[L]) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingNodes = make(map[nodeAddr]fr.Element)
	s.pendingLeaves = make(map[uint64]L)
	s.pendingLowLeafIndex = make(map[string]uint64)
	s.pendingMeta = nil
	s.dirty = false
}
