// Package worldstate is the World State engine (C7): it owns one
// instance of every configured tree, the worker pool they share, and
// the persistent environment they're all backed by, and it is the sole
// entry point the message dispatcher calls into.
package worldstate

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/ytrtdfkgf/merkle-worldstate/errs"
	"github.com/ytrtdfkgf/merkle-worldstate/fr"
	"github.com/ytrtdfkgf/merkle-worldstate/kv"
	"github.com/ytrtdfkgf/merkle-worldstate/metrics"
	"github.com/ytrtdfkgf/merkle-worldstate/pool"
	"github.com/ytrtdfkgf/merkle-worldstate/store"
	"github.com/ytrtdfkgf/merkle-worldstate/trees/appendonly"
	"github.com/ytrtdfkgf/merkle-worldstate/trees/indexed"
)

// Config configures engine construction. The data directory and KV
// backend choice live on the kv.Environment passed to New, not here.
type Config struct {
	WorkerThreads uint32
	// Metrics receives engine-level events. Defaults to metrics.Noop.
	Metrics metrics.Metrics
}

// treeHandle is the sum type Design Notes call for: exactly one of
// appendOnly or indexed is set, and every engine entry point dispatches
// on which.
type treeHandle struct {
	id         TreeId
	appendOnly *appendonly.Tree
	indexed    *indexed.Tree
}

func (h *treeHandle) meta(includeUncommitted bool) (fr.Element, uint64, error) {
	if h.appendOnly != nil {
		return h.appendOnly.Meta(includeUncommitted)
	}
	return h.indexed.Meta(includeUncommitted)
}

func (h *treeHandle) depth() uint32 {
	if h.appendOnly != nil {
		return h.appendOnly.Depth
	}
	return h.indexed.Depth
}

func (h *treeHandle) siblingPath(index uint64, includeUncommitted bool) ([]fr.Element, error) {
	if h.appendOnly != nil {
		return h.appendOnly.SiblingPath(index, includeUncommitted)
	}
	return h.indexed.SiblingPath(index, includeUncommitted)
}

func (h *treeHandle) commit() error {
	if h.appendOnly != nil {
		return h.appendOnly.Commit()
	}
	return h.indexed.Commit()
}

func (h *treeHandle) rollback() {
	if h.appendOnly != nil {
		h.appendOnly.Rollback()
		return
	}
	h.indexed.Rollback()
}

// Engine is the World State engine. One Engine exclusively owns every
// tree instance built against env; trees exclusively own their cached
// stores, and stores share env's read access while holding an exclusive
// named database.
type Engine struct {
	env     kv.Environment
	pool    *pool.Pool
	trees   map[TreeId]*treeHandle
	metrics metrics.Metrics

	// syncMu gives SyncBlock exclusive access to every tree at once.
	// Every other write path (Commit, Rollback, AppendLeaves,
	// AppendIndexedLeaves, UpdatePublicData) takes it as a reader: the
	// dispatcher runs handlers concurrently with no serialization of its
	// own, so without this, one of those calls could land between two of
	// SyncBlock's per-tree writes and commit a tree SyncBlock is still
	// mid-way through mutating, or a rollback one's already flushed.
	syncMu sync.RWMutex
}

// New builds every configured tree against env and starts the shared
// worker pool. Indexed trees are prefilled with their sentinel leaves
// and committed immediately if they're empty.
func New(cfg Config, env kv.Environment) (*Engine, error) {
	workers, err := pool.New(int(cfg.WorkerThreads))
	if err != nil {
		return nil, errors.Wrap(err, "worldstate: start worker pool")
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.Noop
	}

	zero := fr.NewZeroHashes(PublicDataDepth)
	e := &Engine{env: env, pool: workers, trees: make(map[TreeId]*treeHandle, 5), metrics: m}

	noteHashStore := store.New[appendonly.Leaf](env, NoteHash.String(), appendonly.Decode, zero, NoteHashDepth)
	e.trees[NoteHash] = &treeHandle{id: NoteHash, appendOnly: appendonly.New(NoteHash.String(), NoteHashDepth, noteHashStore, zero, workers)}

	l1Store := store.New[appendonly.Leaf](env, L1ToL2Message.String(), appendonly.Decode, zero, L1ToL2MessageDepth)
	e.trees[L1ToL2Message] = &treeHandle{id: L1ToL2Message, appendOnly: appendonly.New(L1ToL2Message.String(), L1ToL2MessageDepth, l1Store, zero, workers)}

	archiveStore := store.New[appendonly.Leaf](env, Archive.String(), appendonly.Decode, zero, ArchiveDepth)
	e.trees[Archive] = &treeHandle{id: Archive, appendOnly: appendonly.New(Archive.String(), ArchiveDepth, archiveStore, zero, workers)}

	nullifierStore := store.New[indexed.IndexedLeaf](env, Nullifier.String(), indexed.Decode, zero, NullifierDepth)
	nullifierTree, err := indexed.New(Nullifier.String(), NullifierDepth, nullifierStore, zero, workers, indexed.Nullifier)
	if err != nil {
		return nil, errors.Wrap(err, "worldstate: build nullifier tree")
	}
	e.trees[Nullifier] = &treeHandle{id: Nullifier, indexed: nullifierTree}

	publicDataStore := store.New[indexed.IndexedLeaf](env, PublicData.String(), indexed.Decode, zero, PublicDataDepth)
	publicDataTree, err := indexed.New(PublicData.String(), PublicDataDepth, publicDataStore, zero, workers, indexed.PublicData)
	if err != nil {
		return nil, errors.Wrap(err, "worldstate: build public-data tree")
	}
	e.trees[PublicData] = &treeHandle{id: PublicData, indexed: publicDataTree}

	return e, nil
}

func (e *Engine) handle(id TreeId) (*treeHandle, error) {
	h, ok := e.trees[id]
	if !ok {
		return nil, errors.Errorf("worldstate: unknown tree id %d", id)
	}
	return h, nil
}

// Close releases the shared worker pool. The KV environment outlives
// the engine and is the caller's to close.
func (e *Engine) Close() {
	e.pool.Release()
}

// Pool returns the worker pool every tree shares, so a caller driving
// dispatch (the async op runner) schedules its own per-request work on
// the same C6 instance instead of standing up a second one.
func (e *Engine) Pool() *pool.Pool {
	return e.pool
}

func (e *Engine) GetTreeInfo(id TreeId, rev Revision) (TreeInfo, error) {
	h, err := e.handle(id)
	if err != nil {
		return TreeInfo{}, err
	}
	includeUncommitted, err := rev.includeUncommitted()
	if err != nil {
		return TreeInfo{}, err
	}
	root, size, err := h.meta(includeUncommitted)
	if err != nil {
		return TreeInfo{}, err
	}
	return TreeInfo{Id: id, Root: root, Size: size, Depth: h.depth()}, nil
}

func (e *Engine) GetStateReference(rev Revision) (map[TreeId]StateRef, error) {
	includeUncommitted, err := rev.includeUncommitted()
	if err != nil {
		return nil, err
	}
	out := make(map[TreeId]StateRef, len(e.trees))
	for id, h := range e.trees {
		root, size, err := h.meta(includeUncommitted)
		if err != nil {
			return nil, err
		}
		out[id] = StateRef{Root: root, Size: size}
	}
	return out, nil
}

func (e *Engine) SiblingPath(id TreeId, index uint64, rev Revision) ([]fr.Element, error) {
	h, err := e.handle(id)
	if err != nil {
		return nil, err
	}
	includeUncommitted, err := rev.includeUncommitted()
	if err != nil {
		return nil, err
	}
	return h.siblingPath(index, includeUncommitted)
}

// GetLeaf returns the leaf "value" at index: the raw field element for
// an append-only tree, or the indexed leaf's key (the nullifier value,
// or the public-data slot) for an indexed tree. Callers after the full
// preimage — including the linked-list pointers — want GetIndexedLeaf.
func (e *Engine) GetLeaf(id TreeId, index uint64, rev Revision) (fr.Element, bool, error) {
	h, err := e.handle(id)
	if err != nil {
		return fr.Zero(), false, err
	}
	includeUncommitted, err := rev.includeUncommitted()
	if err != nil {
		return fr.Zero(), false, err
	}
	if h.appendOnly != nil {
		return h.appendOnly.GetLeaf(index, includeUncommitted)
	}
	leaf, ok, err := h.indexed.GetIndexedLeaf(index, includeUncommitted)
	if err != nil || !ok {
		return fr.Zero(), false, err
	}
	return leaf.Key, true, nil
}

func (e *Engine) GetIndexedLeaf(id TreeId, index uint64, rev Revision) (indexed.IndexedLeaf, bool, error) {
	h, err := e.handle(id)
	if err != nil {
		return indexed.IndexedLeaf{}, false, err
	}
	if h.indexed == nil {
		return indexed.IndexedLeaf{}, false, errors.Errorf("worldstate: tree %s is not an indexed tree", id)
	}
	includeUncommitted, err := rev.includeUncommitted()
	if err != nil {
		return indexed.IndexedLeaf{}, false, err
	}
	return h.indexed.GetIndexedLeaf(index, includeUncommitted)
}

func (e *Engine) FindLeafIndex(id TreeId, value fr.Element, fromIndex uint64, rev Revision) (uint64, bool, error) {
	h, err := e.handle(id)
	if err != nil {
		return 0, false, err
	}
	includeUncommitted, err := rev.includeUncommitted()
	if err != nil {
		return 0, false, err
	}
	if h.appendOnly != nil {
		return h.appendOnly.FindLeaf(value, fromIndex, includeUncommitted)
	}
	return h.indexed.FindIndex(value, includeUncommitted)
}

func (e *Engine) FindLowLeaf(id TreeId, key fr.Element, rev Revision) (indexed.IndexedLeaf, error) {
	h, err := e.handle(id)
	if err != nil {
		return indexed.IndexedLeaf{}, err
	}
	if h.indexed == nil {
		return indexed.IndexedLeaf{}, errors.Errorf("worldstate: tree %s is not an indexed tree", id)
	}
	includeUncommitted, err := rev.includeUncommitted()
	if err != nil {
		return indexed.IndexedLeaf{}, err
	}
	return h.indexed.FindLowLeaf(key, includeUncommitted)
}

func (e *Engine) AppendLeaves(id TreeId, leaves []fr.Element) (fr.Element, uint64, error) {
	e.syncMu.RLock()
	defer e.syncMu.RUnlock()

	h, err := e.handle(id)
	if err != nil {
		return fr.Zero(), 0, err
	}
	if h.appendOnly == nil {
		return fr.Zero(), 0, errors.Errorf("worldstate: tree %s is not an append-only tree", id)
	}
	root, size, err := h.appendOnly.Append(leaves)
	if err == nil {
		e.metrics.TreeSize(uint32(id), size)
	}
	return root, size, err
}

func (e *Engine) AppendIndexedLeaves(id TreeId, values []indexed.LeafValue) (indexed.BatchResult, error) {
	e.syncMu.RLock()
	defer e.syncMu.RUnlock()

	h, err := e.handle(id)
	if err != nil {
		return indexed.BatchResult{}, err
	}
	if h.indexed == nil {
		return indexed.BatchResult{}, errors.Errorf("worldstate: tree %s is not an indexed tree", id)
	}
	result, err := h.indexed.BatchInsert(values)
	if err == nil {
		if _, size, metaErr := h.indexed.Meta(true); metaErr == nil {
			e.metrics.TreeSize(uint32(id), size)
		}
	}
	return result, err
}

func (e *Engine) UpdatePublicData(value indexed.PublicDataValue) (indexed.LowLeafWitness, error) {
	e.syncMu.RLock()
	defer e.syncMu.RUnlock()

	h, err := e.handle(PublicData)
	if err != nil {
		return indexed.LowLeafWitness{}, err
	}
	witness, err := h.indexed.UpdatePublic(value)
	if err == nil {
		if _, size, metaErr := h.indexed.Meta(true); metaErr == nil {
			e.metrics.TreeSize(uint32(PublicData), size)
		}
	}
	return witness, err
}

// Commit flushes every tree's overlay. A failure partway through leaves
// earlier trees committed and the failing tree's overlay preserved,
// matching C3's per-tree commit contract; SyncBlock is the operation
// that needs — and provides — all-or-nothing semantics across trees.
func (e *Engine) Commit() error {
	e.syncMu.RLock()
	defer e.syncMu.RUnlock()
	return e.commitLocked()
}

func (e *Engine) commitLocked() error {
	for _, h := range e.trees {
		if err := h.commit(); err != nil {
			return err
		}
	}
	e.metrics.Commit()
	return nil
}

// Rollback discards every tree's overlay.
func (e *Engine) Rollback() {
	e.syncMu.RLock()
	defer e.syncMu.RUnlock()
	e.rollbackLocked()
}

func (e *Engine) rollbackLocked() {
	for _, h := range e.trees {
		h.rollback()
	}
	e.metrics.Rollback()
}

// SyncBlock applies one block across every tree atomically: on any
// failure, including a post-state mismatch against
// block.ExpectedStateRefs, every tree is rolled back to its state
// immediately before the call and the block is not committed.
func (e *Engine) SyncBlock(block BlockData) error {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	rollbackAll := func() {
		e.rollbackLocked()
		e.metrics.SyncBlockResult(false)
	}

	if len(block.NewNoteHashes) > 0 {
		if _, _, err := e.trees[NoteHash].appendOnly.Append(block.NewNoteHashes); err != nil {
			rollbackAll()
			return errors.Wrap(err, "sync_block: apply note hashes")
		}
	}
	if len(block.NewL1ToL2Msgs) > 0 {
		if _, _, err := e.trees[L1ToL2Message].appendOnly.Append(block.NewL1ToL2Msgs); err != nil {
			rollbackAll()
			return errors.Wrap(err, "sync_block: apply l1-to-l2 messages")
		}
	}
	if len(block.NewNullifiers) > 0 {
		if _, err := e.trees[Nullifier].indexed.BatchInsert(block.NewNullifiers); err != nil {
			rollbackAll()
			return errors.Wrap(err, "sync_block: apply nullifiers")
		}
	}
	for _, write := range block.NewPublicWrites {
		if _, err := e.trees[PublicData].indexed.Insert(write); err != nil {
			rollbackAll()
			return errors.Wrap(err, "sync_block: apply public write")
		}
	}
	if _, _, err := e.trees[Archive].appendOnly.Append([]fr.Element{block.BlockHash}); err != nil {
		rollbackAll()
		return errors.Wrap(err, "sync_block: append archive entry")
	}

	for id, want := range block.ExpectedStateRefs {
		h, err := e.handle(id)
		if err != nil {
			rollbackAll()
			return err
		}
		root, size, err := h.meta(true)
		if err != nil {
			rollbackAll()
			return errors.Wrap(err, "sync_block: read post-state")
		}
		if !fr.Equal(root, want.Root) || size != want.Size {
			rollbackAll()
			return errors.Wrapf(errs.ErrBlockStateMismatch, "tree %s", id)
		}
	}

	if err := e.commitLocked(); err != nil {
		rollbackAll()
		return errors.Wrap(err, "sync_block: commit")
	}
	e.metrics.SyncBlockResult(true)
	return nil
}
