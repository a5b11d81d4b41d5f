package indexed

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ytrtdfkgf/merkle-worldstate/errs"
	"github.com/ytrtdfkgf/merkle-worldstate/fr"
	"github.com/ytrtdfkgf/merkle-worldstate/kv/memory"
	"github.com/ytrtdfkgf/merkle-worldstate/pool"
	"github.com/ytrtdfkgf/merkle-worldstate/store"
)

const testDepth = 5

func newTestTree(t *testing.T, kind Kind, workers *pool.Pool) *Tree {
	t.Helper()
	env := memory.New()
	zero := fr.NewZeroHashes(testDepth)
	st := store.New[IndexedLeaf](env, "idx", Decode, zero, testDepth)
	tr, err := New("idx", testDepth, st, zero, workers, kind)
	require.NoError(t, err)
	return tr
}

func TestPrefillSentinelsFormACycle(t *testing.T) {
	tr := newTestTree(t, Nullifier, nil)

	head, ok, err := tr.GetIndexedLeaf(0, false)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, fr.IsZero(head.Key))
	require.Equal(t, uint64(1), head.NextIndex)
	require.True(t, fr.Equal(head.NextValue, fr.FromUint64(1)))

	tail, ok, err := tr.GetIndexedLeaf(1, false)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, fr.Equal(tail.Key, fr.FromUint64(1)))
	require.Equal(t, uint64(0), tail.NextIndex)
	require.True(t, fr.IsZero(tail.NextValue))

	_, size, err := tr.Meta(false)
	require.NoError(t, err)
	require.Equal(t, uint64(2), size)
}

// TestNullifierPredecessorThenInsert is scenario S2.
func TestNullifierPredecessorThenInsert(t *testing.T) {
	tr := newTestTree(t, Nullifier, nil)

	low, err := tr.FindLowLeaf(fr.FromUint64(42), true)
	require.NoError(t, err)
	require.True(t, fr.Equal(low.Key, fr.FromUint64(1)))
	require.Equal(t, uint64(0), low.NextIndex)
	require.True(t, fr.IsZero(low.NextValue))

	witness, err := tr.Insert(NullifierValue{Value: fr.FromUint64(42)})
	require.NoError(t, err)
	require.Equal(t, uint64(1), witness.Index)

	newLeaf, ok, err := tr.GetIndexedLeaf(2, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, fr.Equal(newLeaf.Key, fr.FromUint64(42)))
	require.Equal(t, uint64(0), newLeaf.NextIndex)
	require.True(t, fr.IsZero(newLeaf.NextValue))

	updatedLow, ok, err := tr.GetIndexedLeaf(1, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), updatedLow.NextIndex)
	require.True(t, fr.Equal(updatedLow.NextValue, fr.FromUint64(42)))

	low43, err := tr.FindLowLeaf(fr.FromUint64(43), true)
	require.NoError(t, err)
	require.True(t, fr.Equal(low43.Key, fr.FromUint64(42)))
	require.Equal(t, uint64(0), low43.NextIndex)
}

// TestNullifierDuplicateRejected is scenario S3.
func TestNullifierDuplicateRejected(t *testing.T) {
	tr := newTestTree(t, Nullifier, nil)

	_, err := tr.Insert(NullifierValue{Value: fr.FromUint64(42)})
	require.NoError(t, err)

	rootBefore, sizeBefore, err := tr.Meta(true)
	require.NoError(t, err)

	_, err = tr.Insert(NullifierValue{Value: fr.FromUint64(42)})
	require.ErrorIs(t, err, errs.ErrDuplicateKey)

	rootAfter, sizeAfter, err := tr.Meta(true)
	require.NoError(t, err)
	require.Equal(t, sizeBefore, sizeAfter)
	require.True(t, fr.Equal(rootBefore, rootAfter))
}

// TestPublicDataUpdateInPlace is scenario S4.
func TestPublicDataUpdateInPlace(t *testing.T) {
	tr := newTestTree(t, PublicData, nil)

	_, err := tr.Insert(PublicDataValue{Slot: fr.FromUint64(42), Value: fr.Zero()})
	require.NoError(t, err)

	_, sizeAfterInsert, err := tr.Meta(true)
	require.NoError(t, err)
	require.Equal(t, uint64(3), sizeAfterInsert)

	rootBefore, _, err := tr.Meta(true)
	require.NoError(t, err)

	witness, err := tr.UpdatePublic(PublicDataValue{Slot: fr.FromUint64(42), Value: fr.FromUint64(1)})
	require.NoError(t, err)
	require.Equal(t, uint64(2), witness.Index)

	rootAfter, sizeAfter, err := tr.Meta(true)
	require.NoError(t, err)
	require.Equal(t, sizeAfterInsert, sizeAfter)
	require.False(t, fr.Equal(rootBefore, rootAfter))

	leaf, ok, err := tr.GetIndexedLeaf(2, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, fr.Equal(leaf.Payload, fr.FromUint64(1)))
	require.True(t, fr.Equal(leaf.Key, fr.FromUint64(42)))
}

// TestBatchInsertWitnessOrder is scenario S5.
func TestBatchInsertWitnessOrder(t *testing.T) {
	tr := newTestTree(t, Nullifier, nil)

	result, err := tr.BatchInsert([]LeafValue{
		NullifierValue{Value: fr.FromUint64(50)},
		NullifierValue{Value: fr.FromUint64(42)},
		NullifierValue{Value: fr.FromUint64(80)},
	})
	require.NoError(t, err)
	require.Len(t, result.Witnesses, 3)

	require.Equal(t, uint64(1), result.Witnesses[0].Index)
	require.Equal(t, uint64(0), result.Witnesses[0].LeafBeforeModification.NextIndex)
	require.True(t, fr.IsZero(result.Witnesses[0].LeafBeforeModification.NextValue))

	require.Equal(t, uint64(1), result.Witnesses[1].Index)
	require.Equal(t, uint64(4), result.Witnesses[1].LeafBeforeModification.NextIndex)
	require.True(t, fr.Equal(result.Witnesses[1].LeafBeforeModification.NextValue, fr.FromUint64(80)))

	require.Equal(t, uint64(1), result.Witnesses[2].Index)
	require.Equal(t, uint64(2), result.Witnesses[2].LeafBeforeModification.NextIndex)
	require.True(t, fr.Equal(result.Witnesses[2].LeafBeforeModification.NextValue, fr.FromUint64(50)))

	require.Len(t, result.SortedLeaves, 3)
	wantOrigIndex := []int{2, 0, 1}
	wantKey := []uint64{80, 50, 42}
	for i, sl := range result.SortedLeaves {
		require.Equal(t, wantOrigIndex[i], sl.OrigIndex)
		require.True(t, fr.Equal(sl.Value.Key(), fr.FromUint64(wantKey[i])))
	}
}

// TestBatchInsertMatchesSequentialInsert is invariant #6.
func TestBatchInsertMatchesSequentialInsert(t *testing.T) {
	values := []LeafValue{
		NullifierValue{Value: fr.FromUint64(50)},
		NullifierValue{Value: fr.FromUint64(42)},
		NullifierValue{Value: fr.FromUint64(80)},
		NullifierValue{Value: fr.FromUint64(7)},
	}

	batched := newTestTree(t, Nullifier, nil)
	_, err := batched.BatchInsert(values)
	require.NoError(t, err)
	batchedRoot, batchedSize, err := batched.Meta(true)
	require.NoError(t, err)

	sequential := newTestTree(t, Nullifier, nil)
	for _, v := range values {
		_, err := sequential.Insert(v)
		require.NoError(t, err)
	}
	sequentialRoot, sequentialSize, err := sequential.Meta(true)
	require.NoError(t, err)

	require.Equal(t, sequentialSize, batchedSize)
	require.True(t, fr.Equal(sequentialRoot, batchedRoot))
}

// TestSiblingPathRehashesToRoot is invariant #2, specialized to indexed
// leaf hashing.
func TestSiblingPathRehashesToRoot(t *testing.T) {
	tr := newTestTree(t, Nullifier, nil)
	_, err := tr.Insert(NullifierValue{Value: fr.FromUint64(42)})
	require.NoError(t, err)

	root, _, err := tr.Meta(true)
	require.NoError(t, err)

	for idx := uint64(0); idx < 3; idx++ {
		leaf, ok, err := tr.GetIndexedLeaf(idx, true)
		require.NoError(t, err)
		require.True(t, ok)

		path, err := tr.SiblingPath(idx, true)
		require.NoError(t, err)
		require.Len(t, path, testDepth)

		cur := leaf.Hash()
		pos := idx
		for _, sibling := range path {
			if pos%2 == 0 {
				cur = fr.HashPair(cur, sibling)
			} else {
				cur = fr.HashPair(sibling, cur)
			}
			pos /= 2
		}
		require.True(t, fr.Equal(root, cur), "leaf %d sibling path does not rehash to root", idx)
	}
}

// TestRollbackAfterCommitHasNoEffect is invariant #1.
func TestRollbackAfterCommitHasNoEffect(t *testing.T) {
	tr := newTestTree(t, Nullifier, nil)
	_, err := tr.Insert(NullifierValue{Value: fr.FromUint64(42)})
	require.NoError(t, err)
	require.NoError(t, tr.Commit())

	committedRoot, committedSize, err := tr.Meta(false)
	require.NoError(t, err)

	tr.Rollback()

	rootAfter, sizeAfter, err := tr.Meta(false)
	require.NoError(t, err)
	require.Equal(t, committedSize, sizeAfter)
	require.True(t, fr.Equal(committedRoot, rootAfter))
}
