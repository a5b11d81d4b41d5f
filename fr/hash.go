package fr

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// perm2 is the width-2 Poseidon2 permutation shared by every HashPair call.
// Round constants are fixed at init time and never mutated, so the
// permutation is safe for concurrent use by many worker-pool goroutines.
var perm2 = poseidon2.NewPermutation(2 /* t */, 6 /* rF */, 50 /* rP */)

// HashPair is the pure two-to-one hash C1 exposes to every tree. It folds
// the two field elements through a Merkle-Damgard chain over the Poseidon2
// permutation; the result depends on the order of a and b.
func HashPair(a, b Element) Element {
	var cv Element
	for _, m := range [2]Element{a, b} {
		st := [2]Element{cv, m}
		if err := perm2.Permutation(st[:]); err != nil {
			// the permutation only fails on malformed state slices, which
			// cannot happen with a fixed-size local array.
			panic(err)
		}
		cv.Add(&st[1], &m)
	}
	return cv
}

// ZeroHashes precomputes zero_hash(l) for every level distance from the
// leaf layer of a tree, shared across all trees since zero_hash only
// depends on how many levels separate a node from the leaves.
type ZeroHashes struct {
	// byDistance[d] is zero_hash for a node d levels above the leaf layer.
	byDistance []Element
}

// NewZeroHashes precomputes the zero-subtree hashes for trees up to
// maxDepth levels deep.
func NewZeroHashes(maxDepth uint32) *ZeroHashes {
	byDistance := make([]Element, maxDepth+1)
	byDistance[0] = Zero()
	for d := uint32(1); d <= maxDepth; d++ {
		byDistance[d] = HashPair(byDistance[d-1], byDistance[d-1])
	}
	return &ZeroHashes{byDistance: byDistance}
}

// At returns zero_hash(level) for a tree of the given depth.
func (z *ZeroHashes) At(depth, level uint32) Element {
	return z.byDistance[depth-level]
}
