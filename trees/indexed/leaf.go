// Package indexed implements the indexed Merkle tree (C5): a fixed-depth
// tree whose live leaves form a sorted singly-linked list over their
// keys, supporting predecessor (low-leaf) lookups and batch insertion.
package indexed

import (
	"encoding/binary"

	"github.com/ytrtdfkgf/merkle-worldstate/fr"
)

// LeafValue is a value being written into an indexed tree: either a
// nullifier or a public-data slot/value pair. Key identifies the leaf's
// position in the sorted linked list; Payload is the data hashed
// alongside it.
type LeafValue interface {
	Key() fr.Element
	Payload() fr.Element
}

// NullifierValue is a bare field element; its key and its payload are
// the same value.
type NullifierValue struct {
	Value fr.Element
}

func (n NullifierValue) Key() fr.Element     { return n.Value }
func (n NullifierValue) Payload() fr.Element { return n.Value }

// PublicDataValue pairs a storage slot with the value written to it.
// Slot is unique across live leaves and never changes once assigned to
// an index; Value is mutated in place on update.
type PublicDataValue struct {
	Slot  fr.Element
	Value fr.Element
}

func (p PublicDataValue) Key() fr.Element     { return p.Slot }
func (p PublicDataValue) Payload() fr.Element { return p.Value }

// IndexedLeaf is the persisted record backing one position of an
// indexed tree: a value plus the forward link to the next leaf in
// ascending-key order. NextIndex == 0 && NextValue == 0 marks the tail,
// which wraps to the sentinel head (whose own key is 0).
type IndexedLeaf struct {
	Key       fr.Element
	Payload   fr.Element
	NextIndex uint64
	NextValue fr.Element
}

// Hash folds the leaf's four fields pairwise: H(H(key,payload),
// H(next_index,next_value)). This is the one deterministic choice this
// package commits to for the open-ended three-field fold the indexed
// leaf requires; sibling_path and every writer use this same function.
func (l IndexedLeaf) Hash() fr.Element {
	left := fr.HashPair(l.Key, l.Payload)
	right := fr.HashPair(fr.FromUint64(l.NextIndex), l.NextValue)
	return fr.HashPair(left, right)
}

// Encode packs the leaf as key(32B LE) || payload(32B LE) ||
// next_index(8B LE) || next_value(32B LE).
func (l IndexedLeaf) Encode() []byte {
	buf := make([]byte, fr.Size*3+8)
	key := fr.Bytes(l.Key)
	copy(buf, key[:])
	payload := fr.Bytes(l.Payload)
	copy(buf[fr.Size:], payload[:])
	binary.LittleEndian.PutUint64(buf[fr.Size*2:], l.NextIndex)
	next := fr.Bytes(l.NextValue)
	copy(buf[fr.Size*2+8:], next[:])
	return buf
}

// Decode parses a persisted indexed-leaf blob.
func Decode(b []byte) (IndexedLeaf, error) {
	key, err := fr.SetBytes(b[:fr.Size])
	if err != nil {
		return IndexedLeaf{}, err
	}
	payload, err := fr.SetBytes(b[fr.Size : fr.Size*2])
	if err != nil {
		return IndexedLeaf{}, err
	}
	nextIndex := binary.LittleEndian.Uint64(b[fr.Size*2 : fr.Size*2+8])
	nextValue, err := fr.SetBytes(b[fr.Size*2+8:])
	if err != nil {
		return IndexedLeaf{}, err
	}
	return IndexedLeaf{Key: key, Payload: payload, NextIndex: nextIndex, NextValue: nextValue}, nil
}
