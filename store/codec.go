// Package store implements the cached tree store (C3): a per-tree
// overlay of uncommitted nodes, leaves, and metadata layered atop the
// persistent kv.Environment.
package store

import (
	"encoding/binary"

	fr "github.com/ytrtdfkgf/merkle-worldstate/fr"
)

const (
	metaKeyLiteral = "meta"
	nodeKeyPrefix  = "node:"
	leafKeyPrefix  = "leaf:"
	byKeyKeyPrefix = "by_key:"
)

func metaKey() []byte {
	return []byte(metaKeyLiteral)
}

func nodeKey(level uint32, index uint64) []byte {
	buf := make([]byte, len(nodeKeyPrefix)+4+8)
	n := copy(buf, nodeKeyPrefix)
	binary.BigEndian.PutUint32(buf[n:], level)
	binary.BigEndian.PutUint64(buf[n+4:], index)
	return buf
}

func leafKey(index uint64) []byte {
	buf := make([]byte, len(leafKeyPrefix)+8)
	n := copy(buf, leafKeyPrefix)
	binary.BigEndian.PutUint64(buf[n:], index)
	return buf
}

// byKeyKey packs the secondary index key for key. It deliberately does
// not use the on-disk little-endian fr encoding: this index must sort in
// numeric key order so a reverse-lower-bound seek finds the predecessor,
// and the field element's native big-endian canonical form is the one
// encoding that sorts lexicographically the same as it compares
// numerically.
func byKeyKey(key fr.Element) []byte {
	buf := make([]byte, len(byKeyKeyPrefix)+fr.Size)
	n := copy(buf, byKeyKeyPrefix)
	enc := key.Bytes()
	copy(buf[n:], enc[:])
	return buf
}

// byKeyLowerBound and byKeyUpperBound give the range of secondary-index
// keys for use with kv.OrderedSnapshot.SeekLastLE: every by_key entry
// sorts between the empty key and the target key's own entry, inclusive.
func byKeyLowerBound() []byte {
	return []byte(byKeyKeyPrefix)
}

func byKeyUpperBound(key fr.Element) []byte {
	return byKeyKey(key)
}

// decodeByKeyKey parses the key portion of a by_key entry back to the
// fr.Element it indexes.
func decodeByKeyKey(raw []byte) (fr.Element, error) {
	enc := raw[len(byKeyKeyPrefix):]
	var z fr.Element
	if err := z.SetBytesCanonical(enc); err != nil {
		return fr.Zero(), err
	}
	return z, nil
}

// encodeMeta packs {root: 32B LE, size: u64 LE}.
func encodeMeta(root fr.Element, size uint64) []byte {
	buf := make([]byte, fr.Size+8)
	enc := fr.Bytes(root)
	copy(buf, enc[:])
	binary.LittleEndian.PutUint64(buf[fr.Size:], size)
	return buf
}

func decodeMeta(b []byte) (fr.Element, uint64, error) {
	root, err := fr.SetBytes(b[:fr.Size])
	if err != nil {
		return fr.Zero(), 0, err
	}
	size := binary.LittleEndian.Uint64(b[fr.Size:])
	return root, size, nil
}

func encodeIndex(index uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, index)
	return buf
}

func decodeIndex(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
