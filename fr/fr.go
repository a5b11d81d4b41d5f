// Package fr provides the field element type shared by every tree in the
// world state, and the pure two-to-one hash used to build Merkle roots.
package fr

import (
	"math/big"

	bn254fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Size is the on-disk width of a canonical field element.
const Size = 32

// Element is a 254-bit integer modulo the BN254 scalar field order.
type Element = bn254fr.Element

// Zero returns the canonical zero element.
func Zero() Element {
	var z Element
	return z
}

// FromUint64 lifts a small integer into the field.
func FromUint64(v uint64) Element {
	var z Element
	z.SetUint64(v)
	return z
}

// FromBigInt reduces an arbitrary big integer into the field.
func FromBigInt(v *big.Int) Element {
	var z Element
	z.SetBigInt(v)
	return z
}

// Equal reports whether a and b represent the same field element.
func Equal(a, b Element) bool {
	return a.Equal(&b)
}

// IsZero reports whether e is the canonical zero element.
func IsZero(e Element) bool {
	return e.IsZero()
}

// Cmp gives the big-integer lexicographic ordering of a and b, used for
// the indexed-tree sorted linked list and for batch descending-key sort.
func Cmp(a, b Element) int {
	return a.Cmp(&b)
}

// reverse flips the byte order of b in place and returns it.
func reverse(b []byte) []byte {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

// Bytes encodes e as the little-endian 32-byte representation mandated by
// the on-disk layout.
func Bytes(e Element) [Size]byte {
	be := e.Bytes()
	reverse(be[:])
	return be
}

// SetBytes decodes a little-endian 32-byte field element as written by
// Bytes. It rejects encodings that are not canonically reduced.
func SetBytes(b []byte) (Element, error) {
	var z Element
	buf := make([]byte, len(b))
	copy(buf, b)
	reverse(buf)
	if err := z.SetBytesCanonical(buf); err != nil {
		return z, err
	}
	return z, nil
}
