package fr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytesRoundTrip(t *testing.T) {
	vals := []Element{Zero(), FromUint64(1), FromUint64(42), FromUint64(1 << 40)}
	for _, v := range vals {
		encoded := Bytes(v)
		decoded, err := SetBytes(encoded[:])
		require.NoError(t, err)
		require.True(t, Equal(v, decoded))
	}
}

func TestHashPairOrderSensitive(t *testing.T) {
	a, b := FromUint64(1), FromUint64(2)
	require.False(t, Equal(HashPair(a, b), HashPair(b, a)))
}

func TestHashPairDeterministic(t *testing.T) {
	a, b := FromUint64(7), FromUint64(11)
	require.True(t, Equal(HashPair(a, b), HashPair(a, b)))
}

func TestZeroHashesChain(t *testing.T) {
	zh := NewZeroHashes(8)
	require.True(t, IsZero(zh.At(8, 8)))
	for level := uint32(0); level < 8; level++ {
		want := HashPair(zh.At(8, level+1), zh.At(8, level+1))
		require.True(t, Equal(want, zh.At(8, level)))
	}
}
