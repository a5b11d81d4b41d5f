package appendonly

import (
	"github.com/ytrtdfkgf/merkle-worldstate/fr"
)

// Leaf is a single field element. Leaves are addressed by insertion
// order and duplicates are permitted.
type Leaf struct {
	Value fr.Element
}

func (l Leaf) Encode() []byte {
	b := fr.Bytes(l.Value)
	return b[:]
}

// Decode parses a persisted append-only leaf blob.
func Decode(b []byte) (Leaf, error) {
	v, err := fr.SetBytes(b)
	if err != nil {
		return Leaf{}, err
	}
	return Leaf{Value: v}, nil
}
