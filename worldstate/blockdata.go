package worldstate

import (
	"github.com/ytrtdfkgf/merkle-worldstate/fr"
	"github.com/ytrtdfkgf/merkle-worldstate/trees/indexed"
)

// StateRef is a tree's (root, size) pair at some revision.
type StateRef struct {
	Root fr.Element
	Size uint64
}

// TreeInfo is the full descriptor SyncBlock's caller and GetTreeInfo
// return for one tree.
type TreeInfo struct {
	Id    TreeId
	Root  fr.Element
	Size  uint64
	Depth uint32
}

// BlockData is the unit SyncBlock applies atomically across every tree.
type BlockData struct {
	ExpectedStateRefs map[TreeId]StateRef
	BlockHash         fr.Element
	NewNoteHashes     []fr.Element
	NewL1ToL2Msgs     []fr.Element
	NewNullifiers     []indexed.LeafValue
	NewPublicWrites   []indexed.LeafValue
}
