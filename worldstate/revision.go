package worldstate

import "github.com/ytrtdfkgf/merkle-worldstate/errs"

type revisionKind int

const (
	revCommitted revisionKind = iota
	revUncommitted
	revHistoricalBlock
)

// Revision selects which view of a tree's state an operation observes.
type Revision struct {
	kind  revisionKind
	block uint64
}

// Committed observes the most recent successful commit.
func Committed() Revision { return Revision{kind: revCommitted} }

// Uncommitted observes the tree's overlay, including any writes not yet
// committed.
func Uncommitted() Revision { return Revision{kind: revUncommitted} }

// HistoricalBlock names a specific past block number. No block index is
// persisted by this engine, so every HistoricalBlock revision is
// currently rejected with InvalidRevision.
func HistoricalBlock(n uint64) Revision { return Revision{kind: revHistoricalBlock, block: n} }

func (r Revision) includeUncommitted() (bool, error) {
	switch r.kind {
	case revCommitted:
		return false, nil
	case revUncommitted:
		return true, nil
	default:
		return false, errs.ErrInvalidRevision
	}
}
