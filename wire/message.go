// Package wire implements the message dispatcher (C8) and the
// asynchronous op runner (C9): a length-prefixed binary framing codec,
// RLP-encoded request/response bodies, a registry mapping message
// types to engine calls, and a worker-pool-backed runner that resolves
// a per-request future once its handler completes.
package wire

// Header is the common prefix of every framed request.
type Header struct {
	RequestID uint64
	MsgType   uint32
}

// Message type tags, matching the wire protocol table.
const (
	MsgGetTreeInfo       uint32 = 1
	MsgGetStateReference uint32 = 2
	MsgFindLeafIndex     uint32 = 3
	MsgGetLeafValue      uint32 = 4
	MsgGetLeafPreimage   uint32 = 5
	MsgGetSiblingPath    uint32 = 6
	MsgUpdateArchive     uint32 = 7
	MsgUpdatePublicData  uint32 = 8
	MsgAppendLeaves      uint32 = 9
	MsgBatchInsert       uint32 = 10
	MsgSyncBlock         uint32 = 11
	MsgCommit            uint32 = 12
	MsgRollback          uint32 = 13
)

// WireRevision is the RLP-safe encoding of a Revision selector. Plain
// RLP has no signed-integer representation, so the {-1, 0, n>0} scheme
// described for the wire protocol is carried here as an explicit kind
// tag instead of a literal negative integer; Kind 0/1/2 mean
// Committed/Uncommitted/HistoricalBlock respectively, in that order,
// matching fromWireRevision in handlers.go.
type WireRevision struct {
	Kind  uint8
	Block uint64
}

const (
	wireRevisionCommitted uint8 = iota
	wireRevisionUncommitted
	wireRevisionHistoricalBlock
)

// TreeInfoRequest/Response back MsgGetTreeInfo.
type TreeInfoRequest struct {
	TreeId   uint32
	Revision WireRevision
}

type TreeInfoResponse struct {
	TreeId uint32
	Root   []byte
	Size   uint64
	Depth  uint32
}

// StateReferenceRequest/Response back MsgGetStateReference.
type StateReferenceRequest struct {
	Revision WireRevision
}

type StateRefEntry struct {
	TreeId uint32
	Root   []byte
	Size   uint64
}

type StateReferenceResponse struct {
	Refs []StateRefEntry
}

// FindLeafIndexRequest/Response back MsgFindLeafIndex.
type FindLeafIndexRequest struct {
	TreeId     uint32
	Revision   WireRevision
	Value      []byte
	FromIndex  uint64
}

type FindLeafIndexResponse struct {
	Found bool
	Index uint64
}

// GetLeafValueRequest/Response back MsgGetLeafValue.
type GetLeafValueRequest struct {
	TreeId   uint32
	Revision WireRevision
	Index    uint64
}

type GetLeafValueResponse struct {
	Found bool
	Value []byte
}

// IndexedLeafWire is the wire form of an indexed tree's stored leaf.
type IndexedLeafWire struct {
	Key       []byte
	Payload   []byte
	NextIndex uint64
	NextValue []byte
}

// GetLeafPreimageRequest/Response back MsgGetLeafPreimage.
type GetLeafPreimageRequest struct {
	TreeId   uint32
	Revision WireRevision
	Index    uint64
}

type GetLeafPreimageResponse struct {
	Found bool
	Leaf  IndexedLeafWire
}

// GetSiblingPathRequest/Response back MsgGetSiblingPath.
type GetSiblingPathRequest struct {
	TreeId   uint32
	Revision WireRevision
	Index    uint64
}

type GetSiblingPathResponse struct {
	Path [][]byte
}

// UpdateArchiveRequest backs MsgUpdateArchive: appends block_hash as the
// archive tree's next leaf outside of a full sync_block call.
type UpdateArchiveRequest struct {
	BlockHash []byte
}

// IndexedValueWire is the wire form of a value being inserted into an
// indexed tree: Key is the nullifier value or the public-data slot;
// Payload is only meaningful for public-data (the slot's new value).
type IndexedValueWire struct {
	Key     []byte
	Payload []byte
}

// UpdatePublicDataRequest backs MsgUpdatePublicData.
type UpdatePublicDataRequest struct {
	Leaf IndexedValueWire
}

// AppendLeavesRequest backs MsgAppendLeaves.
type AppendLeavesRequest struct {
	TreeId uint32
	Leaves [][]byte
}

// BatchInsertRequest/Response back MsgBatchInsert.
type BatchInsertRequest struct {
	TreeId uint32
	Leaves []IndexedValueWire
}

type LowLeafWitnessWire struct {
	Index                  uint64
	LeafBeforeModification IndexedLeafWire
}

type SortedLeafWire struct {
	Value     IndexedValueWire
	OrigIndex uint64
}

type BatchInsertResponse struct {
	Witnesses    []LowLeafWitnessWire
	SortedLeaves []SortedLeafWire
}

// SyncBlockRequest backs MsgSyncBlock.
type SyncBlockRequest struct {
	ExpectedStateRefs []StateRefEntry
	BlockHash         []byte
	NewNoteHashes     [][]byte
	NewL1ToL2Msgs     [][]byte
	NewNullifiers     []IndexedValueWire
	NewPublicWrites   []IndexedValueWire
}

// CommitRequest and RollbackRequest back MsgCommit and MsgRollback;
// both bodies are empty.
type CommitRequest struct{}
type RollbackRequest struct{}

// ResponseEnvelope is what every dispatched request ultimately encodes
// to: either a handler's payload, or an error message bound to the
// request that produced it.
type ResponseEnvelope struct {
	RequestID    uint64
	OK           bool
	Payload      []byte
	ErrorMessage string
}
