package worldstate

// TreeId names one of the five trees the engine owns. Values match the
// wire encoding: 0=NULLIFIER, 1=NOTE_HASH, 2=PUBLIC_DATA,
// 3=L1_TO_L2_MESSAGE, 4=ARCHIVE.
type TreeId uint32

const (
	Nullifier TreeId = iota
	NoteHash
	PublicData
	L1ToL2Message
	Archive
)

func (id TreeId) String() string {
	switch id {
	case Nullifier:
		return "nullifier"
	case NoteHash:
		return "note_hash"
	case PublicData:
		return "public_data"
	case L1ToL2Message:
		return "l1_to_l2_message"
	case Archive:
		return "archive"
	default:
		return "unknown_tree"
	}
}

// Depth constants are fixed per tree kind.
const (
	NullifierDepth     = 20
	NoteHashDepth      = 32
	PublicDataDepth    = 40
	L1ToL2MessageDepth = 16
	ArchiveDepth       = 16
)
