package wire

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/ytrtdfkgf/merkle-worldstate/fr"
	"github.com/ytrtdfkgf/merkle-worldstate/trees/indexed"
	"github.com/ytrtdfkgf/merkle-worldstate/worldstate"
)

// RegisterEngineHandlers wires every message type in the protocol table
// to the corresponding call on e.
func RegisterEngineHandlers(d *Dispatcher, e *worldstate.Engine) {
	d.Handle(MsgGetTreeInfo, handleGetTreeInfo(e))
	d.Handle(MsgGetStateReference, handleGetStateReference(e))
	d.Handle(MsgFindLeafIndex, handleFindLeafIndex(e))
	d.Handle(MsgGetLeafValue, handleGetLeafValue(e))
	d.Handle(MsgGetLeafPreimage, handleGetLeafPreimage(e))
	d.Handle(MsgGetSiblingPath, handleGetSiblingPath(e))
	d.Handle(MsgUpdateArchive, handleUpdateArchive(e))
	d.Handle(MsgUpdatePublicData, handleUpdatePublicData(e))
	d.Handle(MsgAppendLeaves, handleAppendLeaves(e))
	d.Handle(MsgBatchInsert, handleBatchInsert(e))
	d.Handle(MsgSyncBlock, handleSyncBlock(e))
	d.Handle(MsgCommit, handleCommit(e))
	d.Handle(MsgRollback, handleRollback(e))
}

func fromWireRevision(w WireRevision) worldstate.Revision {
	switch w.Kind {
	case wireRevisionUncommitted:
		return worldstate.Uncommitted()
	case wireRevisionHistoricalBlock:
		return worldstate.HistoricalBlock(w.Block)
	default:
		return worldstate.Committed()
	}
}

func frFromBytes(b []byte) (fr.Element, error) {
	if len(b) == 0 {
		return fr.Zero(), nil
	}
	return fr.SetBytes(b)
}

func frToBytes(e fr.Element) []byte {
	b := fr.Bytes(e)
	return b[:]
}

func leafToWire(l indexed.IndexedLeaf) IndexedLeafWire {
	return IndexedLeafWire{
		Key:       frToBytes(l.Key),
		Payload:   frToBytes(l.Payload),
		NextIndex: l.NextIndex,
		NextValue: frToBytes(l.NextValue),
	}
}

// valueFromWire builds the LeafValue a tree of the given kind expects
// from the generic {key, payload} wire pair.
func valueFromWire(kind indexed.Kind, w IndexedValueWire) (indexed.LeafValue, error) {
	key, err := frFromBytes(w.Key)
	if err != nil {
		return nil, errors.Wrap(err, "wire: decode value key")
	}
	if kind == indexed.Nullifier {
		return indexed.NullifierValue{Value: key}, nil
	}
	payload, err := frFromBytes(w.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "wire: decode value payload")
	}
	return indexed.PublicDataValue{Slot: key, Value: payload}, nil
}

func witnessToWire(w indexed.LowLeafWitness) LowLeafWitnessWire {
	return LowLeafWitnessWire{Index: w.Index, LeafBeforeModification: leafToWire(w.LeafBeforeModification)}
}

func sortedLeafToWire(s indexed.SortedLeaf) SortedLeafWire {
	return SortedLeafWire{
		Value:     IndexedValueWire{Key: frToBytes(s.Value.Key()), Payload: frToBytes(s.Value.Payload())},
		OrigIndex: uint64(s.OrigIndex),
	}
}

func handleGetTreeInfo(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req TreeInfoRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}
		info, err := e.GetTreeInfo(worldstate.TreeId(req.TreeId), fromWireRevision(req.Revision))
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(TreeInfoResponse{TreeId: req.TreeId, Root: frToBytes(info.Root), Size: info.Size, Depth: info.Depth})
	}
}

func handleGetStateReference(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req StateReferenceRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}
		refs, err := e.GetStateReference(fromWireRevision(req.Revision))
		if err != nil {
			return nil, err
		}
		resp := StateReferenceResponse{Refs: make([]StateRefEntry, 0, len(refs))}
		for id, ref := range refs {
			resp.Refs = append(resp.Refs, StateRefEntry{TreeId: uint32(id), Root: frToBytes(ref.Root), Size: ref.Size})
		}
		return rlp.EncodeToBytes(resp)
	}
}

func handleFindLeafIndex(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req FindLeafIndexRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}
		value, err := frFromBytes(req.Value)
		if err != nil {
			return nil, err
		}
		index, found, err := e.FindLeafIndex(worldstate.TreeId(req.TreeId), value, req.FromIndex, fromWireRevision(req.Revision))
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(FindLeafIndexResponse{Found: found, Index: index})
	}
}

func handleGetLeafValue(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req GetLeafValueRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}
		value, found, err := e.GetLeaf(worldstate.TreeId(req.TreeId), req.Index, fromWireRevision(req.Revision))
		if err != nil {
			return nil, err
		}
		resp := GetLeafValueResponse{Found: found}
		if found {
			resp.Value = frToBytes(value)
		}
		return rlp.EncodeToBytes(resp)
	}
}

func handleGetLeafPreimage(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req GetLeafPreimageRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}
		leaf, found, err := e.GetIndexedLeaf(worldstate.TreeId(req.TreeId), req.Index, fromWireRevision(req.Revision))
		if err != nil {
			return nil, err
		}
		resp := GetLeafPreimageResponse{Found: found}
		if found {
			resp.Leaf = leafToWire(leaf)
		}
		return rlp.EncodeToBytes(resp)
	}
}

func handleGetSiblingPath(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req GetSiblingPathRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}
		path, err := e.SiblingPath(worldstate.TreeId(req.TreeId), req.Index, fromWireRevision(req.Revision))
		if err != nil {
			return nil, err
		}
		resp := GetSiblingPathResponse{Path: make([][]byte, len(path))}
		for i, sib := range path {
			resp.Path[i] = frToBytes(sib)
		}
		return rlp.EncodeToBytes(resp)
	}
}

func handleUpdateArchive(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req UpdateArchiveRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}
		blockHash, err := frFromBytes(req.BlockHash)
		if err != nil {
			return nil, err
		}
		root, size, err := e.AppendLeaves(worldstate.Archive, []fr.Element{blockHash})
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(TreeInfoResponse{TreeId: uint32(worldstate.Archive), Root: frToBytes(root), Size: size, Depth: worldstate.ArchiveDepth})
	}
}

func handleUpdatePublicData(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req UpdatePublicDataRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}
		value, err := valueFromWire(indexed.PublicData, req.Leaf)
		if err != nil {
			return nil, err
		}
		witness, err := e.UpdatePublicData(value.(indexed.PublicDataValue))
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(witnessToWire(witness))
	}
}

func handleAppendLeaves(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req AppendLeavesRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}
		leaves := make([]fr.Element, len(req.Leaves))
		for i, raw := range req.Leaves {
			leaf, err := frFromBytes(raw)
			if err != nil {
				return nil, err
			}
			leaves[i] = leaf
		}
		root, size, err := e.AppendLeaves(worldstate.TreeId(req.TreeId), leaves)
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(TreeInfoResponse{TreeId: req.TreeId, Root: frToBytes(root), Size: size})
	}
}

func handleBatchInsert(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req BatchInsertRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}
		kind := indexed.Nullifier
		if worldstate.TreeId(req.TreeId) == worldstate.PublicData {
			kind = indexed.PublicData
		}
		values := make([]indexed.LeafValue, len(req.Leaves))
		for i, w := range req.Leaves {
			v, err := valueFromWire(kind, w)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		result, err := e.AppendIndexedLeaves(worldstate.TreeId(req.TreeId), values)
		if err != nil {
			return nil, err
		}
		resp := BatchInsertResponse{
			Witnesses:    make([]LowLeafWitnessWire, len(result.Witnesses)),
			SortedLeaves: make([]SortedLeafWire, len(result.SortedLeaves)),
		}
		for i, w := range result.Witnesses {
			resp.Witnesses[i] = witnessToWire(w)
		}
		for i, s := range result.SortedLeaves {
			resp.SortedLeaves[i] = sortedLeafToWire(s)
		}
		return rlp.EncodeToBytes(resp)
	}
}

func handleSyncBlock(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		var req SyncBlockRequest
		if err := rlp.DecodeBytes(body, &req); err != nil {
			return nil, err
		}

		blockHash, err := frFromBytes(req.BlockHash)
		if err != nil {
			return nil, err
		}

		block := worldstate.BlockData{
			ExpectedStateRefs: make(map[worldstate.TreeId]worldstate.StateRef, len(req.ExpectedStateRefs)),
			BlockHash:         blockHash,
		}
		for _, ref := range req.ExpectedStateRefs {
			root, err := frFromBytes(ref.Root)
			if err != nil {
				return nil, err
			}
			block.ExpectedStateRefs[worldstate.TreeId(ref.TreeId)] = worldstate.StateRef{Root: root, Size: ref.Size}
		}
		if block.NewNoteHashes, err = decodeElements(req.NewNoteHashes); err != nil {
			return nil, err
		}
		if block.NewL1ToL2Msgs, err = decodeElements(req.NewL1ToL2Msgs); err != nil {
			return nil, err
		}
		if block.NewNullifiers, err = decodeValues(indexed.Nullifier, req.NewNullifiers); err != nil {
			return nil, err
		}
		if block.NewPublicWrites, err = decodeValues(indexed.PublicData, req.NewPublicWrites); err != nil {
			return nil, err
		}

		if err := e.SyncBlock(block); err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(struct{}{})
	}
}

func decodeElements(raw [][]byte) ([]fr.Element, error) {
	out := make([]fr.Element, len(raw))
	for i, b := range raw {
		e, err := frFromBytes(b)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func decodeValues(kind indexed.Kind, raw []IndexedValueWire) ([]indexed.LeafValue, error) {
	out := make([]indexed.LeafValue, len(raw))
	for i, w := range raw {
		v, err := valueFromWire(kind, w)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func handleCommit(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		if err := e.Commit(); err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(struct{}{})
	}
}

func handleRollback(e *worldstate.Engine) Handler {
	return func(body []byte) ([]byte, error) {
		e.Rollback()
		return rlp.EncodeToBytes(struct{}{})
	}
}
