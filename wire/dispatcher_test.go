package wire

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/ytrtdfkgf/merkle-worldstate/errs"
	"github.com/ytrtdfkgf/merkle-worldstate/fr"
	"github.com/ytrtdfkgf/merkle-worldstate/kv/memory"
	"github.com/ytrtdfkgf/merkle-worldstate/pool"
	"github.com/ytrtdfkgf/merkle-worldstate/worldstate"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *worldstate.Engine) {
	t.Helper()
	env := memory.New()
	e, err := worldstate.New(worldstate.Config{WorkerThreads: 2}, env)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	d := NewDispatcher(nil)
	RegisterEngineHandlers(d, e)
	return d, e
}

func decodeEnvelope(t *testing.T, raw []byte) ResponseEnvelope {
	t.Helper()
	var env ResponseEnvelope
	require.NoError(t, rlp.DecodeBytes(raw, &env))
	return env
}

func TestDispatchGetTreeInfo(t *testing.T) {
	d, _ := newTestDispatcher(t)

	req, err := rlp.EncodeToBytes(TreeInfoRequest{TreeId: uint32(worldstate.NoteHash)})
	require.NoError(t, err)

	raw := d.Dispatch(Header{RequestID: 1, MsgType: MsgGetTreeInfo}, req)
	env := decodeEnvelope(t, raw)
	require.True(t, env.OK)
	require.Equal(t, uint64(1), env.RequestID)

	var resp TreeInfoResponse
	require.NoError(t, rlp.DecodeBytes(env.Payload, &resp))
	require.Equal(t, uint64(0), resp.Size)
	require.Equal(t, uint32(worldstate.NoteHashDepth), resp.Depth)
}

func TestDispatchAppendLeavesThenGetLeafValue(t *testing.T) {
	d, _ := newTestDispatcher(t)

	leafBytes := frToBytes(fr.FromUint64(99))
	appendReq, err := rlp.EncodeToBytes(AppendLeavesRequest{TreeId: uint32(worldstate.NoteHash), Leaves: [][]byte{leafBytes}})
	require.NoError(t, err)
	env := decodeEnvelope(t, d.Dispatch(Header{RequestID: 2, MsgType: MsgAppendLeaves}, appendReq))
	require.True(t, env.OK)

	getReq, err := rlp.EncodeToBytes(GetLeafValueRequest{
		TreeId:   uint32(worldstate.NoteHash),
		Revision: WireRevision{Kind: wireRevisionUncommitted},
		Index:    0,
	})
	require.NoError(t, err)
	env = decodeEnvelope(t, d.Dispatch(Header{RequestID: 3, MsgType: MsgGetLeafValue}, getReq))
	require.True(t, env.OK)

	var resp GetLeafValueResponse
	require.NoError(t, rlp.DecodeBytes(env.Payload, &resp))
	require.True(t, resp.Found)
	value, err := fr.SetBytes(resp.Value)
	require.NoError(t, err)
	require.True(t, fr.Equal(value, fr.FromUint64(99)))
}

func TestDispatchUnknownMessageType(t *testing.T) {
	d, _ := newTestDispatcher(t)

	env := decodeEnvelope(t, d.Dispatch(Header{RequestID: 4, MsgType: 999}, nil))
	require.False(t, env.OK)
	require.Equal(t, errs.ErrUnknownMessage.Error(), env.ErrorMessage)
}

func TestDispatchHistoricalBlockRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)

	req, err := rlp.EncodeToBytes(TreeInfoRequest{
		TreeId:   uint32(worldstate.NoteHash),
		Revision: WireRevision{Kind: wireRevisionHistoricalBlock, Block: 5},
	})
	require.NoError(t, err)

	env := decodeEnvelope(t, d.Dispatch(Header{RequestID: 5, MsgType: MsgGetTreeInfo}, req))
	require.False(t, env.OK)
	require.Equal(t, errs.ErrInvalidRevision.Error(), env.ErrorMessage)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body, err := rlp.EncodeToBytes(TreeInfoRequest{TreeId: 1})
	require.NoError(t, err)

	require.NoError(t, WriteFrame(&buf, Header{RequestID: 7, MsgType: MsgGetTreeInfo}, body))

	header, gotBody, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(7), header.RequestID)
	require.Equal(t, MsgGetTreeInfo, header.MsgType)
	require.Equal(t, body, gotBody)
}

func TestAsyncRunnerResolvesFuture(t *testing.T) {
	d, _ := newTestDispatcher(t)
	p, err := pool.New(2)
	require.NoError(t, err)
	defer p.Release()

	runner := NewAsyncRunner(p, d)
	req, err := rlp.EncodeToBytes(TreeInfoRequest{TreeId: uint32(worldstate.NoteHash)})
	require.NoError(t, err)

	future := runner.Submit(Header{RequestID: 8, MsgType: MsgGetTreeInfo}, req)
	raw := <-future
	env := decodeEnvelope(t, raw)
	require.True(t, env.OK)
	require.Equal(t, uint64(8), env.RequestID)
}

func TestAsyncRunnerShutdownResolvesFuture(t *testing.T) {
	d, _ := newTestDispatcher(t)
	p, err := pool.New(1)
	require.NoError(t, err)
	p.Release()

	runner := NewAsyncRunner(p, d)
	req, err := rlp.EncodeToBytes(TreeInfoRequest{TreeId: uint32(worldstate.NoteHash)})
	require.NoError(t, err)

	future := runner.Submit(Header{RequestID: 9, MsgType: MsgGetTreeInfo}, req)
	raw := <-future
	env := decodeEnvelope(t, raw)
	require.False(t, env.OK)
	require.Equal(t, errs.ErrShutdown.Error(), env.ErrorMessage)
}
