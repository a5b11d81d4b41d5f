package wire

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ytrtdfkgf/merkle-worldstate/errs"
	"github.com/ytrtdfkgf/merkle-worldstate/metrics"
)

// Handler decodes a request body, calls into the engine, and encodes
// the response. Any error it returns is captured into the response
// envelope rather than propagated to the transport.
type Handler func(body []byte) ([]byte, error)

// Dispatcher routes a decoded header to the Handler registered for its
// MsgType, and always produces an encoded ResponseEnvelope — an unknown
// message type or a handler error both resolve to an OK=false envelope
// rather than a transport-level failure.
type Dispatcher struct {
	handlers map[uint32]Handler
	metrics  metrics.Metrics
}

// NewDispatcher builds an empty dispatcher; call Handle to register the
// message types it should serve. m is optional; pass nil to skip
// metrics entirely.
func NewDispatcher(m metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.Noop
	}
	return &Dispatcher{handlers: make(map[uint32]Handler), metrics: m}
}

// Handle registers fn for msgType, replacing any handler already
// registered for it.
func (d *Dispatcher) Handle(msgType uint32, fn Handler) {
	d.handlers[msgType] = fn
}

// Dispatch looks up header.MsgType's handler, invokes it with body, and
// returns the RLP-encoded ResponseEnvelope.
func (d *Dispatcher) Dispatch(header Header, body []byte) []byte {
	fn, ok := d.handlers[header.MsgType]
	if !ok {
		d.metrics.DispatchRequest(header.MsgType, false)
		return encodeEnvelope(header.RequestID, nil, errs.ErrUnknownMessage)
	}
	payload, err := fn(body)
	d.metrics.DispatchRequest(header.MsgType, err == nil)
	return encodeEnvelope(header.RequestID, payload, err)
}

func encodeEnvelope(requestID uint64, payload []byte, err error) []byte {
	env := ResponseEnvelope{RequestID: requestID}
	if err != nil {
		env.OK = false
		env.ErrorMessage = err.Error()
	} else {
		env.OK = true
		env.Payload = payload
	}
	// env's fields are all RLP-safe by construction: it never holds a
	// caller-supplied negative integer or unsupported type.
	encoded, encErr := rlp.EncodeToBytes(env)
	if encErr != nil {
		encoded, _ = rlp.EncodeToBytes(ResponseEnvelope{RequestID: requestID, OK: false, ErrorMessage: encErr.Error()})
	}
	return encoded
}
