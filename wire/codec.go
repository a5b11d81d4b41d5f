package wire

import (
	"encoding/binary"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// maxFrameSize bounds each length-prefixed block of a frame (the header
// and the body separately) so a corrupt or malicious length prefix can't
// force an unbounded allocation.
const maxFrameSize = 64 << 20

// WriteFrame writes header and body as one frame of two length-prefixed
// blocks: header_len(4B BE) || rlp(header) || body_len(4B BE) || body.
func WriteFrame(w io.Writer, header Header, body []byte) error {
	encodedHeader, err := rlp.EncodeToBytes(header)
	if err != nil {
		return errors.Wrap(err, "wire: encode header")
	}

	frame := make([]byte, 4+len(encodedHeader)+4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(encodedHeader)))
	copy(frame[4:], encodedHeader)
	binary.BigEndian.PutUint32(frame[4+len(encodedHeader):], uint32(len(body)))
	copy(frame[4+len(encodedHeader)+4:], body)

	_, err = w.Write(frame)
	return err
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	header, err := readBlock(r)
	if err != nil {
		return Header{}, nil, err
	}
	var h Header
	if err := rlp.DecodeBytes(header, &h); err != nil {
		return Header{}, nil, errors.Wrap(err, "wire: decode header")
	}

	body, err := readBlock(r)
	if err != nil {
		return Header{}, nil, err
	}
	return h, body, nil
}

func readBlock(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, errors.Errorf("wire: frame block of %d bytes exceeds max %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
