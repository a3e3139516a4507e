package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/rlink-io/rlink/rlink/common"
)

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// EncodeTo writes f to w as one frame. The header and payload are handed to
// the writer as a single vectored write so a frame is never split across
// two Write calls by this package.
//
// Encoding only fails for payloads that would not fit the declared maximum
// frame size; every other input encodes successfully.
func EncodeTo(w io.Writer, f Frame, maxFrameSize uint32) error {
	if !f.Kind.valid() {
		return fmt.Errorf("cannot encode frame with unknown kind %d", uint8(f.Kind))
	}

	length := uint32(headerSize + len(f.Payload))
	if length > maxFrameSize {
		return fmt.Errorf("payload of %d bytes exceeds max frame size %d", len(f.Payload), maxFrameSize)
	}

	// 4 bytes length + 1 byte kind + 4 bytes sequence
	header := make([]byte, 9)
	binary.BigEndian.PutUint32(header[:4], length)
	header[4] = byte(f.Kind)
	binary.BigEndian.PutUint32(header[5:9], f.Seq)

	b := net.Buffers{header, f.Payload}
	_, err := b.WriteTo(w)
	return err
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// Decoder reads frames off a byte stream. The stream may deliver partial
// frames; Next blocks until a complete frame is available, the stream ends,
// or a protocol violation is detected.
//
// A Decoder is owned by exactly one reading goroutine (the connection's
// read loop) and must not be shared.
type Decoder struct {
	r            io.Reader
	maxFrameSize uint32
	header       [9]byte
}

// NewDecoder creates a Decoder enforcing the given maximum frame size.
func NewDecoder(r io.Reader, maxFrameSize uint32) *Decoder {
	return &Decoder{r: r, maxFrameSize: maxFrameSize}
}

// Next returns the next complete frame from the stream.
//
// It returns io.EOF (or the transport's read error) when the stream ends,
// and a common.MalformedFrameError when the declared length exceeds the
// configured maximum, is shorter than the fixed header, or the kind tag is
// unrecognized. Malformed frames are not recoverable: the caller must close
// the connection.
func (d *Decoder) Next() (Frame, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		return Frame{}, err
	}

	length := binary.BigEndian.Uint32(d.header[:4])
	kind := Kind(d.header[4])
	seq := binary.BigEndian.Uint32(d.header[5:9])

	if length < headerSize {
		return Frame{}, &common.MalformedFrameError{
			Reason: "declared length shorter than frame header",
			Length: length,
			Kind:   uint8(kind),
		}
	}
	if length > d.maxFrameSize {
		return Frame{}, &common.MalformedFrameError{
			Reason: "declared length exceeds max frame size",
			Length: length,
			Kind:   uint8(kind),
		}
	}
	if !kind.valid() {
		return Frame{}, &common.MalformedFrameError{
			Reason: "unrecognized kind tag",
			Length: length,
			Kind:   uint8(kind),
		}
	}

	payloadLen := length - headerSize
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(d.r, payload); err != nil {
			return Frame{}, err
		}
	}

	return Frame{Kind: kind, Seq: seq, Payload: payload}, nil
}
