package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/rlink-io/rlink/rlink/common"
)

const testMaxFrameSize = 1024

// TestEncodeDecodeRoundTrip tests that frames of every kind survive a trip
// through the codec unchanged.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	frames := []Frame{
		NewData(1, []byte("trajectory payload")),
		NewData(2, nil), // empty payload is legal
		NewAck(1),
		NewPing(42),
		NewPong(42),
		NewData(4294967295, bytes.Repeat([]byte{0xab}, 512)),
	}

	var buf bytes.Buffer
	for i, f := range frames {
		if err := EncodeTo(&buf, f, testMaxFrameSize); err != nil {
			t.Fatalf("failed to encode frame %d: %v", i, err)
		}
	}

	dec := NewDecoder(&buf, testMaxFrameSize)
	for i, want := range frames {
		got, err := dec.Next()
		if err != nil {
			t.Fatalf("failed to decode frame %d: %v", i, err)
		}
		if got.Kind != want.Kind || got.Seq != want.Seq {
			t.Errorf("frame %d: got (%v, %d), want (%v, %d)", i, got.Kind, got.Seq, want.Kind, want.Seq)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("frame %d: payload mismatch", i)
		}
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after last frame, got %v", err)
	}
}

// TestDecodePartialStream tests that a decoder reading from a stream that
// delivers one byte at a time still reassembles complete frames.
func TestDecodePartialStream(t *testing.T) {
	var buf bytes.Buffer
	want := NewData(7, []byte("partial delivery"))
	if err := EncodeTo(&buf, want, testMaxFrameSize); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := NewDecoder(iotest{r: &buf}, testMaxFrameSize)
	got, err := dec.Next()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Seq != want.Seq || !bytes.Equal(got.Payload, want.Payload) {
		t.Errorf("got (%d, %q), want (%d, %q)", got.Seq, got.Payload, want.Seq, want.Payload)
	}
}

// iotest delivers at most one byte per Read call.
type iotest struct{ r io.Reader }

func (o iotest) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

// TestDecodeMalformed tests the protocol-violation paths: oversize length,
// undersize length and unknown kind all surface MalformedFrameError.
func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		length uint32
		kind   byte
	}{
		{"oversize length", testMaxFrameSize + 1, byte(KindData)},
		{"length below header size", 4, byte(KindData)},
		{"unknown kind", 32, 0xee},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			header := make([]byte, 9)
			binary.BigEndian.PutUint32(header[:4], tc.length)
			header[4] = tc.kind
			binary.BigEndian.PutUint32(header[5:9], 1)

			dec := NewDecoder(bytes.NewReader(header), testMaxFrameSize)
			_, err := dec.Next()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var mfe *common.MalformedFrameError
			if !errors.As(err, &mfe) {
				t.Errorf("expected MalformedFrameError, got %T: %v", err, err)
			}
		})
	}
}

// TestEncodeOversizePayload tests that encoding rejects payloads that do not
// fit the maximum frame size instead of emitting an undecodable frame.
func TestEncodeOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	f := NewData(1, make([]byte, testMaxFrameSize))
	if err := EncodeTo(&buf, f, testMaxFrameSize); err == nil {
		t.Error("expected error for oversize payload, got nil")
	}
	if buf.Len() != 0 {
		t.Errorf("oversize encode wrote %d bytes to the stream", buf.Len())
	}
}

// TestEncodeUnknownKind tests that a zero-value frame cannot be encoded.
func TestEncodeUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, Frame{}, testMaxFrameSize); err == nil {
		t.Error("expected error for unknown kind, got nil")
	}
}
