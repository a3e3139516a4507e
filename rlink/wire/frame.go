package wire

// --------------------------------------------------------------------------
// Frame Kinds
// --------------------------------------------------------------------------

// Kind is the 1-byte message-kind tag of a frame.
type Kind uint8

const (
	KindData Kind = iota + 1 // application payload or identity handshake
	KindAck                  // acknowledges the Data frame with the same sequence
	KindPing                 // liveness probe
	KindPong                 // liveness probe answer
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindAck:
		return "ack"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

// valid reports whether k is a recognized kind tag.
func (k Kind) valid() bool {
	return k >= KindData && k <= KindPong
}

// --------------------------------------------------------------------------
// Frame
// --------------------------------------------------------------------------

// headerSize is the fixed per-frame overhead after the length prefix:
// 1 byte kind + 4 bytes sequence.
const headerSize = 5

// Frame is one self-delimiting unit of wire data.
type Frame struct {
	Kind    Kind
	Seq     uint32
	Payload []byte
}

// --------------------------------------------------------------------------
// Frame Factory Functions
// --------------------------------------------------------------------------

// NewData creates a Data frame carrying an opaque application payload.
func NewData(seq uint32, payload []byte) Frame {
	return Frame{Kind: KindData, Seq: seq, Payload: payload}
}

// NewAck creates an Ack frame for the given sequence number.
// Acks carry no payload and are never retried.
func NewAck(seq uint32) Frame {
	return Frame{Kind: KindAck, Seq: seq}
}

// NewPing creates a liveness probe frame.
func NewPing(seq uint32) Frame {
	return Frame{Kind: KindPing, Seq: seq}
}

// NewPong creates the answer to a Ping with the same sequence number.
func NewPong(seq uint32) Frame {
	return Frame{Kind: KindPong, Seq: seq}
}
