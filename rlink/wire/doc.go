// Package wire implements the rlink frame codec.
//
// A frame is the atomic unit on the wire:
//
//	[length: uint32][kind: uint8][sequence: uint32][payload: length-5 bytes]
//
// all fields big-endian. The length field counts everything after itself
// (kind + sequence + payload), so an empty-payload frame declares length 5.
//
// Kinds:
//
//   - Data: application payload (opaque to rlink) or, as the very first
//     frame on a fresh connection, the sender's identity handshake
//   - Ack:  acknowledges the Data frame with the same sequence number
//   - Ping/Pong: liveness probes emitted by the connection manager
//
// Decoding enforces a configured maximum frame size so a corrupt or
// malicious length field cannot cause unbounded allocation; violations are
// reported as common.MalformedFrameError and close the offending connection.
package wire
