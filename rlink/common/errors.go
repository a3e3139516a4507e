package common

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Taxonomy
// --------------------------------------------------------------------------

// Connection establishment failures. Surfaced to the caller of connect and
// never auto-retried by the core (reconnect policy lives in the node layer).
var (
	ErrConnectTimeout = errors.New("connect timed out")
	ErrConnectRefused = errors.New("connect refused")
)

// Send path failures.
var (
	// ErrPeerUnreachable is returned when a send references a peer that is
	// absent from the routing table. Guaranteed to fail fast: the routing
	// table prune and the send lookup are serialized through the same lock.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrDeliveryFailed is the terminal state of a reliable send whose
	// retry budget is exhausted.
	ErrDeliveryFailed = errors.New("delivery failed: retry budget exhausted")

	// ErrCancelled resolves pending reliable sends when the node closes.
	ErrCancelled = errors.New("send cancelled")
)

// Liveness and lifecycle.
var (
	// ErrHeartbeatTimeout marks a connection whose peer stopped answering
	// pings. It takes the same disconnect path as an I/O error.
	ErrHeartbeatTimeout = errors.New("heartbeat timed out")

	// ErrNodeClosed is returned by operations on a node after Close.
	ErrNodeClosed = errors.New("node is closed")

	// ErrConnClosed is returned by sends on a closed connection.
	ErrConnClosed = errors.New("connection is closed")
)

// --------------------------------------------------------------------------
// Malformed Frames
// --------------------------------------------------------------------------

// MalformedFrameError reports a protocol violation on the wire. It closes
// the offending connection but never crashes the node.
type MalformedFrameError struct {
	Reason string
	Length uint32 // declared frame length, if relevant
	Kind   uint8  // declared kind tag, if relevant
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame: %s (length=%d, kind=%d)", e.Reason, e.Length, e.Kind)
}

// IsMalformedFrame reports whether err is (or wraps) a MalformedFrameError.
func IsMalformedFrame(err error) bool {
	var mfe *MalformedFrameError
	return errors.As(err, &mfe)
}
