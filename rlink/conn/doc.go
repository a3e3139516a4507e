// Package conn implements a single established link to a peer.
//
// A Connection owns one net.Conn and runs two goroutines for it: a writer
// draining a buffered send channel (exactly one goroutine ever writes to
// the wire, so frames are never interleaved) and a read loop decoding
// inbound bytes into frames delivered in arrival order through a callback.
//
// An I/O error on either direction transitions the connection to Closed and
// notifies the owner exactly once, even if both directions fail
// concurrently.
//
// Before a Connection is constructed, the two sides exchange identities:
// the initiator sends one Data frame (sequence 0) whose payload is its JSON
// NodeIdentity, and the acceptor replies in kind. No application traffic
// flows before the handshake completes.
package conn
