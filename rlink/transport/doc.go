// Package transport defines the byte-stream capability rlink connections
// are built on, decoupled from any concrete socket type.
//
// A Connector provides {dial, listen, upgrade} over some medium. Two
// implementations ship with rlink:
//
//   - tcp: real stream sockets for production use
//   - memory: an in-process loopback used by tests and co-located
//     actor/learner pairs
//
// The variant is selected at node construction. Everything above this
// package works purely in terms of net.Conn and net.Listener.
package transport
