// Package manager owns the set of live connections for one node.
//
// It initiates outbound connections with a configurable connect timeout,
// accepts inbound ones for a listening node, and detects failures. Every
// connection loss — I/O error, protocol violation or heartbeat timeout —
// funnels into a single disconnect path that deregisters the connection and
// fires the node's disconnect callback exactly once, so the router can
// prune its table atomically with the loss.
//
// Liveness: the manager periodically emits Ping frames on idle connections
// and expects a Pong within one heartbeat interval. A silent peer (e.g. a
// half-open TCP connection) is closed through the same path as an I/O
// error. Ping/Pong traffic never reaches the layers above.
package manager
