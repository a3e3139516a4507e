// Package memory implements the in-process loopback transport variant.
//
// A process-wide registry maps endpoint strings to listeners; Dial pairs
// the two ends of a net.Pipe with the matching listener. The registry is
// the only process-level state in rlink — it stands in for the network
// itself, not for any node.
//
// The memory transport backs every integration test and is also usable for
// co-located actor/learner pairs that want to skip the socket layer.
package memory
