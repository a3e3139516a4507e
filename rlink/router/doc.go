// Package router implements the delivery policy over a node's connection
// set: many-to-one fan-in of all inbound streams into one delivery queue,
// and one-to-many fan-out of a logical message to a named role group.
//
// Fan-in preserves per-connection order only; the merge across connections
// is arrival-order, not a total order. Fan-out treats members
// independently: one failing peer never aborts delivery to the others, and
// the per-peer outcome is reported in a PartialResult.
//
// The routing table is pruned atomically with connection loss: the
// disconnect notification and every send lookup serialize through the same
// table lock, so a send issued after a disconnect observes the pruned
// table and fails fast with ErrPeerUnreachable instead of hanging.
package router
