package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/manager"
	"github.com/rlink-io/rlink/rlink/wire"
)

var log = logger.GetLogger("router")

var (
	deliveriesTotal        = metrics.GetOrCreateCounter(`rlink_deliveries_total`)
	broadcastsTotal        = metrics.GetOrCreateCounter(`rlink_broadcasts_total`)
	broadcastFailuresTotal = metrics.GetOrCreateCounter(`rlink_broadcast_failures_total`)
)

// --------------------------------------------------------------------------
// Groups
// --------------------------------------------------------------------------

// Group names a logical set of peers for fan-out.
type Group string

const (
	GroupActors   Group = "actors"
	GroupLearners Group = "learners"
)

// GroupForRole returns the group a peer belongs to by virtue of its role.
func GroupForRole(r common.Role) Group {
	if r == common.RoleLearner {
		return GroupLearners
	}
	return GroupActors
}

// --------------------------------------------------------------------------
// PartialResult
// --------------------------------------------------------------------------

// PartialResult reports the per-peer outcome of a fan-out.
type PartialResult struct {
	// Sent lists the members the message was handed to, in send order.
	Sent []common.NodeIdentity
	// Failed maps the address of each failed member to its error.
	Failed map[string]error
}

// AllSent reports whether every group member received the send.
func (r PartialResult) AllSent() bool {
	return len(r.Failed) == 0
}

func (r PartialResult) String() string {
	return fmt.Sprintf("broadcast: %d sent, %d failed", len(r.Sent), len(r.Failed))
}

// --------------------------------------------------------------------------
// Router
// --------------------------------------------------------------------------

// Router holds non-owning references to peers (by identity) and implements
// the fan-in / fan-out delivery policy over the connection manager's live
// set.
type Router struct {
	mgr   *manager.Manager
	queue *DeliveryQueue

	// tableMu serializes table mutation (peer up/down) against send
	// lookups. Never held across I/O: connection sends only enqueue.
	tableMu sync.RWMutex
	peers   map[string]common.NodeIdentity
	groups  map[Group]map[string]common.NodeIdentity

	// Per-peer outbound sequence counters. Keyed by peer address, they
	// survive reconnects so a retransmit carries its original sequence.
	seqs *xsync.MapOf[string, *atomic.Uint32]

	closed atomic.Bool
}

// New creates a Router over the given connection manager.
func New(mgr *manager.Manager) *Router {
	return &Router{
		mgr:    mgr,
		queue:  NewDeliveryQueue(),
		peers:  make(map[string]common.NodeIdentity),
		groups: make(map[Group]map[string]common.NodeIdentity),
		seqs:   xsync.NewMapOf[string, *atomic.Uint32](),
	}
}

// --------------------------------------------------------------------------
// Table maintenance (driven by connection manager events)
// --------------------------------------------------------------------------

// PeerUp registers a connected peer in its role group.
func (r *Router) PeerUp(peer common.NodeIdentity) {
	r.tableMu.Lock()
	defer r.tableMu.Unlock()

	addr := peer.Address()
	r.peers[addr] = peer

	g := GroupForRole(peer.Role)
	if r.groups[g] == nil {
		r.groups[g] = make(map[string]common.NodeIdentity)
	}
	r.groups[g][addr] = peer
	log.Debugf("peer up: %s (group %s)", peer, g)
}

// PeerDown prunes a disconnected peer. Entries are removed immediately; no
// stale-entry grace period. Sends racing this call serialize through the
// same lock and observe the pruned table.
func (r *Router) PeerDown(peer common.NodeIdentity) {
	r.tableMu.Lock()
	defer r.tableMu.Unlock()

	addr := peer.Address()
	delete(r.peers, addr)
	delete(r.groups[GroupForRole(peer.Role)], addr)
	log.Debugf("peer down: %s", peer)
}

// Peers returns a snapshot of a group, sorted by address.
func (r *Router) Peers(g Group) []common.NodeIdentity {
	r.tableMu.RLock()
	defer r.tableMu.RUnlock()
	return r.snapshotLocked(g)
}

// snapshotLocked must be called with tableMu held.
func (r *Router) snapshotLocked(g Group) []common.NodeIdentity {
	members := make([]common.NodeIdentity, 0, len(r.groups[g]))
	for _, id := range r.groups[g] {
		members = append(members, id)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Address() < members[j].Address()
	})
	return members
}

// --------------------------------------------------------------------------
// Outbound
// --------------------------------------------------------------------------

// AllocSeq hands out the next outbound sequence number for a peer.
// Sequence 0 is reserved for the handshake.
func (r *Router) AllocSeq(peerAddr string) uint32 {
	counter, _ := r.seqs.LoadOrStore(peerAddr, &atomic.Uint32{})
	return counter.Add(1)
}

// Send delivers one Data frame to the given peer. The caller owns the
// sequence number (AllocSeq for fresh sends, the original value for
// retransmits). Fails fast with ErrPeerUnreachable when the peer is not in
// the routing table.
func (r *Router) Send(peerAddr string, seq uint32, payload []byte) error {
	r.tableMu.RLock()
	_, known := r.peers[peerAddr]
	r.tableMu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %s", common.ErrPeerUnreachable, peerAddr)
	}

	c, ok := r.mgr.Get(peerAddr)
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrPeerUnreachable, peerAddr)
	}
	return c.Send(wire.NewData(seq, payload))
}

// SendAck acknowledges an inbound Data frame on the connection it arrived
// over. Acks are best-effort and never retried: a lost ack costs the sender
// one extra retry, which the receive watermark absorbs.
func (r *Router) SendAck(peerAddr string, seq uint32) {
	c, ok := r.mgr.Get(peerAddr)
	if !ok {
		return
	}
	if err := c.Send(wire.NewAck(seq)); err != nil {
		log.Debugf("failed to ack seq %d to %s: %v", seq, peerAddr, err)
	}
}

// Broadcast sends one logical message independently to every member of the
// routing-table snapshot taken at call time. A member failing does not
// abort delivery to the others.
func (r *Router) Broadcast(payload []byte, g Group) PartialResult {
	r.tableMu.RLock()
	members := r.snapshotLocked(g)
	r.tableMu.RUnlock()

	broadcastsTotal.Inc()
	result := PartialResult{Failed: make(map[string]error)}

	for _, peer := range members {
		addr := peer.Address()
		seq := r.AllocSeq(addr)
		if err := r.Send(addr, seq, payload); err != nil {
			broadcastFailuresTotal.Inc()
			result.Failed[addr] = err
			continue
		}
		result.Sent = append(result.Sent, peer)
	}
	return result
}

// --------------------------------------------------------------------------
// Inbound
// --------------------------------------------------------------------------

// Deliver pushes one inbound payload onto the fan-in queue.
func (r *Router) Deliver(from common.NodeIdentity, seq uint32, payload []byte) {
	deliveriesTotal.Inc()
	r.queue.Push(&Delivery{From: from, Seq: seq, Payload: payload})
}

// Receive pops the next delivery, suspending the caller until one is
// available, the context is cancelled, or the router closes.
func (r *Router) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case d, ok := <-r.queue.Recv():
		if !ok {
			return nil, common.ErrNodeClosed
		}
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the fan-in queue down. Queued deliveries are still drained
// by any in-flight Receive.
func (r *Router) Close() {
	if r.closed.CompareAndSwap(false, true) {
		r.queue.Close()
	}
}
