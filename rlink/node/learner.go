package node

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/reliable"
	"github.com/rlink-io/rlink/rlink/router"
)

// LearnerNode is the consumer-side endpoint: it binds a port, accepts any
// number of actors, merges their experience streams into one receive queue
// and can broadcast payloads (typically model parameters) back to them.
type LearnerNode struct {
	*base

	stats  *xsync.MapOf[string, *actorStats]
	status *statusServer
}

// actorStats accumulates per-actor delivery counters.
type actorStats struct {
	identity common.NodeIdentity
	frames   atomic.Uint64
	bytes    atomic.Uint64
	lastSeen atomic.Int64 // unix nanos
}

// BroadcastResult extends the router's per-peer outcome with the reliable
// handles of the individual member sends (empty in best-effort mode).
type BroadcastResult struct {
	router.PartialResult

	// Handles holds one handle per successfully dispatched member, in the
	// same order as Sent. Nil in best-effort mode.
	Handles []*reliable.Handle
}

// NewLearnerNode creates a learner bound to port on all configured
// interfaces. A bind failure is fatal; there is no retry.
func NewLearnerNode(port int, opts ...Option) (*LearnerNode, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.cfg.Port = port
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if port < 1 {
		return nil, fmt.Errorf("learner port must be positive, got %d", port)
	}

	id := learnerIdentity(o, port)
	l := &LearnerNode{
		base:  newBase(id, o),
		stats: xsync.NewMapOf[string, *actorStats](),
	}
	l.base.onDelivered = l.recordDelivery

	if err := l.mgr.Listen(id.Address()); err != nil {
		l.base.close()
		return nil, fmt.Errorf("failed to bind %s: %w", id.Address(), err)
	}
	l.mgr.StartHeartbeat()

	if o.cfg.StatusAddr != "" {
		srv, err := startStatusServer(o.cfg.StatusAddr, l)
		if err != nil {
			l.base.close()
			return nil, err
		}
		l.status = srv
	}

	log.Infof("learner %s listening", id)
	return l, nil
}

// learnerIdentity derives the identity the learner announces and binds.
func learnerIdentity(o options, port int) common.NodeIdentity {
	host := "127.0.0.1"
	if o.identity != nil && o.identity.Host != "" {
		host = o.identity.Host
	}
	return common.NodeIdentity{Host: host, Port: port, Role: common.RoleLearner, Session: newSession()}
}

// Receive suspends until an actor payload arrives, the context ends, or the
// node closes. Payloads from different actors come out in arrival order;
// per-actor order is preserved.
func (l *LearnerNode) Receive(ctx context.Context) (common.NodeIdentity, []byte, error) {
	d, err := l.rt.Receive(ctx)
	if err != nil {
		return common.NodeIdentity{}, nil, err
	}
	return d.From, d.Payload, nil
}

// Broadcast dispatches payload to every currently connected member of g.
// Individual failures never abort the fan-out; the result names each member
// that failed. In reliable mode each member send also gets a handle.
func (l *LearnerNode) Broadcast(payload []byte, g router.Group) BroadcastResult {
	if l.isClosed() {
		return BroadcastResult{PartialResult: router.PartialResult{
			Failed: map[string]error{"*": common.ErrNodeClosed},
		}}
	}

	if l.rel == nil {
		return BroadcastResult{PartialResult: l.rt.Broadcast(payload, g)}
	}

	// Reliable fan-out: route each member send through the reliability
	// layer so every copy is individually acked and retried.
	res := BroadcastResult{PartialResult: router.PartialResult{Failed: map[string]error{}}}
	for _, member := range l.rt.Peers(g) {
		h := l.rel.Send(member, payload)
		res.Sent = append(res.Sent, member)
		res.Handles = append(res.Handles, h)
	}
	return res
}

// Actors returns the identities of the currently connected actors, sorted
// by address.
func (l *LearnerNode) Actors() []common.NodeIdentity {
	return l.rt.Peers(router.GroupActors)
}

// Identity returns the identity this learner announces and binds.
func (l *LearnerNode) Identity() common.NodeIdentity {
	return l.id
}

// StatusAddr returns the bound address of the HTTP status endpoint, or ""
// when none is configured.
func (l *LearnerNode) StatusAddr() string {
	if l.status == nil {
		return ""
	}
	return l.status.Addr()
}

// Close shuts the learner down. Blocked Receive calls return ErrNodeClosed
// once the queue drains; pending reliable broadcasts resolve Cancelled.
func (l *LearnerNode) Close() {
	if l.status != nil {
		l.status.stop()
	}
	l.base.close()
}

// --------------------------------------------------------------------------
// Per-actor stats
// --------------------------------------------------------------------------

// ActorStat is a point-in-time snapshot of one actor's delivery counters.
type ActorStat struct {
	Identity common.NodeIdentity `json:"identity"`
	Frames   uint64              `json:"frames"`
	Bytes    uint64              `json:"bytes"`
	LastSeen time.Time           `json:"last_seen"`
}

// recordDelivery runs on every application-bound payload, before queueing.
func (l *LearnerNode) recordDelivery(from common.NodeIdentity, payload []byte) {
	s, _ := l.stats.LoadOrCompute(from.Address(), func() *actorStats {
		return &actorStats{identity: from}
	})
	s.frames.Add(1)
	s.bytes.Add(uint64(len(payload)))
	s.lastSeen.Store(time.Now().UnixNano())
}

// Stats snapshots the per-actor delivery counters, including actors that
// have since disconnected.
func (l *LearnerNode) Stats() []ActorStat {
	out := make([]ActorStat, 0, l.stats.Size())
	l.stats.Range(func(_ string, s *actorStats) bool {
		out = append(out, ActorStat{
			Identity: s.identity,
			Frames:   s.frames.Load(),
			Bytes:    s.bytes.Load(),
			LastSeen: time.Unix(0, s.lastSeen.Load()),
		})
		return true
	})
	return out
}
