package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/conn"
	"github.com/rlink-io/rlink/rlink/reliable"
)

// actorIDCounter produces process-unique synthetic ports for actor
// identities. Actors never bind this port; it only disambiguates actors
// running on the same host.
var actorIDCounter atomic.Uint32

// ActorNode is the producer-side endpoint: it connects to one learner,
// sends experience payloads to it, and can receive learner broadcasts.
type ActorNode struct {
	*base

	learnerAddr string
	// learnerID is the identity the learner announced in the handshake.
	// It can differ from the dialed address (e.g. a learner bound to all
	// interfaces); routing always uses the announced form.
	learnerID atomic.Pointer[common.NodeIdentity]
	// link is the current connection to the learner.
	link atomic.Pointer[conn.Connection]

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewActorNode creates an actor and connects it to the learner at
// learnerAddr ("host:port"). Configuration errors and an unreachable
// learner at startup are fatal; later connection losses are healed by a
// background reconnect loop (connection-level reconnects are not counted
// against any message retry budget).
func NewActorNode(learnerAddr string, opts ...Option) (*ActorNode, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.cfg.LearnerAddress = learnerAddr
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	id := actorIdentity(o)
	a := &ActorNode{
		base:        newBase(id, o),
		learnerAddr: learnerAddr,
		stopCh:      make(chan struct{}),
	}

	c, err := a.mgr.Connect(learnerAddr)
	if err != nil {
		a.base.close()
		return nil, fmt.Errorf("failed to reach learner at %s: %w", learnerAddr, err)
	}
	peer := c.Peer()
	a.learnerID.Store(&peer)
	a.link.Store(c)

	a.mgr.StartHeartbeat()
	a.wg.Add(1)
	go a.reconnectLoop()

	log.Infof("actor %s attached to learner %s", id, peer)
	return a, nil
}

// actorIdentity derives the identity the actor announces. The session is
// always fresh, even when the host/port is pinned via WithIdentity: a
// restarted actor reusing its address must not inherit the watermark its
// previous incarnation left on the learner.
func actorIdentity(o options) common.NodeIdentity {
	if o.identity != nil {
		return common.NodeIdentity{
			Host:    o.identity.Host,
			Port:    o.identity.Port,
			Role:    common.RoleActor,
			Session: newSession(),
		}
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return common.NodeIdentity{
		Host:    host,
		Port:    1 + int(actorIDCounter.Add(1)),
		Role:    common.RoleActor,
		Session: newSession(),
	}
}

// Send dispatches one payload to the learner.
//
// In reliable mode it returns a non-nil Handle resolving to Acknowledged,
// Failed or Cancelled; the call itself never blocks for the retry horizon.
// In best-effort mode the handle is nil and an undeliverable payload is
// reported (and dropped) via the returned error.
func (a *ActorNode) Send(payload []byte) (*reliable.Handle, error) {
	if a.isClosed() {
		return nil, common.ErrNodeClosed
	}

	learner := a.learnerID.Load()

	if a.rel != nil {
		return a.rel.Send(*learner, payload), nil
	}

	addr := learner.Address()
	seq := a.rt.AllocSeq(addr)
	if err := a.rt.Send(addr, seq, payload); err != nil {
		return nil, err
	}
	return nil, nil
}

// Receive suspends until a learner broadcast arrives, the context ends, or
// the node closes.
func (a *ActorNode) Receive(ctx context.Context) (common.NodeIdentity, []byte, error) {
	d, err := a.rt.Receive(ctx)
	if err != nil {
		return common.NodeIdentity{}, nil, err
	}
	return d.From, d.Payload, nil
}

// Identity returns the identity this actor announces to the learner.
func (a *ActorNode) Identity() common.NodeIdentity {
	return a.id
}

// Close shuts the actor down, cancelling all pending reliable sends.
func (a *ActorNode) Close() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
		a.base.close()
		a.wg.Wait()
	})
}

// --------------------------------------------------------------------------
// Reconnect loop
// --------------------------------------------------------------------------

// reconnectInterval paces link-repair attempts: fast enough that a
// transient outage shorter than the ack timeout usually heals within one
// retry window.
func reconnectInterval(cfg common.NodeConfig) time.Duration {
	interval := cfg.AckTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	return interval
}

func (a *ActorNode) reconnectLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(reconnectInterval(a.cfg))
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
		}

		if link := a.link.Load(); link != nil && !link.IsClosed() {
			continue
		}

		c, err := a.mgr.Connect(a.learnerAddr)
		if err != nil {
			if !errors.Is(err, common.ErrConnectRefused) && !errors.Is(err, common.ErrConnectTimeout) {
				log.Warningf("reconnect to %s failed: %v", a.learnerAddr, err)
			}
			continue
		}
		peer := c.Peer()
		a.learnerID.Store(&peer)
		a.link.Store(c)
		log.Infof("reconnected to learner %s", peer)
	}
}
