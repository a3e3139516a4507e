package node

import (
	"math/rand"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/conn"
	"github.com/rlink-io/rlink/rlink/manager"
	"github.com/rlink-io/rlink/rlink/reliable"
	"github.com/rlink-io/rlink/rlink/router"
	"github.com/rlink-io/rlink/rlink/wire"
)

var log = logger.GetLogger("node")

// newSession draws the session nonce a node announces in its handshake.
// Zero is reserved for peers that announced none.
func newSession() uint64 {
	for {
		if s := rand.Uint64(); s != 0 {
			return s
		}
	}
}

// base is the composition shared by both roles: connection manager, router
// and (in reliable mode) the reliability layer, wired together.
type base struct {
	id  common.NodeIdentity
	cfg common.NodeConfig

	mgr *manager.Manager
	rt  *router.Router
	rel *reliable.Layer // nil in best-effort mode

	// dedup backs duplicate suppression in best-effort mode; in reliable
	// mode the layer's own watermark table is used instead.
	dedup *reliable.Dedup

	// onDelivered, when set, observes every application-bound payload
	// before it is queued (the learner uses it for per-actor stats).
	onDelivered func(from common.NodeIdentity, payload []byte)

	closed atomic.Bool
}

func newBase(id common.NodeIdentity, opts options) *base {
	b := &base{
		id:    id,
		cfg:   opts.cfg,
		dedup: reliable.NewDedup(),
	}
	b.mgr = manager.New(id, opts.cfg, opts.connector)
	b.rt = router.New(b.mgr)
	if opts.cfg.Reliable {
		b.rel = reliable.New(b.rt, opts.cfg)
	}
	b.mgr.SetHandlers(b.handleFrame, b.rt.PeerUp, b.rt.PeerDown)
	return b
}

// handleFrame is the node-level inbound path: Data frames pass duplicate
// suppression, get delivered and acked; Ack frames settle pending sends.
// Runs on each connection's read loop, preserving per-connection order.
func (b *base) handleFrame(c *conn.Connection, f wire.Frame) {
	switch f.Kind {
	case wire.KindData:
		deliver := false
		if b.rel != nil {
			deliver = b.rel.FilterInbound(c.Peer(), f.Seq)
		} else {
			deliver = b.dedup.ShouldDeliver(c.Peer(), f.Seq)
		}
		if deliver {
			if b.onDelivered != nil {
				b.onDelivered(c.Peer(), f.Payload)
			}
			b.rt.Deliver(c.Peer(), f.Seq, f.Payload)
		}

		// Ack unconditionally: re-acking a suppressed duplicate is what
		// settles a sender whose previous ack was lost.
		if err := c.Send(wire.NewAck(f.Seq)); err != nil {
			log.Debugf("failed to ack seq %d to %s: %v", f.Seq, c.Peer(), err)
		}

	case wire.KindAck:
		if b.rel != nil {
			b.rel.HandleAck(c.Peer().Address(), f.Seq)
		}
	}
}

// close tears the composition down in dependency order. Pending reliable
// sends resolve Cancelled; blocked Receive calls return ErrNodeClosed once
// the queue drains.
func (b *base) close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	if b.rel != nil {
		b.rel.Close()
	}
	b.mgr.Close()
	b.rt.Close()
	log.Infof("%s closed", b.id)
}

// isClosed reports whether close ran.
func (b *base) isClosed() bool {
	return b.closed.Load()
}
