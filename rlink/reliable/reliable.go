package reliable

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/router"
)

var log = logger.GetLogger("reliable")

var (
	retriesTotal    = metrics.GetOrCreateCounter(`rlink_reliable_retries_total`)
	failedTotal     = metrics.GetOrCreateCounter(`rlink_reliable_failed_total`)
	ackedTotal      = metrics.GetOrCreateCounter(`rlink_reliable_acked_total`)
	suppressedTotal = metrics.GetOrCreateCounter(`rlink_reliable_duplicates_suppressed_total`)
)

// --------------------------------------------------------------------------
// Pending table
// --------------------------------------------------------------------------

// pendingKey identifies one outstanding send.
type pendingKey struct {
	peer string
	seq  uint32
}

// pendingSend is one entry in the outstanding table: created when a
// reliable send is issued, destroyed when the matching ack arrives, the
// retry budget runs out, or the layer closes.
type pendingSend struct {
	handle  *Handle
	payload []byte

	maxRetries int
	retries    atomic.Int32
	// sentAtNano is the unix-nano timestamp of the most recent (re)send.
	sentAtNano atomic.Int64
}

// --------------------------------------------------------------------------
// Layer
// --------------------------------------------------------------------------

// Layer wraps a Router with sequence tracking, ack bookkeeping and retry
// scheduling. One Layer belongs to exactly one node.
type Layer struct {
	rt  *router.Router
	cfg common.NodeConfig

	pending *xsync.MapOf[pendingKey, *pendingSend]
	dedup   *Dedup

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// New creates the reliability layer and starts its retry loop.
func New(rt *router.Router, cfg common.NodeConfig) *Layer {
	l := &Layer{
		rt:      rt,
		cfg:     cfg,
		pending: xsync.NewMapOf[pendingKey, *pendingSend](),
		dedup:   NewDedup(),
		stopCh:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retryLoop()
	return l
}

// --------------------------------------------------------------------------
// Sender side
// --------------------------------------------------------------------------

// Send issues one at-least-once delivery to the given peer and returns its
// Handle immediately. An initial send failure (peer momentarily
// unreachable) is not terminal: the entry stays pending and the retry loop
// re-attempts it, possibly over a reconnected link, until the budget runs
// out.
func (l *Layer) Send(peer common.NodeIdentity, payload []byte) *Handle {
	addr := peer.Address()
	seq := l.rt.AllocSeq(addr)
	h := newHandle(peer, seq)

	if l.closed.Load() {
		h.resolve(OutcomeCancelled, common.ErrCancelled)
		return h
	}

	ps := &pendingSend{
		handle:     h,
		payload:    payload,
		maxRetries: l.cfg.RetryAttempts,
	}
	ps.sentAtNano.Store(time.Now().UnixNano())

	// Register before the wire send so a fast ack always finds its entry.
	l.pending.Store(pendingKey{addr, seq}, ps)

	if err := l.rt.Send(addr, seq, payload); err != nil {
		log.Debugf("initial send of seq %d to %s failed, will retry: %v", seq, peer, err)
	}
	return h
}

// HandleAck resolves the pending entry matching (peer, seq), if any.
// Duplicate acks and acks for already-failed entries are ignored.
func (l *Layer) HandleAck(peerAddr string, seq uint32) {
	ps, ok := l.pending.LoadAndDelete(pendingKey{peerAddr, seq})
	if !ok {
		return
	}
	ackedTotal.Inc()
	ps.handle.resolve(OutcomeAcknowledged, nil)
}

// Pending returns the number of outstanding sends.
func (l *Layer) Pending() int {
	return l.pending.Size()
}

// Close cancels every pending entry immediately, resolving their handles to
// Cancelled rather than waiting out remaining retries.
func (l *Layer) Close() {
	l.stopOnce.Do(func() {
		l.closed.Store(true)
		close(l.stopCh)
		l.wg.Wait()

		l.pending.Range(func(key pendingKey, ps *pendingSend) bool {
			l.pending.Delete(key)
			ps.handle.resolve(OutcomeCancelled, common.ErrCancelled)
			return true
		})
	})
}

// --------------------------------------------------------------------------
// Receiver side
// --------------------------------------------------------------------------

// FilterInbound implements duplicate suppression for one inbound Data
// frame. It returns true when the frame must be delivered to the
// application; either way the caller acks it (silent re-acking is what
// makes sender retries idempotent). Suppression is scoped to the sender's
// session, so frames from a restarted peer are never mistaken for
// duplicates of the previous incarnation.
func (l *Layer) FilterInbound(sender common.NodeIdentity, seq uint32) bool {
	if l.dedup.ShouldDeliver(sender, seq) {
		return true
	}
	suppressedTotal.Inc()
	log.Debugf("suppressed duplicate seq %d from %s", seq, sender)
	return false
}

// --------------------------------------------------------------------------
// Retry loop
// --------------------------------------------------------------------------

// retryTick bounds how coarsely ack timeouts are observed.
func retryTick(ackTimeout time.Duration) time.Duration {
	tick := ackTimeout / 4
	if tick < 5*time.Millisecond {
		tick = 5 * time.Millisecond
	}
	return tick
}

func (l *Layer) retryLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(retryTick(l.cfg.AckTimeout))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.scan()
		case <-l.stopCh:
			return
		}
	}
}

// scan resends every entry whose ack timeout elapsed and fails entries
// whose budget is exhausted. Resends reuse the original sequence number so
// the receiver watermark recognizes them.
func (l *Layer) scan() {
	now := time.Now()

	l.pending.Range(func(key pendingKey, ps *pendingSend) bool {
		sentAt := time.Unix(0, ps.sentAtNano.Load())
		if now.Sub(sentAt) < l.cfg.AckTimeout {
			return true
		}

		if int(ps.retries.Load()) >= ps.maxRetries {
			l.pending.Delete(key)
			failedTotal.Inc()
			log.Warningf("delivery of seq %d to %s failed after %d retries", key.seq, key.peer, ps.maxRetries)
			ps.handle.resolve(OutcomeFailed, common.ErrDeliveryFailed)
			return true
		}

		ps.retries.Add(1)
		ps.sentAtNano.Store(now.UnixNano())
		retriesTotal.Inc()

		if err := l.rt.Send(key.peer, key.seq, ps.payload); err != nil {
			// Peer still unreachable: the entry stays pending, the next
			// scan retries again until the budget runs out.
			log.Debugf("retry %d of seq %d to %s failed: %v", ps.retries.Load(), key.seq, key.peer, err)
		}
		return true
	})
}
