package manager

import (
	"time"

	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/conn"
	"github.com/rlink-io/rlink/rlink/wire"
)

// StartHeartbeat launches the liveness loop. Every heartbeat interval it
// pings connections that were idle for the whole previous interval, and
// closes connections whose previous ping went unanswered. A closed
// connection takes the normal disconnect path, so the node cannot tell a
// dead peer from an I/O error — which is the point.
func (m *Manager) StartHeartbeat() {
	m.wg.Add(1)
	go m.heartbeatLoop()
}

func (m *Manager) heartbeatLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

// sweep performs one heartbeat pass over all live connections.
func (m *Manager) sweep() {
	idleCutoff := time.Now().Add(-m.cfg.HeartbeatInterval)

	m.conns.Range(func(addr string, c *conn.Connection) bool {
		// A ping from the previous pass is still outstanding: the peer is
		// silently dead (e.g. half-open TCP).
		if _, outstanding := m.pings.Load(addr); outstanding {
			log.Warningf("peer %s missed heartbeat window: %v", c.Peer(), common.ErrHeartbeatTimeout)
			m.pings.Delete(addr)
			c.Close()
			return true
		}

		// Recent inbound traffic proves liveness by itself. Outbound writes
		// do not: a half-open peer absorbs them indefinitely.
		if c.LastInbound().After(idleCutoff) {
			return true
		}

		seq := m.pingSeq.Add(1)
		m.pings.Store(addr, seq)
		if err := c.Send(wire.NewPing(seq)); err != nil {
			m.pings.Delete(addr)
		}
		return true
	})
}
