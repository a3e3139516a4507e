package manager

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/conn"
	"github.com/rlink-io/rlink/rlink/transport"
	"github.com/rlink-io/rlink/rlink/wire"
)

var log = logger.GetLogger("manager")

var (
	connectsTotal    = metrics.GetOrCreateCounter(`rlink_connects_total{direction="outbound"}`)
	acceptsTotal     = metrics.GetOrCreateCounter(`rlink_connects_total{direction="inbound"}`)
	disconnectsTotal = metrics.GetOrCreateCounter(`rlink_disconnects_total`)
)

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// FrameHandler receives every application-relevant inbound frame (Data and
// Ack); Ping/Pong never leave the manager.
type FrameHandler func(c *conn.Connection, f wire.Frame)

// ConnectHandler is fired once per registered connection, after the
// handshake announced the peer's identity.
type ConnectHandler func(peer common.NodeIdentity)

// DisconnectHandler is fired exactly once per connection loss.
type DisconnectHandler func(peer common.NodeIdentity)

// Manager owns all connections of one node. Connections are registered
// under the peer's announced address; at most one live connection per peer
// is kept (a newer one replaces and closes an older one).
type Manager struct {
	local     common.NodeIdentity
	cfg       common.NodeConfig
	connector transport.Connector

	conns *xsync.MapOf[string, *conn.Connection]

	onFrame      FrameHandler
	onConnect    ConnectHandler
	onDisconnect DisconnectHandler

	listener net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	pingSeq atomic.Uint32
	// pending pings per peer address; answered entries are removed by the
	// Pong handler, stale ones are reaped by the heartbeat loop.
	pings *xsync.MapOf[string, uint32]
}

// New creates a Manager for the given local identity. Handlers must be set
// via SetHandlers before the first Connect or Listen call.
func New(local common.NodeIdentity, cfg common.NodeConfig, connector transport.Connector) *Manager {
	return &Manager{
		local:     local,
		cfg:       cfg,
		connector: connector,
		conns:     xsync.NewMapOf[string, *conn.Connection](),
		pings:     xsync.NewMapOf[string, uint32](),
		stopCh:    make(chan struct{}),
	}
}

// SetHandlers wires the frame and lifecycle callbacks of the owning node.
func (m *Manager) SetHandlers(onFrame FrameHandler, onConnect ConnectHandler, onDisconnect DisconnectHandler) {
	m.onFrame = onFrame
	m.onConnect = onConnect
	m.onDisconnect = onDisconnect
}

// --------------------------------------------------------------------------
// Outbound
// --------------------------------------------------------------------------

// Connect dials the peer at addr, performs the identity handshake and
// registers the resulting connection. It fails with ErrConnectTimeout or
// ErrConnectRefused; retrying is the caller's responsibility.
func (m *Manager) Connect(addr string) (*conn.Connection, error) {
	netConn, err := m.connector.Dial(addr, m.cfg.ConnectTimeout)
	if err != nil {
		return nil, classifyDialError(addr, err)
	}

	c, err := m.setup(netConn, true)
	if err != nil {
		netConn.Close()
		return nil, err
	}

	connectsTotal.Inc()
	log.Infof("connected to %s via %s", c.Peer(), m.connector.Name())
	return c, nil
}

// classifyDialError maps transport dial failures onto the connect taxonomy.
func classifyDialError(addr string, err error) error {
	if errors.Is(err, common.ErrConnectTimeout) || errors.Is(err, common.ErrConnectRefused) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", common.ErrConnectTimeout, addr)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrConnectRefused, addr, err)
}

// --------------------------------------------------------------------------
// Inbound
// --------------------------------------------------------------------------

// Listen binds the given endpoint and accepts inbound connections until the
// manager closes. Each accepted connection is registered under the identity
// the remote peer announces in its handshake. Bind failures are returned
// synchronously (they are fatal at startup); accept errors after a
// successful bind are logged and survived.
func (m *Manager) Listen(endpoint string) error {
	listener, err := m.connector.Listen(endpoint)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %v", endpoint, err)
	}
	m.listener = listener

	log.Infof("listening on %s (%s)", endpoint, m.connector.Name())

	m.wg.Add(1)
	go m.acceptLoop(listener)
	return nil
}

func (m *Manager) acceptLoop(listener net.Listener) {
	defer m.wg.Done()
	for {
		netConn, err := listener.Accept()
		if err != nil {
			select {
			case <-m.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Errorf("accept error: %v", err)
			continue
		}

		// Handshake in its own goroutine so one slow peer cannot stall
		// the acceptor.
		go func() {
			c, err := m.setup(netConn, false)
			if err != nil {
				log.Warningf("inbound handshake failed: %v", err)
				netConn.Close()
				return
			}
			acceptsTotal.Inc()
			log.Infof("accepted %s", c.Peer())
		}()
	}
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// setup upgrades, handshakes and registers one fresh transport connection.
func (m *Manager) setup(netConn net.Conn, initiator bool) (*conn.Connection, error) {
	if err := m.connector.Upgrade(netConn, m.cfg); err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %v", err)
	}

	peer, err := conn.Handshake(netConn, m.local, initiator, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	direction := conn.Inbound
	if initiator {
		direction = conn.Outbound
	}

	c := conn.New(netConn, peer, direction, m.cfg, m.handleFrame, m.handleClose)

	if old, loaded := m.conns.LoadAndStore(peer.Address(), c); loaded && old != c {
		// A stale link to the same peer is superseded by the new one.
		old.Close()
	}
	if m.onConnect != nil {
		m.onConnect(peer)
	}

	// The connection may have died between registration and the connect
	// callback. Its close handler saw a registry entry that was not yet (or
	// no longer) this connection, so deregister it here; handleClose is
	// idempotent per connection.
	if c.IsClosed() {
		m.handleClose(c, nil)
		return nil, fmt.Errorf("connection to %s closed during setup", peer)
	}
	return c, nil
}

// Get returns the live connection to the given peer address, if any.
func (m *Manager) Get(addr string) (*conn.Connection, bool) {
	return m.conns.Load(addr)
}

// Range calls fn for every live connection.
func (m *Manager) Range(fn func(addr string, c *conn.Connection) bool) {
	m.conns.Range(fn)
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	return m.conns.Size()
}

// Close stops the acceptor and the heartbeat loop and closes every
// connection. Disconnect callbacks still fire for each of them.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.listener != nil {
			m.listener.Close()
		}
		m.conns.Range(func(_ string, c *conn.Connection) bool {
			c.Close()
			return true
		})
		m.wg.Wait()
	})
}

// --------------------------------------------------------------------------
// Frame and close plumbing
// --------------------------------------------------------------------------

// handleFrame answers liveness probes locally and forwards everything else
// to the node. Runs on the connection's read loop, in arrival order.
func (m *Manager) handleFrame(c *conn.Connection, f wire.Frame) {
	switch f.Kind {
	case wire.KindPing:
		if err := c.Send(wire.NewPong(f.Seq)); err != nil {
			log.Debugf("failed to answer ping from %s: %v", c.Peer(), err)
		}
	case wire.KindPong:
		if seq, ok := m.pings.Load(c.Peer().Address()); ok && seq == f.Seq {
			m.pings.Delete(c.Peer().Address())
		}
	default:
		if m.onFrame != nil {
			m.onFrame(c, f)
		}
	}
}

// handleClose deregisters the connection and notifies the node. It only
// acts when the registry still points at this exact connection: a superseded
// link closing must neither prune nor announce the loss of its replacement,
// and together with the connection's own close dedup this keeps disconnect
// notifications at exactly one per registered peer entry.
func (m *Manager) handleClose(c *conn.Connection, _ error) {
	addr := c.Peer().Address()

	pruned := false
	m.conns.Compute(addr, func(cur *conn.Connection, loaded bool) (*conn.Connection, bool) {
		if loaded && cur == c {
			pruned = true
			return nil, true
		}
		return cur, !loaded
	})
	if !pruned {
		return
	}

	m.pings.Delete(addr)
	disconnectsTotal.Inc()
	if m.onDisconnect != nil {
		m.onDisconnect(c.Peer())
	}
}
