package conn

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/wire"
)

var log = logger.GetLogger("conn")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Direction records which side initiated the connection.
type Direction uint8

const (
	Outbound Direction = iota // this node dialed the peer
	Inbound                   // the peer dialed this node
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// FrameHandler is called for every inbound frame, in arrival order, from the
// connection's read loop. Handlers must not block on I/O of this connection.
type FrameHandler func(c *Connection, f wire.Frame)

// CloseHandler is called exactly once when the connection transitions to
// Closed, with the error that caused the transition (io.EOF for an orderly
// peer shutdown).
type CloseHandler func(c *Connection, reason error)

// Connection is one established, handshaken link to a peer.
type Connection struct {
	peer      common.NodeIdentity
	direction Direction
	netConn   net.Conn

	maxFrameSize uint32
	sendCh       chan wire.Frame
	closedCh     chan struct{}
	closeOnce    sync.Once
	closed       atomic.Bool

	onFrame FrameHandler
	onClose CloseHandler

	// lastInbound is the unix-nano timestamp of the last frame received
	// from the peer; the heartbeat loop uses it to detect idleness. Only
	// inbound traffic counts: our own writes say nothing about whether the
	// peer is still there.
	lastInbound atomic.Int64
}

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

// New wraps an already-handshaken net.Conn and starts its read and write
// loops. The connection is Open on return.
func New(netConn net.Conn, peer common.NodeIdentity, direction Direction, cfg common.NodeConfig, onFrame FrameHandler, onClose CloseHandler) *Connection {
	c := &Connection{
		peer:         peer,
		direction:    direction,
		netConn:      netConn,
		maxFrameSize: cfg.MaxFrameSize,
		sendCh:       make(chan wire.Frame, common.DefaultSendBuffer),
		closedCh:     make(chan struct{}),
		onFrame:      onFrame,
		onClose:      onClose,
	}
	c.touch()

	go c.writeLoop()
	go c.readLoop()

	log.Debugf("connection to %s established (%s)", peer, direction)
	return c
}

// --------------------------------------------------------------------------
// Public API
// --------------------------------------------------------------------------

// Peer returns the identity the remote side announced in the handshake.
func (c *Connection) Peer() common.NodeIdentity {
	return c.peer
}

// Direction returns which side initiated the connection.
func (c *Connection) Direction() Direction {
	return c.direction
}

// Send enqueues a frame for the writer goroutine. It fails fast with
// ErrConnClosed once the connection has transitioned to Closed; it never
// blocks past that transition.
func (c *Connection) Send(f wire.Frame) error {
	if c.closed.Load() {
		return common.ErrConnClosed
	}
	select {
	case c.sendCh <- f:
		return nil
	case <-c.closedCh:
		return common.ErrConnClosed
	}
}

// Close shuts the connection down. Safe to call from any goroutine and any
// number of times; the owner is notified exactly once.
func (c *Connection) Close() {
	c.close(nil)
}

// LastInbound returns the time of the last frame received from the peer.
// The handshake counts as the first inbound event.
func (c *Connection) LastInbound() time.Time {
	return time.Unix(0, c.lastInbound.Load())
}

// IsClosed reports whether the connection has transitioned to Closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// --------------------------------------------------------------------------
// Loops
// --------------------------------------------------------------------------

// writeLoop is the single writer of the underlying net.Conn. Frames are
// written whole, so concurrent senders can never interleave partial frames.
func (c *Connection) writeLoop() {
	for {
		select {
		case f := <-c.sendCh:
			if err := wire.EncodeTo(c.netConn, f, c.maxFrameSize); err != nil {
				c.close(err)
				return
			}
		case <-c.closedCh:
			return
		}
	}
}

// readLoop decodes inbound bytes into frames and delivers them in arrival
// order. Any decode or I/O error closes the connection.
func (c *Connection) readLoop() {
	dec := wire.NewDecoder(c.netConn, c.maxFrameSize)
	for {
		f, err := dec.Next()
		if err != nil {
			c.close(err)
			return
		}
		c.touch()
		c.onFrame(c, f)
	}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// close performs the single Closed transition. Deduplicated by closeOnce so
// concurrent failures of both loops still notify the owner exactly once.
func (c *Connection) close(reason error) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closedCh)
		c.netConn.Close()

		if reason != nil && reason != io.EOF {
			log.Warningf("connection to %s closed: %v", c.peer, reason)
		} else {
			log.Debugf("connection to %s closed", c.peer)
		}
		if c.onClose != nil {
			c.onClose(c, reason)
		}
	})
}

func (c *Connection) touch() {
	c.lastInbound.Store(time.Now().UnixNano())
}
