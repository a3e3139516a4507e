package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/transport"
)

// connector implements the transport.Connector interface for TCP sockets
type connector struct{}

// New creates the TCP transport connector.
func New() transport.Connector {
	return &connector{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.Connector)
// --------------------------------------------------------------------------

func (c *connector) Name() string {
	return "tcp"
}

func (c *connector) Dial(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

func (c *connector) Listen(endpoint string) (net.Listener, error) {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %v", err)
	}
	return listener, nil
}

// Upgrade applies performance settings from the node configuration to an
// established TCP connection.
func (c *connector) Upgrade(conn net.Conn, cfg common.NodeConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(cfg.TCP.NoDelay); err != nil {
		return err
	}

	// Set socket write buffer size if configured
	if cfg.TCP.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(cfg.TCP.WriteBufferSize); err != nil {
			return err
		}
	}

	// Set socket read buffer size if configured
	if cfg.TCP.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(cfg.TCP.ReadBufferSize); err != nil {
			return err
		}
	}

	// Enable TCP keep-alive if configured
	if cfg.TCP.KeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(cfg.TCP.KeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	return nil
}
