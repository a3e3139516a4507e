package transport

import (
	"net"
	"time"

	"github.com/rlink-io/rlink/rlink/common"
)

// Connector is the transport capability set rlink is polymorphic over:
// dial a peer, accept peers, tune an established connection.
type Connector interface {
	// Dial establishes one connection to the given endpoint, bounded by
	// timeout. The endpoint uses the "host:port" textual form.
	Dial(endpoint string, timeout time.Duration) (net.Conn, error)

	// Listen binds the given endpoint and returns a listener producing
	// inbound connections.
	Listen(endpoint string) (net.Listener, error)

	// Upgrade applies transport-specific settings (buffer sizes,
	// keep-alive, ...) to an established connection. Connectors with no
	// tunables return nil unconditionally.
	Upgrade(conn net.Conn, cfg common.NodeConfig) error

	// Name returns the name of the transport type (e.g. "tcp", "memory").
	Name() string
}
