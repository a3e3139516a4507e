package memory

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/transport"
)

// --------------------------------------------------------------------------
// Endpoint registry
// --------------------------------------------------------------------------

var (
	registryMu sync.Mutex
	registry   = map[string]*memListener{}
)

// --------------------------------------------------------------------------
// Connector
// --------------------------------------------------------------------------

// connector implements the transport.Connector interface over net.Pipe
type connector struct{}

// New creates the in-process loopback connector.
func New() transport.Connector {
	return &connector{}
}

func (c *connector) Name() string {
	return "memory"
}

func (c *connector) Dial(endpoint string, timeout time.Duration) (net.Conn, error) {
	registryMu.Lock()
	l, ok := registry[endpoint]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no listener on memory endpoint %q", common.ErrConnectRefused, endpoint)
	}

	local, remote := net.Pipe()

	select {
	case l.pending <- remote:
		return local, nil
	case <-l.closed:
		local.Close()
		remote.Close()
		return nil, fmt.Errorf("%w: memory endpoint %q is closed", common.ErrConnectRefused, endpoint)
	case <-time.After(timeout):
		local.Close()
		remote.Close()
		return nil, fmt.Errorf("%w: memory endpoint %q did not accept", common.ErrConnectTimeout, endpoint)
	}
}

func (c *connector) Listen(endpoint string) (net.Listener, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[endpoint]; exists {
		return nil, fmt.Errorf("memory endpoint %q already bound", endpoint)
	}

	l := &memListener{
		endpoint: endpoint,
		pending:  make(chan net.Conn, 16),
		closed:   make(chan struct{}),
	}
	registry[endpoint] = l
	return l, nil
}

// Upgrade is a no-op: pipes have no socket options.
func (c *connector) Upgrade(_ net.Conn, _ common.NodeConfig) error {
	return nil
}

// --------------------------------------------------------------------------
// Listener
// --------------------------------------------------------------------------

// memListener implements net.Listener over the endpoint registry.
type memListener struct {
	endpoint  string
	pending   chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *memListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.pending:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *memListener) Close() error {
	l.closeOnce.Do(func() {
		registryMu.Lock()
		delete(registry, l.endpoint)
		registryMu.Unlock()
		close(l.closed)
	})
	return nil
}

func (l *memListener) Addr() net.Addr {
	return memAddr(l.endpoint)
}

// memAddr implements net.Addr for memory endpoints.
type memAddr string

func (a memAddr) Network() string { return "memory" }
func (a memAddr) String() string  { return string(a) }
