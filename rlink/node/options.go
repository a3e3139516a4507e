package node

import (
	"time"

	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/transport"
	"github.com/rlink-io/rlink/rlink/transport/tcp"
)

// options collects everything a node constructor needs beyond its role.
type options struct {
	cfg       common.NodeConfig
	connector transport.Connector
	identity  *common.NodeIdentity // optional override, role is still enforced
}

func defaultOptions() options {
	return options{
		cfg:       common.DefaultNodeConfig(),
		connector: tcp.New(),
	}
}

// Option configures a node at construction time.
type Option func(*options)

// WithConfig replaces the whole configuration at once. Apply it before any
// field-level option.
func WithConfig(cfg common.NodeConfig) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithReliable enables the reliability layer with the given retry budget
// per message.
func WithReliable(retryAttempts int) Option {
	return func(o *options) {
		o.cfg.Reliable = true
		o.cfg.RetryAttempts = retryAttempts
	}
}

// WithAckTimeout tunes the per-message wait before a retry in reliable mode.
func WithAckTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.AckTimeout = d }
}

// WithHeartbeatInterval tunes liveness detection cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) { o.cfg.HeartbeatInterval = d }
}

// WithConnectTimeout bounds outbound connection establishment.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.ConnectTimeout = d }
}

// WithMaxFrameSize sets the size above which frames are rejected as
// malformed.
func WithMaxFrameSize(n uint32) Option {
	return func(o *options) { o.cfg.MaxFrameSize = n }
}

// WithTransport selects the transport variant (tcp is the default; memory
// serves in-process setups and tests).
func WithTransport(c transport.Connector) Option {
	return func(o *options) { o.connector = c }
}

// WithStatusAddr enables the learner's HTTP status endpoint on addr.
func WithStatusAddr(addr string) Option {
	return func(o *options) { o.cfg.StatusAddr = addr }
}

// WithLogLevel sets the log level for all rlink loggers (debug, info,
// warn, error).
func WithLogLevel(level string) Option {
	return func(o *options) { o.cfg.LogLevel = level }
}

// WithIdentity overrides the identity the node announces in handshakes.
// Learners also bind host:port; actors use it for identification only.
func WithIdentity(host string, port int) Option {
	return func(o *options) {
		o.identity = &common.NodeIdentity{Host: host, Port: port}
	}
}

// WithTCP applies socket tuning for the tcp transport.
func WithTCP(conf common.TCPConf) Option {
	return func(o *options) { o.cfg.TCP = conf }
}
