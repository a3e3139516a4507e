package common

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultRetryAttempts     = 3
	DefaultAckTimeout        = 2 * time.Second
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultConnectTimeout    = 5 * time.Second
	DefaultHandshakeTimeout  = 5 * time.Second
	DefaultMaxFrameSize      = 16 * 1024 * 1024 // 16 MiB
	DefaultSendBuffer        = 512              // frames buffered per connection writer
)

// --------------------------------------------------------------------------
// Socket tuning
// --------------------------------------------------------------------------

// TCPConf holds TCP-specific socket options applied to every established
// connection. Ignored by non-TCP transports.
type TCPConf struct {
	NoDelay         bool
	KeepAliveSec    int
	WriteBufferSize int
	ReadBufferSize  int
}

// --------------------------------------------------------------------------
// Node configuration struct
// --------------------------------------------------------------------------

// NodeConfig holds all configuration parameters recognized by actor and
// learner nodes. Zero values are replaced by the defaults above through
// DefaultNodeConfig; validation failures are fatal at node construction.
type NodeConfig struct {
	// Learner only: the port the acceptor binds to.
	Port int
	// Actor only: the "host:port" of the learner to connect to.
	LearnerAddress string

	// Reliable enables the reliability layer (ack + bounded retry).
	Reliable bool
	// RetryAttempts bounds the resend count per message in reliable mode.
	// It does not bound connection-level reconnects.
	RetryAttempts int
	// AckTimeout is the per-message wait before a retry is scheduled.
	AckTimeout time.Duration

	// HeartbeatInterval tunes liveness detection; a peer that does not
	// answer a Ping within one interval is treated as disconnected.
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	HandshakeTimeout  time.Duration

	// MaxFrameSize rejects oversize frames as malformed.
	MaxFrameSize uint32

	// StatusAddr, when non-empty, serves the learner's HTTP status and
	// metrics endpoints ("host:port").
	StatusAddr string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	TCP TCPConf
}

// DefaultNodeConfig returns a NodeConfig populated with the package defaults.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		RetryAttempts:     DefaultRetryAttempts,
		AckTimeout:        DefaultAckTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ConnectTimeout:    DefaultConnectTimeout,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		MaxFrameSize:      DefaultMaxFrameSize,
		LogLevel:          "info",
		TCP: TCPConf{
			NoDelay: true,
		},
	}
}

// Validate checks the invariants every node depends on. Configuration errors
// are the only errors that are fatal at startup.
func (c *NodeConfig) Validate() error {
	if c.MaxFrameSize < 64 {
		return fmt.Errorf("max frame size %d is too small", c.MaxFrameSize)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if c.Reliable && c.RetryAttempts < 1 {
		return fmt.Errorf("reliable mode requires at least one retry attempt, got %d", c.RetryAttempts)
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout must be positive, got %v", c.AckTimeout)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", c.HeartbeatInterval)
	}
	if c.LearnerAddress != "" {
		if _, _, err := ParseAddress(c.LearnerAddress); err != nil {
			return err
		}
	}
	return nil
}

// String returns a formatted string representation of the configuration.
func (c *NodeConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Node")
	if c.Port > 0 {
		addField("Listen Port", fmt.Sprintf("%d", c.Port))
	}
	if c.LearnerAddress != "" {
		addField("Learner Address", c.LearnerAddress)
	}
	addField("Log Level", c.LogLevel)
	if c.StatusAddr != "" {
		addField("Status Endpoint", c.StatusAddr)
	}

	addSection("Delivery")
	addField("Reliable", fmt.Sprintf("%t", c.Reliable))
	if c.Reliable {
		addField("Retry Attempts", fmt.Sprintf("%d", c.RetryAttempts))
		addField("Ack Timeout", c.AckTimeout.String())
	}

	addSection("Transport")
	addField("Heartbeat Interval", c.HeartbeatInterval.String())
	addField("Connect Timeout", c.ConnectTimeout.String())
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameSize))
	addField("TCP NoDelay", fmt.Sprintf("%t", c.TCP.NoDelay))
	if c.TCP.KeepAliveSec > 0 {
		addField("TCP KeepAlive", fmt.Sprintf("%d sec", c.TCP.KeepAliveSec))
	}

	return sb.String()
}
