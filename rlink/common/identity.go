package common

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
)

// --------------------------------------------------------------------------
// Node Roles
// --------------------------------------------------------------------------

// Role tags a node as either a producer of experience data (actor) or a
// consumer that trains on it (learner).
type Role uint8

const (
	RoleUnknown Role = iota
	RoleActor        // generates trajectories and sends them to a learner
	RoleLearner      // consumes trajectories, distributes model parameters
)

// String returns the string representation of a Role.
func (r Role) String() string {
	switch r {
	case RoleActor:
		return "actor"
	case RoleLearner:
		return "learner"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for Role.
// This allows the role to travel as a string in the handshake payload.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Role.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "actor":
		*r = RoleActor
	case "learner":
		*r = RoleLearner
	default:
		return fmt.Errorf("unknown role: %s", s)
	}
	return nil
}

// --------------------------------------------------------------------------
// Node Identity
// --------------------------------------------------------------------------

// NodeIdentity is the process-unique address of one node: the host/port it
// can be reached at plus its role. It is immutable after node construction
// and is exchanged verbatim in the connection handshake.
type NodeIdentity struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Role Role   `json:"role"`

	// Session distinguishes process incarnations of the same address. It
	// is drawn once at node construction and travels in the handshake, so
	// a receiver can tell a reconnect (same session, duplicate sequences
	// must be suppressed) from a restart (new session, sequences start
	// over). Zero means the peer did not announce one.
	Session uint64 `json:"session,omitempty"`
}

// Address returns the identity in "host:port" textual form.
func (id NodeIdentity) Address() string {
	return net.JoinHostPort(id.Host, strconv.Itoa(id.Port))
}

// String returns a human-readable representation, e.g. "actor@10.0.0.1:5555".
func (id NodeIdentity) String() string {
	return fmt.Sprintf("%s@%s", id.Role, id.Address())
}

// ParseAddress splits a "host:port" string into its parts.
// A missing or non-numeric port is a configuration error.
func ParseAddress(addr string) (host string, port int, err error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %v", addr, err)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in address %q", addr)
	}
	return host, port, nil
}
