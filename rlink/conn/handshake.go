package conn

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/wire"
)

// Handshake exchanges node identities on a freshly established transport
// connection. The initiating side announces first; the accepting side
// replies before any application traffic flows. The whole exchange is
// bounded by the configured handshake timeout.
func Handshake(netConn net.Conn, local common.NodeIdentity, initiator bool, cfg common.NodeConfig) (common.NodeIdentity, error) {
	deadline := time.Now().Add(cfg.HandshakeTimeout)
	if err := netConn.SetDeadline(deadline); err != nil {
		return common.NodeIdentity{}, fmt.Errorf("failed to set handshake deadline: %v", err)
	}
	// Loops manage their own deadlines from here on.
	defer netConn.SetDeadline(time.Time{})

	if initiator {
		if err := announce(netConn, local, cfg.MaxFrameSize); err != nil {
			return common.NodeIdentity{}, err
		}
		return expect(netConn, cfg.MaxFrameSize)
	}

	peer, err := expect(netConn, cfg.MaxFrameSize)
	if err != nil {
		return common.NodeIdentity{}, err
	}
	if err := announce(netConn, local, cfg.MaxFrameSize); err != nil {
		return common.NodeIdentity{}, err
	}
	return peer, nil
}

// announce writes the local identity as the handshake frame.
func announce(netConn net.Conn, local common.NodeIdentity, maxFrameSize uint32) error {
	payload, err := json.Marshal(local)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %v", err)
	}
	if err := wire.EncodeTo(netConn, wire.NewData(0, payload), maxFrameSize); err != nil {
		return fmt.Errorf("failed to send identity: %v", err)
	}
	return nil
}

// expect reads the peer's handshake frame and parses the announced identity.
func expect(netConn net.Conn, maxFrameSize uint32) (common.NodeIdentity, error) {
	frame, err := wire.NewDecoder(netConn, maxFrameSize).Next()
	if err != nil {
		return common.NodeIdentity{}, fmt.Errorf("failed to read identity frame: %w", err)
	}
	if frame.Kind != wire.KindData {
		return common.NodeIdentity{}, &common.MalformedFrameError{
			Reason: "handshake frame must be of kind data",
			Kind:   uint8(frame.Kind),
		}
	}

	var peer common.NodeIdentity
	if err := json.Unmarshal(frame.Payload, &peer); err != nil {
		return common.NodeIdentity{}, fmt.Errorf("failed to decode peer identity: %v", err)
	}
	if peer.Role == common.RoleUnknown || peer.Host == "" {
		return common.NodeIdentity{}, fmt.Errorf("peer announced incomplete identity %v", peer)
	}
	return peer, nil
}
