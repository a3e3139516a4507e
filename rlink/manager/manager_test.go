package manager

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/conn"
	"github.com/rlink-io/rlink/rlink/transport/memory"
	"github.com/rlink-io/rlink/rlink/wire"
)

func testConfig() common.NodeConfig {
	cfg := common.DefaultNodeConfig()
	cfg.ConnectTimeout = time.Second
	cfg.HandshakeTimeout = time.Second
	cfg.HeartbeatInterval = 50 * time.Millisecond
	return cfg
}

// newPair starts a listening learner manager and a connected actor manager
// over the memory transport. The endpoint doubles as the learner address.
func newPair(t *testing.T, endpoint string, learnerFrames chan wire.Frame, learnerDisconnects chan common.NodeIdentity) (*Manager, *Manager) {
	t.Helper()
	cfg := testConfig()

	host, port, err := common.ParseAddress(endpoint)
	if err != nil {
		t.Fatalf("bad test endpoint: %v", err)
	}
	learnerID := common.NodeIdentity{Host: host, Port: port, Role: common.RoleLearner}
	actorID := common.NodeIdentity{Host: "actor-1", Port: 7001, Role: common.RoleActor}

	learner := New(learnerID, cfg, memory.New())
	learner.SetHandlers(
		func(_ *conn.Connection, f wire.Frame) {
			if learnerFrames != nil {
				learnerFrames <- f
			}
		},
		nil,
		func(peer common.NodeIdentity) {
			if learnerDisconnects != nil {
				learnerDisconnects <- peer
			}
		},
	)
	if err := learner.Listen(endpoint); err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(learner.Close)

	actor := New(actorID, cfg, memory.New())
	actor.SetHandlers(func(_ *conn.Connection, _ wire.Frame) {}, nil, nil)
	if _, err := actor.Connect(endpoint); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(actor.Close)

	return learner, actor
}

// TestConnectRefused tests that dialing an endpoint without a listener
// surfaces the connect taxonomy, not a generic error.
func TestConnectRefused(t *testing.T) {
	actorID := common.NodeIdentity{Host: "actor-1", Port: 7001, Role: common.RoleActor}
	m := New(actorID, testConfig(), memory.New())
	m.SetHandlers(func(_ *conn.Connection, _ wire.Frame) {}, nil, nil)
	defer m.Close()

	_, err := m.Connect("nobody:1")
	if !errors.Is(err, common.ErrConnectRefused) {
		t.Errorf("expected ErrConnectRefused, got %v", err)
	}
}

// TestConnectRegistersBothSides tests that after connect+accept both
// managers hold a connection registered under the announced peer identity.
func TestConnectRegistersBothSides(t *testing.T) {
	frames := make(chan wire.Frame, 1)
	learner, actor := newPair(t, "learner-reg:5555", frames, nil)

	// The learner registers asynchronously after its accept handshake.
	deadline := time.Now().Add(time.Second)
	for learner.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if learner.Count() != 1 {
		t.Fatalf("learner has %d connections, want 1", learner.Count())
	}
	if _, ok := learner.Get("actor-1:7001"); !ok {
		t.Error("learner did not register the actor under its announced identity")
	}

	// Data frames flow to the handler.
	c, ok := actor.Get("learner-reg:5555")
	if !ok {
		t.Fatal("actor did not register the learner connection")
	}
	if err := c.Send(wire.NewData(1, []byte("obs"))); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	select {
	case f := <-frames:
		if f.Seq != 1 || string(f.Payload) != "obs" {
			t.Errorf("unexpected frame %v %q", f.Seq, f.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("learner never received the data frame")
	}
}

// TestDisconnectFiresExactlyOnce tests the exactly-once contract of the
// disconnect callback.
func TestDisconnectFiresExactlyOnce(t *testing.T) {
	disconnects := make(chan common.NodeIdentity, 4)
	_, actor := newPair(t, "learner-disc:5555", nil, disconnects)

	c, _ := actor.Get("learner-disc:5555")
	c.Close()
	c.Close()

	select {
	case peer := <-disconnects:
		if peer.Role != common.RoleActor {
			t.Errorf("disconnect reported %v, want the actor", peer)
		}
	case <-time.After(time.Second):
		t.Fatal("disconnect callback never fired")
	}

	select {
	case <-disconnects:
		t.Error("disconnect callback fired more than once")
	case <-time.After(150 * time.Millisecond):
	}
}

// TestReplacedConnectionKeepsPeerRegistered tests that when a new connection
// supersedes an older one to the same peer, closing the old one neither
// deregisters the replacement nor reports the peer as disconnected.
func TestReplacedConnectionKeepsPeerRegistered(t *testing.T) {
	cfg := testConfig()
	learnerID := common.NodeIdentity{Host: "learner-repl", Port: 5555, Role: common.RoleLearner}
	actorID := common.NodeIdentity{Host: "actor-repl", Port: 7001, Role: common.RoleActor}

	disconnects := make(chan common.NodeIdentity, 4)
	learner := New(learnerID, cfg, memory.New())
	learner.SetHandlers(func(_ *conn.Connection, _ wire.Frame) {}, nil, func(peer common.NodeIdentity) {
		disconnects <- peer
	})
	if err := learner.Listen("learner-repl:5555"); err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer learner.Close()

	// Two managers announcing the same identity connect in sequence; the
	// second registration supersedes and closes the first connection.
	for i := 0; i < 2; i++ {
		actor := New(actorID, cfg, memory.New())
		actor.SetHandlers(func(_ *conn.Connection, _ wire.Frame) {}, nil, nil)
		if _, err := actor.Connect("learner-repl:5555"); err != nil {
			t.Fatalf("connect %d failed: %v", i, err)
		}
		defer actor.Close()
	}

	// The learner must still hold exactly the replacement entry.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c, ok := learner.Get("actor-repl:7001"); ok && !c.IsClosed() && learner.Count() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if learner.Count() != 1 {
		t.Fatalf("learner has %d connections, want 1", learner.Count())
	}
	c, ok := learner.Get("actor-repl:7001")
	if !ok || c.IsClosed() {
		t.Fatal("replacement connection missing or closed")
	}

	select {
	case peer := <-disconnects:
		t.Errorf("superseded connection reported %v as disconnected", peer)
	case <-time.After(150 * time.Millisecond):
	}
}

// TestHeartbeatKeepsLiveConnection tests that a peer whose manager answers
// pings survives several idle heartbeat windows.
func TestHeartbeatKeepsLiveConnection(t *testing.T) {
	disconnects := make(chan common.NodeIdentity, 1)
	learner, actor := newPair(t, "learner-hb:5555", nil, disconnects)
	learner.StartHeartbeat()
	actor.StartHeartbeat()

	select {
	case peer := <-disconnects:
		t.Fatalf("live peer %v was disconnected by heartbeat", peer)
	case <-time.After(6 * testConfig().HeartbeatInterval):
	}
}

// TestHeartbeatClosesUnresponsiveReceiver tests that a peer that keeps
// reading but never writes back is still detected as dead: our own outbound
// frames must not count as proof of the peer's liveness.
func TestHeartbeatClosesUnresponsiveReceiver(t *testing.T) {
	cfg := testConfig()
	learnerID := common.NodeIdentity{Host: "learner-sink", Port: 5555, Role: common.RoleLearner}

	var disconnects atomic.Int32
	learner := New(learnerID, cfg, memory.New())
	learner.SetHandlers(func(_ *conn.Connection, _ wire.Frame) {}, nil, func(common.NodeIdentity) {
		disconnects.Add(1)
	})
	if err := learner.Listen("learner-sink:5555"); err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer learner.Close()
	learner.StartHeartbeat()

	// A raw transport client that handshakes, then drains everything the
	// learner sends without ever writing a byte back.
	connector := memory.New()
	netConn, err := connector.Dial("learner-sink:5555", time.Second)
	if err != nil {
		t.Fatalf("raw dial failed: %v", err)
	}
	defer netConn.Close()

	sinkID := common.NodeIdentity{Host: "actor-sink", Port: 7009, Role: common.RoleActor}
	if _, err := conn.Handshake(netConn, sinkID, true, cfg); err != nil {
		t.Fatalf("raw handshake failed: %v", err)
	}
	go func() {
		dec := wire.NewDecoder(netConn, cfg.MaxFrameSize)
		for {
			if _, err := dec.Next(); err != nil {
				return
			}
		}
	}()

	// The learner writes continuously; that traffic alone must not keep
	// the connection alive.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		seq := uint32(0)
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
			}
			if c, ok := learner.Get("actor-sink:7009"); ok {
				seq++
				c.Send(wire.NewData(seq, []byte("params")))
			}
		}
	}()

	deadline := time.Now().Add(time.Second)
	for disconnects.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if disconnects.Load() == 0 {
		t.Fatal("read-only peer was never disconnected")
	}
}

// TestHeartbeatTimeoutClosesSilentPeer tests that a peer that handshakes
// and then goes silent is detected and disconnected.
func TestHeartbeatTimeoutClosesSilentPeer(t *testing.T) {
	cfg := testConfig()
	learnerID := common.NodeIdentity{Host: "learner-dead", Port: 5555, Role: common.RoleLearner}

	var disconnects atomic.Int32
	learner := New(learnerID, cfg, memory.New())
	learner.SetHandlers(func(_ *conn.Connection, _ wire.Frame) {}, nil, func(common.NodeIdentity) {
		disconnects.Add(1)
	})
	if err := learner.Listen("learner-dead:5555"); err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer learner.Close()
	learner.StartHeartbeat()

	// A raw transport client that handshakes and then never reads or
	// writes again: the learner's pings must go unanswered.
	connector := memory.New()
	netConn, err := connector.Dial("learner-dead:5555", time.Second)
	if err != nil {
		t.Fatalf("raw dial failed: %v", err)
	}
	defer netConn.Close()

	deadID := common.NodeIdentity{Host: "actor-dead", Port: 7009, Role: common.RoleActor}
	if _, err := conn.Handshake(netConn, deadID, true, cfg); err != nil {
		t.Fatalf("raw handshake failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for disconnects.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if disconnects.Load() != 1 {
		t.Fatalf("silent peer not disconnected (callbacks: %d)", disconnects.Load())
	}
}
