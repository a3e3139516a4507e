package conn

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/wire"
)

func testConfig() common.NodeConfig {
	cfg := common.DefaultNodeConfig()
	cfg.HandshakeTimeout = time.Second
	return cfg
}

var (
	actorID   = common.NodeIdentity{Host: "127.0.0.1", Port: 6001, Role: common.RoleActor}
	learnerID = common.NodeIdentity{Host: "127.0.0.1", Port: 5555, Role: common.RoleLearner}
)

// handshakePair runs the identity exchange over a pipe and returns both
// announced identities as seen by the other side.
func handshakePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	cfg := testConfig()
	a, b := net.Pipe()

	var wg sync.WaitGroup
	var peerOfA, peerOfB common.NodeIdentity
	var errA, errB error

	wg.Add(2)
	go func() {
		defer wg.Done()
		peerOfA, errA = Handshake(a, actorID, true, cfg)
	}()
	go func() {
		defer wg.Done()
		peerOfB, errB = Handshake(b, learnerID, false, cfg)
	}()
	wg.Wait()

	if errA != nil || errB != nil {
		t.Fatalf("handshake failed: initiator=%v acceptor=%v", errA, errB)
	}
	if peerOfA != learnerID {
		t.Errorf("initiator saw peer %v, want %v", peerOfA, learnerID)
	}
	if peerOfB != actorID {
		t.Errorf("acceptor saw peer %v, want %v", peerOfB, actorID)
	}
	return a, b
}

// TestHandshakeExchangesIdentities tests that both sides learn the identity
// the other announced.
func TestHandshakeExchangesIdentities(t *testing.T) {
	a, b := handshakePair(t)
	a.Close()
	b.Close()
}

// TestPerConnectionFIFO tests that a burst of frames arrives in the exact
// order it was sent.
func TestPerConnectionFIFO(t *testing.T) {
	a, b := handshakePair(t)
	cfg := testConfig()

	const n = 100
	received := make(chan wire.Frame, n)

	sender := New(a, learnerID, Outbound, cfg, func(_ *Connection, _ wire.Frame) {}, nil)
	receiver := New(b, actorID, Inbound, cfg, func(_ *Connection, f wire.Frame) {
		received <- f
	}, nil)
	defer sender.Close()
	defer receiver.Close()

	for i := 1; i <= n; i++ {
		payload := []byte(fmt.Sprintf("frame-%d", i))
		if err := sender.Send(wire.NewData(uint32(i), payload)); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}

	for i := 1; i <= n; i++ {
		select {
		case f := <-received:
			if f.Seq != uint32(i) {
				t.Fatalf("frame %d arrived out of order (seq %d)", i, f.Seq)
			}
			if want := []byte(fmt.Sprintf("frame-%d", i)); !bytes.Equal(f.Payload, want) {
				t.Fatalf("frame %d payload mismatch", i)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
}

// TestCloseNotifiesOnce tests that the owner sees exactly one close
// notification even when Close races with a peer-side teardown.
func TestCloseNotifiesOnce(t *testing.T) {
	a, b := handshakePair(t)
	cfg := testConfig()

	var notifications atomic.Int32
	c := New(a, learnerID, Outbound, cfg, func(_ *Connection, _ wire.Frame) {}, func(_ *Connection, _ error) {
		notifications.Add(1)
	})

	// Fail both directions at once: the peer end disappears while we also
	// close locally.
	b.Close()
	c.Close()
	c.Close()

	time.Sleep(50 * time.Millisecond)
	if got := notifications.Load(); got != 1 {
		t.Errorf("expected exactly 1 close notification, got %d", got)
	}
}

// TestSendAfterCloseFailsFast tests that Send returns ErrConnClosed without
// blocking once the connection is down.
func TestSendAfterCloseFailsFast(t *testing.T) {
	a, b := handshakePair(t)
	defer b.Close()
	cfg := testConfig()

	c := New(a, learnerID, Outbound, cfg, func(_ *Connection, _ wire.Frame) {}, nil)
	c.Close()

	done := make(chan error, 1)
	go func() {
		done <- c.Send(wire.NewData(1, []byte("late")))
	}()

	select {
	case err := <-done:
		if err != common.ErrConnClosed {
			t.Errorf("expected ErrConnClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a closed connection")
	}
}
