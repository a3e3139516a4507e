package reliable

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rlink-io/rlink/rlink/common"
	"github.com/rlink-io/rlink/rlink/conn"
	"github.com/rlink-io/rlink/rlink/manager"
	"github.com/rlink-io/rlink/rlink/router"
	"github.com/rlink-io/rlink/rlink/transport/memory"
	"github.com/rlink-io/rlink/rlink/wire"
)

func testConfig() common.NodeConfig {
	cfg := common.DefaultNodeConfig()
	cfg.ConnectTimeout = time.Second
	cfg.HandshakeTimeout = time.Second
	cfg.AckTimeout = 60 * time.Millisecond
	cfg.RetryAttempts = 2
	return cfg
}

// startLearner runs a minimal learner that records inbound Data frames and,
// if ack is true, acknowledges each of them.
func startLearner(t *testing.T, id common.NodeIdentity, ack bool, frames chan<- wire.Frame) *manager.Manager {
	t.Helper()
	m := manager.New(id, testConfig(), memory.New())
	m.SetHandlers(func(c *conn.Connection, f wire.Frame) {
		if f.Kind != wire.KindData {
			return
		}
		if frames != nil {
			frames <- f
		}
		if ack {
			c.Send(wire.NewAck(f.Seq))
		}
	}, nil, nil)
	if err := m.Listen(id.Address()); err != nil {
		t.Fatalf("learner listen failed: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// startActor builds a fully wired actor stack: manager, router and
// reliability layer, with acks routed into the layer.
func startActor(t *testing.T, id common.NodeIdentity) (*manager.Manager, *router.Router, *Layer) {
	t.Helper()
	cfg := testConfig()
	m := manager.New(id, cfg, memory.New())
	rt := router.New(m)
	l := New(rt, cfg)

	m.SetHandlers(func(c *conn.Connection, f wire.Frame) {
		if f.Kind == wire.KindAck {
			l.HandleAck(c.Peer().Address(), f.Seq)
		}
	}, rt.PeerUp, rt.PeerDown)

	t.Cleanup(func() {
		l.Close()
		rt.Close()
		m.Close()
	})
	return m, rt, l
}

// TestAckResolvesAcknowledged tests the happy path: a reachable learner
// acks, the handle resolves Acknowledged without burning retries.
func TestAckResolvesAcknowledged(t *testing.T) {
	learnerID := common.NodeIdentity{Host: "learner-ack", Port: 5555, Role: common.RoleLearner}
	actorID := common.NodeIdentity{Host: "actor-ack", Port: 7001, Role: common.RoleActor}

	startLearner(t, learnerID, true, nil)
	actorMgr, _, layer := startActor(t, actorID)
	if _, err := actorMgr.Connect(learnerID.Address()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	h := layer.Send(learnerID, []byte(`{"obs":[1]}`))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := h.Wait(ctx)
	if outcome != OutcomeAcknowledged || err != nil {
		t.Fatalf("got (%v, %v), want (acknowledged, nil)", outcome, err)
	}
	if layer.Pending() != 0 {
		t.Errorf("pending table not empty after ack: %d", layer.Pending())
	}
}

// TestFailedAfterExactRetryBudget tests that a peer that receives but never
// acks causes exactly 1+R sends and a Failed resolution — no more, no fewer.
func TestFailedAfterExactRetryBudget(t *testing.T) {
	learnerID := common.NodeIdentity{Host: "learner-noack", Port: 5555, Role: common.RoleLearner}
	actorID := common.NodeIdentity{Host: "actor-noack", Port: 7001, Role: common.RoleActor}

	frames := make(chan wire.Frame, 16)
	startLearner(t, learnerID, false, frames)
	actorMgr, _, layer := startActor(t, actorID)
	if _, err := actorMgr.Connect(learnerID.Address()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	h := layer.Send(learnerID, []byte("doomed"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	outcome, err := h.Wait(ctx)
	if outcome != OutcomeFailed {
		t.Fatalf("got outcome %v, want failed", outcome)
	}
	if !errors.Is(err, common.ErrDeliveryFailed) {
		t.Errorf("got err %v, want ErrDeliveryFailed", err)
	}

	// Let any stray resend surface before counting.
	time.Sleep(3 * testConfig().AckTimeout)
	sends := len(frames)
	want := 1 + testConfig().RetryAttempts
	if sends != want {
		t.Errorf("observed %d sends, want exactly %d (1 initial + %d retries)",
			sends, want, testConfig().RetryAttempts)
	}
}

// TestRecoversWithinBudget tests that a peer unreachable at send time but
// restored within the retry budget still yields Acknowledged.
func TestRecoversWithinBudget(t *testing.T) {
	learnerID := common.NodeIdentity{Host: "learner-late", Port: 5555, Role: common.RoleLearner}
	actorID := common.NodeIdentity{Host: "actor-late", Port: 7001, Role: common.RoleActor}

	actorMgr, _, layer := startActor(t, actorID)

	// The learner is down: the initial send fails and the entry stays
	// pending.
	h := layer.Send(learnerID, []byte("early"))
	if layer.Pending() != 1 {
		t.Fatalf("expected 1 pending entry, got %d", layer.Pending())
	}

	// The learner comes up within one ack-timeout window.
	time.Sleep(testConfig().AckTimeout / 2)
	startLearner(t, learnerID, true, nil)
	if _, err := actorMgr.Connect(learnerID.Address()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	outcome, err := h.Wait(ctx)
	if outcome != OutcomeAcknowledged || err != nil {
		t.Fatalf("got (%v, %v), want (acknowledged, nil)", outcome, err)
	}
}

// TestCloseCancelsPending tests that closing the layer resolves in-flight
// handles to Cancelled immediately.
func TestCloseCancelsPending(t *testing.T) {
	learnerID := common.NodeIdentity{Host: "learner-cancel", Port: 5555, Role: common.RoleLearner}
	actorID := common.NodeIdentity{Host: "actor-cancel", Port: 7001, Role: common.RoleActor}

	_, _, layer := startActor(t, actorID)

	h := layer.Send(learnerID, []byte("never"))
	layer.Close()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handle did not resolve on Close")
	}
	if h.Outcome() != OutcomeCancelled {
		t.Errorf("got outcome %v, want cancelled", h.Outcome())
	}
	if !errors.Is(h.Err(), common.ErrCancelled) {
		t.Errorf("got err %v, want ErrCancelled", h.Err())
	}

	// Sends after Close resolve Cancelled without touching the wire.
	h2 := layer.Send(learnerID, []byte("after close"))
	if h2.Outcome() != OutcomeCancelled {
		t.Errorf("send after close resolved %v, want cancelled", h2.Outcome())
	}
}

// TestDedupWatermark tests the duplicate-suppression watermark directly.
func TestDedupWatermark(t *testing.T) {
	d := NewDedup()

	senderA := common.NodeIdentity{Host: "a", Port: 1, Role: common.RoleActor, Session: 11}
	senderB := common.NodeIdentity{Host: "b", Port: 1, Role: common.RoleActor, Session: 22}
	// Same address as senderA, later incarnation.
	senderA2 := common.NodeIdentity{Host: "a", Port: 1, Role: common.RoleActor, Session: 33}

	tests := []struct {
		sender common.NodeIdentity
		seq    uint32
		want   bool
	}{
		{senderA, 1, true},
		{senderA, 2, true},
		{senderA, 2, false}, // exact redelivery
		{senderA, 1, false}, // older than watermark
		{senderA, 3, true},
		{senderB, 1, true},  // independent sender
		{senderA2, 1, true}, // restarted sender starts over
		{senderA2, 1, false},
		{senderA2, 2, true},
	}
	for i, tc := range tests {
		if got := d.ShouldDeliver(tc.sender, tc.seq); got != tc.want {
			t.Errorf("case %d (%s session %d, seq %d): got %t, want %t",
				i, tc.sender, tc.sender.Session, tc.seq, got, tc.want)
		}
	}

	d.Forget(senderA2.Address())
	if !d.ShouldDeliver(senderA2, 1) {
		t.Error("forgotten sender must start over at seq 1")
	}
}
