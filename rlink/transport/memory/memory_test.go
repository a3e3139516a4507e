package memory

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rlink-io/rlink/rlink/common"
)

const dialTimeout = time.Second

// TestDialListen tests that bytes written on a dialed connection arrive at
// the accepted end.
func TestDialListen(t *testing.T) {
	c := New()

	l, err := c.Listen("test-dial-listen")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	client, err := c.Dial("test-dial-listen", dialTimeout)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	server := <-accepted
	defer server.Close()

	want := []byte("hello")
	go client.Write(want)

	got := make([]byte, len(want))
	if _, err := server.Read(got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestDialUnbound tests that dialing an endpoint nobody listens on is
// reported as a refused connect.
func TestDialUnbound(t *testing.T) {
	c := New()
	_, err := c.Dial("test-nobody-home", dialTimeout)
	if !errors.Is(err, common.ErrConnectRefused) {
		t.Errorf("expected ErrConnectRefused, got %v", err)
	}
}

// TestDoubleBind tests that an endpoint can only be bound once.
func TestDoubleBind(t *testing.T) {
	c := New()
	l, err := c.Listen("test-double-bind")
	if err != nil {
		t.Fatalf("first listen failed: %v", err)
	}
	defer l.Close()

	if _, err := c.Listen("test-double-bind"); err == nil {
		t.Error("expected error on second bind, got nil")
	}
}

// TestListenerClose tests that closing the listener unblocks Accept and
// deregisters the endpoint.
func TestListenerClose(t *testing.T) {
	c := New()
	l, err := c.Listen("test-close")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		done <- err
	}()

	l.Close()

	if err := <-done; !errors.Is(err, net.ErrClosed) {
		t.Errorf("expected net.ErrClosed from Accept, got %v", err)
	}

	// Endpoint must be dialable again after a re-bind.
	l2, err := c.Listen("test-close")
	if err != nil {
		t.Fatalf("re-bind failed: %v", err)
	}
	l2.Close()
}
