package reliable

import (
	"context"
	"sync"

	"github.com/rlink-io/rlink/rlink/common"
)

// --------------------------------------------------------------------------
// Outcome
// --------------------------------------------------------------------------

// Outcome is the terminal state of a reliable send.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeAcknowledged
	OutcomeFailed
	OutcomeCancelled
)

// String returns the string representation of an Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAcknowledged:
		return "acknowledged"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

// Handle is the future returned by a reliable send. It resolves exactly
// once; the caller is never blocked for the full retry horizon unless it
// chooses to Wait.
type Handle struct {
	peer common.NodeIdentity
	seq  uint32

	done    chan struct{}
	once    sync.Once
	outcome Outcome
	err     error
}

func newHandle(peer common.NodeIdentity, seq uint32) *Handle {
	return &Handle{
		peer: peer,
		seq:  seq,
		done: make(chan struct{}),
	}
}

// Peer returns the target of the send.
func (h *Handle) Peer() common.NodeIdentity { return h.peer }

// Seq returns the sequence number assigned to the send.
func (h *Handle) Seq() uint32 { return h.seq }

// Done returns a channel closed when the handle resolves.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Outcome returns the terminal state, or OutcomePending while in flight.
func (h *Handle) Outcome() Outcome {
	select {
	case <-h.done:
		return h.outcome
	default:
		return OutcomePending
	}
}

// Err returns the resolution error: nil for Acknowledged, ErrDeliveryFailed
// for Failed, ErrCancelled for Cancelled. Only meaningful once resolved.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the handle resolves or the context ends.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, h.err
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}

// resolve settles the handle. Later calls are no-ops, so an ack racing the
// retry scanner cannot flip a terminal state.
func (h *Handle) resolve(outcome Outcome, err error) {
	h.once.Do(func() {
		h.outcome = outcome
		h.err = err
		close(h.done)
	})
}
