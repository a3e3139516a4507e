package router

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rlink-io/rlink/rlink/common"
)

// Delivery is one application payload popped from the fan-in queue,
// together with the identity of the connection it arrived on.
type Delivery struct {
	From    common.NodeIdentity
	Seq     uint32
	Payload []byte
}

// qnode represents a single element in the delivery queue
type qnode struct {
	value *Delivery
	next  atomic.Pointer[qnode]
}

// DeliveryQueue is a lock-free multi-producer single-consumer queue merging
// all inbound connection streams into one arrival-ordered stream. Any
// number of read-loop goroutines may Push concurrently; exactly one
// consumer (the node's Receive path) reads from Recv.
//
// Under concurrent pushes the exact interleaving is determined by which
// producer completes first; per-producer order is preserved because each
// connection's read loop pushes sequentially.
type DeliveryQueue struct {
	head   atomic.Pointer[qnode]
	tail   atomic.Pointer[qnode]
	out    chan *Delivery
	closed atomic.Bool

	// Condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond

	consumer sync.WaitGroup
}

// NewDeliveryQueue creates an empty queue and starts its consumer.
func NewDeliveryQueue() *DeliveryQueue {
	// Sentinel node at the beginning keeps head/tail handling uniform.
	sentinel := &qnode{}

	q := &DeliveryQueue{
		out: make(chan *Delivery),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()
	return q
}

// Push appends a delivery. Returns false if the queue is closed.
//
// Thread-safety: safe for any number of concurrent producers.
func (q *DeliveryQueue) Push(d *Delivery) bool {
	if d == nil {
		return false
	}
	if q.closed.Load() {
		return false
	}

	newNode := &qnode{value: d}
	var backoff uint8

	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			// The tail has no next node yet, try to append our node.
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// CAS on tail may fail if another producer helps update
				// it; the tail still converges.
				q.tail.CompareAndSwap(tailNode, newNode)
				// Signal under the mutex: the consumer re-checks the list
				// under it before waiting, so a signal issued between its
				// check and its Wait cannot be lost.
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// Help along a producer that appended but has not updated
			// the tail yet.
			q.tail.CompareAndSwap(tailNode, next)
		}

		// Backoff under contention: spin first, yield once the retry
		// count grows.
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume moves deliveries from the linked list to the output channel.
func (q *DeliveryQueue) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}

			hasItems = true
			value := next.value
			q.head.Store(next)
			q.out <- value
			next.value = nil // help the gc
		}

		if !hasItems && q.closed.Load() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the consumer channel. The channel is closed after Close once
// all remaining deliveries were drained.
func (q *DeliveryQueue) Recv() <-chan *Delivery {
	return q.out
}

// Close prevents further pushes. Deliveries already queued are still
// handed to the consumer.
func (q *DeliveryQueue) Close() {
	q.closed.Store(true)
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}
