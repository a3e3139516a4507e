package reliable

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rlink-io/rlink/rlink/common"
)

// senderMark is the duplicate-suppression state of one sender incarnation.
type senderMark struct {
	session uint64
	mark    atomic.Uint32
}

// Dedup tracks, per sender incarnation, the highest sequence number already
// delivered to the application. Redelivered frames (retries whose original
// made it through, or retries racing a lost ack) fall at or below the
// watermark and are suppressed.
//
// The state is keyed by sender address but scoped to the sender's session:
// a restarted process reusing the same address announces a new session in
// its handshake and starts over with a fresh watermark. Without that scope
// a restarted sender's sequences (which begin again at 1) would all sit
// below the dead incarnation's watermark and be dropped while still being
// acked.
//
// Sequences are assigned per logical peer and arrive in per-connection FIFO
// order, so a simple high-watermark is sufficient per incarnation.
type Dedup struct {
	watermarks *xsync.MapOf[string, *senderMark]
}

// NewDedup creates an empty watermark table.
func NewDedup() *Dedup {
	return &Dedup{watermarks: xsync.NewMapOf[string, *senderMark]()}
}

// ShouldDeliver reports whether the frame (sender, seq) is new. A true
// result advances the sender's watermark; a false result means the frame
// is a duplicate that must be re-acked but not delivered.
func (d *Dedup) ShouldDeliver(sender common.NodeIdentity, seq uint32) bool {
	wm, _ := d.watermarks.Compute(sender.Address(), func(cur *senderMark, loaded bool) (*senderMark, bool) {
		if loaded && cur.session == sender.Session {
			return cur, false
		}
		// First frame of a new incarnation: the previous watermark does
		// not apply to it.
		return &senderMark{session: sender.Session}, false
	})

	for {
		cur := wm.mark.Load()
		if seq <= cur {
			return false
		}
		if wm.mark.CompareAndSwap(cur, seq) {
			return true
		}
	}
}

// Forget drops all state of a sender address, every incarnation included.
func (d *Dedup) Forget(senderAddr string) {
	d.watermarks.Delete(senderAddr)
}
