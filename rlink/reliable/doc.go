// Package reliable turns best-effort sends into an at-least-once delivery
// contract bounded by a retry budget.
//
// Sender side: every reliable send gets an entry in the pending table and a
// Handle that resolves to exactly one of Acknowledged, Failed or Cancelled.
// A fixed-interval scan resends entries whose ack timeout elapsed, reusing
// the original sequence number (possibly over a reconnected link); an entry
// whose budget is exhausted resolves Failed. Closing the layer resolves all
// remaining entries to Cancelled immediately instead of waiting out their
// retries.
//
// Receiver side: a per-sender watermark of the highest delivered sequence
// number makes redelivery idempotent — a frame at or below the watermark is
// re-acknowledged but suppressed, so the application never sees the same
// (sender, sequence) pair twice. The watermark also absorbs lost acks:
// those cost the sender one extra retry and nothing else.
//
// Retry pacing is deliberately fixed rather than exponential; the single
// knob is the ack timeout itself.
package reliable
