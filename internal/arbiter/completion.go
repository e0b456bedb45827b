package arbiter

import "github.com/arm-bsa/pcie-exerciser/internal/tlp"

// CompletionArbiter merges the per-BAR handlers' completion outputs onto a
// single outbound stream (§4.1 diagram). Handlers in this model answer
// synchronously within the same step that accepted the request, so the
// "arbitration" reduces to FIFO submission order — there is never more
// than one handler producing completions for a given accepted beat.
type CompletionArbiter struct {
	q []tlp.CompletionBeat
}

// NewCompletionArbiter returns an empty arbiter.
func NewCompletionArbiter() *CompletionArbiter { return &CompletionArbiter{} }

// Push enqueues completions produced by a handler, in order.
func (c *CompletionArbiter) Push(beats ...tlp.CompletionBeat) {
	c.q = append(c.q, beats...)
}

// Pending reports a queued completion awaiting the packetizer/TX path.
func (c *CompletionArbiter) Pending() bool { return len(c.q) > 0 }

// Pop returns and dequeues the oldest completion beat.
func (c *CompletionArbiter) Pop() (tlp.CompletionBeat, bool) {
	if len(c.q) == 0 {
		return tlp.CompletionBeat{}, false
	}
	b := c.q[0]
	c.q = c.q[1:]
	return b, true
}
