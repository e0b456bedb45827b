// Package arbiter implements the three arbiters of spec.md §4.7/§4.9 and
// the trivial completion merge of §4.1/§4.2: the Master (Outbound
// Request) Arbiter, the Completion Arbiter, and the TX Arbiter.
package arbiter

import "github.com/arm-bsa/pcie-exerciser/internal/tlp"

// Master is a request-issuing component competing for MasterArbiter's
// grant: DMAEngine, MSIXController, and ATSEngine all implement it.
type Master interface {
	Pending() bool
	Pop() (tlp.RequestBeat, bool)
}

// MasterArbiter implements §4.7: round-robin across a fixed set of
// masters, granted at TLP boundaries. Because every master in this model
// emits exactly one beat per TLP (First=Last=true on every request it
// issues — §4.3, §4.4, §4.5), "holding the grant until last=1" collapses
// to "pop at most one beat per arbiter Tick", which still honors the
// fairness requirement: no pending master waits more than one full
// round-robin rotation.
type MasterArbiter struct {
	masters []Master
	next    int
}

// NewMasterArbiter wires the arbiter to its masters in round-robin order.
func NewMasterArbiter(masters ...Master) *MasterArbiter {
	return &MasterArbiter{masters: masters}
}

// Tick polls each master starting from the position after the last grant,
// returning the first pending beat found (if any) and advancing the
// round-robin pointer past it.
func (a *MasterArbiter) Tick() (tlp.RequestBeat, bool) {
	n := len(a.masters)
	for i := 0; i < n; i++ {
		idx := (a.next + i) % n
		m := a.masters[idx]
		if !m.Pending() {
			continue
		}
		beat, ok := m.Pop()
		if !ok {
			continue
		}
		a.next = (idx + 1) % n
		return beat, true
	}
	return tlp.RequestBeat{}, false
}
