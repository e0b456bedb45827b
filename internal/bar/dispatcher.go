package bar

import "github.com/arm-bsa/pcie-exerciser/internal/tlp"

// Dispatcher implements §4.1: routes each inbound request TLP, by its
// first beat's bar_hit, to exactly one per-BAR handler, holding that
// routing decision for every subsequent beat of the same TLP.
type Dispatcher struct {
	bar0, bar1, bar2, bar5, stub Handler

	active Handler
}

// NewDispatcher wires the dispatcher to its four addressed handlers; BAR3
// and BAR4 (disabled) and an unmatched bar_hit both route to stub.
func NewDispatcher(bar0, bar1, bar2, bar5, stub Handler) *Dispatcher {
	return &Dispatcher{bar0: bar0, bar1: bar1, bar2: bar2, bar5: bar5, stub: stub}
}

func (d *Dispatcher) route(barHit uint8) Handler {
	switch barHit {
	case tlp.BarHit0:
		return d.bar0
	case tlp.BarHit1:
		return d.bar1
	case tlp.BarHit2:
		return d.bar2
	case tlp.BarHit5:
		return d.bar5
	default:
		// Zero (unmatched), BAR3, BAR4, or an (invalid) multi-bit hit.
		return d.stub
	}
}

// Dispatch forwards one beat of an inbound TLP to its handler, latching
// the handler choice on First and releasing it on Last (atomicity, §4.1).
func (d *Dispatcher) Dispatch(b tlp.RequestBeat) []tlp.CompletionBeat {
	if b.First || d.active == nil {
		d.active = d.route(b.BarHit)
	}
	var out []tlp.CompletionBeat
	if b.We {
		d.active.HandleWrite(b)
	} else {
		out = d.active.HandleRead(b)
	}
	if b.Last {
		d.active = nil
	}
	return out
}
