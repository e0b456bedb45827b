package arbiter

import "github.com/arm-bsa/pcie-exerciser/internal/tlp"

// RawSource is a producer of raw TX beats that bypass the standard
// packetizer/injector path — in this core, only the ATS invalidation
// handler's completion messages (§4.6, §4.8, §4.9).
type RawSource interface {
	Pending() bool
	Pop() (tlp.RequestBeat, bool)
}

// MainSource is the injector output feeding the TX arbiter's main path.
type MainSource interface {
	Pending() bool
	Pop() (tlp.RequestBeat, bool)
}

// TxArbiter implements §4.9: merges the PASID injector's main path with
// one or more raw sources. A raw source may only be granted while the
// main path is not mid-packet (between Last=1 and the next First=1);
// once granted, a raw TLP is drained atomically to its own Last=1.
type TxArbiter struct {
	main MainSource
	raws []RawSource

	mainMidPacket bool
	drainingRaw   int // index into raws currently mid-packet, or -1
}

// NewTxArbiter wires the arbiter to the injector's main path and any raw
// sources.
func NewTxArbiter(main MainSource, raws ...RawSource) *TxArbiter {
	return &TxArbiter{main: main, raws: raws, drainingRaw: -1}
}

// Tick returns the next beat to place on the TX stream, if any.
func (a *TxArbiter) Tick() (tlp.RequestBeat, bool) {
	if a.drainingRaw >= 0 {
		return a.popRaw(a.drainingRaw)
	}
	if a.mainMidPacket {
		return a.popMain()
	}
	// Between packets: raw sources may preempt, first-come (lowest index) wins.
	for i, r := range a.raws {
		if r.Pending() {
			a.drainingRaw = i
			return a.popRaw(i)
		}
	}
	if a.main.Pending() {
		return a.popMain()
	}
	return tlp.RequestBeat{}, false
}

func (a *TxArbiter) popMain() (tlp.RequestBeat, bool) {
	b, ok := a.main.Pop()
	if !ok {
		return b, false
	}
	a.mainMidPacket = !b.Last
	return b, true
}

func (a *TxArbiter) popRaw(i int) (tlp.RequestBeat, bool) {
	b, ok := a.raws[i].Pop()
	if !ok {
		a.drainingRaw = -1
		return b, false
	}
	if b.Last {
		a.drainingRaw = -1
	}
	return b, true
}
