package ats

import (
	"github.com/arm-bsa/pcie-exerciser/internal/atc"
	"github.com/arm-bsa/pcie-exerciser/internal/regs"
	"github.com/arm-bsa/pcie-exerciser/internal/tlp"
)

// invState is the ATS Invalidation Handler's state (§4.6):
// IDLE -> RECEIVE -> CHECK -> (WAIT_ATS | WAIT_DMA | INVALIDATE | SEND_CPL) -> IDLE.
type invState int

const (
	invIdle invState = iota
	invReceive
	invCheck
	invWaitATS
	invWaitDMA
	invInvalidate
	invSendCpl
)

// Request is a parsed inbound ATS Invalidation Request (Message TLP,
// message code 0x01).
type Request struct {
	ReqID     uint16
	Tag       uint8
	Addr      uint64
	Size      uint32
	Global    bool // true = not PASID-scoped
	PasidVal  uint32
}

// InFlightEngine is the subset of Engine the invalidation handler needs.
type InFlightEngine interface {
	InFlight() bool
	SetMustRetry()
}

// DMAStatus is the subset of the DMA engine the invalidation handler
// needs: whether it is mid-operation and whether that operation consults
// the ATC.
type DMAStatus interface {
	Busy() bool
	UsingATC() bool
}

// InvalidationHandler implements the ATS Invalidation Handler of §4.6. It
// is both a consumer (inbound message TLPs) and, via Pending/Pop, a producer:
// Invalidation Completion messages bypass the standard packetizer and are
// merged into the TX stream as a raw source (§4.8).
type InvalidationHandler struct {
	regs *regs.RegisterFile
	atc  *atc.ATC
	eng  InFlightEngine
	dma  DMAStatus

	st      invState
	cur     Request
	pending *tlp.RequestBeat // raw completion message, consumed via Pop
}

// NewInvalidationHandler wires the handler to the register file it reports
// into, the shared ATC, the ATS engine it may retry, and the DMA engine
// status it may wait on.
func NewInvalidationHandler(rf *regs.RegisterFile, a *atc.ATC, eng InFlightEngine, dma DMAStatus) *InvalidationHandler {
	return &InvalidationHandler{regs: rf, atc: a, eng: eng, dma: dma}
}

// Receive accepts an inbound invalidation request. Returns false if the
// handler is still busy with a prior one (the caller should hold the
// message until IDLE; the transaction layer guarantees no overlap here
// because invalidations are processed one at a time).
func (h *InvalidationHandler) Receive(req Request) bool {
	if h.st != invIdle {
		return false
	}
	h.cur = req
	h.st = invReceive
	return true
}

// Tick advances the handler by one synchronous step.
func (h *InvalidationHandler) Tick() {
	switch h.st {
	case invIdle:
		return
	case invReceive:
		h.st = invCheck
	case invCheck:
		h.check()
	case invWaitATS:
		if !h.eng.InFlight() {
			h.st = invCheck
		}
	case invWaitDMA:
		if !h.dma.Busy() || !h.dma.UsingATC() {
			h.st = invCheck
		}
	case invInvalidate:
		h.atc.Clear()
		h.regs.SetATSInvalidated()
		h.st = invSendCpl
	case invSendCpl:
		if h.pending == nil {
			h.pending = h.buildCompletion()
		}
	}
}

func (h *InvalidationHandler) check() {
	overlaps := h.atc.Overlaps(h.cur.Addr, h.cur.Size, !h.cur.Global, h.cur.PasidVal)
	if !overlaps {
		h.st = invSendCpl
		return
	}
	if h.eng.InFlight() {
		h.eng.SetMustRetry()
		h.st = invWaitATS
		return
	}
	if h.dma.Busy() && h.dma.UsingATC() {
		h.st = invWaitDMA
		return
	}
	h.st = invInvalidate
}

func (h *InvalidationHandler) buildCompletion() *tlp.RequestBeat {
	words := tlp.InvalidationCompletionMessage(h.cur.ReqID, h.cur.Tag)
	beat := tlp.RequestBeat{
		We:    true,
		Len:   tlp.EncodeLen(4),
		Tag:   h.cur.Tag,
		ReqID: h.cur.ReqID,
		Dat:   []uint32{words[0], words[1], words[2], words[3]},
		BE:    0xF,
		First: true,
		Last:  true,
	}
	return &beat
}

// Pending reports a raw completion message awaiting the TX arbiter.
func (h *InvalidationHandler) Pending() bool {
	return h.st == invSendCpl && h.pending != nil
}

// Pop returns and clears the pending completion message, returning the
// handler to IDLE. Because the completion must not leave the TX arbiter
// before the ATC invalidation it reports is visible (I5), the ATC is
// always cleared in INVALIDATE, strictly before SEND_CPL builds this beat.
func (h *InvalidationHandler) Pop() (tlp.RequestBeat, bool) {
	if h.pending == nil {
		return tlp.RequestBeat{}, false
	}
	b := *h.pending
	h.pending = nil
	h.st = invIdle
	return b, true
}
