// Package ats implements the ATS translation-request engine and the ATS
// invalidation handler of spec.md §4.5/§4.6, coordinating through the
// ATC they share.
package ats

import (
	"github.com/arm-bsa/pcie-exerciser/internal/atc"
	"github.com/arm-bsa/pcie-exerciser/internal/config"
	"github.com/arm-bsa/pcie-exerciser/internal/regs"
	"github.com/arm-bsa/pcie-exerciser/internal/tlp"
)

// engineTag is the fixed completion tag used to route Translation
// Completions back to the engine; Core.SubmitCompletion demuxes on this
// value since the engine never has more than one request in flight.
const engineTag uint8 = 0xA1

type engineState int

const (
	engIdle engineState = iota
	engIssueReq
	engWaitCpl
)

// ReqIDResolver applies a RID_CTL override over a default requester id
// (shared seam with internal/msix).
type ReqIDResolver interface {
	ResolveReqID(defaultID uint16) uint16
}

// Engine implements the ATS Engine state machine: IDLE -> ISSUE_REQ ->
// WAIT_CPL -> (STORE|FAIL) -> IDLE.
type Engine struct {
	regs   *regs.RegisterFile
	atc    *atc.ATC
	cfg    config.Collaborator
	reqIDs ReqIDResolver

	st         engineState
	cur        regs.ATSTriggerConfig
	pendingOut *tlp.RequestBeat
	mustRetry  bool
}

// NewEngine wires an Engine to the register file it's triggered from and
// reports into, the ATC it populates, the configuration collaborator that
// gates ATS, and the RID_CTL resolver shared by every master.
func NewEngine(rf *regs.RegisterFile, a *atc.ATC, cfg config.Collaborator, reqIDs ReqIDResolver) *Engine {
	return &Engine{regs: rf, atc: a, cfg: cfg, reqIDs: reqIDs}
}

// InFlight reports whether the engine holds a translation request outside
// IDLE; consulted by the invalidation handler's CHECK state.
func (e *Engine) InFlight() bool { return e.st != engIdle }

// SetMustRetry is asserted by the invalidation handler when an overlapping
// invalidation arrives while the engine is in flight (§4.6, §9's cyclic
// coupling note): the engine's next completion is discarded rather than
// cached, since the translation it describes is about to be invalidated
// anyway.
func (e *Engine) SetMustRetry() { e.mustRetry = true }

// Tick advances the engine by one synchronous step.
func (e *Engine) Tick() {
	switch e.st {
	case engIdle:
		if !e.cfg.ATSEnabled() {
			e.regs.SetATSInFlight(false)
			return
		}
		cfg, ok := e.regs.TakeATSTrigger()
		if !ok {
			return
		}
		e.cur = cfg
		e.regs.SetATSInFlight(true)

		reqID := e.cfg.EndpointID()
		if e.reqIDs != nil {
			reqID = e.reqIDs.ResolveReqID(reqID)
		}
		if cfg.RIDValid {
			reqID = cfg.ReqID
		}

		beat := tlp.RequestBeat{
			We:         false,
			Adr:        cfg.BusAddr,
			Len:        tlp.EncodeLen(1),
			Tag:        engineTag,
			ReqID:      reqID,
			AT:         tlp.ATUntranslated, // Translation Request, AT=01 (§10)
			PasidEn:    cfg.PasidEn,
			PasidVal:   cfg.PasidVal,
			Privileged: cfg.Privileged,
			Execute:    cfg.ExecReq,
			First:      true,
			Last:       true,
		}
		e.pendingOut = &beat
		e.st = engIssueReq

	case engIssueReq:
		if e.pendingOut == nil {
			e.st = engWaitCpl
		}

	case engWaitCpl:
		// Held until Complete() is delivered by Core.SubmitCompletion.
	}
}

// Pending reports an outbound Translation Request awaiting the arbiter.
func (e *Engine) Pending() bool { return e.pendingOut != nil }

// Pop returns and clears the pending outbound request beat.
func (e *Engine) Pop() (tlp.RequestBeat, bool) {
	if e.pendingOut == nil {
		return tlp.RequestBeat{}, false
	}
	b := *e.pendingOut
	e.pendingOut = nil
	return b, true
}

// Tag returns the completion tag this engine expects, for
// Core.SubmitCompletion's dispatch.
func (e *Engine) Tag() uint8 { return engineTag }

// Complete delivers a Translation Completion beat addressed to this
// engine. cpl.Dat is expected to carry, in order: translated address lo,
// translated address hi, range_size, and a permissions/R-bit word packed
// as atc.Perm* bits in [2:0] with bit 3 the R bit, which decides whether
// the result is stored in the ATC (ATSCTL.cacheable reports perm != 0) — the
// engine's own wire convention for this model (§4.5 leaves the completion
// payload layout model-defined).
func (e *Engine) Complete(cpl tlp.CompletionBeat) {
	if e.st != engWaitCpl {
		return
	}
	e.st = engIdle
	e.regs.SetATSInFlight(false)

	discard := e.mustRetry
	e.mustRetry = false

	if cpl.Err || len(cpl.Dat) < 4 {
		e.regs.SetATSResult(false, false, 0, 0, 0, 0)
		return
	}

	addrLo, addrHi, rangeSize, permWord := cpl.Dat[0], cpl.Dat[1], cpl.Dat[2], cpl.Dat[3]
	perm := uint8(permWord & 0x7)
	rBit := permWord&0x8 != 0
	cacheable := perm != 0

	e.regs.SetATSResult(true, cacheable, addrLo, addrHi, rangeSize, perm)

	if discard || !rBit {
		return
	}
	e.atc.Store(atc.Entry{
		InputAddr:   e.cur.BusAddr,
		OutputAddr:  uint64(addrHi)<<32 | uint64(addrLo),
		RangeSize:   rangeSize,
		Permissions: perm,
		PasidValid:  e.cur.PasidEn,
		PasidVal:    e.cur.PasidVal,
	})
}
