// Package dmaengine implements the DMA engine state machine of spec.md
// §4.4 — the most intricate component: register-triggered chunked
// Memory Read/Write generation with ATC-assisted address translation,
// completion tracking, and timeout handling.
package dmaengine

import (
	"github.com/arm-bsa/pcie-exerciser/internal/atc"
	"github.com/arm-bsa/pcie-exerciser/internal/config"
	"github.com/arm-bsa/pcie-exerciser/internal/dmabuffer"
	"github.com/arm-bsa/pcie-exerciser/internal/regs"
	"github.com/arm-bsa/pcie-exerciser/internal/tlp"
)

// TimeoutTicks is the per-request completion timeout, expressed in
// Engine.Tick() steps rather than host-facing milliseconds (§4.4's
// "model-defined in simulated ticks", frozen per SPEC_FULL.md §D).
const TimeoutTicks = 4096

// reservedATSTag mirrors ats.Engine's fixed completion tag: the core's
// inbound completion demux (core.Core.SubmitCompletion) routes every beat tagged 0xA1 to the
// ATS engine regardless of which master issued the request, so the DMA
// engine's tag sequence must never allocate it.
const reservedATSTag uint8 = 0xA1

// state is the DMA engine's top-level state (§4.4):
// IDLE -> SETUP -> (ISSUE_RD -> WAIT_CPL | LOAD_DATA -> ISSUE_WR) -> COMPLETE -> IDLE.
type state int

const (
	stIdle state = iota
	stSetup
	stIssueRd
	stWaitCpl
	stLoadData
	stIssueWr
	stComplete
)

type pendingRead struct {
	tag       uint8
	chunkOff  int // offset within the DMA buffer this chunk lands at
	chunkLen  int // bytes expected
	received  int
	ticksLeft int
}

// Engine implements the DMA Engine master (§4.4, §4.7).
type Engine struct {
	regs *regs.RegisterFile
	buf  *dmabuffer.Buffer
	atc  *atc.ATC
	cfg  config.Collaborator

	st  state
	cur regs.DMATriggerConfig

	remaining  uint32 // length_remaining, bytes
	bufOffset  int    // next DMA-buffer offset to consume/fill
	nextTag    uint8
	pending    map[uint8]*pendingRead
	failed     bool

	chunkBytes []byte // staged write-path payload awaiting emission
	chunkAdr   uint64

	pendingOut *tlp.RequestBeat
}

// New wires a DMA Engine to the register file it is triggered from and
// reports into, the DMA buffer it reads/writes, the shared ATC it may
// consult, and the configuration collaborator supplying MPS/MRRS.
func New(rf *regs.RegisterFile, buf *dmabuffer.Buffer, a *atc.ATC, cfg config.Collaborator) *Engine {
	return &Engine{regs: rf, buf: buf, atc: a, cfg: cfg, pending: make(map[uint8]*pendingRead)}
}

// Busy reports whether the engine is outside IDLE; consulted by the ATS
// invalidation handler's CHECK state.
func (e *Engine) Busy() bool { return e.st != stIdle }

// UsingATC reports whether the in-flight operation consults the ATC.
func (e *Engine) UsingATC() bool { return e.cur.UseATC }

// Tick advances the engine by one synchronous step.
func (e *Engine) Tick() {
	switch e.st {
	case stIdle:
		e.tickIdle()
	case stSetup:
		e.tickSetup()
	case stIssueRd:
		e.tickIssueRd()
	case stWaitCpl:
		e.tickWaitCpl()
	case stLoadData:
		e.tickLoadData()
	case stIssueWr:
		e.tickIssueWr()
	case stComplete:
		e.tickComplete()
	}
}

func (e *Engine) tickIdle() {
	cfg, ok := e.regs.TakeDMATrigger()
	if !ok {
		return
	}
	e.cur = cfg
	e.remaining = cfg.Length
	e.bufOffset = int(cfg.Offset)
	e.nextTag = 0
	e.pending = make(map[uint8]*pendingRead)
	e.failed = false
	e.st = stSetup
}

func (e *Engine) tickSetup() {
	if e.cur.UseATC && e.cur.AddrType == regs.AddrTypeTranslated {
		e.finish(regs.DMAStatusInternal)
		return
	}
	if uint64(e.cur.Offset)+uint64(e.cur.Length) > uint64(e.buf.Size()) {
		e.finish(regs.DMAStatusRange)
		return
	}
	if e.cur.Length == 0 {
		e.finish(regs.DMAStatusOK)
		return
	}
	if e.cur.Direction {
		e.st = stLoadData
	} else {
		e.st = stIssueRd
	}
}

// chunkSize returns the next chunk length in bytes, bounded by the
// collaborator's MPS (write path) or MRRS (read path) and by whatever
// remains of the transfer.
func (e *Engine) chunkSize() int {
	limit := int(e.cfg.MaxRequestSize())
	if e.cur.Direction {
		limit = int(e.cfg.MaxPayloadSize())
	}
	if limit <= 0 {
		limit = 256
	}
	n := int(e.remaining)
	if n > limit {
		n = limit
	}
	return n
}

// effectiveAddr resolves the ATC-assisted effective address for busAddr
// per §4.4.
func (e *Engine) effectiveAddr(busAddr uint64) uint64 {
	if !e.cur.UseATC {
		return busAddr
	}
	if out, hit := e.atc.Lookup(busAddr, e.cur.PasidEn, e.cur.PasidVal); hit {
		return out
	}
	return busAddr
}

// allocTag returns the next completion tag, skipping reservedATSTag so the
// two masters' completions can never be confused by Core.SubmitCompletion.
func (e *Engine) allocTag() uint8 {
	if e.nextTag == reservedATSTag {
		e.nextTag++
	}
	tag := e.nextTag
	e.nextTag++
	return tag
}

func (e *Engine) reqID() uint16 {
	id := e.cfg.EndpointID()
	if e.cur.RIDValid {
		id = e.cur.ReqID
	}
	return id
}

func (e *Engine) baseAttrs() (attr uint8, at uint8) {
	if e.cur.NoSnoop {
		attr |= tlp.AttrNoSnoop
	}
	at = e.cur.AddrType
	return
}

func (e *Engine) tickIssueRd() {
	if e.remaining == 0 {
		if len(e.pending) == 0 {
			e.finish(regs.DMAStatusOK)
		} else {
			e.st = stWaitCpl
		}
		return
	}
	n := e.chunkSize()
	busAddr := e.cur.BusAddr
	adr := e.effectiveAddr(busAddr)
	tag := e.allocTag()

	attr, at := e.baseAttrs()
	beat := tlp.RequestBeat{
		We:         false,
		Adr:        adr,
		Len:        tlp.EncodeLen(n / 4),
		Tag:        tag,
		ReqID:      e.reqID(),
		Attr:       attr,
		AT:         at,
		PasidEn:    e.cur.PasidEn,
		PasidVal:   e.cur.PasidVal,
		Privileged: e.cur.Privileged,
		Execute:    e.cur.Instruction,
		First:      true,
		Last:       true,
	}
	e.pending[tag] = &pendingRead{tag: tag, chunkOff: e.bufOffset, chunkLen: n, ticksLeft: TimeoutTicks}
	e.pendingOut = &beat

	e.cur.BusAddr += uint64(n)
	e.bufOffset += n
	e.remaining -= uint32(n)
	e.st = stWaitCpl
}

func (e *Engine) tickWaitCpl() {
	for tag, pr := range e.pending {
		pr.ticksLeft--
		if pr.ticksLeft <= 0 {
			e.failed = true
			delete(e.pending, tag)
		}
	}
	if e.failed {
		e.finish(regs.DMAStatusInternal)
		return
	}
	if e.remaining > 0 && e.pendingOut == nil {
		e.st = stIssueRd
		return
	}
	if e.remaining == 0 && len(e.pending) == 0 {
		e.finish(regs.DMAStatusOK)
	}
}

// Complete delivers an inbound Memory Read Completion beat addressed to
// this engine (dispatched by tag from Core.SubmitCompletion).
func (e *Engine) Complete(cpl tlp.CompletionBeat) {
	pr, ok := e.pending[cpl.Tag]
	if !ok {
		return
	}
	if cpl.Err {
		e.failed = true
		delete(e.pending, cpl.Tag)
		return
	}
	data := tlp.BytesFromDWords(cpl.Dat, len(cpl.Dat)*4)
	off := pr.chunkOff + pr.received
	if !e.buf.WriteBytesPortA(off, data) {
		e.failed = true
	}
	pr.received += len(data)
	pr.ticksLeft = TimeoutTicks
	if cpl.End || cpl.Last {
		delete(e.pending, cpl.Tag)
	}
}

func (e *Engine) tickLoadData() {
	if e.pendingOut != nil {
		// Previous chunk not yet popped by the arbiter; hold.
		return
	}
	if e.remaining == 0 {
		e.finish(regs.DMAStatusOK)
		return
	}
	n := e.chunkSize()
	data, ok := e.buf.ReadBytes(e.bufOffset, n)
	if !ok {
		e.finish(regs.DMAStatusInternal)
		return
	}
	e.chunkBytes = data
	e.chunkAdr = e.cur.BusAddr
	e.st = stIssueWr
}

func (e *Engine) tickIssueWr() {
	n := len(e.chunkBytes)
	adr := e.effectiveAddr(e.chunkAdr)
	attr, at := e.baseAttrs()
	tag := e.allocTag()

	beat := tlp.RequestBeat{
		We:         true,
		Adr:        adr,
		Len:        tlp.EncodeLen((n + 3) / 4),
		Tag:        tag,
		ReqID:      e.reqID(),
		Dat:        tlp.DWordsFromBytes(e.chunkBytes),
		BE:         0xF,
		Attr:       attr,
		AT:         at,
		PasidEn:    e.cur.PasidEn,
		PasidVal:   e.cur.PasidVal,
		Privileged: e.cur.Privileged,
		Execute:    e.cur.Instruction,
		First:      true,
		Last:       true,
	}
	e.pendingOut = &beat

	e.cur.BusAddr += uint64(n)
	e.bufOffset += n
	e.remaining -= uint32(n)
	e.chunkBytes = nil
	e.st = stLoadData
}

func (e *Engine) tickComplete() {
	e.st = stIdle
}

func (e *Engine) finish(status uint8) {
	e.regs.SetDMAStatus(status)
	e.st = stComplete
}

// Pending reports an outbound request beat awaiting the master arbiter.
func (e *Engine) Pending() bool { return e.pendingOut != nil }

// Pop returns and clears the pending outbound request beat. Clearing it
// releases LOAD_DATA's hold on the write path and WAIT_CPL's hold on the
// read path, so the next chunk can be issued.
func (e *Engine) Pop() (tlp.RequestBeat, bool) {
	if e.pendingOut == nil {
		return tlp.RequestBeat{}, false
	}
	b := *e.pendingOut
	e.pendingOut = nil
	return b, true
}
