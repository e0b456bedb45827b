// Package core wires the exerciser's components into the dependency
// graph of spec.md §2 and drives the synchronous step model of §5.
package core

import (
	"github.com/arm-bsa/pcie-exerciser/internal/arbiter"
	"github.com/arm-bsa/pcie-exerciser/internal/atc"
	"github.com/arm-bsa/pcie-exerciser/internal/ats"
	"github.com/arm-bsa/pcie-exerciser/internal/bar"
	"github.com/arm-bsa/pcie-exerciser/internal/config"
	"github.com/arm-bsa/pcie-exerciser/internal/dmabuffer"
	"github.com/arm-bsa/pcie-exerciser/internal/dmaengine"
	"github.com/arm-bsa/pcie-exerciser/internal/inject"
	"github.com/arm-bsa/pcie-exerciser/internal/monitor"
	"github.com/arm-bsa/pcie-exerciser/internal/msix"
	"github.com/arm-bsa/pcie-exerciser/internal/regs"
	"github.com/arm-bsa/pcie-exerciser/internal/tlp"
)

// Core assembles every component of the CORE (§1) behind a single
// driver surface: SubmitRX/SubmitCompletion/SubmitInvalidation feed it,
// Tick advances it one synchronous step, and PopTX/PopCompletionTX drain
// its outbound streams (§5).
type Core struct {
	Regs    *regs.RegisterFile
	Buf     *dmabuffer.Buffer
	Table   *msix.Table
	PBA     *msix.PBA
	ATC     *atc.ATC
	Monitor *monitor.Monitor

	dispatcher    *bar.Dispatcher
	completionArb *arbiter.CompletionArbiter
	masterArb     *arbiter.MasterArbiter
	txArb         *arbiter.TxArbiter
	injector      *inject.Injector

	DMA    *dmaengine.Engine
	MSIX   *msix.Controller
	ATS    *ats.Engine
	ATSInv *ats.InvalidationHandler
}

// New assembles a Core from a configuration collaborator and a DMA
// buffer size (dmabuffer.DefaultSize if <= 0), wiring components in the
// leaf-first dependency order of §2.
func New(cfg config.Collaborator, bufSize int) *Core {
	c := &Core{
		Regs:    regs.New(),
		Buf:     dmabuffer.New(bufSize),
		Table:   msix.NewTable(),
		PBA:     msix.NewPBA(),
		ATC:     atc.New(),
		Monitor: monitor.New(),
	}
	c.Regs.SetMonitorPort(c.Monitor)

	c.DMA = dmaengine.New(c.Regs, c.Buf, c.ATC, cfg)
	c.MSIX = msix.NewController(c.Regs, c.Table, c.PBA, c.Regs, cfg.EndpointID())
	c.ATS = ats.NewEngine(c.Regs, c.ATC, cfg, c.Regs)
	c.ATSInv = ats.NewInvalidationHandler(c.Regs, c.ATC, c.ATS, c.DMA)

	c.dispatcher = bar.NewDispatcher(
		&bar.RegisterFileHandler{Regs: c.Regs},
		&bar.DMABufferHandler{Buf: c.Buf, Cfg: cfg},
		&bar.MSIXTableHandler{Table: c.Table},
		&bar.PBAHandler{PBA: c.PBA},
		bar.StubHandler{},
	)
	c.completionArb = arbiter.NewCompletionArbiter()
	c.masterArb = arbiter.NewMasterArbiter(c.DMA, c.MSIX, c.ATS)
	c.injector = inject.New()
	c.txArb = arbiter.NewTxArbiter(c.injector, c.ATSInv)

	return c
}

// SubmitRX delivers one inbound request beat to the BAR dispatcher and
// its transaction-monitor tap (§4.1).
func (c *Core) SubmitRX(b tlp.RequestBeat) {
	if b.First {
		c.Monitor.Observe(b, uint32(b.DWLen()*4))
	}
	completions := c.dispatcher.Dispatch(b)
	c.completionArb.Push(completions...)
}

// SubmitCompletion delivers an inbound completion beat to whichever
// master is awaiting it, demultiplexed by tag: the ATS engine owns a
// single reserved tag, every other tag belongs to the DMA engine (§4.4,
// §4.5 — the MSI-X controller never awaits a completion, its writes are
// posted).
func (c *Core) SubmitCompletion(cpl tlp.CompletionBeat) {
	if cpl.Tag == c.ATS.Tag() {
		c.ATS.Complete(cpl)
		return
	}
	c.DMA.Complete(cpl)
}

// SubmitInvalidation delivers an inbound ATS Invalidation Request to the
// invalidation handler (§4.6). Returns false if the handler is still busy
// with a prior request.
func (c *Core) SubmitInvalidation(req ats.Request) bool {
	return c.ATSInv.Receive(req)
}

// Tick advances every stateful component by one synchronous step and
// lets the master arbiter feed at most one granted beat into the PASID
// injector (§5, §4.7).
func (c *Core) Tick() {
	if c.Regs.TakeATSClearATC() {
		c.ATC.Clear()
	}
	c.Regs.TakeDMAStatusClear()

	c.DMA.Tick()
	c.MSIX.Tick()
	c.ATS.Tick()
	c.ATSInv.Tick()

	if beat, ok := c.masterArb.Tick(); ok {
		c.injector.Push(beat)
	}
}

// PopTX drains the next request-side TX beat (main path merged with the
// ATS invalidation handler's raw completion messages, §4.9). Callers
// should drain until ok is false before advancing to the next Tick.
func (c *Core) PopTX() (tlp.RequestBeat, bool) {
	return c.txArb.Tick()
}

// PopCompletionTX drains the next outbound completion beat produced by a
// per-BAR handler (§4.1, §4.2).
func (c *Core) PopCompletionTX() (tlp.CompletionBeat, bool) {
	return c.completionArb.Pop()
}
