package ats_test

import (
	"testing"

	"github.com/arm-bsa/pcie-exerciser/internal/atc"
	"github.com/arm-bsa/pcie-exerciser/internal/ats"
	"github.com/arm-bsa/pcie-exerciser/internal/regs"
)

type fakeEngine struct {
	inFlight  bool
	retryHits int
}

func (f *fakeEngine) InFlight() bool   { return f.inFlight }
func (f *fakeEngine) SetMustRetry()    { f.retryHits++ }

type fakeDMA struct {
	busy    bool
	useATC  bool
}

func (f *fakeDMA) Busy() bool     { return f.busy }
func (f *fakeDMA) UsingATC() bool { return f.useATC }

func tickN(h *ats.InvalidationHandler, n int) {
	for i := 0; i < n; i++ {
		h.Tick()
	}
}

func TestInvalidationNoOverlapSkipsToCompletion(t *testing.T) {
	rf := regs.New()
	a := atc.New()
	eng := &fakeEngine{}
	dma := &fakeDMA{}
	h := ats.NewInvalidationHandler(rf, a, eng, dma)

	a.Store(atc.Entry{InputAddr: 0x5000, OutputAddr: 0xB000, RangeSize: 0x100})

	if !h.Receive(ats.Request{ReqID: 0x10, Tag: 1, Addr: 0x9000, Size: 0x100, Global: true}) {
		t.Fatalf("Receive should succeed from IDLE")
	}
	tickN(h, 4)
	if !h.Pending() {
		t.Fatalf("expected a pending completion message for a non-overlapping invalidation")
	}
	beat, ok := h.Pop()
	if !ok || !beat.We || beat.Len != 4 {
		t.Fatalf("unexpected completion beat: %+v", beat)
	}
	if snap := a.Snapshot(); !snap.Valid {
		t.Fatalf("non-overlapping invalidation must not touch the ATC")
	}
}

func TestInvalidationOverlapClearsATC(t *testing.T) {
	rf := regs.New()
	a := atc.New()
	eng := &fakeEngine{}
	dma := &fakeDMA{}
	h := ats.NewInvalidationHandler(rf, a, eng, dma)

	a.Store(atc.Entry{InputAddr: 0x10800, OutputAddr: 0xB000, RangeSize: 0x1000})

	h.Receive(ats.Request{ReqID: 0x10, Tag: 2, Addr: 0x10800, Size: 0x100, Global: true})
	tickN(h, 5)

	if !h.Pending() {
		t.Fatalf("expected pending completion after invalidation")
	}
	if snap := a.Snapshot(); snap.Valid {
		t.Fatalf("overlapping invalidation must clear the ATC")
	}
	if v := rf.Read(0x024); v&(1<<9) == 0 {
		t.Fatalf("ATSCTL.invalidated must be set")
	}
}

func TestInvalidationWaitsForInFlightATSEngine(t *testing.T) {
	rf := regs.New()
	a := atc.New()
	eng := &fakeEngine{inFlight: true}
	dma := &fakeDMA{}
	h := ats.NewInvalidationHandler(rf, a, eng, dma)

	a.Store(atc.Entry{InputAddr: 0x10800, OutputAddr: 0xB000, RangeSize: 0x1000})
	h.Receive(ats.Request{ReqID: 0x10, Tag: 3, Addr: 0x10800, Size: 0x100, Global: true})

	h.Tick() // RECEIVE -> CHECK
	h.Tick() // CHECK -> WAIT_ATS (asserts retry)
	if eng.retryHits != 1 {
		t.Fatalf("expected SetMustRetry to be called once, got %d", eng.retryHits)
	}
	if h.Pending() {
		t.Fatalf("must not complete while the ATS engine is still in flight")
	}

	eng.inFlight = false
	tickN(h, 5)
	if !h.Pending() {
		t.Fatalf("expected completion once the ATS engine returns to IDLE")
	}
}

func TestInvalidationWaitsForBusyDMA(t *testing.T) {
	rf := regs.New()
	a := atc.New()
	eng := &fakeEngine{}
	dma := &fakeDMA{busy: true, useATC: true}
	h := ats.NewInvalidationHandler(rf, a, eng, dma)

	a.Store(atc.Entry{InputAddr: 0x10800, OutputAddr: 0xB000, RangeSize: 0x1000})
	h.Receive(ats.Request{ReqID: 0x10, Tag: 4, Addr: 0x10800, Size: 0x100, Global: true})

	tickN(h, 2)
	if h.Pending() {
		t.Fatalf("must wait while the DMA engine is busy using the ATC")
	}

	dma.busy = false
	tickN(h, 5)
	if !h.Pending() {
		t.Fatalf("expected completion once the DMA engine frees up")
	}
}
