package dmaengine_test

import (
	"testing"

	"github.com/arm-bsa/pcie-exerciser/internal/atc"
	"github.com/arm-bsa/pcie-exerciser/internal/config"
	"github.com/arm-bsa/pcie-exerciser/internal/dmabuffer"
	"github.com/arm-bsa/pcie-exerciser/internal/dmaengine"
	"github.com/arm-bsa/pcie-exerciser/internal/regs"
	"github.com/arm-bsa/pcie-exerciser/internal/tlp"
)

const (
	offDMACTL     = 0x008
	offDMAOffset  = 0x00C
	offDMABusLo   = 0x010
	offDMALen     = 0x018
	offDMAStatus  = 0x01C
)

func triggerWrite(t *testing.T, rf *regs.RegisterFile, offset, busAddr, length uint32) {
	t.Helper()
	rf.Write(offDMAOffset, offset, 0xF)
	rf.Write(offDMABusLo, busAddr, 0xF)
	rf.Write(offDMALen, length, 0xF)
	rf.Write(offDMACTL, 0x1|(1<<4), 0xF) // trigger + direction=write
}

func triggerRead(t *testing.T, rf *regs.RegisterFile, offset, busAddr, length uint32) {
	t.Helper()
	rf.Write(offDMAOffset, offset, 0xF)
	rf.Write(offDMABusLo, busAddr, 0xF)
	rf.Write(offDMALen, length, 0xF)
	rf.Write(offDMACTL, 0x1, 0xF) // trigger, direction=read
}

func tickN(e *dmaengine.Engine, n int) {
	for i := 0; i < n; i++ {
		e.Tick()
	}
}

// S3 — DMA write from the exerciser to the host.
func TestDMAWritePath(t *testing.T) {
	rf := regs.New()
	buf := dmabuffer.New(4096)
	a := atc.New()
	cfg := config.NewDefault()
	e := dmaengine.New(rf, buf, a, cfg)

	buf.WriteBytesPortB(0, []byte{0xEF, 0xBE, 0xAD, 0xDE})
	triggerWrite(t, rf, 0, 0x2000, 4)

	tickN(e, 4)
	if !e.Pending() {
		t.Fatalf("expected a pending write TLP")
	}
	beat, ok := e.Pop()
	if !ok || !beat.We || beat.Adr != 0x2000 {
		t.Fatalf("unexpected beat: %+v", beat)
	}
	if len(beat.Dat) != 1 || beat.Dat[0] != 0xDEADBEEF {
		t.Fatalf("unexpected payload: %+v", beat.Dat)
	}

	tickN(e, 4)
	if v := rf.Read(offDMAStatus); v&0x3 != 0 {
		t.Fatalf("expected DMASTATUS OK, got 0x%x", v)
	}
}

// S4 — DMA read from the host into the exerciser buffer.
func TestDMAReadPath(t *testing.T) {
	rf := regs.New()
	buf := dmabuffer.New(4096)
	a := atc.New()
	cfg := config.NewDefault()
	e := dmaengine.New(rf, buf, a, cfg)

	triggerRead(t, rf, 0x100, 0x3000, 4)
	tickN(e, 4)
	if !e.Pending() {
		t.Fatalf("expected a pending read TLP")
	}
	beat, ok := e.Pop()
	if !ok || beat.We || beat.Adr != 0x3000 {
		t.Fatalf("unexpected read beat: %+v", beat)
	}

	e.Complete(tlp.CompletionBeat{
		Tag:  beat.Tag,
		Dat:  []uint32{0xCAFEBABE},
		End:  true,
		Last: true,
	})
	tickN(e, 6)

	if v := rf.Read(offDMAStatus); v&0x3 != 0 {
		t.Fatalf("expected DMASTATUS OK, got 0x%x", v)
	}
	got, ok := buf.ReadBytes(0x100, 4)
	if !ok || got[0] != 0xBE || got[1] != 0xBA {
		t.Fatalf("unexpected buffer contents: %+v", got)
	}
}

func TestDMARangeErrorSkipsTLPs(t *testing.T) {
	rf := regs.New()
	buf := dmabuffer.New(64)
	a := atc.New()
	cfg := config.NewDefault()
	e := dmaengine.New(rf, buf, a, cfg)

	triggerRead(t, rf, 60, 0x4000, 16) // offset+length > buffer size
	tickN(e, 4)

	if e.Pending() {
		t.Fatalf("range error must not emit any TLP")
	}
	if v := rf.Read(offDMAStatus); v&0x3 != 1 {
		t.Fatalf("expected DMASTATUS Range error, got 0x%x", v)
	}
}

func TestDMAUseATCWithTranslatedAddrTypeIsInternalError(t *testing.T) {
	rf := regs.New()
	buf := dmabuffer.New(4096)
	a := atc.New()
	cfg := config.NewDefault()
	e := dmaengine.New(rf, buf, a, cfg)

	rf.Write(offDMAOffset, 0, 0xF)
	rf.Write(offDMABusLo, 0x5000, 0xF)
	rf.Write(offDMALen, 4, 0xF)
	rf.Write(offDMACTL, 0x1|(1<<9)|(2<<10), 0xF) // trigger, use_atc, addr_type=Translated

	tickN(e, 4)
	if e.Pending() {
		t.Fatalf("use_atc with Translated addr_type must not emit a TLP")
	}
	if v := rf.Read(offDMAStatus); v&0x3 != 2 {
		t.Fatalf("expected DMASTATUS Internal error, got 0x%x", v)
	}
}

func TestDMAReadTimeoutReportsInternalError(t *testing.T) {
	rf := regs.New()
	buf := dmabuffer.New(4096)
	a := atc.New()
	cfg := config.NewDefault()
	e := dmaengine.New(rf, buf, a, cfg)

	triggerRead(t, rf, 0, 0x6000, 4)
	tickN(e, 4)
	if !e.Pending() {
		t.Fatalf("expected a pending read TLP")
	}
	e.Pop()

	tickN(e, dmaengine.TimeoutTicks+2)
	if v := rf.Read(offDMAStatus); v&0x3 != 2 {
		t.Fatalf("expected DMASTATUS Internal/Timeout error, got 0x%x", v)
	}
}
