package bar_test

import (
	"testing"

	"github.com/arm-bsa/pcie-exerciser/internal/bar"
	"github.com/arm-bsa/pcie-exerciser/internal/config"
	"github.com/arm-bsa/pcie-exerciser/internal/dmabuffer"
	"github.com/arm-bsa/pcie-exerciser/internal/msix"
	"github.com/arm-bsa/pcie-exerciser/internal/regs"
	"github.com/arm-bsa/pcie-exerciser/internal/tlp"
)

func newDispatcher() (*bar.Dispatcher, *regs.RegisterFile, *dmabuffer.Buffer, *msix.Table, *msix.PBA) {
	rf := regs.New()
	buf := dmabuffer.New(4096)
	table := msix.NewTable()
	pba := msix.NewPBA()
	cfg := config.NewDefault()

	d := bar.NewDispatcher(
		&bar.RegisterFileHandler{Regs: rf},
		&bar.DMABufferHandler{Buf: buf, Cfg: cfg},
		&bar.MSIXTableHandler{Table: table},
		&bar.PBAHandler{PBA: pba},
		bar.StubHandler{},
	)
	return d, rf, buf, table, pba
}

func TestDispatchRoutesByBarHit(t *testing.T) {
	d, _, buf, _, _ := newDispatcher()
	d.Dispatch(tlp.RequestBeat{
		BarHit: tlp.BarHit1, We: true, First: true, Last: true,
		Adr: 0x10, Dat: []uint32{0xCAFEBABE}, BE: 0xF,
	})
	got, ok := buf.ReadBytes(0x10, 4)
	if !ok || got[0] != 0xBE || got[3] != 0xCA {
		t.Fatalf("expected BAR1 write to land in the DMA buffer, got %+v", got)
	}
}

func TestDispatchUnmatchedBarHitGoesToStub(t *testing.T) {
	d, _, _, _, _ := newDispatcher()
	out := d.Dispatch(tlp.RequestBeat{BarHit: 0, We: false, First: true, Last: true, Tag: 3})
	if len(out) != 1 || !out[0].Err {
		t.Fatalf("expected a single UR completion for an unmatched bar_hit, got %+v", out)
	}
}

func TestDispatchDisabledBAR3GoesToStub(t *testing.T) {
	d, _, _, _, _ := newDispatcher()
	out := d.Dispatch(tlp.RequestBeat{BarHit: tlp.BarHit3, We: false, First: true, Last: true})
	if len(out) != 1 || !out[0].Err {
		t.Fatalf("expected BAR3 reads to complete as UR, got %+v", out)
	}
	// Writes are silently dropped; must not panic or error.
	d.Dispatch(tlp.RequestBeat{BarHit: tlp.BarHit4, We: true, First: true, Last: true, Dat: []uint32{1}})
}

func TestDispatchAtomicityAcrossBeats(t *testing.T) {
	d, _, _, table, _ := newDispatcher()
	d.Dispatch(tlp.RequestBeat{BarHit: tlp.BarHit2, We: true, First: true, Last: false, Adr: 0x0, Dat: []uint32{0x1}, BE: 0xF})
	// Second beat carries no bar_hit (mid-TLP); must still land on BAR2.
	d.Dispatch(tlp.RequestBeat{We: true, First: false, Last: true, Adr: 0x4, Dat: []uint32{0x2}, BE: 0xF})

	if v := table.Read(0x0); v != 0x1 {
		t.Fatalf("expected first beat committed to BAR2, got 0x%x", v)
	}
	if v := table.Read(0x4); v != 0x2 {
		t.Fatalf("expected mid-packet beat to stay routed to BAR2, got 0x%x", v)
	}
}

func TestPBAHandlerWritesDropped(t *testing.T) {
	d, _, _, _, pba := newDispatcher()
	pba.Set(0, true)
	d.Dispatch(tlp.RequestBeat{BarHit: tlp.BarHit5, We: true, First: true, Last: true, Adr: 0, Dat: []uint32{0}})
	if !pba.Bit(0) {
		t.Fatalf("PBA host writes must be silently discarded")
	}

	out := d.Dispatch(tlp.RequestBeat{BarHit: tlp.BarHit5, We: false, First: true, Last: true, Adr: 0, Len: 1})
	if len(out) != 1 || out[0].Dat[0]&0x1 == 0 {
		t.Fatalf("expected PBA read to reflect vector 0 pending, got %+v", out)
	}
}

func TestRegisterFileHandlerViaBAR0(t *testing.T) {
	d, rf, _, _, _ := newDispatcher()
	d.Dispatch(tlp.RequestBeat{BarHit: tlp.BarHit0, We: true, First: true, Last: true, Adr: 0x004, Dat: []uint32{1}, BE: 0xF})
	if rf.Read(0x004)&0x1 == 0 {
		t.Fatalf("expected INTXCTL.assert set via BAR0 write")
	}
}
