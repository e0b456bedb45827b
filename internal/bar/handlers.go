// Package bar implements the BAR dispatcher and per-BAR handlers of
// spec.md §4.1/§4.2. Address decode (resolving a host address to a BAR
// and in-BAR offset) is modeled as already having happened upstream of
// the core: RX beats arrive with `bar_hit` already set and `Adr` already
// BAR-relative, matching §3's framing of bar_hit as an RX-only signal
// the core consumes rather than computes.
package bar

import (
	"github.com/arm-bsa/pcie-exerciser/internal/config"
	"github.com/arm-bsa/pcie-exerciser/internal/dmabuffer"
	"github.com/arm-bsa/pcie-exerciser/internal/msix"
	"github.com/arm-bsa/pcie-exerciser/internal/regs"
	"github.com/arm-bsa/pcie-exerciser/internal/tlp"
)

// Handler is implemented by every per-BAR handler and the stub handler.
type Handler interface {
	HandleWrite(b tlp.RequestBeat)
	HandleRead(b tlp.RequestBeat) []tlp.CompletionBeat
}

// RegisterFileHandler adapts *regs.RegisterFile (BAR0) to Handler.
type RegisterFileHandler struct {
	Regs *regs.RegisterFile
}

func (h *RegisterFileHandler) HandleWrite(b tlp.RequestBeat) {
	for i, d := range b.Dat {
		h.Regs.Write(uint32(b.Adr)+uint32(i*4), d, b.BE)
	}
}

func (h *RegisterFileHandler) HandleRead(b tlp.RequestBeat) []tlp.CompletionBeat {
	n := b.DWLen()
	dat := make([]uint32, n)
	for i := range dat {
		dat[i] = h.Regs.Read(uint32(b.Adr) + uint32(i*4))
	}
	return []tlp.CompletionBeat{{
		ReqID: b.ReqID, Tag: b.Tag, Dat: dat, First: true, Last: true, End: true,
	}}
}

// DMABufferHandler adapts *dmabuffer.Buffer (BAR1) to Handler, splitting
// read completions to respect the collaborator's current max_payload_size
// (§4.2).
type DMABufferHandler struct {
	Buf *dmabuffer.Buffer
	Cfg config.Collaborator
}

// mergeBytesBE applies a 4-bit byte enable over one DWORD's worth of
// bytes, keeping old where the corresponding enable bit is clear — the
// same granularity the register file and MSI-X table apply (§4.2's "be").
func mergeBytesBE(old, val []byte, be uint8) []byte {
	out := make([]byte, len(old))
	copy(out, old)
	for i := 0; i < len(out) && i < len(val); i++ {
		if be&(1<<uint(i%4)) != 0 {
			out[i] = val[i]
		}
	}
	return out
}

func (h *DMABufferHandler) HandleWrite(b tlp.RequestBeat) {
	data := tlp.BytesFromDWords(b.Dat, len(b.Dat)*4)
	if b.BE != 0xF && b.BE != 0 {
		if old, ok := h.Buf.ReadBytesPortB(int(b.Adr), len(data)); ok {
			data = mergeBytesBE(old, data, b.BE)
		}
	} else if b.BE == 0 {
		return
	}
	h.Buf.WriteBytesPortB(int(b.Adr), data)
}

func (h *DMABufferHandler) HandleRead(b tlp.RequestBeat) []tlp.CompletionBeat {
	total := b.DWLen() * 4
	data, ok := h.Buf.ReadBytesPortB(int(b.Adr), total)
	if !ok {
		return []tlp.CompletionBeat{{ReqID: b.ReqID, Tag: b.Tag, Err: true, First: true, Last: true, End: true}}
	}

	mps := int(h.Cfg.MaxPayloadSize())
	if mps <= 0 {
		mps = len(data)
	}
	var out []tlp.CompletionBeat
	for off := 0; off < len(data) || off == 0; off += mps {
		end := off + mps
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		cpl := tlp.CompletionBeat{
			ReqID:           b.ReqID,
			Tag:             b.Tag,
			Dat:             tlp.DWordsFromBytes(chunk),
			LengthRemaining: uint16((len(data) - end) / 4),
			First:           off == 0,
		}
		if end >= len(data) {
			cpl.Last = true
			cpl.End = true
		}
		out = append(out, cpl)
		if len(data) == 0 {
			break
		}
	}
	return out
}

// MSIXTableHandler adapts *msix.Table (BAR2) to Handler.
type MSIXTableHandler struct {
	Table *msix.Table
}

func (h *MSIXTableHandler) HandleWrite(b tlp.RequestBeat) {
	for i, d := range b.Dat {
		h.Table.Write(uint32(b.Adr)+uint32(i*4), d, b.BE)
	}
}

func (h *MSIXTableHandler) HandleRead(b tlp.RequestBeat) []tlp.CompletionBeat {
	n := b.DWLen()
	dat := make([]uint32, n)
	for i := range dat {
		dat[i] = h.Table.Read(uint32(b.Adr) + uint32(i*4))
	}
	return []tlp.CompletionBeat{{ReqID: b.ReqID, Tag: b.Tag, Dat: dat, First: true, Last: true, End: true}}
}

// PBAHandler adapts *msix.PBA (BAR5) to Handler. Host writes are
// silently discarded (§3).
type PBAHandler struct {
	PBA *msix.PBA
}

func (h *PBAHandler) HandleWrite(tlp.RequestBeat) {}

func (h *PBAHandler) HandleRead(b tlp.RequestBeat) []tlp.CompletionBeat {
	n := b.DWLen()
	dat := make([]uint32, n)
	baseDW := int(b.Adr) / 4
	for i := 0; i < n; i++ {
		var word uint32
		for j := 0; j < 32; j++ {
			if h.PBA.Bit((baseDW+i)*32 + j) {
				word |= 1 << uint(j)
			}
		}
		dat[i] = word
	}
	return []tlp.CompletionBeat{{ReqID: b.ReqID, Tag: b.Tag, Dat: dat, First: true, Last: true, End: true}}
}

// StubHandler services unmatched bar_hit and BAR3/4 (disabled) traffic:
// writes are discarded, reads complete with a single Unsupported-Request
// completion (§4.1, §4.2).
type StubHandler struct{}

func (StubHandler) HandleWrite(tlp.RequestBeat) {}

func (StubHandler) HandleRead(b tlp.RequestBeat) []tlp.CompletionBeat {
	return []tlp.CompletionBeat{{
		ReqID: b.ReqID, Tag: b.Tag, Err: true, First: true, Last: true, End: true,
		LengthRemaining: b.Len,
	}}
}
