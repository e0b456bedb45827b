package inject_test

import (
	"testing"

	"github.com/arm-bsa/pcie-exerciser/internal/inject"
	"github.com/arm-bsa/pcie-exerciser/internal/tlp"
)

func drain(j *inject.Injector) []tlp.RequestBeat {
	var out []tlp.RequestBeat
	for j.Pending() {
		b, _ := j.Pop()
		out = append(out, b)
	}
	return out
}

func TestPassthroughWhenPasidDisabled(t *testing.T) {
	j := inject.New()
	j.Push(tlp.RequestBeat{First: true, Last: true, We: true, Dat: []uint32{0x1234}})

	out := drain(j)
	if len(out) != 1 {
		t.Fatalf("expected 1 beat out, got %d", len(out))
	}
	if out[0].Dat[0] != 0x1234 {
		t.Fatalf("passthrough must not alter data: %+v", out[0])
	}
}

// S5 — single-beat PASID-tagged write: prefix beat + data beat (I3: +1).
func TestShiftSingleBeatEmitsPrefixThenData(t *testing.T) {
	j := inject.New()
	j.Push(tlp.RequestBeat{
		First: true, Last: true, We: true,
		PasidEn: true, PasidVal: 0x42, Privileged: true,
		Dat: []uint32{0xDEADBEEF},
	})

	out := drain(j)
	if len(out) != 2 {
		t.Fatalf("expected in_beats+1 = 2 output beats, got %d", len(out))
	}
	if out[0].Last {
		t.Fatalf("prefix beat must not carry Last")
	}
	if len(out[0].Dat) != 1 || out[0].Dat[0] != 0x9120_0042 {
		t.Fatalf("unexpected prefix beat: %+v", out[0])
	}
	if !out[1].Last || out[1].Dat[0] != 0xDEADBEEF {
		t.Fatalf("unexpected flush beat: %+v", out[1])
	}
}

func TestShiftNoDataReadRequestStaysOneBeat(t *testing.T) {
	j := inject.New()
	j.Push(tlp.RequestBeat{
		First: true, Last: true, We: false,
		PasidEn: true, PasidVal: 7,
	})

	out := drain(j)
	if len(out) != 1 {
		t.Fatalf("a dataless read must not grow beat count, got %d beats", len(out))
	}
	if !out[0].Last || len(out[0].Dat) != 1 {
		t.Fatalf("unexpected single beat: %+v", out[0])
	}
}

func TestShiftMultiBeatNeverDropsData(t *testing.T) {
	j := inject.New()
	j.Push(tlp.RequestBeat{First: true, PasidEn: true, PasidVal: 1, Dat: []uint32{1, 2, 3, 4}})
	j.Push(tlp.RequestBeat{Dat: []uint32{5, 6, 7, 8}})
	j.Push(tlp.RequestBeat{Last: true, Dat: []uint32{9, 10, 11, 12}})

	out := drain(j)
	var allDat []uint32
	for _, b := range out {
		allDat = append(allDat, b.Dat...)
	}
	// 1 prefix DWORD + 12 original data DWORDs must all appear, in order.
	want := []uint32{0x9100_0001, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if len(allDat) != len(want) {
		t.Fatalf("expected %d total DWORDs, got %d: %v", len(want), len(allDat), allDat)
	}
	for i, w := range want {
		if allDat[i] != w {
			t.Fatalf("DWORD %d: want 0x%x, got 0x%x", i, w, allDat[i])
		}
	}
	if !out[len(out)-1].Last {
		t.Fatalf("final output beat must carry Last")
	}
}
