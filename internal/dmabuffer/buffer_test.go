package dmabuffer_test

import (
	"bytes"
	"testing"

	"github.com/arm-bsa/pcie-exerciser/internal/dmabuffer"
)

func TestWriteReadPortA(t *testing.T) {
	b := dmabuffer.New(4096)
	payload := []byte{1, 2, 3, 4}
	if !b.WriteBytesPortA(0x100, payload) {
		t.Fatalf("WriteBytesPortA failed")
	}
	got, ok := b.ReadBytes(0x100, 4)
	if !ok || !bytes.Equal(got, payload) {
		t.Fatalf("ReadBytes = %v, ok=%v, want %v", got, ok, payload)
	}
}

func TestPortBWriteVisibleToPortA(t *testing.T) {
	b := dmabuffer.New(4096)
	payload := bytes.Repeat([]byte{0xAA}, 128)
	if !b.WriteBytesPortB(0, payload) {
		t.Fatalf("WriteBytesPortB failed")
	}
	got, ok := b.ReadBytes(0, 128)
	if !ok || !bytes.Equal(got, payload) {
		t.Fatalf("cross-port visibility broken")
	}
}

func TestOutOfBoundsRejected(t *testing.T) {
	b := dmabuffer.New(16)
	if b.WriteBytesPortA(10, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("expected out-of-bounds write to fail")
	}
	if _, ok := b.ReadBytes(10, 10); ok {
		t.Fatalf("expected out-of-bounds read to fail")
	}
}

func TestDefaultSizeUsedForNonPositive(t *testing.T) {
	b := dmabuffer.New(0)
	if b.Size() != dmabuffer.DefaultSize {
		t.Fatalf("Size() = %d, want %d", b.Size(), dmabuffer.DefaultSize)
	}
}
