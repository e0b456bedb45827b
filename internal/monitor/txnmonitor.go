// Package monitor implements the transaction monitor of spec.md §4.10: a
// non-intrusive tap on inbound request beats feeding a lossy fixed-depth
// FIFO the host drains through TXN_TRACE.
package monitor

import "github.com/arm-bsa/pcie-exerciser/internal/tlp"

// Depth is the fixed FIFO capacity in records (§4.10).
const Depth = 32

const wordsPerRecord = 5

// Monitor implements regs.MonitorPort. It is fed by the BAR dispatcher's
// tap (Observe) and drained by the register file's TXN_TRACE reads
// (NextTraceWord).
type Monitor struct {
	enabled  bool
	overflow bool

	// words is a flat ring of wordsPerRecord-DWORD records; head/count
	// track the live window within it, wordCursor how far NextTraceWord
	// has progressed into the oldest record.
	words      [Depth * wordsPerRecord]uint32
	head       int
	count      int // records currently queued
	wordCursor int
}

// New returns a disabled, empty monitor (post-reset state).
func New() *Monitor { return &Monitor{} }

// Observe is the dispatcher's tap: called for every accepted RX beat
// (valid & ready & first, per §4.1) without affecting backpressure.
// Capture is gated by TXN_CTRL.enable.
func (m *Monitor) Observe(b tlp.RequestBeat, accessSizeBytes uint32) {
	if !m.enabled {
		return
	}
	if m.count == Depth {
		m.overflow = true
		return
	}
	rec := tlp.BuildTransactionRecord(b, accessSizeBytes)
	base := ((m.head + m.count) % Depth) * wordsPerRecord
	for i, w := range rec {
		m.words[base+i] = w
	}
	m.count++
}

// NextTraceWord pops the next DWORD of the oldest queued record; returns
// 0xFFFFFFFF once the FIFO is drained (§4.10, §6.1 TXN_TRACE).
func (m *Monitor) NextTraceWord() uint32 {
	if m.count == 0 {
		return 0xFFFFFFFF
	}
	// The five words of the oldest record are consumed one at a time;
	// only the record, not the individual word, is popped from the ring.
	idx := m.head % Depth
	base := idx * wordsPerRecord
	w := m.words[base+m.wordCursor]
	m.wordCursor++
	if m.wordCursor == wordsPerRecord {
		m.wordCursor = 0
		m.head = (m.head + 1) % Depth
		m.count--
	}
	return w
}

// Overflow reports the sticky overflow flag.
func (m *Monitor) Overflow() bool { return m.overflow }

// SetEnabled gates capture (TXN_CTRL.enable).
func (m *Monitor) SetEnabled(v bool) { m.enabled = v }

// Clear drains the FIFO and clears the overflow flag (TXN_CTRL.clear).
func (m *Monitor) Clear() {
	m.head, m.count, m.wordCursor = 0, 0, 0
	m.overflow = false
}
