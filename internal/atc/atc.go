// Package atc implements the single-entry Address Translation Cache of
// spec.md §3: written by the ATS engine on a successful translation,
// consulted by the DMA engine, and invalidated by the ATS invalidation
// handler.
package atc

import "sync"

// Permission bits (§3), laid out the same as regs.Perm* (ATS_PERM, §6.1):
// bit0 exec, bit1 write, bit2 read.
const (
	PermExec  uint8 = 1 << 0
	PermWrite uint8 = 1 << 1
	PermRead  uint8 = 1 << 2
)

// Entry is the single cached translation.
type Entry struct {
	Valid       bool
	InputAddr   uint64
	OutputAddr  uint64
	RangeSize   uint32
	Permissions uint8
	PasidValid  bool
	PasidVal    uint32
}

// ATC holds the one entry. Single writer at a time (ATSEngine on success,
// invalidation handler on clear); single reader (DMAEngine). The mutex
// guarantees readers observe either the pre- or post-update value, never a
// torn one (§5).
type ATC struct {
	mu    sync.Mutex
	entry Entry
}

// New returns an empty (invalid) ATC.
func New() *ATC { return &ATC{} }

// Clear invalidates the cached entry. Called on reset and on
// ATSCTL.clear_atc (§3).
func (a *ATC) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entry = Entry{}
}

// Store installs a new translation, replacing whatever was cached.
func (a *ATC) Store(e Entry) {
	e.Valid = true
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entry = e
}

// Lookup resolves addr (optionally qualified by a PASID) against the
// cached entry, per the hit condition of §4.4:
//
//	ATC.valid && addr ∈ [input, input+range) &&
//	  ((!pasidEn && !ATC.pasid_valid) || (pasidEn && ATC.pasid_valid && pasidVal == ATC.pasid_val))
func (a *ATC) Lookup(addr uint64, pasidEn bool, pasidVal uint32) (outputAddr uint64, hit bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entry
	if !e.Valid {
		return 0, false
	}
	if addr < e.InputAddr || addr >= e.InputAddr+uint64(e.RangeSize) {
		return 0, false
	}
	switch {
	case !pasidEn && !e.PasidValid:
	case pasidEn && e.PasidValid && pasidVal == e.PasidVal:
	default:
		return 0, false
	}
	offset := addr - e.InputAddr
	return e.OutputAddr + offset, true
}

// Overlaps reports whether the cached entry (if valid) intersects the
// half-open range [start, start+size) and matches the invalidation's PASID
// scoping, used by the ATS invalidation handler's CHECK state (§4.6):
// global invalidations (pasidEn=false) match any cached entry's range
// regardless of the entry's PASID; scoped invalidations only match entries
// carrying the same PASID.
func (a *ATC) Overlaps(start uint64, size uint32, pasidEn bool, pasidVal uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entry
	if !e.Valid {
		return false
	}
	end := start + uint64(size)
	entryEnd := e.InputAddr + uint64(e.RangeSize)
	if end <= e.InputAddr || start >= entryEnd {
		return false
	}
	if pasidEn && (!e.PasidValid || pasidVal != e.PasidVal) {
		return false
	}
	return true
}

// Snapshot returns a copy of the current entry for diagnostics/tests.
func (a *ATC) Snapshot() Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entry
}
