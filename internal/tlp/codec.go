package tlp

import "encoding/binary"

// PASID E2E prefix DWORD layout (§6.3).
const (
	pasidPrefixTag    uint32 = 0x91 << 24
	pasidPrivilegedBit uint32 = 1 << 21
	pasidExecuteBit   uint32 = 1 << 20
	pasidValueMask    uint32 = 0xFFFFF
)

// BuildPASIDPrefix constructs the 32-bit End-to-End PASID prefix DWORD
// carried ahead of a TLP header when PasidEn is set (§4.8, §6.3).
func BuildPASIDPrefix(privileged, execute bool, pasidVal uint32) uint32 {
	prefix := pasidPrefixTag | (pasidVal & pasidValueMask)
	if privileged {
		prefix |= pasidPrivilegedBit
	}
	if execute {
		prefix |= pasidExecuteBit
	}
	return prefix
}

// Message TLP fmt/type used for the ATS Invalidation Completion message
// (§4.6).
const (
	msgFmt  = 0b001
	msgType = 0b10010
	msgInvalidationCode = 0x02
)

// InvalidationCompletionMessage builds the 4-DWORD, no-data, routed-by-ID
// Message TLP header for an ATS Invalidation Completion (§4.6):
//
//	DW0 (fmt<<29)|(type<<24)
//	DW1 (req_id<<16)|(tag<<8)|0x02
//	DW2/DW3 reserved, zero
func InvalidationCompletionMessage(reqID uint16, tag uint8) [4]uint32 {
	var dws [4]uint32
	dws[0] = uint32(msgFmt)<<29 | uint32(msgType)<<24
	dws[1] = uint32(reqID)<<16 | uint32(tag)<<8 | msgInvalidationCode
	return dws
}

// Transaction record size-one-hot bit for a given access size in bytes
// (§6.2 W0 bits [31:16]).
func RecordSizeOneHot(sizeBytes uint32) uint32 {
	n := uint32(0)
	for sizeBytes > 1 {
		sizeBytes >>= 1
		n++
	}
	return 1 << (16 + n)
}

// TXAttributes bit positions (§6.2 W0).
const (
	txAttrTypeCfg uint32 = 1 << 0 // cfg-space access (core never sets this: memory only)
	txAttrWrite   uint32 = 1 << 1
	txAttrMemNotCfg uint32 = 1 << 2
)

// TransactionRecord is the fixed 5×32-bit layout captured by the
// transaction monitor for one observed request beat (§6.2).
type TransactionRecord [5]uint32

// BuildTransactionRecord assembles a monitor record from an inbound
// request beat, the byte length of the access this beat represents, and
// whether it was a write.
func BuildTransactionRecord(b RequestBeat, accessSizeBytes uint32) TransactionRecord {
	var r TransactionRecord
	r[0] = txAttrMemNotCfg | RecordSizeOneHot(accessSizeBytes)
	if b.We {
		r[0] |= txAttrWrite
	}
	r[1] = uint32(b.Adr & 0xFFFFFFFF)
	r[2] = uint32(b.Adr >> 32)
	if len(b.Dat) > 0 {
		r[3] = b.Dat[0]
	}
	if len(b.Dat) > 1 {
		r[4] = b.Dat[1]
	}
	return r
}

// DWordsFromBytes packs a little-endian byte slice into DWORDs, zero-padding
// the final partial DWORD. Payload DWORDs retain PCIe byte ordering within
// each DWORD (§6.3): byte 0 of the slice is the least-significant byte of
// the first DWORD.
func DWordsFromBytes(b []byte) []uint32 {
	n := (len(b) + 3) / 4
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		var buf [4]byte
		copy(buf[:], b[i*4:])
		out[i] = binary.LittleEndian.Uint32(buf[:])
	}
	return out
}

// BytesFromDWords is the inverse of DWordsFromBytes, truncated to n bytes.
func BytesFromDWords(dws []uint32, n int) []byte {
	out := make([]byte, len(dws)*4)
	for i, d := range dws {
		binary.LittleEndian.PutUint32(out[i*4:], d)
	}
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
