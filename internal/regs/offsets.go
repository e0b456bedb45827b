// Package regs implements the BAR0 register file: the bit-exact control
// surface described in spec.md §6.1.
package regs

// BAR0 DWORD offsets (§6.1).
const (
	OffMSICTL        uint32 = 0x000
	OffINTXCTL       uint32 = 0x004
	OffDMACTL        uint32 = 0x008
	OffDMA_OFFSET    uint32 = 0x00C
	OffDMA_BUS_ADDR_LO uint32 = 0x010
	OffDMA_BUS_ADDR_HI uint32 = 0x014
	OffDMA_LEN       uint32 = 0x018
	OffDMASTATUS     uint32 = 0x01C
	OffPASID_VAL     uint32 = 0x020
	OffATSCTL        uint32 = 0x024
	OffATS_ADDR_LO   uint32 = 0x028
	OffATS_ADDR_HI   uint32 = 0x02C
	OffATS_RANGE_SIZE uint32 = 0x030
	OffATS_PERM      uint32 = 0x038
	OffRID_CTL       uint32 = 0x03C
	OffTXN_TRACE     uint32 = 0x040
	OffTXN_CTRL      uint32 = 0x044
	OffID            uint32 = 0x048
)

// DeviceID is the fixed value returned by the ID register: device 0xED01,
// vendor 0x13B5 (§6.1).
const DeviceID uint32 = 0xED0113B5

// MSICTL bit layout.
const (
	msictlVectorMask uint32 = 0x7FF // [10:0]
	msictlTrigger    uint32 = 1 << 31
)

// INTXCTL bit layout.
const intxctlAssert uint32 = 1 << 0

// DMACTL bit layout.
const (
	dmactlTriggerMask uint32 = 0xF // [3:0], write 0x1 to start
	dmactlDirection   uint32 = 1 << 4
	dmactlNoSnoop     uint32 = 1 << 5
	dmactlPasidEn     uint32 = 1 << 6
	dmactlPrivileged  uint32 = 1 << 7
	dmactlInstruction uint32 = 1 << 8
	dmactlUseATC      uint32 = 1 << 9
	dmactlAddrTypeShift = 10
	dmactlAddrTypeMask uint32 = 0x3 << dmactlAddrTypeShift
)

// DMASTATUS bit layout.
const (
	dmastatusStatusMask uint32 = 0x3 // [1:0]
	dmastatusClear      uint32 = 1 << 2
)

// ATSCTL bit layout.
const (
	atsctlTrigger    uint32 = 1 << 0
	atsctlPrivileged uint32 = 1 << 1
	atsctlNoWrite    uint32 = 1 << 2
	atsctlPasidEn    uint32 = 1 << 3
	atsctlExecReq    uint32 = 1 << 4
	atsctlClearATC   uint32 = 1 << 5
	atsctlInFlight   uint32 = 1 << 6
	atsctlSuccess    uint32 = 1 << 7
	atsctlCacheable  uint32 = 1 << 8
	atsctlInvalidated uint32 = 1 << 9

	// atsctlHostWritableMask is the set of bits a host write is permitted to affect;
	// the remainder (in_flight/success/cacheable/invalidated) are
	// consumer-driven or W1C only.
	atsctlHostWritableMask = atsctlTrigger | atsctlPrivileged | atsctlNoWrite |
		atsctlPasidEn | atsctlExecReq | atsctlClearATC | atsctlInvalidated
)

// ATS_PERM bit layout.
const (
	PermExec      uint8 = 1 << 0
	PermWrite     uint8 = 1 << 1
	PermRead      uint8 = 1 << 2
	PermExecPriv  uint8 = 1 << 3
	PermWritePriv uint8 = 1 << 4
	PermReadPriv  uint8 = 1 << 6
)

// RID_CTL bit layout.
const (
	ridctlReqIDMask uint32 = 0xFFFF
	ridctlValid     uint32 = 1 << 31
)

// TXN_CTRL bit layout.
const (
	txnctlEnable   uint32 = 1 << 0
	txnctlClear    uint32 = 1 << 1
	txnctlOverflow uint32 = 1 << 2
)

// Address Type values re-exported here to keep the register decoding local;
// mirror tlp.AT* exactly.
const (
	AddrTypeDefault     uint8 = 0
	AddrTypeUntranslated uint8 = 1
	AddrTypeTranslated  uint8 = 2
)

// DMA status codes (§6.1, §7).
const (
	DMAStatusOK       uint8 = 0
	DMAStatusRange    uint8 = 1
	DMAStatusInternal uint8 = 2
)
