package msix

import "github.com/arm-bsa/pcie-exerciser/internal/tlp"

// state is the controller's internal state (§4.3):
// IDLE -> READ_TABLE -> (MASKED | ISSUE_WRITE) -> IDLE.
type state int

const (
	stateIdle state = iota
	stateReadTable
	stateIssueWrite
)

// readTableSteps models the "three-step read of the table entry"
// requirement of §4.3: the controller remains in READ_TABLE for this many
// ticks, then reads the entry and acts on it. Because Table's
// internal port is already atomic (table.go), this is a pure pacing delay,
// not a correctness requirement — it exists so a caller ticking the core
// step-by-step observes the same three-step cadence the spec describes.
const readTableSteps = 3

// Trigger is serviced from regs.RegisterFile.TakeMSITrigger.
type Trigger interface {
	TakeMSITrigger() (vector uint16, ok bool)
}

// ReqIDResolver applies a RID_CTL override, if any, over a default
// requester id (§4.4's RID override Open Question, resolved to apply to
// every master).
type ReqIDResolver interface {
	ResolveReqID(defaultID uint16) uint16
}

// Controller implements the MSI-X interrupt generator of §4.3. It is a
// master on the MasterArbiter (§4.7): Pending/Pop expose exactly one
// outstanding single-beat Memory Write TLP at a time, since "at most one
// MSI-X in progress" (further triggers wait in IDLE).
type Controller struct {
	trigger    Trigger
	table      *Table
	pba        *PBA
	reqIDs     ReqIDResolver
	endpointID uint16

	st         state
	vector     int
	stepsLeft  int
	pendingOut *tlp.RequestBeat
}

// NewController wires a Controller to its register-file trigger source,
// the table it reads, the PBA it maintains, the requester-id resolver,
// and this function's fixed endpoint identity.
func NewController(trigger Trigger, table *Table, pba *PBA, reqIDs ReqIDResolver, endpointID uint16) *Controller {
	return &Controller{trigger: trigger, table: table, pba: pba, reqIDs: reqIDs, endpointID: endpointID}
}

// Tick advances the controller state machine by one step (§5's
// logically-synchronous scheduling model).
func (c *Controller) Tick() {
	switch c.st {
	case stateIdle:
		if c.pendingOut != nil {
			// Outstanding beat not yet popped by the arbiter; hold.
			return
		}
		v, ok := c.trigger.TakeMSITrigger()
		if !ok {
			return
		}
		c.vector = int(v)
		c.st = stateReadTable
		c.stepsLeft = readTableSteps
	case stateReadTable:
		c.stepsLeft--
		if c.stepsLeft > 0 {
			return
		}
		c.completeReadTable()
	case stateIssueWrite:
		if c.pendingOut == nil {
			c.st = stateIdle
		}
	}
}

func (c *Controller) completeReadTable() {
	if c.vector >= VectorCount {
		// B4: vector index >= 16 accepted but dropped, PBA unchanged.
		c.st = stateIdle
		return
	}
	entry, _ := c.table.InternalRead(c.vector)
	if entry.Masked() {
		c.pba.Set(c.vector, true)
		c.st = stateIdle
		return
	}
	// An unmasked trigger resolves any interrupt left pending while masked.
	c.pba.Set(c.vector, false)

	reqID := c.endpointID
	if c.reqIDs != nil {
		reqID = c.reqIDs.ResolveReqID(reqID)
	}

	beat := tlp.RequestBeat{
		We:    true,
		Adr:   uint64(entry.MsgAddrHi)<<32 | uint64(entry.MsgAddrLo),
		Len:   tlp.EncodeLen(1),
		ReqID: reqID,
		Dat:   []uint32{entry.MsgData},
		BE:    0xF,
		First: true,
		Last:  true,
	}
	c.pendingOut = &beat
	c.st = stateIssueWrite
}

// Pending reports whether the controller currently holds an un-popped
// outbound beat.
func (c *Controller) Pending() bool { return c.pendingOut != nil }

// Pop returns and clears the pending outbound beat. MSI-X writes are
// posted — no completion is awaited (§4.3).
func (c *Controller) Pop() (tlp.RequestBeat, bool) {
	if c.pendingOut == nil {
		return tlp.RequestBeat{}, false
	}
	b := *c.pendingOut
	c.pendingOut = nil
	return b, true
}
