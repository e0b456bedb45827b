// Package config describes the external collaborators the core reads
// from but never owns: the configuration-space model (ECAP/DVSEC state)
// and endpoint identity (§6.4). The core treats these as read-only, and a
// host application wires a concrete implementation in at construction time.
package config

// Collaborator exposes the handful of fields the core consumes from the
// surrounding configuration-space / endpoint-identity model. Everything
// else in ECAP/DVSEC/AER/DPC space is out of scope (§1) and is not
// represented here.
type Collaborator interface {
	// ATSEnabled reports the ATS-ECAP enable bit. ATSEngine refuses new
	// triggers while this is false; it does not clear the ATC, which keeps
	// whatever entry it held.
	ATSEnabled() bool

	// EndpointID is the 16-bit Bus/Dev/Func used as req_id when no
	// RID override is active (§4.4, §6.4).
	EndpointID() uint16

	// MaxPayloadSize and MaxRequestSize are re-read by the DMA engine on
	// every trigger (§4.4, §6.4); values are in bytes.
	MaxPayloadSize() uint16
	MaxRequestSize() uint16
}

// Static is a fixed-value Collaborator for tests and simple embedders that
// don't need a live configuration-space model.
type Static struct {
	ATSEnabledVal bool
	EndpointIDVal uint16
	MPS           uint16
	MRRS          uint16
}

func (s *Static) ATSEnabled() bool    { return s.ATSEnabledVal }
func (s *Static) EndpointID() uint16  { return s.EndpointIDVal }
func (s *Static) MaxPayloadSize() uint16 { return s.MPS }
func (s *Static) MaxRequestSize() uint16 { return s.MRRS }

// NewDefault returns a Static collaborator with reasonable defaults: ATS
// disabled, endpoint_id 0, 256-byte MPS/MRRS (the common PCIe reset
// default).
func NewDefault() *Static {
	return &Static{
		ATSEnabledVal: false,
		EndpointIDVal: 0,
		MPS:           256,
		MRRS:          256,
	}
}
