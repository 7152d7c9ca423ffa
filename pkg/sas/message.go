package sas

import (
	"bytes"

	"github.com/coral-mesh/sas-client/internal/constants"
	"github.com/coral-mesh/sas-client/internal/wire"
)

// Well-known marker IDs.
const (
	MarkerIDProtocolError      uint32 = 0x01000001
	MarkerIDStart              uint32 = 0x01000003
	MarkerIDEnd                uint32 = 0x01000004
	MarkerIDDialedDigits       uint32 = 0x01000005
	MarkerIDCallingDN          uint32 = 0x01000006
	MarkerIDCalledDN           uint32 = 0x01000007
	MarkerIDSIPRegistration    uint32 = 0x010B0004
	MarkerIDSIPAllRegister     uint32 = 0x010B0005
	MarkerIDSIPCallID          uint32 = 0x010C0001
	MarkerIDIMSChargingID      uint32 = 0x010C0002
	MarkerIDViaBranchParam     uint32 = 0x010C0003
	MarkerIDOutboundCallingURI uint32 = 0x05000003
	MarkerIDInboundCallingURI  uint32 = 0x05000004
	MarkerIDOutboundCalledURI  uint32 = 0x05000005
	MarkerIDInboundCalledURI   uint32 = 0x05000006
)

// Parameter limits per message.
const (
	MaxStaticParams = constants.MaxStaticParams
	MaxVarParams    = constants.MaxVarParams
)

// Scope controls how the server correlates a marker with other trails.
type Scope = wire.Scope

const (
	ScopeNone   = wire.ScopeNone
	ScopeBranch = wire.ScopeBranch
	ScopeTrace  = wire.ScopeTrace
)

// Message accumulates the parameters of an event or marker. Parameters
// keep the order they were added in. Once a limit is reached further
// parameters are rejected and reported when the message is sent.
//
// A Message is not safe for concurrent use.
type Message struct {
	trail    TrailID
	id       uint32
	instance uint32

	static []uint32
	vars   [][]byte

	rejectedStatic int
	rejectedVar    int
}

// Event is a message describing something that happened on a trail.
type Event struct {
	Message
}

// Marker is a message carrying correlation data for a trail.
type Marker struct {
	Message
}

// NewEvent creates an event. Only the low 24 bits of id are used; the top
// byte is always 0x0F.
func NewEvent(trail TrailID, id, instance uint32) *Event {
	return &Event{Message{trail: trail, id: (id & 0x00FFFFFF) | 0x0F000000, instance: instance}}
}

// NewMarker creates a marker.
func NewMarker(trail TrailID, id, instance uint32) *Marker {
	return &Marker{Message{trail: trail, id: id, instance: instance}}
}

// Trail returns the trail the message belongs to.
func (m *Message) Trail() TrailID { return m.trail }

// ID returns the message ID as it will be sent.
func (m *Message) ID() uint32 { return m.id }

// Instance returns the instance ID.
func (m *Message) Instance() uint32 { return m.instance }

// AddStaticParam appends a 32-bit parameter.
func (m *Message) AddStaticParam(v uint32) *Message {
	if len(m.static) >= MaxStaticParams {
		m.rejectedStatic++
		return m
	}
	m.static = append(m.static, v)
	return m
}

// AddVarParam appends a copy of b as a variable-length parameter.
func (m *Message) AddVarParam(b []byte) *Message {
	if len(m.vars) >= MaxVarParams || len(b) > wire.MaxVarParamLength {
		m.rejectedVar++
		return m
	}
	m.vars = append(m.vars, bytes.Clone(b))
	return m
}

// AddVarParamString appends s as a variable-length parameter.
func (m *Message) AddVarParamString(s string) *Message {
	return m.AddVarParam([]byte(s))
}

// Rejected returns how many static and variable parameters were refused.
func (m *Message) Rejected() (static, variable int) {
	return m.rejectedStatic, m.rejectedVar
}

func (m *Message) wire() *wire.Message {
	return &wire.Message{
		Trail:    m.trail,
		ID:       m.id,
		Instance: m.instance,
		Static:   m.static,
		Var:      m.vars,
	}
}
