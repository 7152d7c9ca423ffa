package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/coral-mesh/sas-client/internal/constants"
	"github.com/coral-mesh/sas-client/internal/safe"
)

// Hello is the content of the init handshake.
type Hello struct {
	SystemName         string
	SystemType         string
	ResourceIdentifier string
	Version            string
	Timestamp          time.Time
	// BigEndian reports the byte order of the endianness marker. It is
	// only populated by DecodeInit.
	BigEndian bool
}

// EncodeEvent encodes m as an event frame stamped with ts.
func EncodeEvent(m *Message, ts time.Time) ([]byte, error) {
	return encodeMessage(TypeEvent, m, nil, ts)
}

// EncodeMarker encodes m as a marker frame with the given scope.
func EncodeMarker(m *Message, scope Scope, ts time.Time) ([]byte, error) {
	return encodeMessage(TypeMarker, m, &scope, ts)
}

func encodeMessage(msgType uint8, m *Message, scope *Scope, ts time.Time) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	total := messageFixedLength + 4*len(m.Static)
	if scope != nil {
		total++
	}
	for _, v := range m.Var {
		total += 2 + len(v)
	}
	length, clamped := safe.IntToUint16(total)
	if clamped {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, total)
	}

	b := make([]byte, 0, total)
	b = binary.BigEndian.AppendUint16(b, length)
	b = append(b, msgType)
	b = binary.BigEndian.AppendUint64(b, m.Trail)
	b = appendTimestamp(b, ts)
	b = binary.BigEndian.AppendUint32(b, m.ID)
	b = binary.BigEndian.AppendUint32(b, m.Instance)
	if scope != nil {
		b = append(b, uint8(*scope))
	}

	// Validate bounds both lists, so the narrowing below cannot clamp.
	staticLen, _ := safe.IntToUint16(4 * len(m.Static))
	b = binary.BigEndian.AppendUint16(b, staticLen)
	for _, v := range m.Static {
		b = binary.BigEndian.AppendUint32(b, v)
	}

	count, _ := safe.IntToUint8(len(m.Var))
	b = append(b, count)
	for _, v := range m.Var {
		n, _ := safe.IntToUint16(len(v))
		b = binary.BigEndian.AppendUint16(b, n)
		b = append(b, v...)
	}
	return b, nil
}

// EncodeInit encodes the handshake frame identifying the local system.
// An empty Version defaults to constants.ProtocolVersion.
func EncodeInit(h Hello) ([]byte, error) {
	version := h.Version
	if version == "" {
		version = constants.ProtocolVersion
	}
	fields := []struct {
		name  string
		value string
	}{
		{"system name", h.SystemName},
		{"version", version},
		{"system type", h.SystemType},
		{"resource identifier", h.ResourceIdentifier},
	}

	total := HeaderLength + 8 + 4
	for _, f := range fields {
		if len(f.value) > constants.MaxIdentityLength {
			return nil, fmt.Errorf("%s is %d bytes (max %d)", f.name, len(f.value), constants.MaxIdentityLength)
		}
		total += 1 + len(f.value)
	}
	length, clamped := safe.IntToUint16(total)
	if clamped {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, total)
	}

	b := make([]byte, 0, total)
	b = binary.BigEndian.AppendUint16(b, length)
	b = append(b, TypeInit)
	b = appendTimestamp(b, h.Timestamp)
	b = appendString(b, h.SystemName)
	b = binary.NativeEndian.AppendUint32(b, 1)
	b = appendString(b, version)
	b = appendString(b, h.SystemType)
	b = appendString(b, h.ResourceIdentifier)
	return b, nil
}

func appendTimestamp(b []byte, ts time.Time) []byte {
	ms := ts.UnixMilli()
	if ms < 0 {
		ms = 0
	}
	return binary.BigEndian.AppendUint64(b, uint64(ms))
}

func appendString(b []byte, s string) []byte {
	n, _ := safe.IntToUint8(len(s))
	b = append(b, n)
	return append(b, s[:n]...)
}
