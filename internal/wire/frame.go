package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/coral-mesh/sas-client/internal/constants"
)

// Message types carried in the frame header.
const (
	TypeInit       uint8 = 1
	TypeTrailAssoc uint8 = 2
	TypeEvent      uint8 = 3
	TypeMarker     uint8 = 4
)

// TypeName returns a lowercase name for a message type.
func TypeName(t uint8) string {
	switch t {
	case TypeInit:
		return "init"
	case TypeTrailAssoc:
		return "trail-assoc"
	case TypeEvent:
		return "event"
	case TypeMarker:
		return "marker"
	default:
		return fmt.Sprintf("type(%d)", t)
	}
}

const (
	// HeaderLength is the size of the outer header: length and type.
	HeaderLength = 3

	// MaxFrameLength is the largest frame the length field can describe.
	MaxFrameLength = math.MaxUint16

	// MaxVarParamLength is the largest single variable parameter.
	MaxVarParamLength = math.MaxUint16

	// messageFixedLength covers header, trail, timestamp, id, instance,
	// static block prefix and var count.
	messageFixedLength = HeaderLength + 8 + 8 + 4 + 4 + 2 + 1
)

var (
	// ErrFrameTooLarge is returned when an encoded frame would not fit the
	// 16-bit length field.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrTooManyParams is returned when a message exceeds the static or
	// variable parameter limit.
	ErrTooManyParams = errors.New("too many parameters")

	// ErrTruncated is returned when a frame ends before its declared content.
	ErrTruncated = errors.New("frame truncated")

	// ErrUnknownType is returned for an unrecognised message type.
	ErrUnknownType = errors.New("unknown message type")
)

// Scope controls how the server correlates a marker with its trail.
type Scope uint8

const (
	ScopeNone   Scope = 0
	ScopeBranch Scope = 1
	ScopeTrace  Scope = 2
)

// String returns the lowercase scope name.
func (s Scope) String() string {
	switch s {
	case ScopeNone:
		return "none"
	case ScopeBranch:
		return "branch"
	case ScopeTrace:
		return "trace"
	default:
		return fmt.Sprintf("scope(%d)", uint8(s))
	}
}

// ParseScope parses a scope name as printed by Scope.String.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "none", "":
		return ScopeNone, nil
	case "branch":
		return ScopeBranch, nil
	case "trace":
		return ScopeTrace, nil
	default:
		return ScopeNone, fmt.Errorf("invalid scope %q (want none, branch or trace)", s)
	}
}

// Message is the logical content of an event or marker frame.
type Message struct {
	Trail    uint64
	ID       uint32
	Instance uint32
	Static   []uint32
	Var      [][]byte
}

// Validate checks the parameter limits.
func (m *Message) Validate() error {
	if len(m.Static) > constants.MaxStaticParams {
		return fmt.Errorf("%w: %d static parameters (max %d)", ErrTooManyParams, len(m.Static), constants.MaxStaticParams)
	}
	if len(m.Var) > constants.MaxVarParams {
		return fmt.Errorf("%w: %d variable parameters (max %d)", ErrTooManyParams, len(m.Var), constants.MaxVarParams)
	}
	for i, v := range m.Var {
		if len(v) > MaxVarParamLength {
			return fmt.Errorf("%w: variable parameter %d is %d bytes", ErrFrameTooLarge, i, len(v))
		}
	}
	return nil
}

// ReadFrame reads one complete frame from r, using the length field to
// find its end. The returned slice includes the header.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(prefix[:]))
	if length < HeaderLength {
		return nil, fmt.Errorf("%w: declared length %d", ErrTruncated, length)
	}
	frame := make([]byte, length)
	copy(frame, prefix[:])
	if _, err := io.ReadFull(r, frame[2:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

// PeekType returns the message type of a complete frame.
func PeekType(frame []byte) (uint8, error) {
	if len(frame) < HeaderLength {
		return 0, ErrTruncated
	}
	return frame[2], nil
}
