package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/coral-mesh/sas-client/internal/safe"
)

// Frame is a decoded event or marker frame.
type Frame struct {
	Type      uint8
	Timestamp time.Time
	Scope     Scope
	Message   Message
}

// Decode parses an event or marker frame produced by EncodeEvent or
// EncodeMarker.
func Decode(frame []byte) (*Frame, error) {
	r, msgType, err := newReader(frame)
	if err != nil {
		return nil, err
	}
	if msgType != TypeEvent && msgType != TypeMarker {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, msgType)
	}

	f := &Frame{Type: msgType}
	f.Message.Trail = r.uint64()
	f.Timestamp = r.timestamp()
	f.Message.ID = r.uint32()
	f.Message.Instance = r.uint32()
	if msgType == TypeMarker {
		f.Scope = Scope(r.uint8())
	}

	staticLen := int(r.uint16())
	if staticLen%4 != 0 {
		return nil, fmt.Errorf("static block length %d is not a multiple of 4", staticLen)
	}
	for i := 0; i < staticLen/4 && r.err == nil; i++ {
		f.Message.Static = append(f.Message.Static, r.uint32())
	}

	count := int(r.uint8())
	for i := 0; i < count && r.err == nil; i++ {
		n := int(r.uint16())
		f.Message.Var = append(f.Message.Var, r.bytes(n))
	}

	if err := r.finish(); err != nil {
		return nil, err
	}
	return f, nil
}

// DecodeInit parses an init frame produced by EncodeInit.
func DecodeInit(frame []byte) (*Hello, error) {
	r, msgType, err := newReader(frame)
	if err != nil {
		return nil, err
	}
	if msgType != TypeInit {
		return nil, fmt.Errorf("%w: expected init, got %d", ErrUnknownType, msgType)
	}

	h := &Hello{}
	h.Timestamp = r.timestamp()
	h.SystemName = r.string()
	endian := r.bytes(4)
	if r.err == nil {
		h.BigEndian = binary.BigEndian.Uint32(endian) == 1
	}
	h.Version = r.string()
	h.SystemType = r.string()
	h.ResourceIdentifier = r.string()

	if err := r.finish(); err != nil {
		return nil, err
	}
	return h, nil
}

// reader walks a frame, remembering the first error so callers can check
// once at the end.
type reader struct {
	b   []byte
	off int
	err error
}

func newReader(frame []byte) (*reader, uint8, error) {
	if len(frame) < HeaderLength {
		return nil, 0, ErrTruncated
	}
	length := int(binary.BigEndian.Uint16(frame))
	if length != len(frame) {
		return nil, 0, fmt.Errorf("%w: header says %d bytes, have %d", ErrTruncated, length, len(frame))
	}
	return &reader{b: frame, off: HeaderLength}, frame[2], nil
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = ErrTruncated
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) uint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) uint16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) uint64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) timestamp() time.Time {
	ms, _ := safe.Uint64ToInt64(r.uint64())
	return time.UnixMilli(ms)
}

func (r *reader) bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) string() string {
	n := int(r.uint8())
	return string(r.take(n))
}

func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.b) {
		return fmt.Errorf("%d trailing bytes after frame content", len(r.b)-r.off)
	}
	return nil
}
