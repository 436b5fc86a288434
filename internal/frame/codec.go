package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the width of the big-endian length prefix.
const HeaderSize = 4

// DefaultMaxPayload bounds a single payload unless configured otherwise.
const DefaultMaxPayload = 16 << 20

var (
	// ErrIncomplete means the buffer does not yet hold a whole frame.
	ErrIncomplete = errors.New("frame: incomplete, need more bytes")
	// ErrFrameTooLarge means a declared or supplied length exceeds the codec maximum.
	ErrFrameTooLarge = errors.New("frame: too large")
	// ErrCorruptFrame means the length prefix cannot describe a valid frame.
	ErrCorruptFrame = errors.New("frame: corrupt length prefix")
)

// Codec encodes and decodes length-delimited frames. The zero value uses
// DefaultMaxPayload.
type Codec struct {
	maxPayload int
}

// NewCodec returns a codec enforcing maxPayload. Values <= 0 or above
// math.MaxInt32 fall back to DefaultMaxPayload.
func NewCodec(maxPayload int) Codec {
	if maxPayload <= 0 || maxPayload > math.MaxInt32 {
		maxPayload = DefaultMaxPayload
	}
	return Codec{maxPayload: maxPayload}
}

// MaxPayload reports the largest payload the codec accepts.
func (c Codec) MaxPayload() int {
	if c.maxPayload <= 0 {
		return DefaultMaxPayload
	}
	return c.maxPayload
}

// Encode returns payload prefixed with its length.
func (c Codec) Encode(payload []byte) ([]byte, error) {
	return c.AppendEncode(make([]byte, 0, HeaderSize+len(payload)), payload)
}

// AppendEncode appends the encoded frame to dst.
func (c Codec) AppendEncode(dst, payload []byte) ([]byte, error) {
	if len(payload) > c.MaxPayload() {
		return dst, fmt.Errorf("%w: payload %d bytes exceeds %d", ErrFrameTooLarge, len(payload), c.MaxPayload())
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...), nil
}

// Decode consumes one frame from the front of buf. It returns a copy of the
// payload and the number of bytes consumed, or ErrIncomplete when buf holds
// only part of a frame.
func (c Codec) Decode(buf []byte) ([]byte, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, ErrIncomplete
	}
	declared := binary.BigEndian.Uint32(buf[:HeaderSize])
	if int32(declared) < 0 {
		return nil, 0, fmt.Errorf("%w: declared length %d", ErrCorruptFrame, int32(declared))
	}
	size := int(declared)
	if size > c.MaxPayload() {
		return nil, 0, fmt.Errorf("%w: declared %d bytes exceeds %d", ErrFrameTooLarge, size, c.MaxPayload())
	}
	total := HeaderSize + size
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}
	payload := make([]byte, size)
	copy(payload, buf[HeaderSize:total])
	return payload, total, nil
}
