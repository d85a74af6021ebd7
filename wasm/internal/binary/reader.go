package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// ErrMalformedInteger is returned when a LEB128 encoding uses more groups
// than its declared bit width permits, or sets payload bits beyond it.
var ErrMalformedInteger = errors.New("malformed LEB128 integer")

// ErrUnexpectedEnd is returned when a read runs past the available bytes.
var ErrUnexpectedEnd = errors.New("unexpected end of input")

// ErrInvalidUTF8 is returned when a name is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid UTF-8 in name")

// Reader is a cursor over a contiguous byte buffer. It tracks the absolute
// position within the original input so that sub-readers carved out for
// section payloads still report offsets relative to the whole module.
type Reader struct {
	buf     []byte
	off     int
	base    int
	lenient bool
}

// NewReader creates a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// SetLenient toggles lenient integer decoding: overwide LEB128 encodings are
// truncated to the target width instead of failing. Sub-readers inherit the
// flag. Strict decoding is the default.
func (r *Reader) SetLenient(v bool) {
	r.lenient = v
}

// Position returns the absolute byte offset of the cursor.
func (r *Reader) Position() int {
	return r.base + r.off
}

// Len returns the number of bytes remaining.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// ReadByte reads a single byte and advances the cursor.
func (r *Reader) ReadByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, r.errAt(r.Position(), ErrUnexpectedEnd)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// PeekByte returns the next byte without advancing the cursor.
func (r *Reader) PeekByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, r.errAt(r.Position(), ErrUnexpectedEnd)
	}
	return r.buf[r.off], nil
}

// ReadBytes reads exactly n bytes. The returned slice aliases the input
// buffer; callers that retain it must copy.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, r.errAt(r.Position(), ErrUnexpectedEnd)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Sub carves out the next n bytes as an independent Reader. The sub-reader
// reports absolute positions and inherits the lenient flag.
func (r *Reader) Sub(n int) (*Reader, error) {
	at := r.Position()
	data, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return &Reader{buf: data, base: at, lenient: r.lenient}, nil
}

// maxGroups returns the number of 7-bit groups an N-bit LEB128 value may use.
func maxGroups(bits uint) uint {
	return (bits + 6) / 7
}

// ReadUint decodes an unsigned LEB128 integer of the given bit width
// (7, 32, 33, or 64). Each byte contributes its low 7 bits, least
// significant group first; a clear high bit ends the encoding.
func (r *Reader) ReadUint(bits uint) (uint64, error) {
	at := r.Position()
	limit := maxGroups(bits)
	if r.lenient {
		limit = maxGroups(64)
	}

	var result uint64
	var shift uint
	for group := uint(0); ; group++ {
		if group == limit {
			return 0, r.errAt(at, ErrMalformedInteger)
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift < 64 {
			result |= uint64(b&0x7f) << shift
		}
		if b&0x80 == 0 {
			if !r.lenient && group == maxGroups(bits)-1 {
				// Final permitted group: payload bits beyond the
				// declared width must be clear.
				if rem := bits - 7*group; rem < 7 && b&(0x7f&^byte(1<<rem-1)) != 0 {
					return 0, r.errAt(at, ErrMalformedInteger)
				}
			}
			break
		}
		shift += 7
	}
	if r.lenient && bits < 64 {
		result &= 1<<bits - 1
	}
	return result, nil
}

// ReadInt decodes a signed LEB128 integer of the given bit width. The sign
// bit is bit 6 of the final group; the accumulated value is sign-extended
// from there to the full width.
func (r *Reader) ReadInt(bits uint) (int64, error) {
	at := r.Position()
	limit := maxGroups(bits)
	if r.lenient {
		limit = maxGroups(64)
	}

	var result int64
	var shift uint
	var b byte
	for group := uint(0); ; group++ {
		if group == limit {
			return 0, r.errAt(at, ErrMalformedInteger)
		}
		var err error
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift < 64 {
			result |= int64(b&0x7f) << shift
		}
		if b&0x80 == 0 {
			if !r.lenient && group == maxGroups(bits)-1 {
				// Final permitted group: bits at and above the sign
				// position must all match the sign bit.
				if rem := bits - 7*group; rem < 7 {
					mask := 0x7f &^ byte(1<<(rem-1) - 1)
					if top := b & mask; top != 0 && top != mask {
						return 0, r.errAt(at, ErrMalformedInteger)
					}
				}
			}
			shift += 7
			break
		}
		shift += 7
	}
	if shift < 64 && b&0x40 != 0 {
		result |= ^int64(0) << shift
	}
	if r.lenient && bits < 64 {
		result = result << (64 - bits) >> (64 - bits)
	}
	return result, nil
}

// ReadU32 reads an unsigned 32-bit LEB128 integer.
func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.ReadUint(32)
	return uint32(v), err
}

// ReadU64 reads an unsigned 64-bit LEB128 integer.
func (r *Reader) ReadU64() (uint64, error) {
	return r.ReadUint(64)
}

// ReadS32 reads a signed 32-bit LEB128 integer.
func (r *Reader) ReadS32() (int32, error) {
	v, err := r.ReadInt(32)
	return int32(v), err
}

// ReadS33 reads a signed 33-bit LEB128 integer, the block-type index form.
func (r *Reader) ReadS33() (int64, error) {
	return r.ReadInt(33)
}

// ReadS64 reads a signed 64-bit LEB128 integer.
func (r *Reader) ReadS64() (int64, error) {
	return r.ReadInt(64)
}

// ReadU32LE reads a fixed 4-byte little-endian uint32.
func (r *Reader) ReadU32LE() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadF32 reads a fixed 4-byte little-endian IEEE-754 float32.
func (r *Reader) ReadF32() (float32, error) {
	bits, err := r.ReadU32LE()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// ReadF64 reads a fixed 8-byte little-endian IEEE-754 float64.
func (r *Reader) ReadF64() (float64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// ReadName reads a length-prefixed UTF-8 name.
func (r *Reader) ReadName() (string, error) {
	at := r.Position()
	data, err := r.ReadByteVec()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", r.errAt(at, ErrInvalidUTF8)
	}
	return string(data), nil
}

// ReadByteVec reads a length-prefixed byte sequence. The result is copied
// out of the input buffer.
func (r *Reader) ReadByteVec() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	data, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (r *Reader) errAt(at int, err error) error {
	return fmt.Errorf("at offset %d: %w", at, err)
}
