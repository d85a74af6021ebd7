package binary

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer builds binary module fragments: the LEB128 encoders are the
// algorithmic inverse of the Reader's decoders and exist for round-trip
// testing, not for re-serializing modules.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteUint writes an unsigned LEB128 integer in its minimal encoding.
func (w *Writer) WriteUint(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// WriteInt writes a signed LEB128 integer in its minimal encoding.
func (w *Writer) WriteInt(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.buf.WriteByte(b)
			return
		}
		w.buf.WriteByte(b | 0x80)
	}
}

// WriteU32 writes an unsigned LEB128 uint32.
func (w *Writer) WriteU32(v uint32) {
	w.WriteUint(uint64(v))
}

// WriteS32 writes a signed LEB128 int32.
func (w *Writer) WriteS32(v int32) {
	w.WriteInt(int64(v))
}

// WriteU32LE writes a fixed 4-byte little-endian uint32.
func (w *Writer) WriteU32LE(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}

// WriteF32 writes a fixed 4-byte little-endian IEEE-754 float32.
func (w *Writer) WriteF32(v float32) {
	w.WriteU32LE(math.Float32bits(v))
}

// WriteF64 writes a fixed 8-byte little-endian IEEE-754 float64.
func (w *Writer) WriteF64(v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	w.buf.Write(buf[:])
}

// WriteName writes a length-prefixed UTF-8 name.
func (w *Writer) WriteName(s string) {
	w.WriteUint(uint64(len(s)))
	w.buf.WriteString(s)
}

// WriteByteVec writes a length-prefixed byte sequence.
func (w *Writer) WriteByteVec(data []byte) {
	w.WriteUint(uint64(len(data)))
	w.buf.Write(data)
}

// EncodeUint returns the minimal unsigned LEB128 encoding of v.
func EncodeUint(v uint64) []byte {
	w := NewWriter()
	w.WriteUint(v)
	return w.Bytes()
}

// EncodeInt returns the minimal signed LEB128 encoding of v.
func EncodeInt(v int64) []byte {
	w := NewWriter()
	w.WriteInt(v)
	return w.Bytes()
}
