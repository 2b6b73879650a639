// Package bitwrite is the inverse of bitread. It produces LSB-first bit streams
// and is used to build demo fragments in tests.
package bitwrite

import (
	"encoding/binary"
	"math"
)

// Writer accumulates bits into a byte slice.
type Writer struct {
	buf   []byte
	nBits int
}

// WriteBit appends a single bit.
func (w *Writer) WriteBit(b bool) {
	if w.nBits%8 == 0 {
		w.buf = append(w.buf, 0)
	}
	if b {
		w.buf[w.nBits/8] |= 1 << uint(w.nBits%8)
	}
	w.nBits++
}

// WriteInt appends the lowest n bits of v, LSB first.
func (w *Writer) WriteInt(v uint64, n int) {
	for i := 0; i < n; i++ {
		w.WriteBit(v&(1<<uint(i)) != 0)
	}
}

// WriteSignedInt appends v as an n-bit two's complement integer.
func (w *Writer) WriteSignedInt(v int64, n int) {
	w.WriteInt(uint64(v), n)
}

// WriteByte appends eight bits.
func (w *Writer) WriteByte(b byte) error {
	w.WriteInt(uint64(b), 8)
	return nil
}

// WriteBytes appends every byte of b.
func (w *Writer) WriteBytes(b []byte) {
	for _, x := range b {
		_ = w.WriteByte(x)
	}
}

// WriteString appends s followed by a NUL terminator.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
	_ = w.WriteByte(0)
}

// WriteFixedString appends s padded with NULs to exactly n bytes.
func (w *Writer) WriteFixedString(s string, n int) {
	b := make([]byte, n)
	copy(b, s)
	w.WriteBytes(b)
}

// WriteInt32 appends a little endian 32-bit integer.
func (w *Writer) WriteInt32(v int32) {
	w.WriteInt(uint64(uint32(v)), 32)
}

// WriteFloat appends an IEEE 754 float.
func (w *Writer) WriteFloat(f float32) {
	w.WriteInt(uint64(math.Float32bits(f)), 32)
}

// WriteVarInt32 appends a protobuf style varint.
func (w *Writer) WriteVarInt32(v uint32) {
	w.WriteBytes(binary.AppendUvarint(nil, uint64(v)))
}

// WriteUBitInt appends v in the entity index delta encoding.
func (w *Writer) WriteUBitInt(v uint) {
	switch {
	case v < 16:
		w.WriteInt(uint64(v), 6)
	case v < 1<<8:
		w.WriteInt(uint64(v&15)|16, 6)
		w.WriteInt(uint64(v>>4), 4)
	case v < 1<<12:
		w.WriteInt(uint64(v&15)|32, 6)
		w.WriteInt(uint64(v>>4), 8)
	default:
		w.WriteInt(uint64(v&15)|48, 6)
		w.WriteInt(uint64(v>>4), 28)
	}
}

// WriteFieldIndexDelta appends one entity property index as the distance from the
// previous index minus one, using the long (7 bit based) form.
func (w *Writer) WriteFieldIndexDelta(delta int) {
	switch {
	case delta < 32:
		w.WriteInt(uint64(delta), 7)
	case delta < 1<<7:
		w.WriteInt(uint64(delta&31)|32, 7)
		w.WriteInt(uint64(delta>>5), 2)
	case delta < 1<<9:
		w.WriteInt(uint64(delta&31)|64, 7)
		w.WriteInt(uint64(delta>>5), 4)
	default:
		w.WriteInt(uint64(delta&31)|96, 7)
		w.WriteInt(uint64(delta>>5), 7)
	}
}

// WriteFieldIndexEnd appends the 0xFFF terminator of an entity property list.
func (w *Writer) WriteFieldIndexEnd() {
	w.WriteFieldIndexDelta(0xFFF)
}

// WriteFieldIndices appends a complete changed field list (flag bit, indices, terminator).
// indices must be strictly increasing. With newWay set, consecutive indices use the one bit form.
func (w *Writer) WriteFieldIndices(newWay bool, indices []int) {
	w.WriteBit(newWay)

	last := -1
	for _, idx := range indices {
		if newWay {
			if idx == last+1 {
				w.WriteBit(true)
				last = idx
				continue
			}
			w.WriteBit(false)
			w.WriteBit(false)
		}

		w.WriteFieldIndexDelta(idx - last - 1)
		last = idx
	}

	if newWay {
		w.WriteBit(false)
		w.WriteBit(false)
	}
	w.WriteFieldIndexEnd()
}

// Len returns the number of bits written.
func (w *Writer) Len() int {
	return w.nBits
}

// Bytes returns the written data, zero padded to a full byte.
func (w *Writer) Bytes() []byte {
	return w.buf
}
