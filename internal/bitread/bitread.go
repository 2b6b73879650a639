// Package bitread wraps gobitread with the Source engine specific read helpers
// (varints, NUL terminated strings, floats) used throughout the demo decoder.
package bitread

import (
	"bytes"
	"io"
	"math"
	"sync"

	bitread "github.com/markus-wa/gobitread"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

const (
	smallBuffer = 512
	largeBuffer = 1024 * 128

	maxVarInt32Bytes = 5
	maxVarInt64Bytes = 10

	// MaxStringLength is the upper bound for NUL terminated strings read with ReadString.
	MaxStringLength = 4096
)

// ErrInvalidChunk signals a chunk length that is negative or exceeds the enclosing chunk.
var ErrInvalidChunk = errors.New("invalid chunk length")

// BitReader reads bit streams in the Source engine layout (little endian, LSB first).
// Reading beyond the end of the underlying data panics with io.ErrUnexpectedEOF.
type BitReader struct {
	bitread.BitReader
	buffer    *[]byte
	chunkEnds []int
}

// BeginChunk starts a new chunk with n bits.
func (r *BitReader) BeginChunk(n int) {
	r.chunkEnds = append(r.chunkEnds, r.ActualPosition()+n)
	r.BitReader.BeginChunk(n)
}

// EndChunk seeks to the end of the innermost chunk.
// Panics if the chunk boundary was exceeded while reading.
func (r *BitReader) EndChunk() {
	if len(r.chunkEnds) > 0 {
		r.chunkEnds = r.chunkEnds[:len(r.chunkEnds)-1]
	}
	r.BitReader.EndChunk()
}

// BeginByteChunk starts a chunk of n bytes read from untrusted input.
// Returns ErrInvalidChunk instead of opening the chunk if n is negative
// or the chunk would end beyond the enclosing one.
func (r *BitReader) BeginByteChunk(n int) error {
	if n < 0 {
		return errors.Wrapf(ErrInvalidChunk, "negative length %d", n)
	}

	if len(r.chunkEnds) > 0 {
		remaining := r.chunkEnds[len(r.chunkEnds)-1] - r.ActualPosition()
		if n<<3 > remaining {
			return errors.Wrapf(ErrInvalidChunk, "%d bytes exceed the %d bits left in the enclosing chunk", n, remaining)
		}
	}

	r.BeginChunk(n << 3)

	return nil
}

// ReadString reads a NUL terminated string of at most MaxStringLength bytes.
func (r *BitReader) ReadString() string {
	return r.ReadStringLimited(MaxStringLength)
}

// ReadStringLimited reads a NUL terminated string of at most limit bytes.
// The terminator is consumed but not returned.
func (r *BitReader) ReadStringLimited(limit int) string {
	result := make([]byte, 0, 32)
	for i := 0; i < limit; i++ {
		b := r.ReadSingleByte()
		if b == 0 {
			break
		}
		result = append(result, b)
	}
	return string(result)
}

// ReadFloat reads a 32-bit IEEE 754 float.
func (r *BitReader) ReadFloat() float32 {
	return math.Float32frombits(uint32(r.ReadInt(32)))
}

// ReadVarInt32 reads a protobuf style base-128 varint of up to 5 bytes.
func (r *BitReader) ReadVarInt32() uint32 {
	var (
		res uint32
		b   uint32 = 0x80
	)
	for count := uint(0); b&0x80 != 0 && count != maxVarInt32Bytes; count++ {
		b = uint32(r.ReadSingleByte())
		res |= (b & 0x7f) << (7 * count)
	}
	return res
}

// ReadSignedVarInt32 reads a zig-zag encoded varint.
func (r *BitReader) ReadSignedVarInt32() int32 {
	res := r.ReadVarInt32()
	return int32(res>>1) ^ -int32(res&1)
}

// ReadVarInt64 reads a protobuf style base-128 varint of up to 10 bytes.
func (r *BitReader) ReadVarInt64() uint64 {
	var (
		res uint64
		b   uint64 = 0x80
	)
	for count := uint(0); b&0x80 != 0 && count != maxVarInt64Bytes; count++ {
		b = uint64(r.ReadSingleByte())
		res |= (b & 0x7f) << (7 * count)
	}
	return res
}

// ReadSignedVarInt64 reads a zig-zag encoded 64-bit varint.
func (r *BitReader) ReadSignedVarInt64() int64 {
	res := r.ReadVarInt64()
	return int64(res>>1) ^ -int64(res&1)
}

// ReadUBitInt reads the variable width integer used for entity index deltas.
// The lowest 4 bits are always present, bits 4-5 select how many follow.
func (r *BitReader) ReadUBitInt() uint {
	res := r.ReadInt(6)
	switch res & (16 | 32) {
	case 16:
		res = (res & 15) | (r.ReadInt(4) << 4)
	case 32:
		res = (res & 15) | (r.ReadInt(8) << 4)
	case 48:
		res = (res & 15) | (r.ReadInt(32-4) << 4)
	}
	return res
}

// Pool returns the reader and its buffer to the pool.
// The reader must not be used afterwards.
func (r *BitReader) Pool() {
	r.Close()
	r.chunkEnds = r.chunkEnds[:0]
	if len(*r.buffer) == smallBuffer {
		smallBufferPool.Put(r.buffer)
	}
	r.buffer = nil
	bitReaderPool.Put(r)
}

// BitsFor returns the number of bits required to represent n.
// BitsFor(0) is 0.
func BitsFor[T constraints.Integer](n T) int {
	bits := 0
	for n > 0 {
		n >>= 1
		bits++
	}
	return bits
}

var bitReaderPool = sync.Pool{
	New: func() any {
		return new(BitReader)
	},
}

var smallBufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, smallBuffer)
		return &b
	},
}

func newBitReader(underlying io.Reader, buffer *[]byte) *BitReader {
	br := bitReaderPool.Get().(*BitReader)
	br.buffer = buffer
	br.chunkEnds = br.chunkEnds[:0]
	br.OpenWithBuffer(underlying, *buffer)
	return br
}

// NewSmallBitReader returns a pooled reader with a small buffer, meant for
// short-lived readers over single net messages.
func NewSmallBitReader(underlying io.Reader) *BitReader {
	return newBitReader(underlying, smallBufferPool.Get().(*[]byte))
}

// NewLargeBitReader returns a reader with a large buffer, meant for the demo file itself.
func NewLargeBitReader(underlying io.Reader) *BitReader {
	b := make([]byte, largeBuffer)
	return newBitReader(underlying, &b)
}

// NewBytesReader returns a small pooled reader over data.
func NewBytesReader(data []byte) *BitReader {
	return NewSmallBitReader(bytes.NewReader(data))
}
