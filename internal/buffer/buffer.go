// Package buffer implements the wire buffer (spec.md §4.1): a resizable
// byte slice with a cursor, fixed-width big-endian primitive reads/writes,
// and the two size guards the spec requires.
package buffer

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxSize is the largest a buffer may grow to: 1 MiB of payload plus the
// 8-byte frame header.
const MaxSize = 1024*1024 + 8

// Buffer is a growable byte buffer with a read/write cursor, reused across
// commands on the same connection to avoid per-command allocation.
type Buffer struct {
	data             []byte
	offset           int
	reclaimThreshold int
}

// New allocates a Buffer. reclaimThreshold is the size above which Reset
// shrinks the backing array instead of just rewinding the cursor.
func New(reclaimThreshold int) *Buffer {
	return &Buffer{
		data:             make([]byte, 0, 1024),
		reclaimThreshold: reclaimThreshold,
	}
}

// Bytes returns the buffer's content up to its current length.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the current logical length of the buffer.
func (b *Buffer) Len() int { return len(b.data) }

// Offset returns the current cursor position.
func (b *Buffer) Offset() int { return b.offset }

// SetOffset repositions the cursor for a subsequent read or write.
func (b *Buffer) SetOffset(n int) { b.offset = n }

// Reset rewinds the cursor to zero. If the buffer has grown past
// reclaimThreshold, its backing array is dropped so the large allocation
// does not outlive the oversized command that needed it.
func (b *Buffer) Reset() {
	b.offset = 0
	if b.reclaimThreshold > 0 && cap(b.data) > b.reclaimThreshold {
		b.data = make([]byte, 0, 1024)
		return
	}
	b.data = b.data[:0]
}

// Resize grows the logical length to n, appending zero bytes as needed.
// Resizing to more than MaxSize is rejected (spec.md §4.1 size guard).
func (b *Buffer) Resize(n int) error {
	if n > MaxSize {
		return fmt.Errorf("buffer: resize to %d exceeds max buffer size %d", n, MaxSize)
	}
	if n <= cap(b.data) {
		b.data = b.data[:n]
		return nil
	}
	grown := make([]byte, n)
	copy(grown, b.data)
	b.data = grown
	return nil
}

func (b *Buffer) ensure(n int) {
	if b.offset+n <= len(b.data) {
		return
	}
	if b.offset+n <= cap(b.data) {
		b.data = b.data[:b.offset+n]
		return
	}
	grown := make([]byte, b.offset+n)
	copy(grown, b.data)
	b.data = grown
}

// WriteUint8/Int8/Uint16/Int16/Uint32/Int32/Uint64/Int64/Float32/Float64
// append one big-endian primitive at the cursor and advance it.

func (b *Buffer) WriteUint8(v uint8) {
	b.ensure(1)
	b.data[b.offset] = v
	b.offset++
}

func (b *Buffer) WriteInt8(v int8) { b.WriteUint8(uint8(v)) }

func (b *Buffer) WriteUint16(v uint16) {
	b.ensure(2)
	binary.BigEndian.PutUint16(b.data[b.offset:], v)
	b.offset += 2
}

func (b *Buffer) WriteInt16(v int16) { b.WriteUint16(uint16(v)) }

func (b *Buffer) WriteUint32(v uint32) {
	b.ensure(4)
	binary.BigEndian.PutUint32(b.data[b.offset:], v)
	b.offset += 4
}

func (b *Buffer) WriteInt32(v int32) { b.WriteUint32(uint32(v)) }

func (b *Buffer) WriteUint64(v uint64) {
	b.ensure(8)
	binary.BigEndian.PutUint64(b.data[b.offset:], v)
	b.offset += 8
}

func (b *Buffer) WriteInt64(v int64) { b.WriteUint64(uint64(v)) }

func (b *Buffer) WriteFloat32(v float32) { b.WriteUint32(math.Float32bits(v)) }
func (b *Buffer) WriteFloat64(v float64) { b.WriteUint64(math.Float64bits(v)) }

// WriteUint48 writes a 48-bit big-endian length, matching the frame header's
// length field (spec.md §4.1).
func (b *Buffer) WriteUint48(v uint64) {
	b.ensure(6)
	b.data[b.offset+0] = byte(v >> 40)
	b.data[b.offset+1] = byte(v >> 32)
	b.data[b.offset+2] = byte(v >> 24)
	b.data[b.offset+3] = byte(v >> 16)
	b.data[b.offset+4] = byte(v >> 8)
	b.data[b.offset+5] = byte(v)
	b.offset += 6
}

// WriteString writes raw UTF-8 bytes with no length prefix (the caller
// writes the length separately, per the field/op self-describing layout).
func (b *Buffer) WriteString(s string) int {
	b.ensure(len(s))
	n := copy(b.data[b.offset:], s)
	b.offset += n
	return n
}

// WriteBytes copies raw bytes at the cursor.
func (b *Buffer) WriteBytes(p []byte) int {
	b.ensure(len(p))
	n := copy(b.data[b.offset:], p)
	b.offset += n
	return n
}

// Peek reads n bytes at the cursor without advancing it.
func (b *Buffer) Peek(n int) ([]byte, error) {
	if b.offset+n > len(b.data) {
		return nil, fmt.Errorf("buffer: peek(%d) past end (offset=%d, len=%d)", n, b.offset, len(b.data))
	}
	return b.data[b.offset : b.offset+n], nil
}

func (b *Buffer) read(n int) ([]byte, error) {
	p, err := b.Peek(n)
	if err != nil {
		return nil, err
	}
	b.offset += n
	return p, nil
}

func (b *Buffer) ReadUint8() (uint8, error) {
	p, err := b.read(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (b *Buffer) ReadInt8() (int8, error) {
	v, err := b.ReadUint8()
	return int8(v), err
}

func (b *Buffer) ReadUint16() (uint16, error) {
	p, err := b.read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (b *Buffer) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *Buffer) ReadUint64() (uint64, error) {
	p, err := b.read(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

func (b *Buffer) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

func (b *Buffer) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	return math.Float32frombits(v), err
}

func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadUint48 reads a 48-bit big-endian length (the frame header's length
// field, spec.md §4.1).
func (b *Buffer) ReadUint48() (uint64, error) {
	p, err := b.read(6)
	if err != nil {
		return 0, err
	}
	return uint64(p[0])<<40 | uint64(p[1])<<32 | uint64(p[2])<<24 |
		uint64(p[3])<<16 | uint64(p[4])<<8 | uint64(p[5]), nil
}

func (b *Buffer) ReadString(n int) (string, error) {
	p, err := b.read(n)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	p, err := b.read(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}
