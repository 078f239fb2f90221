// Package buf provides a growable byte buffer with independent read and
// write cursors. It is the storage primitive every format engine writes
// into and reads from: the engine owns the cursor positions, the buffer
// owns the bytes.
package buf

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// ErrShortRead is returned when a read would pass the write position.
var ErrShortRead = errors.New("buf: read past write position")

// Buffer is a growable byte region with separate read and write positions.
// The write position is the read limit. A Buffer is not safe for concurrent
// use; one goroutine owns both cursors.
type Buffer struct {
	b    []byte
	rpos int
	wpos int
}

// New creates a Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	return &Buffer{b: make([]byte, 0, capacity)}
}

// FromBytes creates a Buffer whose readable content is data. The write
// position is placed after the data; the read position at zero.
func FromBytes(data []byte) *Buffer {
	return &Buffer{b: data, wpos: len(data)}
}

// Bytes returns the written region. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.b[:b.wpos] }

// Len returns the number of written bytes.
func (b *Buffer) Len() int { return b.wpos }

// ReadPosition returns the current read cursor.
func (b *Buffer) ReadPosition() int { return b.rpos }

// SetReadPosition moves the read cursor. Positions past the write cursor
// are clamped to it.
func (b *Buffer) SetReadPosition(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > b.wpos {
		pos = b.wpos
	}
	b.rpos = pos
}

// WritePosition returns the current write cursor.
func (b *Buffer) WritePosition() int { return b.wpos }

// SetWritePosition moves the write cursor, growing the buffer if needed.
func (b *Buffer) SetWritePosition(pos int) {
	if pos < 0 {
		pos = 0
	}
	b.ensure(pos - b.wpos)
	b.wpos = pos
	if len(b.b) < pos {
		b.b = b.b[:pos]
	}
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return b.wpos - b.rpos }

// Reset discards all content and rewinds both cursors.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
	b.rpos = 0
	b.wpos = 0
}

// ensure grows the backing slice so that n more bytes fit after wpos.
func (b *Buffer) ensure(n int) {
	need := b.wpos + n
	if need <= cap(b.b) {
		if len(b.b) < need {
			b.b = b.b[:need]
		}
		return
	}
	newCap := cap(b.b)*2 + 64
	if newCap < need {
		newCap = need
	}
	nb := make([]byte, need, newCap)
	copy(nb, b.b)
	b.b = nb
}

// ============================================================
// Writing
// ============================================================

// WriteByte appends one byte.
func (b *Buffer) WriteByte(v byte) {
	b.ensure(1)
	b.b[b.wpos] = v
	b.wpos++
}

// Write appends p.
func (b *Buffer) Write(p []byte) {
	b.ensure(len(p))
	copy(b.b[b.wpos:], p)
	b.wpos += len(p)
}

// WriteString appends s.
func (b *Buffer) WriteString(s string) {
	b.ensure(len(s))
	copy(b.b[b.wpos:], s)
	b.wpos += len(s)
}

// WriteZeros appends n zero bytes, often for padding or slot reservation.
func (b *Buffer) WriteZeros(n int) {
	b.ensure(n)
	for i := 0; i < n; i++ {
		b.b[b.wpos+i] = 0
	}
	b.wpos += n
}

// WriteUint16 appends v little-endian.
func (b *Buffer) WriteUint16(v uint16) {
	b.ensure(2)
	binary.LittleEndian.PutUint16(b.b[b.wpos:], v)
	b.wpos += 2
}

// WriteUint32 appends v little-endian.
func (b *Buffer) WriteUint32(v uint32) {
	b.ensure(4)
	binary.LittleEndian.PutUint32(b.b[b.wpos:], v)
	b.wpos += 4
}

// WriteUint64 appends v little-endian.
func (b *Buffer) WriteUint64(v uint64) {
	b.ensure(8)
	binary.LittleEndian.PutUint64(b.b[b.wpos:], v)
	b.wpos += 8
}

// WriteFloat32 appends the IEEE-754 bits of v little-endian.
func (b *Buffer) WriteFloat32(v float32) { b.WriteUint32(math.Float32bits(v)) }

// WriteFloat64 appends the IEEE-754 bits of v little-endian.
func (b *Buffer) WriteFloat64(v float64) { b.WriteUint64(math.Float64bits(v)) }

// PutByteAt overwrites a single byte at an absolute offset already written.
func (b *Buffer) PutByteAt(off int, v byte) { b.b[off] = v }

// PutUint32At overwrites four bytes little-endian at an absolute offset.
func (b *Buffer) PutUint32At(off int, v uint32) {
	binary.LittleEndian.PutUint32(b.b[off:], v)
}

// ShiftRight opens a gap of n zero bytes at off, moving everything between
// off and the write position right by n. Used to widen a length prefix
// after the fact.
func (b *Buffer) ShiftRight(off, n int) {
	b.ensure(n)
	copy(b.b[off+n:b.wpos+n], b.b[off:b.wpos])
	for i := 0; i < n; i++ {
		b.b[off+i] = 0
	}
	b.wpos += n
}

// AlignWrite pads the write position with zeros to a multiple of n.
func (b *Buffer) AlignWrite(n int) {
	if n <= 1 {
		return
	}
	rem := b.wpos % n
	if rem != 0 {
		b.WriteZeros(n - rem)
	}
}

// ============================================================
// Reading
// ============================================================

// ReadByte consumes and returns one byte.
func (b *Buffer) ReadByte() (byte, error) {
	if b.rpos >= b.wpos {
		return 0, errors.Wrapf(ErrShortRead, "at offset %d", b.rpos)
	}
	v := b.b[b.rpos]
	b.rpos++
	return v, nil
}

// PeekByte returns the next byte without consuming it, and false at the end.
func (b *Buffer) PeekByte() (byte, bool) {
	if b.rpos >= b.wpos {
		return 0, false
	}
	return b.b[b.rpos], true
}

// PeekByteAt returns the byte at rpos+ahead without consuming anything.
func (b *Buffer) PeekByteAt(ahead int) (byte, bool) {
	if b.rpos+ahead >= b.wpos {
		return 0, false
	}
	return b.b[b.rpos+ahead], true
}

// ReadBytes consumes and returns the next n bytes. The result aliases the
// buffer; copy it if it must outlive further writes.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if b.rpos+n > b.wpos {
		return nil, errors.Wrapf(ErrShortRead, "need %d bytes at offset %d, have %d", n, b.rpos, b.wpos-b.rpos)
	}
	v := b.b[b.rpos : b.rpos+n]
	b.rpos += n
	return v, nil
}

// Skip advances the read cursor by n bytes.
func (b *Buffer) Skip(n int) error {
	if b.rpos+n > b.wpos {
		return errors.Wrapf(ErrShortRead, "skip %d at offset %d", n, b.rpos)
	}
	b.rpos += n
	return nil
}

// ReadUint16 consumes two bytes little-endian.
func (b *Buffer) ReadUint16() (uint16, error) {
	p, err := b.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

// ReadUint32 consumes four bytes little-endian.
func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// ReadUint64 consumes eight bytes little-endian.
func (b *Buffer) ReadUint64() (uint64, error) {
	p, err := b.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// ReadFloat32 consumes four bytes as IEEE-754 bits.
func (b *Buffer) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 consumes eight bytes as IEEE-754 bits.
func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

// Region returns the byte range [off, off+n) of the written content. The
// slice aliases the buffer, so callers holding a region must not let the
// buffer grow past its capacity.
func (b *Buffer) Region(off, n int) ([]byte, error) {
	if off < 0 || off+n > b.wpos {
		return nil, errors.Newf("buf: region [%d,%d) outside written range %d", off, off+n, b.wpos)
	}
	return b.b[off : off+n : off+n], nil
}
