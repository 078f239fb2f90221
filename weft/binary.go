package weft

import (
	"math"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"

	"github.com/weftlabs/weft/binding"
	"github.com/weftlabs/weft/buf"
)

// Binary wire byte codes. Every value starts with one of these.
const (
	bNull    = 0x00
	bFalse   = 0x01
	bTrue    = 0x02
	bInt8    = 0x04
	bInt16   = 0x05
	bInt32   = 0x06
	bInt64   = 0x07
	bUint8   = 0x08
	bUint16  = 0x09
	bUint32  = 0x0A
	bUint64  = 0x0B
	bFloat32 = 0x0C
	bFloat64 = 0x0D
	bText    = 0x0E // UTF-8 bytes terminated by a NUL stop byte
	bBytes   = 0x0F // 4-byte little-endian length, then raw bytes
	bTag     = 0x10 // tag name with stop byte, then the tagged value
	bSeq     = 0x11 // length-prefixed payload of values
	bRecord  = 0x12 // length-prefixed payload of fields
	bField   = 0x13 // field name with stop byte, then the value
	bI32Ref  = 0x14 // padding to 4-byte alignment, then a 4-byte slot
	bI64Ref  = 0x15 // padding to 8-byte alignment, then an 8-byte slot
	bI64Arr  = 0x16 // 4-byte count, padding, then count 8-byte slots

	textStop = 0x00

	// lenWide escapes a 1-byte length prefix to a 4-byte little-endian one.
	lenWide = 0xFF
)

// BinaryWire is the compact binary format engine: length-prefixed records,
// fixed-width numerics, stop-byte text, no whitespace tolerance. One
// instance owns one buffer's cursors and is confined to a single goroutine.
type BinaryWire struct {
	b    *buf.Buffer
	opts Options

	// Write side: latched first error.
	err error

	// Read side: stack of open scopes (document, record, sequence).
	scopes []rscope
}

type rscope struct {
	start int
	end   int
}

var (
	_ Wire          = (*BinaryWire)(nil)
	_ ReferenceWire = (*BinaryWire)(nil)
	_ ValueOut      = binaryOut{}
	_ ValueIn       = binaryIn{}
)

// NewBinaryWire binds a binary engine to a buffer.
func NewBinaryWire(b *buf.Buffer, opts Options) *BinaryWire {
	return &BinaryWire{b: b, opts: opts.fill()}
}

// Format identifies this engine.
func (w *BinaryWire) Format() Format { return FormatBinary }

// Buffer exposes the underlying byte cursor.
func (w *BinaryWire) Buffer() *buf.Buffer { return w.b }

func (w *BinaryWire) fail(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// ============================================================
// Length prefixes
// ============================================================

// beginLen reserves a 1-byte length prefix and returns its offset.
func (w *BinaryWire) beginLen() int {
	off := w.b.WritePosition()
	w.b.WriteZeros(1)
	return off
}

// endLen patches the prefix at off with the span written since beginLen,
// widening it in place when the span does not fit a single byte.
func (w *BinaryWire) endLen(off int) {
	n := w.b.WritePosition() - off - 1
	if n < int(lenWide) {
		w.b.PutByteAt(off, byte(n))
		return
	}
	w.b.ShiftRight(off+1, 4)
	w.b.PutByteAt(off, lenWide)
	w.b.PutUint32At(off+1, uint32(n))
}

// peekLen decodes a length prefix at the read position without consuming
// it, returning the payload length and the prefix width.
func (w *BinaryWire) peekLen() (n, prefix int, err error) {
	c, ok := w.b.PeekByte()
	if !ok {
		return 0, 0, framingErrorf(w.b.Bytes(), w.b.ReadPosition(), "missing length prefix")
	}
	if c != lenWide {
		return int(c), 1, nil
	}
	var v uint32
	for i := 0; i < 4; i++ {
		b, ok := w.b.PeekByteAt(1 + i)
		if !ok {
			return 0, 0, framingErrorf(w.b.Bytes(), w.b.ReadPosition(), "truncated wide length prefix")
		}
		v |= uint32(b) << (8 * i)
	}
	return int(v), 5, nil
}

// readLen consumes a length prefix and returns the payload length.
func (w *BinaryWire) readLen() (int, error) {
	n, prefix, err := w.peekLen()
	if err != nil {
		return 0, err
	}
	if err := w.b.Skip(prefix); err != nil {
		return 0, err
	}
	if w.b.ReadPosition()+n > w.b.Len() {
		return 0, framingErrorf(w.b.Bytes(), w.b.ReadPosition(), "length prefix %d exceeds available %d", n, w.b.Len()-w.b.ReadPosition())
	}
	return n, nil
}

// ============================================================
// Documents
// ============================================================

// WriteDocument frames one length-prefixed record written by fn.
func (w *BinaryWire) WriteDocument(fn func(ValueOut) error) error {
	w.err = nil
	off := w.beginLen()
	if err := fn(binaryOut{w}); err != nil {
		w.fail(err)
	}
	if w.err != nil {
		return w.err
	}
	w.endLen(off)
	return nil
}

// ReadDocument consumes one framed record, skipping any unread remainder.
func (w *BinaryWire) ReadDocument(fn func(ValueIn) error) error {
	n, err := w.readLen()
	if err != nil {
		return err
	}
	end := w.b.ReadPosition() + n
	w.scopes = append(w.scopes, rscope{start: w.b.ReadPosition(), end: end})
	err = fn(binaryIn{w})
	w.scopes = w.scopes[:len(w.scopes)-1]
	w.b.SetReadPosition(end)
	return err
}

// HasDocument reports whether a complete document is readable.
func (w *BinaryWire) HasDocument() bool {
	if w.b.Remaining() == 0 {
		return false
	}
	n, prefix, err := w.peekLen()
	if err != nil {
		return false
	}
	return w.b.ReadPosition()+prefix+n <= w.b.Len()
}

// PeekDocumentLength returns the full byte span of the next document,
// prefix included, without consuming it.
func (w *BinaryWire) PeekDocumentLength() (int, error) {
	n, prefix, err := w.peekLen()
	if err != nil {
		return 0, err
	}
	return prefix + n, nil
}

// SkipDocument discards the next document whole.
func (w *BinaryWire) SkipDocument() error {
	span, err := w.PeekDocumentLength()
	if err != nil {
		return err
	}
	return w.b.Skip(span)
}

func (w *BinaryWire) scopeTop() (rscope, bool) {
	if len(w.scopes) == 0 {
		return rscope{}, false
	}
	return w.scopes[len(w.scopes)-1], true
}

func (w *BinaryWire) hasNext() bool {
	if s, ok := w.scopeTop(); ok {
		return w.b.ReadPosition() < s.end
	}
	return w.b.Remaining() > 0
}

// ============================================================
// ValueOut cursor
// ============================================================

// binaryOut is the write cursor over a BinaryWire.
type binaryOut struct{ w *BinaryWire }

func (o binaryOut) Err() error { return o.w.err }

func (o binaryOut) Null() ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bNull)
	}
	return o
}

func (o binaryOut) Bool(v bool) ValueOut {
	if o.w.err == nil {
		if v {
			o.w.b.WriteByte(bTrue)
		} else {
			o.w.b.WriteByte(bFalse)
		}
	}
	return o
}

func (o binaryOut) Int8(v int8) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bInt8)
		o.w.b.WriteByte(byte(v))
	}
	return o
}

func (o binaryOut) Int16(v int16) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bInt16)
		o.w.b.WriteUint16(uint16(v))
	}
	return o
}

func (o binaryOut) Int32(v int32) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bInt32)
		o.w.b.WriteUint32(uint32(v))
	}
	return o
}

func (o binaryOut) Int64(v int64) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bInt64)
		o.w.b.WriteUint64(uint64(v))
	}
	return o
}

func (o binaryOut) Uint8(v uint8) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bUint8)
		o.w.b.WriteByte(v)
	}
	return o
}

func (o binaryOut) Uint16(v uint16) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bUint16)
		o.w.b.WriteUint16(v)
	}
	return o
}

func (o binaryOut) Uint32(v uint32) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bUint32)
		o.w.b.WriteUint32(v)
	}
	return o
}

func (o binaryOut) Uint64(v uint64) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bUint64)
		o.w.b.WriteUint64(v)
	}
	return o
}

func (o binaryOut) Float32(v float32) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bFloat32)
		o.w.b.WriteFloat32(v)
	}
	return o
}

func (o binaryOut) Float64(v float64) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bFloat64)
		o.w.b.WriteFloat64(v)
	}
	return o
}

// writeStop writes s followed by the stop byte, rejecting text the stop
// byte could not terminate unambiguously.
func (w *BinaryWire) writeStop(s string) {
	if !utf8.ValidString(s) {
		w.fail(errors.Newf("weft: text %q is not valid UTF-8", s))
		return
	}
	for i := 0; i < len(s); i++ {
		if s[i] == textStop {
			w.fail(errors.Newf("weft: text %q contains NUL", s))
			return
		}
	}
	w.b.WriteString(s)
	w.b.WriteByte(textStop)
}

func (o binaryOut) Text(s string) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bText)
		o.w.writeStop(s)
	}
	return o
}

func (o binaryOut) Bytes(p []byte) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bBytes)
		o.w.b.WriteUint32(uint32(len(p)))
		o.w.b.Write(p)
	}
	return o
}

func (o binaryOut) TypeTag(name string) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bTag)
		o.w.writeStop(name)
	}
	return o
}

func (o binaryOut) Field(name string) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bField)
		o.w.writeStop(name)
	}
	return o
}

func (o binaryOut) Sequence(fn func(ValueOut)) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bSeq)
		off := o.w.beginLen()
		fn(o)
		if o.w.err == nil {
			o.w.endLen(off)
		}
	}
	return o
}

func (o binaryOut) Record(fn func(ValueOut)) ValueOut {
	if o.w.err == nil {
		o.w.b.WriteByte(bRecord)
		off := o.w.beginLen()
		fn(o)
		if o.w.err == nil {
			o.w.endLen(off)
		}
	}
	return o
}

// LeafRecord is identical to Record in the binary grammar; leaf layout only
// matters where whitespace exists.
func (o binaryOut) LeafRecord(fn func(ValueOut)) ValueOut { return o.Record(fn) }

// Comment is a no-op: the binary grammar has no comments.
func (o binaryOut) Comment(string) ValueOut { return o }

func (o binaryOut) WriteValue(v *Value) ValueOut {
	writeValueTo(o, v)
	return o
}

// ============================================================
// ValueIn cursor
// ============================================================

// binaryIn is the read cursor over a BinaryWire.
type binaryIn struct{ w *BinaryWire }

func (i binaryIn) HasNext() bool             { return i.w.hasNext() }
func (i binaryIn) HasNextSequenceItem() bool { return i.w.hasNext() }

func (i binaryIn) IsNull() bool {
	if !i.w.hasNext() {
		return false
	}
	c, ok := i.w.b.PeekByte()
	return ok && c == bNull
}

// readCode consumes the next byte code, checking scope bounds.
func (w *BinaryWire) readCode() (byte, error) {
	if !w.hasNext() {
		return 0, framingErrorf(w.b.Bytes(), w.b.ReadPosition(), "unexpected end of scope")
	}
	return w.b.ReadByte()
}

// readStop consumes bytes up to and excluding the stop byte.
func (w *BinaryWire) readStop() (string, error) {
	start := w.b.ReadPosition()
	for {
		c, err := w.b.ReadByte()
		if err != nil {
			return "", framingErrorf(w.b.Bytes(), start, "unterminated text")
		}
		if c == textStop {
			p, _ := w.b.Region(start, w.b.ReadPosition()-1-start)
			return string(p), nil
		}
	}
}

// readNumeric decodes any numeric code into a Value.
func (w *BinaryWire) readNumeric() (*Value, error) {
	off := w.b.ReadPosition()
	code, err := w.readCode()
	if err != nil {
		return nil, err
	}
	switch code {
	case bNull:
		return Null(), nil
	case bInt8:
		c, err := w.b.ReadByte()
		return Int8(int8(c)), err
	case bInt16:
		v, err := w.b.ReadUint16()
		return Int16(int16(v)), err
	case bInt32:
		v, err := w.b.ReadUint32()
		return Int32(int32(v)), err
	case bInt64:
		v, err := w.b.ReadUint64()
		return Int64(int64(v)), err
	case bUint8:
		c, err := w.b.ReadByte()
		return Uint8(c), err
	case bUint16:
		v, err := w.b.ReadUint16()
		return Uint16(v), err
	case bUint32:
		v, err := w.b.ReadUint32()
		return Uint32(v), err
	case bUint64:
		v, err := w.b.ReadUint64()
		return Uint64(v), err
	case bFloat32:
		v, err := w.b.ReadFloat32()
		return Float32(v), err
	case bFloat64:
		v, err := w.b.ReadFloat64()
		return Float64(v), err
	default:
		return nil, framingErrorf(w.b.Bytes(), off, "expected numeric code, got 0x%02x", code)
	}
}

func (i binaryIn) Bool() (bool, error) {
	off := i.w.b.ReadPosition()
	code, err := i.w.readCode()
	if err != nil {
		return false, err
	}
	switch code {
	case bTrue:
		return true, nil
	case bFalse:
		return false, nil
	default:
		return false, framingErrorf(i.w.b.Bytes(), off, "expected bool code, got 0x%02x", code)
	}
}

// narrow converts a widened integer with a range check.
func narrow[T constraints.Signed](v int64) (T, error) {
	t := T(v)
	if int64(t) != v {
		return t, errors.Newf("weft: value %d overflows %T", v, t)
	}
	return t, nil
}

func narrowU[T constraints.Unsigned](v uint64) (T, error) {
	t := T(v)
	if uint64(t) != v {
		return t, errors.Newf("weft: value %d overflows %T", v, t)
	}
	return t, nil
}

func (i binaryIn) Int8() (int8, error) {
	v, err := i.Int64()
	if err != nil {
		return 0, err
	}
	return narrow[int8](v)
}

func (i binaryIn) Int16() (int16, error) {
	v, err := i.Int64()
	if err != nil {
		return 0, err
	}
	return narrow[int16](v)
}

func (i binaryIn) Int32() (int32, error) {
	v, err := i.Int64()
	if err != nil {
		return 0, err
	}
	return narrow[int32](v)
}

func (i binaryIn) Int64() (int64, error) {
	v, err := i.w.readNumeric()
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

func (i binaryIn) Uint8() (uint8, error) {
	v, err := i.Uint64()
	if err != nil {
		return 0, err
	}
	return narrowU[uint8](v)
}

func (i binaryIn) Uint16() (uint16, error) {
	v, err := i.Uint64()
	if err != nil {
		return 0, err
	}
	return narrowU[uint16](v)
}

func (i binaryIn) Uint32() (uint32, error) {
	v, err := i.Uint64()
	if err != nil {
		return 0, err
	}
	return narrowU[uint32](v)
}

func (i binaryIn) Uint64() (uint64, error) {
	v, err := i.w.readNumeric()
	if err != nil {
		return 0, err
	}
	return v.AsUint()
}

func (i binaryIn) Float32() (float32, error) {
	v, err := i.Float64()
	if err != nil {
		return 0, err
	}
	if math.Abs(v) > math.MaxFloat32 {
		return 0, errors.Newf("weft: value %g overflows float32", v)
	}
	return float32(v), nil
}

func (i binaryIn) Float64() (float64, error) {
	v, err := i.w.readNumeric()
	if err != nil {
		return 0, err
	}
	return v.AsFloat()
}

func (i binaryIn) Text() (string, error) {
	off := i.w.b.ReadPosition()
	code, err := i.w.readCode()
	if err != nil {
		return "", err
	}
	if code != bText {
		return "", framingErrorf(i.w.b.Bytes(), off, "expected text code, got 0x%02x", code)
	}
	return i.w.readStop()
}

func (i binaryIn) Bytes() ([]byte, error) {
	off := i.w.b.ReadPosition()
	code, err := i.w.readCode()
	if err != nil {
		return nil, err
	}
	if code != bBytes {
		return nil, framingErrorf(i.w.b.Bytes(), off, "expected bytes code, got 0x%02x", code)
	}
	n, err := i.w.b.ReadUint32()
	if err != nil {
		return nil, err
	}
	p, err := i.w.b.ReadBytes(int(n))
	if err != nil {
		return nil, framingErrorf(i.w.b.Bytes(), off, "bytes length %d exceeds document", n)
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, nil
}

func (i binaryIn) TypeTag() (string, error) {
	if !i.w.hasNext() {
		return "", nil
	}
	c, ok := i.w.b.PeekByte()
	if !ok || c != bTag {
		return "", nil
	}
	i.w.b.Skip(1)
	return i.w.readStop()
}

func (i binaryIn) Field() (string, error) {
	off := i.w.b.ReadPosition()
	code, err := i.w.readCode()
	if err != nil {
		return "", err
	}
	if code != bField {
		return "", framingErrorf(i.w.b.Bytes(), off, "expected field code, got 0x%02x", code)
	}
	return i.w.readStop()
}

// SeekField scans the current scope for the named field, wrapping to the
// scope start. On a miss the cursor is restored and false is returned.
func (i binaryIn) SeekField(name string) (bool, error) {
	scope, ok := i.w.scopeTop()
	if !ok {
		scope = rscope{start: i.w.b.ReadPosition(), end: i.w.b.Len()}
	}
	orig := i.w.b.ReadPosition()

	scan := func(from, to int) (bool, error) {
		i.w.b.SetReadPosition(from)
		for i.w.b.ReadPosition() < to {
			f, err := i.Field()
			if err != nil {
				return false, err
			}
			if f == name {
				return true, nil
			}
			if err := i.Skip(); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	found, err := scan(orig, scope.end)
	if err == nil && !found && orig > scope.start {
		found, err = scan(scope.start, orig)
	}
	if err != nil || !found {
		i.w.b.SetReadPosition(orig)
	}
	return found, err
}

func (i binaryIn) Sequence(fn func(ValueIn) error) error {
	off := i.w.b.ReadPosition()
	code, err := i.w.readCode()
	if err != nil {
		return err
	}
	if code != bSeq {
		return framingErrorf(i.w.b.Bytes(), off, "expected sequence code, got 0x%02x", code)
	}
	return i.readScoped(fn)
}

func (i binaryIn) Record(fn func(ValueIn) error) error {
	off := i.w.b.ReadPosition()
	code, err := i.w.readCode()
	if err != nil {
		return err
	}
	if code != bRecord {
		return framingErrorf(i.w.b.Bytes(), off, "expected record code, got 0x%02x", code)
	}
	return i.readScoped(fn)
}

func (i binaryIn) readScoped(fn func(ValueIn) error) error {
	n, err := i.w.readLen()
	if err != nil {
		return err
	}
	end := i.w.b.ReadPosition() + n
	i.w.scopes = append(i.w.scopes, rscope{start: i.w.b.ReadPosition(), end: end})
	err = fn(i)
	i.w.scopes = i.w.scopes[:len(i.w.scopes)-1]
	i.w.b.SetReadPosition(end)
	return err
}

func (i binaryIn) ReadValue() (*Value, error) {
	off := i.w.b.ReadPosition()
	code, ok := i.w.b.PeekByte()
	if !ok {
		return nil, framingErrorf(i.w.b.Bytes(), off, "unexpected end of input")
	}
	switch code {
	case bNull:
		i.w.b.Skip(1)
		return Null(), nil
	case bTrue, bFalse:
		v, err := i.Bool()
		return Bool(v), err
	case bInt8, bInt16, bInt32, bInt64, bUint8, bUint16, bUint32, bUint64, bFloat32, bFloat64:
		return i.w.readNumeric()
	case bText:
		s, err := i.Text()
		return Text(s), err
	case bBytes:
		p, err := i.Bytes()
		return Bytes(p), err
	case bTag:
		tag, err := i.TypeTag()
		if err != nil {
			return nil, err
		}
		inner, err := i.ReadValue()
		if err != nil {
			return nil, err
		}
		return Tagged(tag, inner), nil
	case bSeq:
		var items []*Value
		err := i.Sequence(func(in ValueIn) error {
			for in.HasNextSequenceItem() {
				v, err := in.ReadValue()
				if err != nil {
					return err
				}
				items = append(items, v)
			}
			return nil
		})
		return Seq(items...), err
	case bRecord:
		var fields []Field
		err := i.Record(func(in ValueIn) error {
			for in.HasNext() {
				name, err := in.Field()
				if err != nil {
					return err
				}
				v, err := in.ReadValue()
				if err != nil {
					return err
				}
				fields = append(fields, FieldOf(name, v))
			}
			return nil
		})
		return Record(fields...), err
	default:
		return nil, framingErrorf(i.w.b.Bytes(), off, "unknown value code 0x%02x", code)
	}
}

func (i binaryIn) Skip() error {
	off := i.w.b.ReadPosition()
	code, err := i.w.readCode()
	if err != nil {
		return err
	}
	switch code {
	case bNull, bTrue, bFalse:
		return nil
	case bInt8, bUint8:
		return i.w.b.Skip(1)
	case bInt16, bUint16:
		return i.w.b.Skip(2)
	case bInt32, bUint32, bFloat32:
		return i.w.b.Skip(4)
	case bInt64, bUint64, bFloat64:
		return i.w.b.Skip(8)
	case bText:
		_, err := i.w.readStop()
		return err
	case bBytes:
		n, err := i.w.b.ReadUint32()
		if err != nil {
			return err
		}
		return i.w.b.Skip(int(n))
	case bTag, bField:
		if _, err := i.w.readStop(); err != nil {
			return err
		}
		return i.Skip()
	case bSeq, bRecord:
		n, err := i.w.readLen()
		if err != nil {
			return err
		}
		return i.w.b.Skip(n)
	case bI32Ref:
		return i.w.skipAligned(binding.Int32Width)
	case bI64Ref:
		return i.w.skipAligned(binding.Int64Width)
	case bI64Arr:
		n, err := i.w.b.ReadUint32()
		if err != nil {
			return err
		}
		return i.w.skipAligned(int(n) * binding.Int64Width)
	default:
		return framingErrorf(i.w.b.Bytes(), off, "cannot skip unknown code 0x%02x", code)
	}
}

func (w *BinaryWire) skipAligned(width int) error {
	align := binding.Int64Width
	if width == binding.Int32Width {
		align = binding.Int32Width
	}
	pad := padTo(w.b.ReadPosition(), align)
	return w.b.Skip(pad + width)
}

// ============================================================
// Reference bindings
// ============================================================

// padTo returns the padding needed to bring off to a multiple of align.
func padTo(off, align int) int {
	rem := off % align
	if rem == 0 {
		return 0
	}
	return align - rem
}

// NewInt32Ref allocates a 4-byte slot at the write position and returns a
// lock-free handle bound to it. References must not sit inside a record
// whose length prefix later widens, since that moves the slot; allocate
// them outside documents or keep documents under the single-byte length.
func (w *BinaryWire) NewInt32Ref(initial int32) (binding.Int32Value, error) {
	w.b.WriteByte(bI32Ref)
	w.b.WriteZeros(padTo(w.b.WritePosition(), binding.Int32Width))
	off := w.b.WritePosition()
	w.b.WriteUint32(uint32(initial))
	region, err := w.b.Region(off, binding.Int32Width)
	if err != nil {
		return nil, err
	}
	return binding.BindInt32(region)
}

// NewInt64Ref allocates an 8-byte slot and returns a lock-free handle.
func (w *BinaryWire) NewInt64Ref(initial int64) (binding.Int64Value, error) {
	w.b.WriteByte(bI64Ref)
	w.b.WriteZeros(padTo(w.b.WritePosition(), binding.Int64Width))
	off := w.b.WritePosition()
	w.b.WriteUint64(uint64(initial))
	region, err := w.b.Region(off, binding.Int64Width)
	if err != nil {
		return nil, err
	}
	return binding.BindInt64(region)
}

// NewInt64ArrayRef allocates n zeroed 8-byte slots and returns a handle.
func (w *BinaryWire) NewInt64ArrayRef(n int) (binding.Int64ArrayValue, error) {
	w.b.WriteByte(bI64Arr)
	w.b.WriteUint32(uint32(n))
	w.b.WriteZeros(padTo(w.b.WritePosition(), binding.Int64Width))
	off := w.b.WritePosition()
	w.b.WriteZeros(n * binding.Int64Width)
	region, err := w.b.Region(off, n*binding.Int64Width)
	if err != nil {
		return nil, err
	}
	return binding.BindInt64Array(region, n)
}

// ReadInt32Ref binds a handle to the slot at the read position.
func (w *BinaryWire) ReadInt32Ref() (binding.Int32Value, error) {
	if err := w.expectCode(bI32Ref); err != nil {
		return nil, err
	}
	w.b.Skip(padTo(w.b.ReadPosition(), binding.Int32Width))
	off := w.b.ReadPosition()
	if err := w.b.Skip(binding.Int32Width); err != nil {
		return nil, err
	}
	region, err := w.b.Region(off, binding.Int32Width)
	if err != nil {
		return nil, err
	}
	return binding.BindInt32(region)
}

// ReadInt64Ref binds a handle to the slot at the read position.
func (w *BinaryWire) ReadInt64Ref() (binding.Int64Value, error) {
	if err := w.expectCode(bI64Ref); err != nil {
		return nil, err
	}
	w.b.Skip(padTo(w.b.ReadPosition(), binding.Int64Width))
	off := w.b.ReadPosition()
	if err := w.b.Skip(binding.Int64Width); err != nil {
		return nil, err
	}
	region, err := w.b.Region(off, binding.Int64Width)
	if err != nil {
		return nil, err
	}
	return binding.BindInt64(region)
}

// ReadInt64ArrayRef binds a handle to the array at the read position.
func (w *BinaryWire) ReadInt64ArrayRef() (binding.Int64ArrayValue, error) {
	if err := w.expectCode(bI64Arr); err != nil {
		return nil, err
	}
	n, err := w.b.ReadUint32()
	if err != nil {
		return nil, err
	}
	w.b.Skip(padTo(w.b.ReadPosition(), binding.Int64Width))
	off := w.b.ReadPosition()
	if err := w.b.Skip(int(n) * binding.Int64Width); err != nil {
		return nil, err
	}
	region, err := w.b.Region(off, int(n)*binding.Int64Width)
	if err != nil {
		return nil, err
	}
	return binding.BindInt64Array(region, int(n))
}

func (w *BinaryWire) expectCode(want byte) error {
	off := w.b.ReadPosition()
	code, err := w.readCode()
	if err != nil {
		return err
	}
	if code != want {
		return framingErrorf(w.b.Bytes(), off, "expected code 0x%02x, got 0x%02x", want, code)
	}
	return nil
}

// writeValueTo drives any ValueOut from a generic Value. Shared by all
// three engines.
func writeValueTo(out ValueOut, v *Value) {
	if v.IsNull() {
		out.Null()
		return
	}
	switch v.kind {
	case KindBool:
		out.Bool(v.boolVal)
	case KindInt8:
		out.Int8(int8(v.intVal))
	case KindInt16:
		out.Int16(int16(v.intVal))
	case KindInt32:
		out.Int32(int32(v.intVal))
	case KindInt64:
		out.Int64(v.intVal)
	case KindUint8:
		out.Uint8(uint8(v.uintVal))
	case KindUint16:
		out.Uint16(uint16(v.uintVal))
	case KindUint32:
		out.Uint32(uint32(v.uintVal))
	case KindUint64:
		out.Uint64(v.uintVal)
	case KindFloat32:
		out.Float32(float32(v.floatVal))
	case KindFloat64:
		out.Float64(v.floatVal)
	case KindText:
		out.Text(v.textVal)
	case KindBytes:
		out.Bytes(v.bytesVal)
	case KindSeq:
		out.Sequence(func(o ValueOut) {
			for _, item := range v.seqVal {
				o.WriteValue(item)
			}
		})
	case KindRecord:
		out.Record(func(o ValueOut) {
			for _, f := range v.fields {
				o.Field(f.Name).WriteValue(f.Value)
			}
		})
	case KindTagged:
		out.TypeTag(v.tagName).WriteValue(v.inner)
	}
}
