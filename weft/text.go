package weft

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/weftlabs/weft/binding"
	"github.com/weftlabs/weft/buf"
)

// Text grammar markers.
const (
	tNull   = `!!null ""`
	tBinary = "!!binary"
	tI32Ref = "!!i32ref"
	tI64Ref = "!!i64ref"
	tI64Arr = "!!i64arr"

	// tDocSep separates documents; it must sit alone on its own line.
	tDocSep = "---"

	tIndent = "  "
)

// TextWire is the human-readable format engine: indented records, bare or
// quoted scalars, comments, and a dashed line between documents. One
// instance owns one buffer's cursors and is confined to a single goroutine.
type TextWire struct {
	b    *buf.Buffer
	opts Options

	err error

	// Write side: open scopes controlling separators and indentation.
	wscopes []wscope

	// Read side: open scopes controlling end detection and the rewind
	// point for SeekField.
	rscopes []tscope
}

type scopeKind uint8

const (
	scopeDoc scopeKind = iota
	scopeRecord
	scopeLeaf
	scopeSeq
	scopeBlockSeq
)

type wscope struct {
	kind    scopeKind
	needSep bool
}

// tscope is a read scope: its kind drives end detection, start is the
// offset of the first content byte for wrap-around field scans.
type tscope struct {
	kind  scopeKind
	start int
}

var (
	_ Wire          = (*TextWire)(nil)
	_ ReferenceWire = (*TextWire)(nil)
	_ ValueOut      = textOut{}
	_ ValueIn       = textIn{}
)

// NewTextWire binds a text engine to a buffer.
func NewTextWire(b *buf.Buffer, opts Options) *TextWire {
	return &TextWire{b: b, opts: opts.fill()}
}

func (w *TextWire) Format() Format { return FormatText }
func (w *TextWire) Buffer() *buf.Buffer { return w.b }

func (w *TextWire) fail(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// ============================================================
// Documents
// ============================================================

// WriteDocument writes one document body followed by the separator line.
func (w *TextWire) WriteDocument(fn func(ValueOut) error) error {
	w.err = nil
	w.wscopes = append(w.wscopes, wscope{kind: scopeDoc})
	if err := fn(textOut{w}); err != nil {
		w.fail(err)
	}
	w.wscopes = w.wscopes[:len(w.wscopes)-1]
	if w.err != nil {
		return w.err
	}
	if n := w.b.Len(); n > 0 && w.b.Bytes()[n-1] != '\n' {
		w.b.WriteByte('\n')
	}
	w.b.WriteString(tDocSep)
	w.b.WriteByte('\n')
	return nil
}

// ReadDocument consumes one document up to and including its separator.
func (w *TextWire) ReadDocument(fn func(ValueIn) error) error {
	if !w.HasDocument() {
		return framingErrorf(w.b.Bytes(), w.b.ReadPosition(), "no document available")
	}
	span, _ := w.PeekDocumentLength()
	end := w.b.ReadPosition() + span

	w.rscopes = append(w.rscopes, tscope{kind: scopeDoc, start: w.skipSpaceFrom(w.b.ReadPosition())})
	err := fn(textIn{w})
	w.rscopes = w.rscopes[:len(w.rscopes)-1]
	w.b.SetReadPosition(end)
	return err
}

// HasDocument reports whether any meaningful content precedes the end of
// the buffer.
func (w *TextWire) HasDocument() bool {
	pos := w.skipSpaceFrom(w.b.ReadPosition())
	return pos < w.b.Len()
}

// PeekDocumentLength returns the byte span of the next document including
// its separator line, by scanning lines for the dashed separator.
func (w *TextWire) PeekDocumentLength() (int, error) {
	data := w.b.Bytes()
	start := w.b.ReadPosition()
	if start >= len(data) {
		return 0, framingErrorf(data, start, "no document available")
	}
	pos := start
	for pos < len(data) {
		lineEnd := pos
		for lineEnd < len(data) && data[lineEnd] != '\n' {
			lineEnd++
		}
		line := strings.TrimRight(string(data[pos:lineEnd]), " \t")
		if line == tDocSep {
			if lineEnd < len(data) {
				lineEnd++ // include the newline
			}
			return lineEnd - start, nil
		}
		if lineEnd < len(data) {
			lineEnd++
		}
		pos = lineEnd
	}
	// No separator: the remainder is the final document.
	return len(data) - start, nil
}

// SkipDocument discards the next document whole.
func (w *TextWire) SkipDocument() error {
	span, err := w.PeekDocumentLength()
	if err != nil {
		return err
	}
	return w.b.Skip(span)
}

// ============================================================
// ValueOut cursor
// ============================================================

// textOut is the write cursor over a TextWire.
type textOut struct{ w *TextWire }

func (o textOut) Err() error { return o.w.err }

func (w *TextWire) wtop() *wscope {
	if len(w.wscopes) == 0 {
		w.wscopes = append(w.wscopes, wscope{kind: scopeDoc})
	}
	return &w.wscopes[len(w.wscopes)-1]
}

// indent returns the indentation for the current nesting depth; leaf and
// sequence scopes do not indent.
func (w *TextWire) indent() string {
	depth := 0
	for _, s := range w.wscopes {
		if s.kind == scopeRecord {
			depth++
		}
	}
	return strings.Repeat(tIndent, depth)
}

// preValue flushes the pending separator before a value is written.
func (w *TextWire) preValue() {
	top := w.wtop()
	switch top.kind {
	case scopeSeq:
		if top.needSep {
			w.b.WriteString(", ")
		} else {
			w.b.WriteString(" ")
		}
	case scopeDoc:
		if top.needSep {
			w.b.WriteString("\n")
		}
	}
	top.needSep = true
}

func (o textOut) scalar(s string) ValueOut {
	if o.w.err == nil {
		o.w.preValue()
		o.w.b.WriteString(s)
	}
	return o
}

func (o textOut) Null() ValueOut { return o.scalar(tNull) }

func (o textOut) Bool(v bool) ValueOut { return o.scalar(strconv.FormatBool(v)) }

func (o textOut) Int8(v int8) ValueOut   { return o.scalar(strconv.FormatInt(int64(v), 10)) }
func (o textOut) Int16(v int16) ValueOut { return o.scalar(strconv.FormatInt(int64(v), 10)) }
func (o textOut) Int32(v int32) ValueOut { return o.scalar(strconv.FormatInt(int64(v), 10)) }
func (o textOut) Int64(v int64) ValueOut { return o.scalar(strconv.FormatInt(v, 10)) }

func (o textOut) Uint8(v uint8) ValueOut   { return o.scalar(strconv.FormatUint(uint64(v), 10)) }
func (o textOut) Uint16(v uint16) ValueOut { return o.scalar(strconv.FormatUint(uint64(v), 10)) }
func (o textOut) Uint32(v uint32) ValueOut { return o.scalar(strconv.FormatUint(uint64(v), 10)) }
func (o textOut) Uint64(v uint64) ValueOut { return o.scalar(strconv.FormatUint(v, 10)) }

func (o textOut) Float32(v float32) ValueOut {
	return o.scalar(strconv.FormatFloat(float64(v), 'g', -1, 32))
}

func (o textOut) Float64(v float64) ValueOut {
	return o.scalar(strconv.FormatFloat(v, 'g', -1, 64))
}

func (o textOut) Text(s string) ValueOut { return o.scalar(quoteIfNeeded(s)) }

func (o textOut) Bytes(p []byte) ValueOut {
	return o.scalar(tBinary + " " + base64.StdEncoding.EncodeToString(p))
}

func (o textOut) TypeTag(name string) ValueOut {
	if o.w.err == nil {
		o.w.preValue()
		o.w.b.WriteString("!")
		o.w.b.WriteString(name)
		o.w.b.WriteString(" ")
		// The tagged value follows immediately; suppress its separator.
		o.w.wtop().needSep = false
	}
	return o
}

func (o textOut) Field(name string) ValueOut {
	if o.w.err != nil {
		return o
	}
	top := o.w.wtop()
	switch top.kind {
	case scopeRecord:
		if top.needSep {
			o.w.b.WriteString(",")
		}
		if n := o.w.b.Len(); !(n > 0 && o.w.b.Bytes()[n-1] == '\n') {
			o.w.b.WriteString("\n")
		}
		o.w.b.WriteString(o.w.indent())
	case scopeLeaf:
		if top.needSep {
			o.w.b.WriteString(", ")
		} else {
			o.w.b.WriteString(" ")
		}
	case scopeDoc:
		if n := o.w.b.Len(); top.needSep && !(n > 0 && o.w.b.Bytes()[n-1] == '\n') {
			o.w.b.WriteString("\n")
		}
	default:
		o.w.fail(errors.New("weft: field outside a record"))
		return o
	}
	o.w.b.WriteString(quoteIfNeeded(name))
	o.w.b.WriteString(": ")
	// The field's value follows; its separator was just flushed.
	top.needSep = false
	return o
}

func (o textOut) Sequence(fn func(ValueOut)) ValueOut {
	if o.w.err != nil {
		return o
	}
	o.w.preValue()
	o.w.b.WriteString("[")
	o.w.wscopes = append(o.w.wscopes, wscope{kind: scopeSeq})
	fn(o)
	wrote := o.w.wtop().needSep
	o.w.wscopes = o.w.wscopes[:len(o.w.wscopes)-1]
	if wrote {
		o.w.b.WriteString(" ]")
	} else {
		o.w.b.WriteString("]")
	}
	return o
}

func (o textOut) Record(fn func(ValueOut)) ValueOut {
	if o.w.err != nil {
		return o
	}
	o.w.preValue()
	closeIndent := o.w.indent()
	o.w.b.WriteString("{")
	o.w.wscopes = append(o.w.wscopes, wscope{kind: scopeRecord})
	fn(o)
	wrote := o.w.wtop().needSep
	o.w.wscopes = o.w.wscopes[:len(o.w.wscopes)-1]
	if wrote {
		o.w.b.WriteString("\n")
		o.w.b.WriteString(closeIndent)
	}
	o.w.b.WriteString("}")
	return o
}

// LeafRecord writes the record inline on one line: { name: x, count: 1 }.
func (o textOut) LeafRecord(fn func(ValueOut)) ValueOut {
	if o.w.err != nil {
		return o
	}
	o.w.preValue()
	o.w.b.WriteString("{")
	o.w.wscopes = append(o.w.wscopes, wscope{kind: scopeLeaf})
	fn(o)
	wrote := o.w.wtop().needSep
	o.w.wscopes = o.w.wscopes[:len(o.w.wscopes)-1]
	if wrote {
		o.w.b.WriteString(" }")
	} else {
		o.w.b.WriteString("}")
	}
	return o
}

// Comment writes a # line. A pending field comma is flushed first so it
// never lands inside the comment; readers skip comment lines entirely.
func (o textOut) Comment(s string) ValueOut {
	if o.w.err != nil {
		return o
	}
	top := o.w.wtop()
	if (top.kind == scopeRecord || top.kind == scopeLeaf) && top.needSep {
		o.w.b.WriteString(",")
		top.needSep = false
	}
	if n := o.w.b.Len(); n > 0 && o.w.b.Bytes()[n-1] != '\n' {
		o.w.b.WriteString("\n")
	}
	o.w.b.WriteString(o.w.indent())
	o.w.b.WriteString("# ")
	o.w.b.WriteString(s)
	o.w.b.WriteString("\n")
	return o
}

func (o textOut) WriteValue(v *Value) ValueOut {
	writeValueTo(o, v)
	return o
}

// quoteIfNeeded renders s bare when the grammar can read it back
// unambiguously, and double-quoted with escapes otherwise.
func quoteIfNeeded(s string) string {
	if s != "" && s != "true" && s != "false" && !looksNumeric(s) && isBareSafe(s) {
		return s
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func isBareSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_' || c == '.' || c == '-':
		default:
			return false
		}
	}
	c := s[0]
	return !(c >= '0' && c <= '9') && c != '-' && c != '.'
}

func looksNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// ============================================================
// Reference bindings
// ============================================================

// NewInt32Ref writes a fixed-width decimal slot and returns a handle that
// rewrites it in place. Text handles serialize through a lock stripe.
func (w *TextWire) NewInt32Ref(initial int32) (binding.Int32Value, error) {
	return bindTextRef(w, tI32Ref, binding.TextInt32Width, int64(initial), func(region []byte) (binding.Int32Value, error) {
		return binding.BindTextInt32(region)
	})
}

// NewInt64Ref writes a fixed-width decimal slot and returns a handle.
func (w *TextWire) NewInt64Ref(initial int64) (binding.Int64Value, error) {
	return bindTextRef(w, tI64Ref, binding.TextInt64Width, initial, func(region []byte) (binding.Int64Value, error) {
		return binding.BindTextInt64(region)
	})
}

func bindTextRef[H any](w *TextWire, marker string, width int, initial int64, bind func([]byte) (H, error)) (H, error) {
	var zero H
	w.preValue()
	w.b.WriteString(marker)
	w.b.WriteString(" ")
	off := w.b.WritePosition()
	w.b.WriteZeros(width)
	region, err := w.b.Region(off, width)
	if err != nil {
		return zero, err
	}
	binding.FormatPadded(region, initial)
	return bind(region)
}

// NewInt64ArrayRef writes n fixed-width decimal slots separated by single
// spaces and returns an array handle over the whole span.
func (w *TextWire) NewInt64ArrayRef(n int) (binding.Int64ArrayValue, error) {
	w.preValue()
	w.b.WriteString(tI64Arr)
	w.b.WriteString(" ")
	w.b.WriteString(strconv.Itoa(n))
	w.b.WriteString(" ")
	off := w.b.WritePosition()
	for i := 0; i < n; i++ {
		if i > 0 {
			w.b.WriteByte(' ')
		}
		slotOff := w.b.WritePosition()
		w.b.WriteZeros(binding.TextInt64Width)
		slot, err := w.b.Region(slotOff, binding.TextInt64Width)
		if err != nil {
			return nil, err
		}
		binding.FormatPadded(slot, 0)
	}
	region, err := w.b.Region(off, textArraySpan(n))
	if err != nil {
		return nil, err
	}
	return binding.BindTextInt64Array(region, n)
}

func textArraySpan(n int) int {
	if n == 0 {
		return 0
	}
	return n*binding.TextInt64Width + (n - 1)
}

// ReadInt32Ref binds a handle to the decimal slot at the read position.
func (w *TextWire) ReadInt32Ref() (binding.Int32Value, error) {
	if err := w.expectMarker(tI32Ref); err != nil {
		return nil, err
	}
	region, err := w.refRegion(binding.TextInt32Width)
	if err != nil {
		return nil, err
	}
	return binding.BindTextInt32(region)
}

// ReadInt64Ref binds a handle to the decimal slot at the read position.
func (w *TextWire) ReadInt64Ref() (binding.Int64Value, error) {
	if err := w.expectMarker(tI64Ref); err != nil {
		return nil, err
	}
	region, err := w.refRegion(binding.TextInt64Width)
	if err != nil {
		return nil, err
	}
	return binding.BindTextInt64(region)
}

// ReadInt64ArrayRef binds a handle to the array at the read position.
func (w *TextWire) ReadInt64ArrayRef() (binding.Int64ArrayValue, error) {
	if err := w.expectMarker(tI64Arr); err != nil {
		return nil, err
	}
	w.skipInline()
	tok, err := w.bareToken()
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 {
		return nil, framingErrorf(w.b.Bytes(), w.b.ReadPosition(), "bad array count %q", tok)
	}
	region, err := w.refRegion(textArraySpan(n))
	if err != nil {
		return nil, err
	}
	return binding.BindTextInt64Array(region, n)
}

func (w *TextWire) expectMarker(marker string) error {
	w.skipSpace()
	tok, err := w.bareToken()
	if err != nil {
		return err
	}
	if tok != marker {
		return framingErrorf(w.b.Bytes(), w.b.ReadPosition(), "expected %s, got %q", marker, tok)
	}
	return nil
}

func (w *TextWire) refRegion(width int) ([]byte, error) {
	w.skipInline()
	off := w.b.ReadPosition()
	if err := w.b.Skip(width); err != nil {
		return nil, err
	}
	return w.b.Region(off, width)
}

// ============================================================
// ValueIn cursor
// ============================================================

// textIn is the read cursor over a TextWire.
type textIn struct{ w *TextWire }

func (w *TextWire) rtop() scopeKind {
	if len(w.rscopes) == 0 {
		return scopeDoc
	}
	return w.rscopes[len(w.rscopes)-1].kind
}

// rstart is the first content offset of the innermost scope. With no scope
// open the cursor stands in, which disables wrapping.
func (w *TextWire) rstart() int {
	if len(w.rscopes) == 0 {
		return w.b.ReadPosition()
	}
	return w.rscopes[len(w.rscopes)-1].start
}

// skipSpaceFrom returns the first offset at or after pos holding a
// meaningful byte, crossing whitespace, commas, and comment lines.
func (w *TextWire) skipSpaceFrom(pos int) int {
	data := w.b.Bytes()
	for pos < len(data) {
		c := data[pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',' {
			pos++
			continue
		}
		if c == '#' {
			for pos < len(data) && data[pos] != '\n' {
				pos++
			}
			continue
		}
		break
	}
	return pos
}

// skipSpace advances the read cursor over whitespace, commas and comments.
func (w *TextWire) skipSpace() {
	w.b.SetReadPosition(w.skipSpaceFrom(w.b.ReadPosition()))
}

// skipInline advances over spaces and tabs only.
func (w *TextWire) skipInline() {
	data := w.b.Bytes()
	pos := w.b.ReadPosition()
	for pos < len(data) && (data[pos] == ' ' || data[pos] == '\t') {
		pos++
	}
	w.b.SetReadPosition(pos)
}

// atDocSep reports whether pos sits at a separator line.
func (w *TextWire) atDocSep(pos int) bool {
	data := w.b.Bytes()
	if pos > 0 && data[pos-1] != '\n' {
		return false
	}
	if pos+len(tDocSep) > len(data) || string(data[pos:pos+len(tDocSep)]) != tDocSep {
		return false
	}
	rest := pos + len(tDocSep)
	return rest >= len(data) || data[rest] == '\n' || data[rest] == '\r'
}

func (w *TextWire) hasNext() bool {
	pos := w.skipSpaceFrom(w.b.ReadPosition())
	if pos >= w.b.Len() {
		return false
	}
	c := w.b.Bytes()[pos]
	switch w.rtop() {
	case scopeRecord, scopeLeaf:
		return c != '}'
	case scopeSeq:
		return c != ']'
	case scopeBlockSeq:
		return c == '-' && !w.atDocSep(pos)
	default:
		return !w.atDocSep(pos)
	}
}

func (i textIn) HasNext() bool             { return i.w.hasNext() }
func (i textIn) HasNextSequenceItem() bool { return i.w.hasNext() }

func (i textIn) IsNull() bool {
	pos := i.w.skipSpaceFrom(i.w.b.ReadPosition())
	data := i.w.b.Bytes()
	return pos+len(tNull) <= len(data) && string(data[pos:pos+len(tNull)]) == tNull
}

// bareToken consumes a run of bytes up to a delimiter. The cursor must
// already sit at the token start.
func (w *TextWire) bareToken() (string, error) {
	data := w.b.Bytes()
	start := w.b.ReadPosition()
	pos := start
	for pos < len(data) {
		c := data[pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
			c == ',' || c == ']' || c == '}' || c == ':' || c == '#' {
			break
		}
		pos++
	}
	if pos == start {
		return "", framingErrorf(data, start, "expected a token")
	}
	w.b.SetReadPosition(pos)
	return string(data[start:pos]), nil
}

// quotedText consumes a double-quoted string with escapes.
func (w *TextWire) quotedText() (string, error) {
	data := w.b.Bytes()
	start := w.b.ReadPosition()
	pos := start + 1 // past the opening quote
	var sb strings.Builder
	for pos < len(data) {
		c := data[pos]
		if c == '"' {
			w.b.SetReadPosition(pos + 1)
			return sb.String(), nil
		}
		if c == '\\' {
			if pos+1 >= len(data) {
				break
			}
			pos++
			switch data[pos] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(data[pos])
			}
			pos++
			continue
		}
		sb.WriteByte(c)
		pos++
	}
	return "", framingErrorf(data, start, "unterminated string")
}

func (i textIn) Bool() (bool, error) {
	i.w.skipSpace()
	tok, err := i.w.bareToken()
	if err != nil {
		return false, err
	}
	switch tok {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "expected bool, got %q", tok)
	}
}

// number consumes one numeric token and classifies it: a fraction or
// exponent reads as float64, a plain integer as int64 widening to uint64
// only when it exceeds the signed range.
func (w *TextWire) number() (*Value, error) {
	w.skipSpace()
	off := w.b.ReadPosition()
	tok, err := w.bareToken()
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(tok, ".eE") && tok != "" {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, framingErrorf(w.b.Bytes(), off, "bad number %q", tok)
		}
		return Float64(f), nil
	}
	if v, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return Int64(v), nil
	}
	if v, err := strconv.ParseUint(tok, 10, 64); err == nil {
		return Uint64(v), nil
	}
	f, ferr := strconv.ParseFloat(tok, 64)
	if ferr != nil {
		return nil, framingErrorf(w.b.Bytes(), off, "bad number %q", tok)
	}
	return Float64(f), nil
}

func (i textIn) Int8() (int8, error) {
	v, err := i.Int64()
	if err != nil {
		return 0, err
	}
	return narrow[int8](v)
}

func (i textIn) Int16() (int16, error) {
	v, err := i.Int64()
	if err != nil {
		return 0, err
	}
	return narrow[int16](v)
}

func (i textIn) Int32() (int32, error) {
	v, err := i.Int64()
	if err != nil {
		return 0, err
	}
	return narrow[int32](v)
}

func (i textIn) Int64() (int64, error) {
	v, err := i.w.number()
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

func (i textIn) Uint8() (uint8, error) {
	v, err := i.Uint64()
	if err != nil {
		return 0, err
	}
	return narrowU[uint8](v)
}

func (i textIn) Uint16() (uint16, error) {
	v, err := i.Uint64()
	if err != nil {
		return 0, err
	}
	return narrowU[uint16](v)
}

func (i textIn) Uint32() (uint32, error) {
	v, err := i.Uint64()
	if err != nil {
		return 0, err
	}
	return narrowU[uint32](v)
}

func (i textIn) Uint64() (uint64, error) {
	v, err := i.w.number()
	if err != nil {
		return 0, err
	}
	return v.AsUint()
}

func (i textIn) Float32() (float32, error) {
	v, err := i.Float64()
	if err != nil {
		return 0, err
	}
	if math.Abs(v) > math.MaxFloat32 {
		return 0, errors.Newf("weft: value %g overflows float32", v)
	}
	return float32(v), nil
}

func (i textIn) Float64() (float64, error) {
	v, err := i.w.number()
	if err != nil {
		return 0, err
	}
	return v.AsFloat()
}

func (i textIn) Text() (string, error) {
	i.w.skipSpace()
	c, ok := i.w.b.PeekByte()
	if !ok {
		return "", framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "expected text")
	}
	if c == '"' {
		return i.w.quotedText()
	}
	return i.w.bareToken()
}

func (i textIn) Bytes() ([]byte, error) {
	if err := i.w.expectMarker(tBinary); err != nil {
		return nil, err
	}
	i.w.skipInline()
	off := i.w.b.ReadPosition()
	tok, err := i.w.bareToken()
	if err != nil {
		return nil, err
	}
	p, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		return nil, framingErrorf(i.w.b.Bytes(), off, "bad base64 payload")
	}
	return p, nil
}

// TypeTag consumes a !Name prefix. Double-bang markers are value forms,
// not tags, and are left in place.
func (i textIn) TypeTag() (string, error) {
	pos := i.w.skipSpaceFrom(i.w.b.ReadPosition())
	data := i.w.b.Bytes()
	if pos >= len(data) || data[pos] != '!' {
		return "", nil
	}
	if pos+1 < len(data) && data[pos+1] == '!' {
		return "", nil
	}
	i.w.b.SetReadPosition(pos + 1)
	return i.w.bareToken()
}

func (i textIn) Field() (string, error) {
	i.w.skipSpace()
	c, ok := i.w.b.PeekByte()
	if !ok {
		return "", framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "expected a field")
	}
	var name string
	var err error
	if c == '"' {
		name, err = i.w.quotedText()
	} else {
		name, err = i.w.bareToken()
	}
	if err != nil {
		return "", err
	}
	i.w.skipInline()
	colon, cerr := i.w.b.ReadByte()
	if cerr != nil || colon != ':' {
		return "", framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "expected ':' after field %q", name)
	}
	return name, nil
}

// SeekField scans the current scope for the named field, wrapping to the
// scope start. On a miss the cursor is restored and false is returned.
func (i textIn) SeekField(name string) (bool, error) {
	orig := i.w.b.ReadPosition()

	scan := func(from, to int) (bool, error) {
		i.w.b.SetReadPosition(from)
		for i.w.hasNext() && i.w.skipSpaceFrom(i.w.b.ReadPosition()) < to {
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

	found, err := scan(orig, i.w.b.Len())
	if start := i.w.rstart(); err == nil && !found && orig > start {
		found, err = scan(start, orig)
	}
	if err != nil || !found {
		i.w.b.SetReadPosition(orig)
	}
	return found, err
}

func (i textIn) Sequence(fn func(ValueIn) error) error {
	i.w.skipSpace()
	c, ok := i.w.b.PeekByte()
	if !ok {
		return framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "expected a sequence")
	}
	if c == '[' {
		i.w.b.Skip(1)
		i.w.rscopes = append(i.w.rscopes, tscope{kind: scopeSeq, start: i.w.skipSpaceFrom(i.w.b.ReadPosition())})
		err := fn(i)
		i.w.rscopes = i.w.rscopes[:len(i.w.rscopes)-1]
		if err != nil {
			return err
		}
		i.w.skipSpace()
		close, cerr := i.w.b.ReadByte()
		if cerr != nil || close != ']' {
			return framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "unterminated sequence")
		}
		return nil
	}
	if c == '-' {
		i.w.rscopes = append(i.w.rscopes, tscope{kind: scopeBlockSeq, start: i.w.skipSpaceFrom(i.w.b.ReadPosition())})
		err := fn(blockSeqIn{i})
		i.w.rscopes = i.w.rscopes[:len(i.w.rscopes)-1]
		return err
	}
	return framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "expected a sequence, got %q", string(c))
}

// blockSeqIn wraps the cursor for dashed item lists. Every getter consumes
// the leading dash before reading its item.
type blockSeqIn struct{ textIn }

func (s blockSeqIn) ReadValue() (*Value, error) {
	if err := s.dash(); err != nil {
		return nil, err
	}
	return s.textIn.ReadValue()
}

func (s blockSeqIn) Text() (string, error) {
	if err := s.dash(); err != nil {
		return "", err
	}
	return s.textIn.Text()
}

func (s blockSeqIn) Bool() (bool, error) {
	if err := s.dash(); err != nil {
		return false, err
	}
	return s.textIn.Bool()
}

func (s blockSeqIn) Int8() (int8, error) {
	if err := s.dash(); err != nil {
		return 0, err
	}
	return s.textIn.Int8()
}

func (s blockSeqIn) Int16() (int16, error) {
	if err := s.dash(); err != nil {
		return 0, err
	}
	return s.textIn.Int16()
}

func (s blockSeqIn) Int32() (int32, error) {
	if err := s.dash(); err != nil {
		return 0, err
	}
	return s.textIn.Int32()
}

func (s blockSeqIn) Int64() (int64, error) {
	if err := s.dash(); err != nil {
		return 0, err
	}
	return s.textIn.Int64()
}

func (s blockSeqIn) Uint8() (uint8, error) {
	if err := s.dash(); err != nil {
		return 0, err
	}
	return s.textIn.Uint8()
}

func (s blockSeqIn) Uint16() (uint16, error) {
	if err := s.dash(); err != nil {
		return 0, err
	}
	return s.textIn.Uint16()
}

func (s blockSeqIn) Uint32() (uint32, error) {
	if err := s.dash(); err != nil {
		return 0, err
	}
	return s.textIn.Uint32()
}

func (s blockSeqIn) Uint64() (uint64, error) {
	if err := s.dash(); err != nil {
		return 0, err
	}
	return s.textIn.Uint64()
}

func (s blockSeqIn) Float32() (float32, error) {
	if err := s.dash(); err != nil {
		return 0, err
	}
	return s.textIn.Float32()
}

func (s blockSeqIn) Float64() (float64, error) {
	if err := s.dash(); err != nil {
		return 0, err
	}
	return s.textIn.Float64()
}

func (s blockSeqIn) Bytes() ([]byte, error) {
	if err := s.dash(); err != nil {
		return nil, err
	}
	return s.textIn.Bytes()
}

func (s blockSeqIn) Record(fn func(ValueIn) error) error {
	if err := s.dash(); err != nil {
		return err
	}
	return s.textIn.Record(fn)
}

// IsNull peeks past an unconsumed dash so null checks work per item.
func (s blockSeqIn) IsNull() bool {
	pos := s.w.skipSpaceFrom(s.w.b.ReadPosition())
	data := s.w.b.Bytes()
	if pos < len(data) && data[pos] == '-' && !s.w.atDocSep(pos) {
		pos = s.w.skipSpaceFrom(pos + 1)
	}
	return pos+len(tNull) <= len(data) && string(data[pos:pos+len(tNull)]) == tNull
}

func (s blockSeqIn) dash() error {
	s.w.skipSpace()
	c, err := s.w.b.ReadByte()
	if err != nil || c != '-' {
		return framingErrorf(s.w.b.Bytes(), s.w.b.ReadPosition(), "expected '-' item marker")
	}
	return nil
}

func (i textIn) Record(fn func(ValueIn) error) error {
	i.w.skipSpace()
	c, err := i.w.b.ReadByte()
	if err != nil || c != '{' {
		return framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "expected a record")
	}
	i.w.rscopes = append(i.w.rscopes, tscope{kind: scopeRecord, start: i.w.skipSpaceFrom(i.w.b.ReadPosition())})
	ferr := fn(i)
	i.w.rscopes = i.w.rscopes[:len(i.w.rscopes)-1]
	if ferr != nil {
		return ferr
	}
	// Consume any fields the callback left unread, then the brace.
	for i.w.hasNextIn(scopeRecord) {
		if _, err := i.Field(); err != nil {
			return err
		}
		if err := i.Skip(); err != nil {
			return err
		}
	}
	i.w.skipSpace()
	close, cerr := i.w.b.ReadByte()
	if cerr != nil || close != '}' {
		return framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "unterminated record")
	}
	return nil
}

// hasNextIn is hasNext with an explicit scope, for cleanup after the
// callback returns when the scope has already been popped.
func (w *TextWire) hasNextIn(kind scopeKind) bool {
	w.rscopes = append(w.rscopes, tscope{kind: kind, start: w.b.ReadPosition()})
	ok := w.hasNext()
	w.rscopes = w.rscopes[:len(w.rscopes)-1]
	return ok
}

func (i textIn) ReadValue() (*Value, error) {
	pos := i.w.skipSpaceFrom(i.w.b.ReadPosition())
	data := i.w.b.Bytes()
	if pos >= len(data) {
		return nil, framingErrorf(data, pos, "unexpected end of input")
	}
	i.w.b.SetReadPosition(pos)

	switch c := data[pos]; {
	case c == '{':
		return i.readRecordValue()
	case c == '[', c == '-' && i.w.rtop() != scopeBlockSeq && isDashItem(data, pos):
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
	case c == '"':
		s, err := i.w.quotedText()
		return Text(s), err
	case c == '!':
		if i.IsNull() {
			i.w.b.Skip(len(tNull))
			return Null(), nil
		}
		if pos+1 < len(data) && data[pos+1] == '!' {
			marker := peekMarker(data, pos)
			switch marker {
			case tBinary:
				p, err := i.Bytes()
				return Bytes(p), err
			default:
				return nil, unsupportedErrorf("weft: unknown marker %q", marker)
			}
		}
		tag, err := i.TypeTag()
		if err != nil {
			return nil, err
		}
		inner, err := i.ReadValue()
		if err != nil {
			return nil, err
		}
		return Tagged(tag, inner), nil
	case c == '-' || (c >= '0' && c <= '9'):
		return i.w.number()
	default:
		tok, err := i.w.bareToken()
		if err != nil {
			return nil, err
		}
		switch tok {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		default:
			return Text(tok), nil
		}
	}
}

func (i textIn) readRecordValue() (*Value, error) {
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
}

// isDashItem distinguishes a dashed list item from a negative number.
func isDashItem(data []byte, pos int) bool {
	next := pos + 1
	return next >= len(data) || data[next] == ' ' || data[next] == '\t'
}

// peekMarker extracts a !!marker word without moving the cursor.
func peekMarker(data []byte, pos int) string {
	end := pos
	for end < len(data) && data[end] != ' ' && data[end] != '\t' && data[end] != '\n' {
		end++
	}
	return string(data[pos:end])
}

func (i textIn) Skip() error {
	_, err := i.ReadValue()
	return err
}
