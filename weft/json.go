package weft

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/weftlabs/weft/buf"
)

// jSnappy marks a compressed bytes payload; payloads below the threshold
// stay plain base64 where compression would only add overhead.
const (
	jSnappy         = "!!snappy"
	snappyThreshold = 128
)

// JSONWire is the restricted JSON dialect engine: compact single-line
// objects with quoted keys, plus the double-bang markers carried over from
// the text grammar for null, binary and compressed payloads. Field access
// is strictly ordered; seeking a field out of written order fails with
// ErrUnsupported rather than degrading to a scan.
type JSONWire struct {
	b    *buf.Buffer
	opts Options

	err error

	wscopes []wscope

	// docOpen tracks the implicit top-level object wrapped around
	// doc-scope fields.
	docOpen bool

	rkinds   []scopeKind
	implicit bool
}

var (
	_ Wire     = (*JSONWire)(nil)
	_ ValueOut = jsonOut{}
	_ ValueIn  = jsonIn{}
)

// NewJSONWire binds a JSON engine to a buffer.
func NewJSONWire(b *buf.Buffer, opts Options) *JSONWire {
	return &JSONWire{b: b, opts: opts.fill()}
}

func (w *JSONWire) Format() Format { return FormatJSON }
func (w *JSONWire) Buffer() *buf.Buffer { return w.b }

func (w *JSONWire) fail(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// ============================================================
// Documents
// ============================================================

// WriteDocument writes one document on its own line. Doc-scope fields are
// wrapped in an implicit object.
func (w *JSONWire) WriteDocument(fn func(ValueOut) error) error {
	w.err = nil
	w.docOpen = false
	w.wscopes = append(w.wscopes, wscope{kind: scopeDoc})
	if err := fn(jsonOut{w}); err != nil {
		w.fail(err)
	}
	w.wscopes = w.wscopes[:len(w.wscopes)-1]
	if w.err != nil {
		return w.err
	}
	if w.docOpen {
		w.b.WriteString("}")
		w.docOpen = false
	}
	w.b.WriteByte('\n')
	return nil
}

// ReadDocument consumes one document, skipping any unread remainder.
func (w *JSONWire) ReadDocument(fn func(ValueIn) error) error {
	span, err := w.PeekDocumentLength()
	if err != nil {
		return err
	}
	end := w.b.ReadPosition() + span
	w.implicit = false
	w.rkinds = append(w.rkinds, scopeDoc)
	ferr := fn(jsonIn{w})
	w.rkinds = w.rkinds[:len(w.rkinds)-1]
	w.b.SetReadPosition(end)
	return ferr
}

// HasDocument reports whether any meaningful content remains.
func (w *JSONWire) HasDocument() bool {
	return w.skipWSFrom(w.b.ReadPosition()) < w.b.Len()
}

// PeekDocumentLength scans one JSON value by brace depth, string-aware,
// and returns its byte span from the read position including leading
// whitespace and the trailing newline.
func (w *JSONWire) PeekDocumentLength() (int, error) {
	data := w.b.Bytes()
	start := w.b.ReadPosition()
	pos := w.skipWSFrom(start)
	if pos >= len(data) {
		return 0, framingErrorf(data, start, "no document available")
	}

	// A raw type tag prefixes the value it applies to.
	if data[pos] == '!' && (pos+1 >= len(data) || data[pos+1] != '!') {
		for pos < len(data) && data[pos] != ' ' && data[pos] != '\n' {
			pos++
		}
		pos = w.skipWSFrom(pos)
	}

	end, err := jsonValueEnd(data, pos)
	if err != nil {
		return 0, err
	}
	if end < len(data) && data[end] == '\n' {
		end++
	}
	return end - start, nil
}

// SkipDocument discards the next document whole.
func (w *JSONWire) SkipDocument() error {
	span, err := w.PeekDocumentLength()
	if err != nil {
		return err
	}
	return w.b.Skip(span)
}

// jsonValueEnd returns the offset just past the value starting at pos.
func jsonValueEnd(data []byte, pos int) (int, error) {
	switch c := data[pos]; {
	case c == '{' || c == '[':
		depth := 0
		inStr := false
		for i := pos; i < len(data); i++ {
			b := data[i]
			if inStr {
				if b == '\\' {
					i++
				} else if b == '"' {
					inStr = false
				}
				continue
			}
			switch b {
			case '"':
				inStr = true
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 0 {
					return i + 1, nil
				}
			}
		}
		return 0, framingErrorf(data, pos, "unterminated %q", string(c))
	case c == '"':
		for i := pos + 1; i < len(data); i++ {
			if data[i] == '\\' {
				i++
				continue
			}
			if data[i] == '"' {
				return i + 1, nil
			}
		}
		return 0, framingErrorf(data, pos, "unterminated string")
	case c == '!':
		// A double-bang marker plus its payload token.
		i := pos
		for i < len(data) && data[i] != ' ' {
			i++
		}
		for i < len(data) && data[i] == ' ' {
			i++
		}
		if i < len(data) && data[i] == '"' {
			return jsonValueEnd(data, i)
		}
		for i < len(data) && data[i] != ' ' && data[i] != '\n' && data[i] != ',' && data[i] != '}' && data[i] != ']' {
			i++
		}
		return i, nil
	default:
		i := pos
		for i < len(data) && data[i] != ',' && data[i] != '}' && data[i] != ']' && data[i] != '\n' && data[i] != ' ' {
			i++
		}
		return i, nil
	}
}

// ============================================================
// ValueOut cursor
// ============================================================

// jsonOut is the write cursor over a JSONWire.
type jsonOut struct{ w *JSONWire }

func (o jsonOut) Err() error { return o.w.err }

func (w *JSONWire) wtop() *wscope {
	if len(w.wscopes) == 0 {
		w.wscopes = append(w.wscopes, wscope{kind: scopeDoc})
	}
	return &w.wscopes[len(w.wscopes)-1]
}

func (w *JSONWire) preValue() {
	top := w.wtop()
	if (top.kind == scopeSeq || top.kind == scopeDoc) && top.needSep {
		w.b.WriteString(",")
	}
	top.needSep = true
}

func (o jsonOut) scalar(s string) ValueOut {
	if o.w.err == nil {
		o.w.preValue()
		o.w.b.WriteString(s)
	}
	return o
}

func (o jsonOut) Null() ValueOut       { return o.scalar(tNull) }
func (o jsonOut) Bool(v bool) ValueOut { return o.scalar(strconv.FormatBool(v)) }

func (o jsonOut) Int8(v int8) ValueOut   { return o.scalar(strconv.FormatInt(int64(v), 10)) }
func (o jsonOut) Int16(v int16) ValueOut { return o.scalar(strconv.FormatInt(int64(v), 10)) }
func (o jsonOut) Int32(v int32) ValueOut { return o.scalar(strconv.FormatInt(int64(v), 10)) }
func (o jsonOut) Int64(v int64) ValueOut { return o.scalar(strconv.FormatInt(v, 10)) }

func (o jsonOut) Uint8(v uint8) ValueOut   { return o.scalar(strconv.FormatUint(uint64(v), 10)) }
func (o jsonOut) Uint16(v uint16) ValueOut { return o.scalar(strconv.FormatUint(uint64(v), 10)) }
func (o jsonOut) Uint32(v uint32) ValueOut { return o.scalar(strconv.FormatUint(uint64(v), 10)) }
func (o jsonOut) Uint64(v uint64) ValueOut { return o.scalar(strconv.FormatUint(v, 10)) }

func (o jsonOut) Float32(v float32) ValueOut {
	return o.scalar(strconv.FormatFloat(float64(v), 'g', -1, 32))
}

func (o jsonOut) Float64(v float64) ValueOut {
	return o.scalar(strconv.FormatFloat(v, 'g', -1, 64))
}

func (o jsonOut) Text(s string) ValueOut { return o.scalar(jsonQuote(s)) }

// Bytes writes base64, compressing payloads past the threshold.
func (o jsonOut) Bytes(p []byte) ValueOut {
	if o.w.err != nil {
		return o
	}
	marker := tBinary
	payload := p
	if len(p) >= snappyThreshold {
		compressed, err := o.w.opts.Compressor.Compress(p)
		if err != nil {
			o.w.fail(err)
			return o
		}
		if len(compressed) < len(p) {
			marker = jSnappy
			payload = compressed
		}
	}
	return o.scalar(marker + " " + base64.StdEncoding.EncodeToString(payload))
}

func (o jsonOut) TypeTag(name string) ValueOut {
	if o.w.err == nil {
		o.w.preValue()
		o.w.b.WriteString("!")
		o.w.b.WriteString(name)
		o.w.b.WriteString(" ")
		o.w.wtop().needSep = false
	}
	return o
}

func (o jsonOut) Field(name string) ValueOut {
	if o.w.err != nil {
		return o
	}
	top := o.w.wtop()
	switch top.kind {
	case scopeRecord, scopeLeaf:
		if top.needSep {
			o.w.b.WriteString(",")
		}
	case scopeDoc:
		if !o.w.docOpen {
			o.w.preValue()
			o.w.b.WriteString("{")
			o.w.docOpen = true
		} else {
			o.w.b.WriteString(",")
		}
	default:
		o.w.fail(errors.New("weft: field outside a record"))
		return o
	}
	o.w.b.WriteString(jsonQuote(name))
	o.w.b.WriteString(":")
	top.needSep = false
	return o
}

func (o jsonOut) container(open, close string, kind scopeKind, fn func(ValueOut)) ValueOut {
	if o.w.err != nil {
		return o
	}
	o.w.preValue()
	o.w.b.WriteString(open)
	o.w.wscopes = append(o.w.wscopes, wscope{kind: kind})
	fn(o)
	o.w.wscopes = o.w.wscopes[:len(o.w.wscopes)-1]
	o.w.b.WriteString(close)
	return o
}

func (o jsonOut) Sequence(fn func(ValueOut)) ValueOut {
	return o.container("[", "]", scopeSeq, fn)
}

func (o jsonOut) Record(fn func(ValueOut)) ValueOut {
	return o.container("{", "}", scopeRecord, fn)
}

// LeafRecord is identical to Record: JSON is single-line everywhere.
func (o jsonOut) LeafRecord(fn func(ValueOut)) ValueOut { return o.Record(fn) }

// Comment is a no-op: the dialect has no comment syntax.
func (o jsonOut) Comment(string) ValueOut { return o }

func (o jsonOut) WriteValue(v *Value) ValueOut {
	writeValueTo(o, v)
	return o
}

// jsonQuote renders s double-quoted with the dialect's escapes.
func jsonQuote(s string) string {
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

// ============================================================
// ValueIn cursor
// ============================================================

// jsonIn is the read cursor over a JSONWire.
type jsonIn struct{ w *JSONWire }

func (w *JSONWire) rtop() scopeKind {
	if len(w.rkinds) == 0 {
		return scopeDoc
	}
	return w.rkinds[len(w.rkinds)-1]
}

func (w *JSONWire) skipWSFrom(pos int) int {
	data := w.b.Bytes()
	for pos < len(data) {
		c := data[pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',' {
			pos++
			continue
		}
		break
	}
	return pos
}

func (w *JSONWire) skipWS() {
	w.b.SetReadPosition(w.skipWSFrom(w.b.ReadPosition()))
}

func (w *JSONWire) hasNext() bool {
	pos := w.skipWSFrom(w.b.ReadPosition())
	if pos >= w.b.Len() {
		return false
	}
	c := w.b.Bytes()[pos]
	switch w.rtop() {
	case scopeRecord, scopeLeaf:
		return c != '}'
	case scopeSeq:
		return c != ']'
	default:
		if w.implicit {
			return c != '}'
		}
		return true
	}
}

func (i jsonIn) HasNext() bool             { return i.w.hasNext() }
func (i jsonIn) HasNextSequenceItem() bool { return i.w.hasNext() }

func (i jsonIn) IsNull() bool {
	pos := i.w.skipWSFrom(i.w.b.ReadPosition())
	data := i.w.b.Bytes()
	return pos+len(tNull) <= len(data) && string(data[pos:pos+len(tNull)]) == tNull
}

// token consumes a run of bytes up to a structural delimiter.
func (w *JSONWire) token() (string, error) {
	data := w.b.Bytes()
	start := w.b.ReadPosition()
	pos := start
	for pos < len(data) {
		c := data[pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
			c == ',' || c == ']' || c == '}' || c == ':' {
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

// quoted consumes a double-quoted string with escape decoding.
func (w *JSONWire) quoted() (string, error) {
	data := w.b.Bytes()
	start := w.b.ReadPosition()
	if start >= len(data) || data[start] != '"' {
		return "", framingErrorf(data, start, "expected a string")
	}
	pos := start + 1
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

func (i jsonIn) Bool() (bool, error) {
	i.w.skipWS()
	tok, err := i.w.token()
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

func (w *JSONWire) number() (*Value, error) {
	w.skipWS()
	off := w.b.ReadPosition()
	tok, err := w.token()
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(tok, ".eE") {
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
	return nil, framingErrorf(w.b.Bytes(), off, "bad number %q", tok)
}

func (i jsonIn) Int8() (int8, error) {
	v, err := i.Int64()
	if err != nil {
		return 0, err
	}
	return narrow[int8](v)
}

func (i jsonIn) Int16() (int16, error) {
	v, err := i.Int64()
	if err != nil {
		return 0, err
	}
	return narrow[int16](v)
}

func (i jsonIn) Int32() (int32, error) {
	v, err := i.Int64()
	if err != nil {
		return 0, err
	}
	return narrow[int32](v)
}

func (i jsonIn) Int64() (int64, error) {
	v, err := i.w.number()
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

func (i jsonIn) Uint8() (uint8, error) {
	v, err := i.Uint64()
	if err != nil {
		return 0, err
	}
	return narrowU[uint8](v)
}

func (i jsonIn) Uint16() (uint16, error) {
	v, err := i.Uint64()
	if err != nil {
		return 0, err
	}
	return narrowU[uint16](v)
}

func (i jsonIn) Uint32() (uint32, error) {
	v, err := i.Uint64()
	if err != nil {
		return 0, err
	}
	return narrowU[uint32](v)
}

func (i jsonIn) Uint64() (uint64, error) {
	v, err := i.w.number()
	if err != nil {
		return 0, err
	}
	return v.AsUint()
}

func (i jsonIn) Float32() (float32, error) {
	v, err := i.Float64()
	if err != nil {
		return 0, err
	}
	if math.Abs(v) > math.MaxFloat32 {
		return 0, errors.Newf("weft: value %g overflows float32", v)
	}
	return float32(v), nil
}

func (i jsonIn) Float64() (float64, error) {
	v, err := i.w.number()
	if err != nil {
		return 0, err
	}
	return v.AsFloat()
}

func (i jsonIn) Text() (string, error) {
	i.w.skipWS()
	return i.w.quoted()
}

func (i jsonIn) Bytes() ([]byte, error) {
	i.w.skipWS()
	off := i.w.b.ReadPosition()
	marker, err := i.w.token()
	if err != nil {
		return nil, err
	}
	if marker != tBinary && marker != jSnappy {
		return nil, framingErrorf(i.w.b.Bytes(), off, "expected a bytes marker, got %q", marker)
	}
	data := i.w.b.Bytes()
	pos := i.w.b.ReadPosition()
	for pos < len(data) && data[pos] == ' ' {
		pos++
	}
	i.w.b.SetReadPosition(pos)
	tok, err := i.w.token()
	if err != nil {
		return nil, err
	}
	p, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		return nil, framingErrorf(i.w.b.Bytes(), off, "bad base64 payload")
	}
	if marker == jSnappy {
		return i.w.opts.Compressor.Decompress(p)
	}
	return p, nil
}

// TypeTag consumes a !Name prefix; double-bang markers are value forms.
func (i jsonIn) TypeTag() (string, error) {
	pos := i.w.skipWSFrom(i.w.b.ReadPosition())
	data := i.w.b.Bytes()
	if pos >= len(data) || data[pos] != '!' {
		return "", nil
	}
	if pos+1 < len(data) && data[pos+1] == '!' {
		return "", nil
	}
	i.w.b.SetReadPosition(pos + 1)
	return i.w.token()
}

func (i jsonIn) Field() (string, error) {
	i.w.skipWS()
	if i.w.rtop() == scopeDoc && !i.w.implicit {
		c, ok := i.w.b.PeekByte()
		if ok && c == '{' {
			i.w.b.Skip(1)
			i.w.implicit = true
			i.w.skipWS()
		}
	}
	name, err := i.w.quoted()
	if err != nil {
		return "", err
	}
	i.w.skipWS()
	colon, cerr := i.w.b.ReadByte()
	if cerr != nil || colon != ':' {
		return "", framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "expected ':' after field %q", name)
	}
	return name, nil
}

// SeekField accepts only the field that is next in written order. A name
// mismatch fails with ErrUnsupported: the dialect does not scan.
func (i jsonIn) SeekField(name string) (bool, error) {
	if !i.w.hasNext() {
		return false, nil
	}
	save := i.w.b.ReadPosition()
	f, err := i.Field()
	if err != nil {
		i.w.b.SetReadPosition(save)
		return false, err
	}
	if f == name {
		return true, nil
	}
	i.w.b.SetReadPosition(save)
	return false, unsupportedErrorf("unordered field access: want %q, next is %q", name, f)
}

func (i jsonIn) Sequence(fn func(ValueIn) error) error {
	i.w.skipWS()
	c, err := i.w.b.ReadByte()
	if err != nil || c != '[' {
		return framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "expected a sequence")
	}
	i.w.rkinds = append(i.w.rkinds, scopeSeq)
	ferr := fn(i)
	i.w.rkinds = i.w.rkinds[:len(i.w.rkinds)-1]
	if ferr != nil {
		return ferr
	}
	i.w.skipWS()
	closing, cerr := i.w.b.ReadByte()
	if cerr != nil || closing != ']' {
		return framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "unterminated sequence")
	}
	return nil
}

func (i jsonIn) Record(fn func(ValueIn) error) error {
	i.w.skipWS()
	c, err := i.w.b.ReadByte()
	if err != nil || c != '{' {
		return framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "expected a record")
	}
	i.w.rkinds = append(i.w.rkinds, scopeRecord)
	ferr := fn(i)
	if ferr == nil {
		// Consume any fields the callback left unread.
		for i.w.hasNext() {
			if _, err := i.Field(); err != nil {
				ferr = err
				break
			}
			if err := i.Skip(); err != nil {
				ferr = err
				break
			}
		}
	}
	i.w.rkinds = i.w.rkinds[:len(i.w.rkinds)-1]
	if ferr != nil {
		return ferr
	}
	i.w.skipWS()
	closing, cerr := i.w.b.ReadByte()
	if cerr != nil || closing != '}' {
		return framingErrorf(i.w.b.Bytes(), i.w.b.ReadPosition(), "unterminated record")
	}
	return nil
}

func (i jsonIn) ReadValue() (*Value, error) {
	pos := i.w.skipWSFrom(i.w.b.ReadPosition())
	data := i.w.b.Bytes()
	if pos >= len(data) {
		return nil, framingErrorf(data, pos, "unexpected end of input")
	}
	i.w.b.SetReadPosition(pos)

	switch c := data[pos]; {
	case c == '{':
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
	case c == '[':
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
		s, err := i.w.quoted()
		return Text(s), err
	case c == '!':
		if i.IsNull() {
			i.w.b.Skip(len(tNull))
			return Null(), nil
		}
		if pos+1 < len(data) && data[pos+1] == '!' {
			p, err := i.Bytes()
			return Bytes(p), err
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
		tok, err := i.w.token()
		if err != nil {
			return nil, err
		}
		switch tok {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null(), nil
		default:
			return nil, framingErrorf(data, pos, "unexpected token %q", tok)
		}
	}
}

func (i jsonIn) Skip() error {
	_, err := i.ReadValue()
	return err
}
