// Package weft implements a self-describing data interchange engine: one
// abstract value model serialized to and parsed from three wire encodings
// (compact binary, indented text, restricted JSON) through a shared
// cursor interface.
package weft

import (
	"github.com/cockroachdb/errors"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindText
	KindBytes
	KindSeq
	KindRecord
	KindTagged
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindSeq:
		return "seq"
	case KindRecord:
		return "record"
	case KindTagged:
		return "tagged"
	default:
		return "unknown"
	}
}

// Value is the format-agnostic tagged representation of anything that can
// flow through the wire.
type Value struct {
	kind Kind

	// Scalars (only one valid based on kind)
	boolVal  bool
	intVal   int64
	uintVal  uint64
	floatVal float64
	textVal  string
	bytesVal []byte

	// Containers
	seqVal []*Value
	fields []Field

	// Tagged value
	tagName string
	inner   *Value
}

// Field is a name/value pair in a record. Names are unique within a record;
// their order is significant only for text and JSON rendering.
type Field struct {
	Name  string
	Value *Value
}

// ============================================================
// Constructors
// ============================================================

// Null creates a null value.
func Null() *Value { return &Value{kind: KindNull} }

// Bool creates a boolean value.
func Bool(v bool) *Value { return &Value{kind: KindBool, boolVal: v} }

// Int8 creates an 8-bit signed integer value.
func Int8(v int8) *Value { return &Value{kind: KindInt8, intVal: int64(v)} }

// Int16 creates a 16-bit signed integer value.
func Int16(v int16) *Value { return &Value{kind: KindInt16, intVal: int64(v)} }

// Int32 creates a 32-bit signed integer value.
func Int32(v int32) *Value { return &Value{kind: KindInt32, intVal: int64(v)} }

// Int64 creates a 64-bit signed integer value.
func Int64(v int64) *Value { return &Value{kind: KindInt64, intVal: v} }

// Uint8 creates an 8-bit unsigned integer value.
func Uint8(v uint8) *Value { return &Value{kind: KindUint8, uintVal: uint64(v)} }

// Uint16 creates a 16-bit unsigned integer value.
func Uint16(v uint16) *Value { return &Value{kind: KindUint16, uintVal: uint64(v)} }

// Uint32 creates a 32-bit unsigned integer value.
func Uint32(v uint32) *Value { return &Value{kind: KindUint32, uintVal: uint64(v)} }

// Uint64 creates a 64-bit unsigned integer value.
func Uint64(v uint64) *Value { return &Value{kind: KindUint64, uintVal: v} }

// Float32 creates a 32-bit float value.
func Float32(v float32) *Value { return &Value{kind: KindFloat32, floatVal: float64(v)} }

// Float64 creates a 64-bit float value.
func Float64(v float64) *Value { return &Value{kind: KindFloat64, floatVal: v} }

// Text creates a UTF-8 text value.
func Text(v string) *Value { return &Value{kind: KindText, textVal: v} }

// Bytes creates a raw bytes value.
func Bytes(v []byte) *Value { return &Value{kind: KindBytes, bytesVal: v} }

// Seq creates a sequence value.
func Seq(values ...*Value) *Value { return &Value{kind: KindSeq, seqVal: values} }

// Record creates a record value from ordered fields.
func Record(fields ...Field) *Value { return &Value{kind: KindRecord, fields: fields} }

// Tagged prefixes a value with a type tag naming its concrete kind.
func Tagged(tag string, v *Value) *Value {
	return &Value{kind: KindTagged, tagName: tag, inner: v}
}

// FieldOf creates a Field for use in Record construction.
func FieldOf(name string, v *Value) Field { return Field{Name: name, Value: v} }

// ============================================================
// Accessors
// ============================================================

// Kind returns the value kind.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether this is a null value.
func (v *Value) IsNull() bool { return v == nil || v.kind == KindNull }

// AsBool returns the boolean value.
func (v *Value) AsBool() (bool, error) {
	if v == nil || v.kind != KindBool {
		return false, errors.Newf("weft: expected bool, got %s", v.Kind())
	}
	return v.boolVal, nil
}

// AsInt returns any signed integer kind widened to int64.
func (v *Value) AsInt() (int64, error) {
	if v == nil {
		return 0, errors.New("weft: nil value")
	}
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.intVal, nil
	case KindUint8, KindUint16, KindUint32:
		return int64(v.uintVal), nil
	default:
		return 0, errors.Newf("weft: expected int, got %s", v.kind)
	}
}

// AsUint returns any unsigned integer kind widened to uint64.
func (v *Value) AsUint() (uint64, error) {
	if v == nil {
		return 0, errors.New("weft: nil value")
	}
	switch v.kind {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return v.uintVal, nil
	case KindInt8, KindInt16, KindInt32, KindInt64:
		if v.intVal < 0 {
			return 0, errors.Newf("weft: negative value %d read as uint", v.intVal)
		}
		return uint64(v.intVal), nil
	default:
		return 0, errors.Newf("weft: expected uint, got %s", v.kind)
	}
}

// AsFloat returns either float kind as float64.
func (v *Value) AsFloat() (float64, error) {
	if v == nil {
		return 0, errors.New("weft: nil value")
	}
	switch v.kind {
	case KindFloat32, KindFloat64:
		return v.floatVal, nil
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return float64(v.intVal), nil
	default:
		return 0, errors.Newf("weft: expected float, got %s", v.kind)
	}
}

// AsText returns the text value.
func (v *Value) AsText() (string, error) {
	if v == nil || v.kind != KindText {
		return "", errors.Newf("weft: expected text, got %s", v.Kind())
	}
	return v.textVal, nil
}

// AsBytes returns the raw bytes value.
func (v *Value) AsBytes() ([]byte, error) {
	if v == nil || v.kind != KindBytes {
		return nil, errors.Newf("weft: expected bytes, got %s", v.Kind())
	}
	return v.bytesVal, nil
}

// AsSeq returns the sequence elements.
func (v *Value) AsSeq() ([]*Value, error) {
	if v == nil || v.kind != KindSeq {
		return nil, errors.Newf("weft: expected seq, got %s", v.Kind())
	}
	return v.seqVal, nil
}

// Fields returns the record fields in order.
func (v *Value) Fields() ([]Field, error) {
	if v == nil || v.kind != KindRecord {
		return nil, errors.Newf("weft: expected record, got %s", v.Kind())
	}
	return v.fields, nil
}

// Tag returns the type tag name and the tagged value.
func (v *Value) Tag() (string, *Value, error) {
	if v == nil || v.kind != KindTagged {
		return "", nil, errors.Newf("weft: expected tagged value, got %s", v.Kind())
	}
	return v.tagName, v.inner, nil
}

// Get returns a record field value by name, or nil if absent. Lookup is by
// value, not identity.
func (v *Value) Get(name string) *Value {
	if v == nil || v.kind != KindRecord {
		return nil
	}
	for _, f := range v.fields {
		if f.Name == name {
			return f.Value
		}
	}
	return nil
}

// Len returns the element count of a sequence or field count of a record.
func (v *Value) Len() int {
	switch v.Kind() {
	case KindSeq:
		return len(v.seqVal)
	case KindRecord:
		return len(v.fields)
	default:
		return 0
	}
}

// Set replaces or appends a record field.
func (v *Value) Set(name string, val *Value) {
	if v.kind != KindRecord {
		panic("weft: Set on non-record value")
	}
	for i := range v.fields {
		if v.fields[i].Name == name {
			v.fields[i].Value = val
			return
		}
	}
	v.fields = append(v.fields, Field{Name: name, Value: val})
}

// Append adds an element to a sequence.
func (v *Value) Append(val *Value) {
	if v.kind != KindSeq {
		panic("weft: Append on non-seq value")
	}
	v.seqVal = append(v.seqVal, val)
}

// ============================================================
// Equality
// ============================================================

// Equal reports structural equality. Integer kinds compare by numeric value
// (the text and JSON grammars do not preserve widths), floats by float64
// value, records by the same field set regardless of leaf/indented layout.
func Equal(a, b *Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}

	// Numeric comparison crosses width and signedness.
	if an, aok := a.numeric(); aok {
		bn, bok := b.numeric()
		return bok && an == bn
	}

	switch a.kind {
	case KindBool:
		bv, err := b.AsBool()
		return err == nil && a.boolVal == bv

	case KindText:
		bv, err := b.AsText()
		return err == nil && a.textVal == bv

	case KindBytes:
		bv, err := b.AsBytes()
		if err != nil || len(a.bytesVal) != len(bv) {
			return false
		}
		for i := range bv {
			if a.bytesVal[i] != bv[i] {
				return false
			}
		}
		return true

	case KindSeq:
		bv, err := b.AsSeq()
		if err != nil || len(a.seqVal) != len(bv) {
			return false
		}
		for i := range bv {
			if !Equal(a.seqVal[i], bv[i]) {
				return false
			}
		}
		return true

	case KindRecord:
		bf, err := b.Fields()
		if err != nil || len(a.fields) != len(bf) {
			return false
		}
		// Same field set, order-insensitive.
		for _, f := range a.fields {
			if !Equal(f.Value, b.Get(f.Name)) {
				return false
			}
		}
		return true

	case KindTagged:
		tag, inner, err := b.Tag()
		return err == nil && a.tagName == tag && Equal(a.inner, inner)
	}
	return false
}

// numeric returns the value as a float64 when it is any numeric kind.
func (v *Value) numeric() (float64, bool) {
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return float64(v.intVal), true
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return float64(v.uintVal), true
	case KindFloat32, KindFloat64:
		return v.floatVal, true
	default:
		return 0, false
	}
}
