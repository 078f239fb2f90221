package weft

import (
	"go.uber.org/zap"

	"github.com/weftlabs/weft/binding"
	"github.com/weftlabs/weft/buf"
)

// ValueOut is the write-side cursor of a format engine. Every operation
// returns the cursor for chaining; the first failure latches and turns the
// remaining calls into no-ops, surfaced by Err. Each write of a value is
// preceded by flushing any pending separator and followed by arming the
// next one, so the separator always reflects what came before.
type ValueOut interface {
	Null() ValueOut
	Bool(v bool) ValueOut
	Int8(v int8) ValueOut
	Int16(v int16) ValueOut
	Int32(v int32) ValueOut
	Int64(v int64) ValueOut
	Uint8(v uint8) ValueOut
	Uint16(v uint16) ValueOut
	Uint32(v uint32) ValueOut
	Uint64(v uint64) ValueOut
	Float32(v float32) ValueOut
	Float64(v float64) ValueOut
	Text(s string) ValueOut
	Bytes(p []byte) ValueOut

	// TypeTag prefixes the next value with a type identifier.
	TypeTag(name string) ValueOut

	// Field writes a field key inside a record body.
	Field(name string) ValueOut

	// Sequence writes a sequence whose items are produced by fn.
	Sequence(fn func(ValueOut)) ValueOut

	// Record writes a nested record whose fields are produced by fn.
	Record(fn func(ValueOut)) ValueOut

	// LeafRecord writes a record inline on a single line where the format
	// distinguishes layouts. The field set read back is the same either way.
	LeafRecord(fn func(ValueOut)) ValueOut

	// Comment emits a skipped-verbatim comment in formats that have one;
	// elsewhere it is a no-op.
	Comment(s string) ValueOut

	// WriteValue writes any Value generically.
	WriteValue(v *Value) ValueOut

	// Err returns the first error encountered by this cursor.
	Err() error
}

// ValueIn is the read-side cursor of a format engine. Unlike the write
// side, read operations return errors directly: a malformed byte must stop
// the caller at the exact operation that hit it.
type ValueIn interface {
	// HasNext reports whether another token remains in the current scope.
	HasNext() bool

	// HasNextSequenceItem reports whether the current sequence has more
	// items.
	HasNextSequenceItem() bool

	// IsNull reports whether the next value is null, without consuming it.
	IsNull() bool

	Bool() (bool, error)
	Int8() (int8, error)
	Int16() (int16, error)
	Int32() (int32, error)
	Int64() (int64, error)
	Uint8() (uint8, error)
	Uint16() (uint16, error)
	Uint32() (uint32, error)
	Uint64() (uint64, error)
	Float32() (float32, error)
	Float64() (float64, error)
	Text() (string, error)
	Bytes() ([]byte, error)

	// TypeTag consumes a type tag prefix. It returns "" without error when
	// the next value carries no tag.
	TypeTag() (string, error)

	// Field consumes and returns the next field key in a record body.
	Field() (string, error)

	// SeekField positions the cursor at the named field's value. The text
	// and binary variants scan the record; the JSON variant only accepts
	// the field that is next in written order and fails fast with
	// ErrUnsupported otherwise. Returns false when the field is absent.
	SeekField(name string) (bool, error)

	// Sequence reads a sequence, invoking fn for each item.
	Sequence(fn func(ValueIn) error) error

	// Record reads a nested record body through fn.
	Record(fn func(ValueIn) error) error

	// ReadValue reads the next value generically.
	ReadValue() (*Value, error)

	// Skip consumes and discards the next value.
	Skip() error
}

// Wire binds a format engine to one buffer. A Wire instance owns the
// buffer's cursor positions exclusively: it is confined to a single
// goroutine and concurrent use is a caller error.
type Wire interface {
	// Format identifies the concrete encoding.
	Format() Format

	// Buffer exposes the underlying byte cursor.
	Buffer() *buf.Buffer

	// WriteDocument frames one self-contained record written by fn.
	WriteDocument(fn func(ValueOut) error) error

	// ReadDocument consumes one framed record, handing its cursor to fn.
	ReadDocument(fn func(ValueIn) error) error

	// HasDocument reports whether a complete document is available at the
	// read position. Absence of data is not an error.
	HasDocument() bool

	// PeekDocumentLength computes the byte span of the next document
	// without consuming it, by scanning the matched-brace or indentation
	// depth (text/JSON) or the length prefix (binary).
	PeekDocumentLength() (int, error)

	// SkipDocument discards the next document whole.
	SkipDocument() error
}

// ReferenceWire is implemented by engines whose encoding carries mutable
// reference slots. Handles returned by the New and Read variants alias the
// engine's buffer directly, so updates through a handle are visible to any
// reader bound to the same bytes. The JSON engine does not implement it.
type ReferenceWire interface {
	// NewInt32Ref allocates a 32-bit slot at the write position.
	NewInt32Ref(initial int32) (binding.Int32Value, error)

	// NewInt64Ref allocates a 64-bit slot at the write position.
	NewInt64Ref(initial int64) (binding.Int64Value, error)

	// NewInt64ArrayRef allocates n zeroed 64-bit slots.
	NewInt64ArrayRef(n int) (binding.Int64ArrayValue, error)

	// ReadInt32Ref binds a handle to the slot at the read position.
	ReadInt32Ref() (binding.Int32Value, error)

	// ReadInt64Ref binds a handle to the slot at the read position.
	ReadInt64Ref() (binding.Int64Value, error)

	// ReadInt64ArrayRef binds a handle to the array at the read position.
	ReadInt64ArrayRef() (binding.Int64ArrayValue, error)
}

// Options configures a format engine.
type Options struct {
	// Registry resolves type tags. Nil selects the process-wide default.
	Registry *Registry

	// Compressor handles !!snappy payloads. Nil selects Snappy.
	Compressor Compressor

	// Logger receives one-time warnings and tolerant-mode notices.
	// Nil selects a nop logger.
	Logger *zap.Logger
}

func (o Options) fill() Options {
	if o.Registry == nil {
		o.Registry = DefaultRegistry
	}
	if o.Compressor == nil {
		o.Compressor = SnappyCompressor{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
