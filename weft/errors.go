package weft

import (
	"github.com/cockroachdb/errors"
)

// Error taxonomy. Decode failures are marked with one of these sentinels so
// callers can classify them with errors.Is without depending on message
// text.
var (
	// ErrFraming marks malformed framing: an unterminated record, a wrong
	// closing token, or a length prefix pointing past the buffer. Fatal to
	// the current read; the read position is left at the error point.
	ErrFraming = errors.New("weft: malformed framing")

	// ErrUnsupported marks an operation a format variant structurally
	// cannot perform, such as unordered field access in JSON. Never
	// degraded silently.
	ErrUnsupported = errors.New("weft: unsupported operation")

	// ErrTypeResolution marks an unknown type tag with no tolerance
	// configured.
	ErrTypeResolution = errors.New("weft: unresolved type tag")

	// ErrDispatch marks an invocation record whose method identifier has no
	// match on the target. Fatal to that record only.
	ErrDispatch = errors.New("weft: no matching method")
)

// snippetLen bounds the amount of decoded context attached to an error.
const snippetLen = 24

// framingErrorf builds a framing error carrying the byte offset and a
// readable snippet of the offending region.
func framingErrorf(data []byte, off int, format string, args ...interface{}) error {
	err := errors.Newf(format, args...)
	err = errors.Wrapf(err, "offset %d near %q", off, snippetAt(data, off))
	return errors.Mark(err, ErrFraming)
}

// unsupportedErrorf builds an unsupported-operation error.
func unsupportedErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupported)
}

// typeErrorf builds a type-resolution error.
func typeErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrTypeResolution)
}

// snippetAt extracts a short window of bytes around off for error context.
func snippetAt(data []byte, off int) string {
	if off < 0 {
		off = 0
	}
	if off > len(data) {
		off = len(data)
	}
	end := off + snippetLen
	if end > len(data) {
		end = len(data)
	}
	return string(data[off:end])
}
