package weft

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/weftlabs/weft/buf"
)

// Format selects a wire encoding.
type Format uint8

const (
	// FormatBinary is the compact length-prefixed encoding.
	FormatBinary Format = iota

	// FormatText is the indented human-readable encoding.
	FormatText

	// FormatJSON is the restricted single-line JSON dialect.
	FormatJSON
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFormat resolves a format name, as used by CLI flags and file
// extensions.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "binary", "bin":
		return FormatBinary, nil
	case "text", "txt", "yaml":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, errors.Newf("weft: unknown format %q", s)
	}
}

// NewWire builds the engine for this format over b.
func (f Format) NewWire(b *buf.Buffer, opts Options) Wire {
	switch f {
	case FormatText:
		return NewTextWire(b, opts)
	case FormatJSON:
		return NewJSONWire(b, opts)
	default:
		return NewBinaryWire(b, opts)
	}
}

// AsBytes renders v as a single document in format f.
func AsBytes(v *Value, f Format, opts Options) ([]byte, error) {
	b := buf.New(256)
	w := f.NewWire(b, opts)
	err := w.WriteDocument(func(out ValueOut) error {
		out.WriteValue(v)
		return out.Err()
	})
	if err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// AsString renders v as a single document in format f. Meaningful for the
// text and JSON formats; binary output contains raw bytes.
func AsString(v *Value, f Format, opts Options) (string, error) {
	p, err := AsBytes(v, f, opts)
	return string(p), err
}

// FromBytes parses the first document of data into a generic value.
func FromBytes(data []byte, f Format, opts Options) (*Value, error) {
	w := f.NewWire(buf.FromBytes(data), opts)
	var v *Value
	err := w.ReadDocument(func(in ValueIn) error {
		var err error
		v, err = in.ReadValue()
		return err
	})
	return v, err
}

// FromString parses the first document of s into a generic value.
func FromString(s string, f Format, opts Options) (*Value, error) {
	return FromBytes([]byte(s), f, opts)
}

// ToFile writes v as a single document to path.
func ToFile(path string, v *Value, f Format, opts Options) error {
	p, err := AsBytes(v, f, opts)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, p, 0o644), "weft: write %s", path)
}

// FromFile reads the first document of path.
func FromFile(path string, f Format, opts Options) (*Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "weft: read %s", path)
	}
	return FromBytes(data, f, opts)
}

// Documents iterates the documents of data in format f, invoking fn with a
// read cursor for each until the data is exhausted or fn fails.
func Documents(data []byte, f Format, opts Options, fn func(ValueIn) error) error {
	w := f.NewWire(buf.FromBytes(data), opts)
	for w.HasDocument() {
		if err := w.ReadDocument(fn); err != nil {
			return err
		}
	}
	return nil
}
