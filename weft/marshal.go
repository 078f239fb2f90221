package weft

import (
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// MissingFieldPolicy controls what happens to target fields the wire did
// not mention.
type MissingFieldPolicy uint8

const (
	// MissingKeep leaves absent fields at their current value.
	MissingKeep MissingFieldPolicy = iota

	// MissingZero resets absent fields through their Set callback with a
	// null value.
	MissingZero

	// MissingError rejects the record when any declared field is absent.
	MissingError
)

// TypeSpec describes how a concrete Go type crosses the wire. Specs are
// built explicitly, registered under a short alias, and shared freely;
// a spec is immutable after construction.
type TypeSpec struct {
	// Name is the fully qualified fallback used when no alias is
	// registered.
	Name string

	// New allocates a zero target for decoding.
	New func() any

	// Fields lists the wire fields in write order.
	Fields []FieldSpec

	// OnMissing is applied per declared field after a record is read.
	OnMissing MissingFieldPolicy
}

// FieldSpec describes one field of a record. Exactly one of the value path
// (Get/Set) or the nested path (Nested/GetNested) is used.
type FieldSpec struct {
	Name string

	// Get extracts the field from a target as a generic value.
	Get func(recv any) *Value

	// Set stores a decoded value into a target.
	Set func(recv any, v *Value) error

	// Nested marks a field holding a concrete record type, written inline
	// without a tag.
	Nested *TypeSpec

	// GetNested returns the nested target for both encode and decode; the
	// decoder writes through it in place.
	GetNested func(recv any) any

	// Abstract marks a field holding any registered type. Values are
	// written with their tag and decode to a Tagged value; an untagged
	// payload decodes to an opaque record that will not compare equal to
	// the concrete original.
	Abstract bool
}

// CodecOptions configures a Codec.
type CodecOptions struct {
	// Registry resolves tags. Nil selects the process-wide default.
	Registry *Registry

	// StrictTags rejects unknown or mismatched type tags instead of
	// decoding tolerantly into the declared spec.
	StrictTags bool

	// Logger receives one-time decode warnings. Nil selects a nop logger.
	Logger *zap.Logger
}

// DefaultCodecOptions returns the tolerant configuration.
func DefaultCodecOptions() CodecOptions { return CodecOptions{} }

// Codec maps concrete Go values to wire records through explicit specs.
// A Codec is safe for concurrent use.
type Codec struct {
	reg    *Registry
	strict bool
	log    *zap.Logger
	warned *xsync.Map[string, struct{}]
}

// NewCodec builds a codec.
func NewCodec(o CodecOptions) *Codec {
	if o.Registry == nil {
		o.Registry = DefaultRegistry
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Codec{
		reg:    o.Registry,
		strict: o.StrictTags,
		log:    o.Logger,
		warned: xsync.NewMap[string, struct{}](),
	}
}

// warnOnce logs msg the first time key is seen over the codec's lifetime.
// Repeated decodes of the same malformed shape stay quiet after that.
func (c *Codec) warnOnce(key, msg string, fields ...zap.Field) {
	if _, loaded := c.warned.LoadOrStore(key, struct{}{}); !loaded {
		c.log.Warn(msg, fields...)
	}
}

// MarshalDocument writes v as one tagged document.
func (c *Codec) MarshalDocument(w Wire, v any, ts *TypeSpec) error {
	return w.WriteDocument(func(out ValueOut) error {
		return c.Marshal(out, v, ts)
	})
}

// Marshal writes v as a tagged record at the cursor.
func (c *Codec) Marshal(out ValueOut, v any, ts *TypeSpec) error {
	out.TypeTag(c.reg.NameFor(ts))
	c.marshalBody(out, v, ts)
	return out.Err()
}

func (c *Codec) marshalBody(out ValueOut, v any, ts *TypeSpec) {
	out.Record(func(o ValueOut) {
		for _, fs := range ts.Fields {
			o.Field(fs.Name)
			if fs.Nested != nil {
				c.marshalBody(o, fs.GetNested(v), fs.Nested)
				continue
			}
			o.WriteValue(fs.Get(v))
		}
	})
}

// UnmarshalDocument reads one document into v.
func (c *Codec) UnmarshalDocument(w Wire, v any, ts *TypeSpec) error {
	return w.ReadDocument(func(in ValueIn) error {
		return c.Unmarshal(in, v, ts)
	})
}

// Unmarshal reads a tagged record at the cursor into v. A tag naming a
// different registered type is an error under StrictTags and a one-time
// warning otherwise; decoding proceeds with the declared spec either way.
func (c *Codec) Unmarshal(in ValueIn, v any, ts *TypeSpec) error {
	tag, err := in.TypeTag()
	if err != nil {
		return err
	}
	if tag != "" {
		if resolved, ok := c.reg.Lookup(tag); !ok || resolved != ts {
			if c.strict {
				return typeErrorf("tag %q does not resolve to %s", tag, c.reg.NameFor(ts))
			}
			c.warnOnce("tag:"+tag, "decoding mismatched type tag with declared spec",
				zap.String("tag", tag), zap.String("spec", c.reg.NameFor(ts)))
		}
	}
	return c.unmarshalBody(in, v, ts)
}

func (c *Codec) unmarshalBody(in ValueIn, v any, ts *TypeSpec) error {
	byName := make(map[string]*FieldSpec, len(ts.Fields))
	for i := range ts.Fields {
		byName[ts.Fields[i].Name] = &ts.Fields[i]
	}
	seen := make(map[string]bool, len(ts.Fields))

	err := in.Record(func(r ValueIn) error {
		for r.HasNext() {
			name, err := r.Field()
			if err != nil {
				return err
			}
			fs, ok := byName[name]
			if !ok {
				c.warnOnce("field:"+ts.Name+"."+name, "skipping unknown field",
					zap.String("type", ts.Name), zap.String("field", name))
				if err := r.Skip(); err != nil {
					return err
				}
				continue
			}
			seen[name] = true
			if fs.Nested != nil {
				if err := c.unmarshalBody(r, fs.GetNested(v), fs.Nested); err != nil {
					return err
				}
				continue
			}
			val, err := r.ReadValue()
			if err != nil {
				return err
			}
			if fs.Abstract {
				if val.Kind() != KindTagged && !val.IsNull() {
					c.warnOnce("untagged:"+ts.Name+"."+name, "abstract field decoded without a tag",
						zap.String("type", ts.Name), zap.String("field", name))
				}
			}
			if err := fs.Set(v, val); err != nil {
				return errors.Wrapf(err, "weft: field %s.%s", ts.Name, name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.applyMissing(v, ts, seen)
}

func (c *Codec) applyMissing(v any, ts *TypeSpec, seen map[string]bool) error {
	if ts.OnMissing == MissingKeep {
		return nil
	}
	for i := range ts.Fields {
		fs := &ts.Fields[i]
		if seen[fs.Name] || fs.Nested != nil {
			continue
		}
		switch ts.OnMissing {
		case MissingZero:
			if err := fs.Set(v, Null()); err != nil {
				return errors.Wrapf(err, "weft: zeroing %s.%s", ts.Name, fs.Name)
			}
		case MissingError:
			return errors.Newf("weft: record %s missing field %s", ts.Name, fs.Name)
		}
	}
	return nil
}

// UnmarshalAny reads a tagged record whose concrete type is chosen by its
// tag. An unknown tag is an error under StrictTags; otherwise the payload
// decodes to an opaque generic value under the same tag.
func (c *Codec) UnmarshalAny(in ValueIn) (any, *Value, error) {
	tag, err := in.TypeTag()
	if err != nil {
		return nil, nil, err
	}
	if tag == "" {
		v, err := in.ReadValue()
		return nil, v, err
	}
	ts, ok := c.reg.Lookup(tag)
	if !ok {
		if c.strict {
			return nil, nil, typeErrorf("unknown type tag %q", tag)
		}
		c.warnOnce("unknown-tag:"+tag, "decoding unknown type tag as an opaque value",
			zap.String("tag", tag))
		v, err := in.ReadValue()
		if err != nil {
			return nil, nil, err
		}
		return nil, Tagged(tag, v), nil
	}
	target := ts.New()
	if err := c.unmarshalBody(in, target, ts); err != nil {
		return nil, nil, err
	}
	return target, nil, nil
}
