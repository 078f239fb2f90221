package weft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/weftlabs/weft/buf"
)

type point struct {
	X, Y int64
}

func pointSpec() *TypeSpec {
	return &TypeSpec{
		Name: "weft_test.point",
		New:  func() any { return &point{} },
		Fields: []FieldSpec{
			{
				Name: "x",
				Get:  func(recv any) *Value { return Int64(recv.(*point).X) },
				Set: func(recv any, v *Value) error {
					if v.IsNull() {
						recv.(*point).X = 0
						return nil
					}
					n, err := v.AsInt()
					recv.(*point).X = n
					return err
				},
			},
			{
				Name: "y",
				Get:  func(recv any) *Value { return Int64(recv.(*point).Y) },
				Set: func(recv any, v *Value) error {
					if v.IsNull() {
						recv.(*point).Y = 0
						return nil
					}
					n, err := v.AsInt()
					recv.(*point).Y = n
					return err
				},
			},
		},
	}
}

type shape struct {
	Name   string
	Origin point
}

func shapeSpec(ps *TypeSpec) *TypeSpec {
	return &TypeSpec{
		Name: "weft_test.shape",
		New:  func() any { return &shape{} },
		Fields: []FieldSpec{
			{
				Name: "name",
				Get:  func(recv any) *Value { return Text(recv.(*shape).Name) },
				Set: func(recv any, v *Value) error {
					s, err := v.AsText()
					recv.(*shape).Name = s
					return err
				},
			},
			{
				Name:      "origin",
				Nested:    ps,
				GetNested: func(recv any) any { return &recv.(*shape).Origin },
			},
		},
	}
}

type envelope struct {
	ID      int64
	Payload *Value
}

func envelopeSpec() *TypeSpec {
	return &TypeSpec{
		Name: "weft_test.envelope",
		New:  func() any { return &envelope{} },
		Fields: []FieldSpec{
			{
				Name: "id",
				Get:  func(recv any) *Value { return Int64(recv.(*envelope).ID) },
				Set: func(recv any, v *Value) error {
					n, err := v.AsInt()
					recv.(*envelope).ID = n
					return err
				},
			},
			{
				Name:     "payload",
				Abstract: true,
				Get:      func(recv any) *Value { return recv.(*envelope).Payload },
				Set: func(recv any, v *Value) error {
					recv.(*envelope).Payload = v
					return nil
				},
			},
		},
	}
}

func TestCodecRoundTripAllFormats(t *testing.T) {
	for _, f := range []Format{FormatBinary, FormatText, FormatJSON} {
		t.Run(f.String(), func(t *testing.T) {
			reg := NewRegistry()
			ps := pointSpec()
			reg.Register("point", ps)
			c := NewCodec(CodecOptions{Registry: reg})

			w := f.NewWire(buf.New(64), Options{Registry: reg})
			orig := &point{X: 3, Y: -7}
			require.NoError(t, c.MarshalDocument(w, orig, ps))

			got := &point{}
			require.NoError(t, c.UnmarshalDocument(w, got, ps))
			assert.Equal(t, orig, got)
		})
	}
}

func TestCodecTextGolden(t *testing.T) {
	reg := NewRegistry()
	ps := pointSpec()
	reg.Register("point", ps)
	c := NewCodec(CodecOptions{Registry: reg})

	b := buf.New(64)
	w := NewTextWire(b, Options{Registry: reg})
	require.NoError(t, c.MarshalDocument(w, &point{X: 1, Y: 2}, ps))

	want := "!point {\n" +
		"  x: 1,\n" +
		"  y: 2\n" +
		"}\n" +
		"---\n"
	assert.Equal(t, want, string(b.Bytes()))
}

func TestCodecNestedRoundTrip(t *testing.T) {
	reg := NewRegistry()
	ps := pointSpec()
	ss := shapeSpec(ps)
	reg.Register("shape", ss)
	c := NewCodec(CodecOptions{Registry: reg})

	w := NewBinaryWire(buf.New(64), Options{Registry: reg})
	orig := &shape{Name: "box", Origin: point{X: 4, Y: 5}}
	require.NoError(t, c.MarshalDocument(w, orig, ss))

	got := &shape{}
	require.NoError(t, c.UnmarshalDocument(w, got, ss))
	assert.Equal(t, orig, got)
}

func TestCodecMismatchedTagWarnsOnce(t *testing.T) {
	reg := NewRegistry()
	ps := pointSpec()
	es := envelopeSpec()
	reg.Register("point", ps)
	reg.Register("envelope", es)

	core, logged := observer.New(zap.WarnLevel)
	c := NewCodec(CodecOptions{Registry: reg, Logger: zap.New(core)})

	// Two documents tagged as point, both decoded with the point fields but
	// declared as envelope.
	w := NewBinaryWire(buf.New(64), Options{Registry: reg})
	for i := 0; i < 2; i++ {
		require.NoError(t, c.MarshalDocument(w, &point{X: 1}, ps))
	}

	for i := 0; i < 2; i++ {
		err := w.ReadDocument(func(in ValueIn) error {
			got := &envelope{}
			return c.Unmarshal(in, got, es)
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, logged.FilterMessage("decoding mismatched type tag with declared spec").Len())
}

func TestCodecStrictTagMismatch(t *testing.T) {
	reg := NewRegistry()
	ps := pointSpec()
	es := envelopeSpec()
	reg.Register("point", ps)
	reg.Register("envelope", es)
	c := NewCodec(CodecOptions{Registry: reg, StrictTags: true})

	w := NewBinaryWire(buf.New(64), Options{Registry: reg})
	require.NoError(t, c.MarshalDocument(w, &point{X: 1}, ps))

	err := w.ReadDocument(func(in ValueIn) error {
		return c.Unmarshal(in, &envelope{}, es)
	})
	assert.ErrorIs(t, err, ErrTypeResolution)
}

func TestCodecUnknownFieldSkippedWithWarning(t *testing.T) {
	reg := NewRegistry()
	ps := pointSpec()
	reg.Register("point", ps)

	core, logged := observer.New(zap.WarnLevel)
	c := NewCodec(CodecOptions{Registry: reg, Logger: zap.New(core)})

	w := NewBinaryWire(buf.New(64), Options{Registry: reg})
	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.TypeTag("point").Record(func(o ValueOut) {
			o.Field("x").Int64(1).
				Field("color").Text("red").
				Field("y").Int64(2)
		})
		return out.Err()
	}))

	got := &point{}
	require.NoError(t, c.UnmarshalDocument(w, got, ps))
	assert.Equal(t, &point{X: 1, Y: 2}, got)
	assert.Equal(t, 1, logged.FilterMessage("skipping unknown field").Len())
}

func TestCodecMissingFieldPolicies(t *testing.T) {
	writeXOnly := func(t *testing.T, reg *Registry) *BinaryWire {
		w := NewBinaryWire(buf.New(64), Options{Registry: reg})
		require.NoError(t, w.WriteDocument(func(out ValueOut) error {
			out.TypeTag("point").Record(func(o ValueOut) {
				o.Field("x").Int64(9)
			})
			return out.Err()
		}))
		return w
	}

	t.Run("keep", func(t *testing.T) {
		reg := NewRegistry()
		ps := pointSpec()
		reg.Register("point", ps)
		c := NewCodec(CodecOptions{Registry: reg})

		got := &point{Y: 77}
		require.NoError(t, c.UnmarshalDocument(writeXOnly(t, reg), got, ps))
		assert.Equal(t, &point{X: 9, Y: 77}, got)
	})

	t.Run("zero", func(t *testing.T) {
		reg := NewRegistry()
		ps := pointSpec()
		ps.OnMissing = MissingZero
		reg.Register("point", ps)
		c := NewCodec(CodecOptions{Registry: reg})

		got := &point{Y: 77}
		require.NoError(t, c.UnmarshalDocument(writeXOnly(t, reg), got, ps))
		assert.Equal(t, &point{X: 9, Y: 0}, got)
	})

	t.Run("error", func(t *testing.T) {
		reg := NewRegistry()
		ps := pointSpec()
		ps.OnMissing = MissingError
		reg.Register("point", ps)
		c := NewCodec(CodecOptions{Registry: reg})

		err := c.UnmarshalDocument(writeXOnly(t, reg), &point{}, ps)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing field y")
	})
}

func TestCodecAbstractFieldRoundTrip(t *testing.T) {
	reg := NewRegistry()
	es := envelopeSpec()
	reg.Register("envelope", es)
	c := NewCodec(CodecOptions{Registry: reg})

	w := NewBinaryWire(buf.New(64), Options{Registry: reg})
	orig := &envelope{
		ID:      5,
		Payload: Tagged("point", Record(FieldOf("x", Int64(1)), FieldOf("y", Int64(2)))),
	}
	require.NoError(t, c.MarshalDocument(w, orig, es))

	got := &envelope{}
	require.NoError(t, c.UnmarshalDocument(w, got, es))
	assert.Equal(t, orig.ID, got.ID)
	assert.True(t, Equal(orig.Payload, got.Payload))
}

func TestCodecAbstractFieldUntaggedWarns(t *testing.T) {
	reg := NewRegistry()
	es := envelopeSpec()
	reg.Register("envelope", es)

	core, logged := observer.New(zap.WarnLevel)
	c := NewCodec(CodecOptions{Registry: reg, Logger: zap.New(core)})

	w := NewBinaryWire(buf.New(64), Options{Registry: reg})
	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.TypeTag("envelope").Record(func(o ValueOut) {
			o.Field("id").Int64(5)
			o.Field("payload").Record(func(p ValueOut) {
				p.Field("x").Int64(1)
			})
		})
		return out.Err()
	}))

	got := &envelope{}
	require.NoError(t, c.UnmarshalDocument(w, got, es))
	require.NotNil(t, got.Payload)
	assert.Equal(t, KindRecord, got.Payload.Kind())
	assert.Equal(t, 1, logged.FilterMessage("abstract field decoded without a tag").Len())

	// The opaque record does not compare equal to the tagged original.
	tagged := Tagged("point", Record(FieldOf("x", Int64(1))))
	assert.False(t, Equal(tagged, got.Payload))
}

func TestCodecUnmarshalAny(t *testing.T) {
	reg := NewRegistry()
	ps := pointSpec()
	reg.Register("point", ps)

	t.Run("known tag", func(t *testing.T) {
		c := NewCodec(CodecOptions{Registry: reg})
		w := NewBinaryWire(buf.New(64), Options{Registry: reg})
		require.NoError(t, c.MarshalDocument(w, &point{X: 1, Y: 2}, ps))

		var target any
		require.NoError(t, w.ReadDocument(func(in ValueIn) error {
			var err error
			target, _, err = c.UnmarshalAny(in)
			return err
		}))
		assert.Equal(t, &point{X: 1, Y: 2}, target)
	})

	t.Run("unknown tag tolerant", func(t *testing.T) {
		core, logged := observer.New(zap.WarnLevel)
		c := NewCodec(CodecOptions{Registry: reg, Logger: zap.New(core)})

		w := NewBinaryWire(buf.New(64), Options{Registry: reg})
		require.NoError(t, w.WriteDocument(func(out ValueOut) error {
			out.TypeTag("mystery").Record(func(o ValueOut) {
				o.Field("q").Int64(1)
			})
			return out.Err()
		}))

		var opaque *Value
		require.NoError(t, w.ReadDocument(func(in ValueIn) error {
			var err error
			_, opaque, err = c.UnmarshalAny(in)
			return err
		}))
		require.NotNil(t, opaque)
		assert.True(t, Equal(Tagged("mystery", Record(FieldOf("q", Int64(1)))), opaque))
		assert.Equal(t, 1, logged.FilterMessage("decoding unknown type tag as an opaque value").Len())
	})

	t.Run("unknown tag strict", func(t *testing.T) {
		c := NewCodec(CodecOptions{Registry: reg, StrictTags: true})
		w := NewBinaryWire(buf.New(64), Options{Registry: reg})
		require.NoError(t, w.WriteDocument(func(out ValueOut) error {
			out.TypeTag("mystery").Record(func(o ValueOut) {})
			return out.Err()
		}))

		err := w.ReadDocument(func(in ValueIn) error {
			_, _, err := c.UnmarshalAny(in)
			return err
		})
		assert.ErrorIs(t, err, ErrTypeResolution)
	})

	t.Run("no tag", func(t *testing.T) {
		c := NewCodec(CodecOptions{Registry: reg})
		w := NewBinaryWire(buf.New(64), Options{Registry: reg})
		require.NoError(t, w.WriteDocument(func(out ValueOut) error {
			out.Int64(42)
			return out.Err()
		}))

		require.NoError(t, w.ReadDocument(func(in ValueIn) error {
			target, v, err := c.UnmarshalAny(in)
			require.NoError(t, err)
			assert.Nil(t, target)
			assert.True(t, Equal(Int64(42), v))
			return nil
		}))
	})
}
