package weft

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/buf"
)

func TestJSONDocScopeFieldsGolden(t *testing.T) {
	b := buf.New(64)
	w := NewJSONWire(b, Options{})

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("name").Text("ada").Field("count").Int64(3)
		return out.Err()
	}))
	assert.Equal(t, "{\"name\":\"ada\",\"count\":3}\n", string(b.Bytes()))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		name, err := in.Field()
		require.NoError(t, err)
		assert.Equal(t, "name", name)
		s, err := in.Text()
		require.NoError(t, err)
		assert.Equal(t, "ada", s)

		name, err = in.Field()
		require.NoError(t, err)
		assert.Equal(t, "count", name)
		n, err := in.Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		assert.False(t, in.HasNext())
		return nil
	}))
}

func TestJSONTaggedRecordGolden(t *testing.T) {
	b := buf.New(64)
	w := NewJSONWire(b, Options{})

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.TypeTag("Point").Record(func(o ValueOut) {
			o.Field("x").Int32(1).Field("y").Int32(2)
		})
		return out.Err()
	}))
	assert.Equal(t, "!Point {\"x\":1,\"y\":2}\n", string(b.Bytes()))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		tag, err := in.TypeTag()
		require.NoError(t, err)
		assert.Equal(t, "Point", tag)
		v, err := in.ReadValue()
		require.NoError(t, err)
		assert.True(t, Equal(Record(FieldOf("x", Int64(1)), FieldOf("y", Int64(2))), v))
		return nil
	}))
}

func TestJSONSeekFieldOrderedOnly(t *testing.T) {
	b := buf.New(64)
	w := NewJSONWire(b, Options{})
	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("a").Int64(1).Field("b").Int64(2)
		return out.Err()
	}))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		// In-order access succeeds.
		found, err := in.SeekField("a")
		require.NoError(t, err)
		require.True(t, found)
		_, err = in.Int64()
		require.NoError(t, err)

		// Out-of-order access is a hard error, not a scan.
		_, err = in.SeekField("missing")
		assert.ErrorIs(t, err, ErrUnsupported)

		// The cursor is intact: the next field still reads.
		found, err = in.SeekField("b")
		require.NoError(t, err)
		require.True(t, found)
		n, err := in.Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return nil
	}))
}

func TestJSONEscapes(t *testing.T) {
	b := buf.New(64)
	w := NewJSONWire(b, Options{})
	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("msg").Text("a\"b\\c\nd\te")
		return out.Err()
	}))
	assert.Equal(t, "{\"msg\":\"a\\\"b\\\\c\\nd\\te\"}\n", string(b.Bytes()))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		s, err := in.Text()
		require.NoError(t, err)
		assert.Equal(t, "a\"b\\c\nd\te", s)
		return nil
	}))
}

func TestJSONNullMarker(t *testing.T) {
	b := buf.New(32)
	w := NewJSONWire(b, Options{})
	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("v").Null()
		return out.Err()
	}))
	assert.Equal(t, "{\"v\":!!null \"\"}\n", string(b.Bytes()))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		assert.True(t, in.IsNull())
		v, err := in.ReadValue()
		require.NoError(t, err)
		assert.Equal(t, KindNull, v.Kind())
		return nil
	}))
}

func TestJSONBytesSmallStaysPlain(t *testing.T) {
	b := buf.New(64)
	w := NewJSONWire(b, Options{})
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("blob").Bytes(payload)
		return out.Err()
	}))
	want := "{\"blob\":!!binary " + base64.StdEncoding.EncodeToString(payload) + "}\n"
	assert.Equal(t, want, string(b.Bytes()))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		p, err := in.Bytes()
		require.NoError(t, err)
		assert.Equal(t, payload, p)
		return nil
	}))
}

func TestJSONBytesLargeCompresses(t *testing.T) {
	b := buf.New(512)
	w := NewJSONWire(b, Options{})
	payload := bytes.Repeat([]byte("abcdefgh"), 64)

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("blob").Bytes(payload)
		return out.Err()
	}))
	assert.True(t, strings.Contains(string(b.Bytes()), jSnappy))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		p, err := in.Bytes()
		require.NoError(t, err)
		assert.Equal(t, payload, p)
		return nil
	}))
}

func TestJSONGenericRoundTrip(t *testing.T) {
	orig := Record(
		FieldOf("id", Int64(42)),
		FieldOf("ok", Bool(false)),
		FieldOf("ratio", Float64(0.25)),
		FieldOf("label", Text("hello world")),
		FieldOf("gone", Null()),
		FieldOf("tags", Seq(Int64(1), Int64(2), Int64(3))),
		FieldOf("inner", Tagged("Point", Record(FieldOf("x", Int64(1))))),
	)

	b := buf.New(128)
	w := NewJSONWire(b, Options{})
	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.WriteValue(orig)
		return out.Err()
	}))

	var got *Value
	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		var err error
		got, err = in.ReadValue()
		return err
	}))
	assert.True(t, Equal(orig, got), "got %v", got)
}

func TestJSONDocumentFraming(t *testing.T) {
	b := buf.New(128)
	w := NewJSONWire(b, Options{})
	for i := 0; i < 3; i++ {
		require.NoError(t, w.WriteDocument(func(out ValueOut) error {
			out.Field("n").Int64(int64(i)).Field("note").Text("a { \"tricky\" } value")
			return out.Err()
		}))
	}

	assert.True(t, w.HasDocument())
	require.NoError(t, w.SkipDocument())
	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		n, err := in.Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	}))
	require.NoError(t, w.SkipDocument())
	assert.False(t, w.HasDocument())
}

func TestJSONReadsBareNull(t *testing.T) {
	w := NewJSONWire(buf.FromBytes([]byte("{\"v\":null}\n")), Options{})
	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		v, err := in.ReadValue()
		require.NoError(t, err)
		assert.Equal(t, KindNull, v.Kind())
		return nil
	}))
}

func TestJSONUnterminatedDocument(t *testing.T) {
	w := NewJSONWire(buf.FromBytes([]byte("{\"v\":1")), Options{})
	err := w.ReadDocument(func(in ValueIn) error { return nil })
	assert.ErrorIs(t, err, ErrFraming)
}

func TestJSONEscapeDecodingTolerance(t *testing.T) {
	src := "{\"a\":\"x\\ty\",\"b\":\"x\\qy\"}\n"
	w := NewJSONWire(buf.FromBytes([]byte(src)), Options{})

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		s, err := in.Text()
		require.NoError(t, err)
		assert.Equal(t, "x\ty", s)

		// An unknown escape decodes to the escaped byte itself.
		_, err = in.Field()
		require.NoError(t, err)
		s, err = in.Text()
		require.NoError(t, err)
		assert.Equal(t, "xqy", s)
		return nil
	}))
}
