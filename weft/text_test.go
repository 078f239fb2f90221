package weft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/buf"
)

func TestTextTaggedRecordGolden(t *testing.T) {
	b := buf.New(64)
	w := NewTextWire(b, Options{})

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.TypeTag("Point").Record(func(o ValueOut) {
			o.Field("x").Int32(1).Field("y").Int32(2)
		})
		return out.Err()
	}))

	want := "!Point {\n" +
		"  x: 1,\n" +
		"  y: 2\n" +
		"}\n" +
		"---\n"
	assert.Equal(t, want, string(b.Bytes()))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		tag, err := in.TypeTag()
		require.NoError(t, err)
		assert.Equal(t, "Point", tag)
		return in.Record(func(r ValueIn) error {
			found, err := r.SeekField("y")
			require.NoError(t, err)
			require.True(t, found)
			y, err := r.Int32()
			require.NoError(t, err)
			assert.Equal(t, int32(2), y)
			return nil
		})
	}))
	assert.False(t, w.HasDocument())
}

func TestTextDocScopeFieldsGolden(t *testing.T) {
	b := buf.New(64)
	w := NewTextWire(b, Options{})

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("name").Text("ada").Field("count").Int64(3)
		return out.Err()
	}))
	assert.Equal(t, "name: ada\ncount: 3\n---\n", string(b.Bytes()))

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

func TestTextLeafRecordAndSequenceGolden(t *testing.T) {
	b := buf.New(64)
	w := NewTextWire(b, Options{})

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("pos").LeafRecord(func(o ValueOut) {
			o.Field("x").Int32(1).Field("y").Int32(2)
		})
		out.Field("tags").Sequence(func(o ValueOut) {
			o.Text("a").Text("b")
		})
		return out.Err()
	}))
	assert.Equal(t, "pos: { x: 1, y: 2 }\ntags: [ a, b ]\n---\n", string(b.Bytes()))
}

func TestTextQuoting(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"hello world", `"hello world"`},
		{"123", `"123"`},
		{"true", `"true"`},
		{"", `""`},
		{"-lead", `"-lead"`},
		{"a\nb", `"a\nb"`},
		{`say "hi"`, `"say \"hi\""`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, quoteIfNeeded(tc.in), "input %q", tc.in)
	}
}

func TestTextQuotedRoundTrip(t *testing.T) {
	b := buf.New(64)
	w := NewTextWire(b, Options{})

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("msg").Text("line one\nline\ttwo \"quoted\"")
		return out.Err()
	}))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		s, err := in.Text()
		require.NoError(t, err)
		assert.Equal(t, "line one\nline\ttwo \"quoted\"", s)
		return nil
	}))
}

func TestTextGenericRoundTrip(t *testing.T) {
	orig := Record(
		FieldOf("id", Int64(42)),
		FieldOf("ok", Bool(true)),
		FieldOf("ratio", Float64(1.5)),
		FieldOf("label", Text("hello world")),
		FieldOf("blob", Bytes([]byte{0xde, 0xad, 0xbe, 0xef})),
		FieldOf("gone", Null()),
		FieldOf("tags", Seq(Text("a"), Text("b"))),
		FieldOf("inner", Tagged("Point", Record(FieldOf("x", Int64(1))))),
	)

	b := buf.New(128)
	w := NewTextWire(b, Options{})
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

func TestTextReadsCommentsAndBlockSequences(t *testing.T) {
	src := "# ledger snapshot\n" +
		"nums: - 1\n" +
		"- 2\n" +
		"# trailing note\n" +
		"- 3\n" +
		"---\n" +
		"next: 9\n" +
		"---\n"

	w := NewTextWire(buf.FromBytes([]byte(src)), Options{})

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		name, err := in.Field()
		require.NoError(t, err)
		assert.Equal(t, "nums", name)
		v, err := in.ReadValue()
		require.NoError(t, err)
		assert.True(t, Equal(Seq(Int64(1), Int64(2), Int64(3)), v))
		return nil
	}))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		n, err := in.Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(9), n)
		return nil
	}))
	assert.False(t, w.HasDocument())
}

func TestTextNegativeNumberIsNotListItem(t *testing.T) {
	w := NewTextWire(buf.FromBytes([]byte("delta: -42\n---\n")), Options{})
	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		v, err := in.ReadValue()
		require.NoError(t, err)
		n, err := v.AsInt()
		require.NoError(t, err)
		assert.Equal(t, int64(-42), n)
		return nil
	}))
}

func TestTextCommentWriter(t *testing.T) {
	b := buf.New(64)
	w := NewTextWire(b, Options{})

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Record(func(o ValueOut) {
			o.Field("a").Int64(1)
			o.Comment("b follows")
			o.Field("b").Int64(2)
		})
		return out.Err()
	}))

	want := "{\n" +
		"  a: 1,\n" +
		"  # b follows\n" +
		"  b: 2\n" +
		"}\n" +
		"---\n"
	assert.Equal(t, want, string(b.Bytes()))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		v, err := in.ReadValue()
		require.NoError(t, err)
		assert.True(t, Equal(Record(FieldOf("a", Int64(1)), FieldOf("b", Int64(2))), v))
		return nil
	}))
}

func TestTextSkipDocument(t *testing.T) {
	b := buf.New(64)
	w := NewTextWire(b, Options{})
	for i := 0; i < 2; i++ {
		require.NoError(t, w.WriteDocument(func(out ValueOut) error {
			out.Field("n").Int64(int64(i))
			return out.Err()
		}))
	}

	require.NoError(t, w.SkipDocument())
	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		n, err := in.Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	}))
}

func TestTextUnreadRemainderIsSkipped(t *testing.T) {
	b := buf.New(64)
	w := NewTextWire(b, Options{})
	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("a").Int64(1).Field("b").Int64(2)
		return out.Err()
	}))
	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("c").Int64(3)
		return out.Err()
	}))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		return err
	}))
	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		name, err := in.Field()
		require.NoError(t, err)
		assert.Equal(t, "c", name)
		return nil
	}))
}

func TestTextInt64Ref(t *testing.T) {
	b := buf.New(64)
	w := NewTextWire(b, Options{})

	writer, err := w.NewInt64Ref(7)
	require.NoError(t, err)
	assert.Contains(t, string(b.Bytes()), "!!i64ref 00000000000000000007")

	reader, err := w.ReadInt64Ref()
	require.NoError(t, err)
	assert.Equal(t, int64(7), reader.Load())

	writer.Store(-5)
	assert.Equal(t, int64(-5), reader.Load())
	assert.Contains(t, string(b.Bytes()), "-0000000000000000005")
}

func TestTextInt64ArrayRef(t *testing.T) {
	b := buf.New(256)
	w := NewTextWire(b, Options{})

	a, err := w.NewInt64ArrayRef(3)
	require.NoError(t, err)
	a.Store(1, 99)

	r, err := w.ReadInt64ArrayRef()
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, int64(99), r.Load(1))
	assert.Equal(t, int64(0), r.Load(2))
}

func TestTextNullMarker(t *testing.T) {
	b := buf.New(32)
	w := NewTextWire(b, Options{})
	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("v").Null()
		return out.Err()
	}))
	assert.Equal(t, "v: !!null \"\"\n---\n", string(b.Bytes()))

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

func TestTextSeekFieldWrapsAround(t *testing.T) {
	b := buf.New(64)
	w := NewTextWire(b, Options{})

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("a").Int64(1).Field("b").Int64(2).Field("c").Int64(3)
		return out.Err()
	}))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		found, err := in.SeekField("b")
		require.NoError(t, err)
		require.True(t, found)
		n, err := in.Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		// Behind the cursor now; found by wrapping.
		found, err = in.SeekField("a")
		require.NoError(t, err)
		require.True(t, found)
		n, err = in.Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		found, err = in.SeekField("nope")
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))
}

func TestTextSeekFieldWrapsInsideRecord(t *testing.T) {
	b := buf.New(64)
	w := NewTextWire(b, Options{})

	require.NoError(t, w.WriteDocument(func(out ValueOut) error {
		out.Field("p").Record(func(o ValueOut) {
			o.Field("b").Int64(1).Field("a").Int64(2)
		})
		return out.Err()
	}))

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		return in.Record(func(r ValueIn) error {
			found, err := r.SeekField("a")
			require.NoError(t, err)
			require.True(t, found)
			n, err := r.Int64()
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			found, err = r.SeekField("b")
			require.NoError(t, err)
			require.True(t, found)
			n, err = r.Int64()
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			// The scan stays inside the record; the outer field name
			// is not visible here.
			found, err = r.SeekField("p")
			require.NoError(t, err)
			assert.False(t, found)
			return nil
		})
	}))
}

func TestTextBlockSequenceTypedGetters(t *testing.T) {
	src := "flags: - true\n" +
		"- false\n" +
		"nums: - 7\n" +
		"- -8\n" +
		"reals: - 1.5\n" +
		"blobs: - !!binary YWJj\n" +
		"maybe: - !!null \"\"\n" +
		"pts: - { x: 4 }\n" +
		"---\n"
	w := NewTextWire(buf.FromBytes([]byte(src)), Options{})

	require.NoError(t, w.ReadDocument(func(in ValueIn) error {
		_, err := in.Field()
		require.NoError(t, err)
		require.NoError(t, in.Sequence(func(s ValueIn) error {
			v, err := s.Bool()
			require.NoError(t, err)
			assert.True(t, v)
			v, err = s.Bool()
			require.NoError(t, err)
			assert.False(t, v)
			return nil
		}))

		_, err = in.Field()
		require.NoError(t, err)
		require.NoError(t, in.Sequence(func(s ValueIn) error {
			n, err := s.Int32()
			require.NoError(t, err)
			assert.Equal(t, int32(7), n)
			m, err := s.Int16()
			require.NoError(t, err)
			assert.Equal(t, int16(-8), m)
			return nil
		}))

		_, err = in.Field()
		require.NoError(t, err)
		require.NoError(t, in.Sequence(func(s ValueIn) error {
			f, err := s.Float64()
			require.NoError(t, err)
			assert.Equal(t, 1.5, f)
			return nil
		}))

		_, err = in.Field()
		require.NoError(t, err)
		require.NoError(t, in.Sequence(func(s ValueIn) error {
			p, err := s.Bytes()
			require.NoError(t, err)
			assert.Equal(t, []byte("abc"), p)
			return nil
		}))

		_, err = in.Field()
		require.NoError(t, err)
		require.NoError(t, in.Sequence(func(s ValueIn) error {
			assert.True(t, s.IsNull())
			v, err := s.ReadValue()
			require.NoError(t, err)
			assert.Equal(t, KindNull, v.Kind())
			return nil
		}))

		_, err = in.Field()
		require.NoError(t, err)
		return in.Sequence(func(s ValueIn) error {
			return s.Record(func(r ValueIn) error {
				f, err := r.Field()
				require.NoError(t, err)
				assert.Equal(t, "x", f)
				x, err := r.Int64()
				require.NoError(t, err)
				assert.Equal(t, int64(4), x)
				return nil
			})
		})
	}))
}

func TestTextEscapeDecodingTolerance(t *testing.T) {
	src := "a: \"x\\ty\"\nb: \"x\\qy\"\n---\n"
	w := NewTextWire(buf.FromBytes([]byte(src)), Options{})

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
