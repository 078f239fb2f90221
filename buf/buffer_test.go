package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteRoundTrip(t *testing.T) {
	b := New(8)
	b.WriteByte(0x01)
	b.WriteUint16(0x0203)
	b.WriteUint32(0x04050607)
	b.WriteUint64(0x08090a0b0c0d0e0f)
	b.WriteString("hi")
	b.WriteFloat64(3.5)

	c, err := b.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), c)

	v16, err := b.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0203), v16)

	v32, err := b.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04050607), v32)

	v64, err := b.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x08090a0b0c0d0e0f), v64)

	p, err := b.ReadBytes(2)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(p))

	f, err := b.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, 3.5, f)

	assert.Equal(t, 0, b.Remaining())
}

func TestShortRead(t *testing.T) {
	b := FromBytes([]byte{1, 2})
	_, err := b.ReadUint32()
	assert.ErrorIs(t, err, ErrShortRead)

	_, err = b.ReadByte()
	require.NoError(t, err)
	assert.Error(t, b.Skip(5))
}

func TestGrowthPastInitialCapacity(t *testing.T) {
	b := New(4)
	for i := 0; i < 100; i++ {
		b.WriteByte(byte(i))
	}
	require.Equal(t, 100, b.Len())
	for i := 0; i < 100; i++ {
		c, err := b.ReadByte()
		require.NoError(t, err)
		require.Equal(t, byte(i), c)
	}
}

func TestShiftRight(t *testing.T) {
	b := New(16)
	b.WriteString("abcdef")
	b.ShiftRight(2, 3)

	assert.Equal(t, 9, b.Len())
	assert.Equal(t, []byte{'a', 'b', 0, 0, 0, 'c', 'd', 'e', 'f'}, b.Bytes())
}

func TestShiftRightAtEnd(t *testing.T) {
	b := New(4)
	b.WriteString("xy")
	b.ShiftRight(2, 4)
	assert.Equal(t, []byte{'x', 'y', 0, 0, 0, 0}, b.Bytes())
}

func TestPutAt(t *testing.T) {
	b := New(8)
	b.WriteZeros(5)
	b.PutByteAt(0, 0xFF)
	b.PutUint32At(1, 0xdeadbeef)
	assert.Equal(t, byte(0xFF), b.Bytes()[0])
	v, err := FromBytes(b.Bytes()[1:5]).ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)
}

func TestRegionAliasesStorage(t *testing.T) {
	b := New(16)
	b.WriteString("0123456789")

	region, err := b.Region(2, 4)
	require.NoError(t, err)
	region[0] = 'X'
	assert.Equal(t, "01X3456789", string(b.Bytes()))

	_, err = b.Region(8, 4)
	assert.Error(t, err)
}

func TestCursorPositions(t *testing.T) {
	b := New(8)
	b.WriteString("abcd")
	require.NoError(t, b.Skip(2))
	assert.Equal(t, 2, b.ReadPosition())
	assert.Equal(t, 2, b.Remaining())

	b.SetReadPosition(0)
	assert.Equal(t, 4, b.Remaining())

	b.SetReadPosition(99)
	assert.Equal(t, 4, b.ReadPosition())

	c, ok := b.PeekByte()
	assert.False(t, ok)
	assert.Equal(t, byte(0), c)
}

func TestAlignWrite(t *testing.T) {
	b := New(16)
	b.WriteByte(1)
	b.AlignWrite(8)
	assert.Equal(t, 8, b.WritePosition())
	b.AlignWrite(8)
	assert.Equal(t, 8, b.WritePosition())
}

func TestReset(t *testing.T) {
	b := New(8)
	b.WriteString("data")
	b.Skip(1)
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.ReadPosition())
	assert.Equal(t, 0, b.Remaining())
}
