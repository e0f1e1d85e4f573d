package codec

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgray/tempest/pkg/errors"
)

func TestIntegerBoundaries(t *testing.T) {
	w := NewBufferValueWriter(0)
	require.NoError(t, w.WriteInt8(math.MinInt8))
	require.NoError(t, w.WriteInt8(math.MaxInt8))
	require.NoError(t, w.WriteInt16(math.MinInt16))
	require.NoError(t, w.WriteInt16(math.MaxInt16))
	require.NoError(t, w.WriteInt32(math.MinInt32))
	require.NoError(t, w.WriteInt32(math.MaxInt32))
	require.NoError(t, w.WriteInt64(math.MinInt64))
	require.NoError(t, w.WriteInt64(math.MaxInt64))
	require.NoError(t, w.WriteUint8(0))
	require.NoError(t, w.WriteUint8(math.MaxUint8))
	require.NoError(t, w.WriteUint16(math.MaxUint16))
	require.NoError(t, w.WriteUint32(math.MaxUint32))
	require.NoError(t, w.WriteUint64(math.MaxUint64))
	require.NoError(t, w.WriteUint64(0))

	r := NewBufferValueReader(w.Bytes())

	i8, _ := r.ReadInt8()
	assert.Equal(t, int8(math.MinInt8), i8)
	i8, _ = r.ReadInt8()
	assert.Equal(t, int8(math.MaxInt8), i8)
	i16, _ := r.ReadInt16()
	assert.Equal(t, int16(math.MinInt16), i16)
	i16, _ = r.ReadInt16()
	assert.Equal(t, int16(math.MaxInt16), i16)
	i32, _ := r.ReadInt32()
	assert.Equal(t, int32(math.MinInt32), i32)
	i32, _ = r.ReadInt32()
	assert.Equal(t, int32(math.MaxInt32), i32)
	i64, _ := r.ReadInt64()
	assert.Equal(t, int64(math.MinInt64), i64)
	i64, _ = r.ReadInt64()
	assert.Equal(t, int64(math.MaxInt64), i64)
	u8, _ := r.ReadUint8()
	assert.Equal(t, uint8(0), u8)
	u8, _ = r.ReadUint8()
	assert.Equal(t, uint8(math.MaxUint8), u8)
	u16, _ := r.ReadUint16()
	assert.Equal(t, uint16(math.MaxUint16), u16)
	u32, _ := r.ReadUint32()
	assert.Equal(t, uint32(math.MaxUint32), u32)
	u64, _ := r.ReadUint64()
	assert.Equal(t, uint64(math.MaxUint64), u64)
	u64, err := r.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), u64)
	assert.Equal(t, 0, r.Remaining())
}

func TestLittleEndianLayout(t *testing.T) {
	w := NewBufferValueWriter(0)
	require.NoError(t, w.WriteUint16(0x0102))
	require.NoError(t, w.WriteString("hi"))
	require.NoError(t, w.WriteBytes([]byte{0xff}))

	assert.Equal(t, []byte{
		0x02, 0x01,
		0x02, 0x00, 0x00, 0x00, 'h', 'i',
		0x01, 0x00, 0x00, 0x00, 0xff,
	}, w.Bytes())
}

func TestStringsBytesBoolsFloats(t *testing.T) {
	w := NewBufferValueWriter(16)
	require.NoError(t, w.WriteString(""))
	require.NoError(t, w.WriteString("héllo, 世界"))
	require.NoError(t, w.WriteBytes(nil))
	require.NoError(t, w.WriteBytes([]byte{0, 1, 2}))
	require.NoError(t, w.WriteBool(true))
	require.NoError(t, w.WriteBool(false))
	require.NoError(t, w.WriteFloat32(-1.5))
	require.NoError(t, w.WriteFloat64(math.Pi))

	r := NewBufferValueReader(w.Bytes())
	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "", s)
	s, _ = r.ReadString()
	assert.Equal(t, "héllo, 世界", s)
	b, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Empty(t, b)
	b, _ = r.ReadBytes()
	assert.Equal(t, []byte{0, 1, 2}, b)
	v, _ := r.ReadBool()
	assert.True(t, v)
	v, _ = r.ReadBool()
	assert.False(t, v)
	f32, _ := r.ReadFloat32()
	assert.Equal(t, float32(-1.5), f32)
	f64, _ := r.ReadFloat64()
	assert.Equal(t, math.Pi, f64)
}

func TestReadBytesDoesNotAlias(t *testing.T) {
	w := NewBufferValueWriter(0)
	require.NoError(t, w.WriteBytes([]byte{7, 7}))
	src := w.Bytes()

	out, err := NewBufferValueReader(src).ReadBytes()
	require.NoError(t, err)
	src[4] = 0
	assert.Equal(t, []byte{7, 7}, out)
}

func TestDates(t *testing.T) {
	fixed := time.Date(2024, 2, 29, 13, 14, 15, 123456000, time.FixedZone("X", 2*3600))
	utc := time.Date(1969, 7, 20, 20, 17, 40, 1000, time.UTC)
	local := time.Date(2001, 9, 9, 1, 46, 40, 0, time.Local)
	india := time.Date(2030, 1, 1, 0, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))

	w := NewBufferValueWriter(0)
	for _, d := range []time.Time{fixed, utc, local, india, {}, time.Unix(0, 0)} {
		require.NoError(t, w.WriteDate(d))
	}

	r := NewBufferValueReader(w.Bytes())
	for _, want := range []time.Time{fixed, utc, local, india} {
		got, err := r.ReadDate()
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "want %s, got %s", want, got)
		_, wantOffset := want.Zone()
		_, gotOffset := got.Zone()
		assert.Equal(t, wantOffset, gotOffset)
	}
	got, _ := r.ReadDate()
	assert.True(t, got.IsZero())
	got, _ = r.ReadDate()
	assert.Equal(t, int64(0), got.UnixNano())
	assert.Equal(t, time.Local, got.Location())

	v, err := EncodeDate(utc)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, DecodeDate(v).Location())

	v, err = EncodeDate(fixed.Add(789 * time.Nanosecond))
	require.NoError(t, err)
	assert.True(t, fixed.Equal(DecodeDate(v)))

	err = w.WriteDate(time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	err = w.WriteDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("LMT", 1172)))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestMalformedLengthPrefix(t *testing.T) {
	w := NewBufferValueWriter(0)
	require.NoError(t, w.WriteUint32(10))
	require.NoError(t, w.WriteUint8('x'))

	_, err := NewBufferValueReader(w.Bytes()).ReadString()
	assert.ErrorIs(t, err, errors.ErrCorruptFrame)

	_, err = NewBufferValueReader([]byte{1, 2}).ReadUint32()
	assert.ErrorIs(t, err, errors.ErrCorruptFrame)

	_, err = NewBufferValueReader([]byte{2}).ReadBool()
	assert.ErrorIs(t, err, errors.ErrCorruptFrame)
}

func TestClosedAndNilSinks(t *testing.T) {
	var nilWriter *BufferValueWriter
	assert.ErrorIs(t, nilWriter.WriteInt32(1), errors.ErrInvalidArgument)

	var nilReader *BufferValueReader
	_, err := nilReader.ReadInt32()
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	w := NewBufferValueWriter(0)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteString("late"), errors.ErrInvalidArgument)
	assert.ErrorIs(t, w.Close(), errors.ErrInvalidArgument)

	r := NewBufferValueReader([]byte{1, 0, 0, 0})
	require.NoError(t, r.Close())
	_, err = r.ReadUint32()
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.Equal(t, 0, r.Remaining())
}
