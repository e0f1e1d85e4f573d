package codec

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgray/tempest/pkg/errors"
)

type point struct {
	X, Y int32
}

func (p *point) Fields() []any {
	return []any{&p.X, &p.Y}
}

type profile struct {
	Name     string
	Age      int
	Admin    bool
	Score    float64
	Avatar   []byte
	Tags     []string
	Joined   time.Time
	Home     point
	Level    uint16
	Karma    int64
	Ratio    float32
	Flags    uint8
	Nonce    uint64
	Delta    int8
	Offset   int16
	Counter  uint32
	Sequence uint
	Balance  int32
}

func (p *profile) Fields() []any {
	return []any{
		&p.Name, &p.Age, &p.Admin, &p.Score, &p.Avatar, &p.Tags, &p.Joined, &p.Home,
		&p.Level, &p.Karma, &p.Ratio, &p.Flags, &p.Nonce, &p.Delta, &p.Offset,
		&p.Counter, &p.Sequence, &p.Balance,
	}
}

type withChannel struct {
	C chan int
}

func (w *withChannel) Fields() []any {
	return []any{&w.C}
}

type selfish struct {
	N int
}

func (s *selfish) Fields() []any {
	return []any{s}
}

type valueFielder struct{}

func (valueFielder) Fields() []any { return nil }

func TestObjectRoundTrip(t *testing.T) {
	cache := NewDescriptorCache()
	in := &profile{
		Name:     "ada",
		Age:      36,
		Admin:    true,
		Score:    99.5,
		Avatar:   []byte{1, 2, 3},
		Tags:     []string{"a", "", "c"},
		Joined:   time.Date(2020, 1, 2, 3, 4, 5, 6000, time.UTC),
		Home:     point{X: -4, Y: 9},
		Level:    7,
		Karma:    -1,
		Ratio:    0.25,
		Flags:    0x80,
		Nonce:    1 << 63,
		Delta:    -8,
		Offset:   -300,
		Counter:  42,
		Sequence: 12,
		Balance:  -77,
	}

	w := NewBufferValueWriter(0)
	require.NoError(t, cache.WriteObject(w, in))

	out, err := ReadObject[profile](cache, NewBufferValueReader(w.Bytes()))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in, out)
}

func TestObjectAbsent(t *testing.T) {
	cache := NewDescriptorCache()
	w := NewBufferValueWriter(0)

	require.NoError(t, cache.WriteObject(w, nil))
	var missing *point
	require.NoError(t, cache.WriteObject(w, missing))
	assert.Equal(t, []byte{0, 0}, w.Bytes())

	r := NewBufferValueReader(w.Bytes())
	out, err := ReadObject[point](cache, r)
	require.NoError(t, err)
	assert.Nil(t, out)
	out, err = ReadObject[point](cache, r)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFieldsWithoutFlag(t *testing.T) {
	cache := NewDescriptorCache()
	w := NewBufferValueWriter(0)
	require.NoError(t, cache.WriteFields(w, &point{X: 1, Y: 2}))
	assert.Len(t, w.Bytes(), 8)

	var got point
	require.NoError(t, cache.ReadFields(NewBufferValueReader(w.Bytes()), &got))
	assert.Equal(t, point{X: 1, Y: 2}, got)
}

func TestUnserializableTypes(t *testing.T) {
	cache := NewDescriptorCache()

	_, err := cache.Descriptor(&withChannel{})
	assert.ErrorIs(t, err, errors.ErrUnserializableType)

	_, err = cache.Descriptor(&selfish{})
	assert.ErrorIs(t, err, errors.ErrUnserializableType)

	_, err = cache.Descriptor(valueFielder{})
	assert.ErrorIs(t, err, errors.ErrUnserializableType)

	err = cache.WriteObject(NewBufferValueWriter(0), &withChannel{})
	assert.ErrorIs(t, err, errors.ErrUnserializableType)

	_, err = ReadObject[withChannel](cache, NewBufferValueReader([]byte{1}))
	assert.ErrorIs(t, err, errors.ErrUnserializableType)
}

func TestNilReaderWriter(t *testing.T) {
	cache := NewDescriptorCache()
	assert.ErrorIs(t, cache.WriteObject(nil, &point{}), errors.ErrInvalidArgument)
	_, err := ReadObject[point](cache, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestTruncatedObject(t *testing.T) {
	cache := NewDescriptorCache()
	w := NewBufferValueWriter(0)
	require.NoError(t, cache.WriteObject(w, &point{X: 1, Y: 2}))

	_, err := ReadObject[point](cache, NewBufferValueReader(w.Bytes()[:5]))
	assert.ErrorIs(t, err, errors.ErrCorruptFrame)
}

func TestDescriptorBuiltOnceUnderContention(t *testing.T) {
	cache := NewDescriptorCache()

	const workers = 32
	results := make([]*Descriptor, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			d, err := cache.Descriptor(&profile{})
			assert.NoError(t, err)
			results[i] = d
		}(i)
	}
	close(start)
	wg.Wait()

	for _, d := range results {
		assert.Same(t, results[0], d)
	}
	// profile and its nested point
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, 18, results[0].NumFields())
}

func TestSharedCache(t *testing.T) {
	assert.Same(t, Shared(), Shared())
}
