package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgray/tempest/pkg/codec"
	"github.com/mgray/tempest/pkg/errors"
)

type ping struct {
	Seq  uint32
	Note string
}

func (*ping) Type() ID { return 1 }

func (p *ping) Serialize(w codec.ValueWriter) error {
	if err := w.WriteUint32(p.Seq); err != nil {
		return err
	}
	return w.WriteString(p.Note)
}

func (p *ping) Deserialize(r codec.ValueReader) (err error) {
	if p.Seq, err = r.ReadUint32(); err != nil {
		return err
	}
	p.Note, err = r.ReadString()
	return err
}

type counter struct {
	Count int32
	Name  string
}

func (*counter) Type() ID { return 7 }

func (c *counter) Fields() []any { return []any{&c.Count, &c.Name} }

type opaque struct{}

func (opaque) Type() ID { return 9 }

func TestHandWrittenPayload(t *testing.T) {
	cache := codec.NewDescriptorCache()
	w := codec.NewBufferValueWriter(0)
	require.NoError(t, Encode(cache, w, &ping{Seq: 5, Note: "x"}))

	var got ping
	require.NoError(t, Decode(cache, codec.NewBufferValueReader(w.Bytes()), &got))
	assert.Equal(t, ping{Seq: 5, Note: "x"}, got)
	assert.Equal(t, 0, cache.Len())
}

func TestGenericPayload(t *testing.T) {
	cache := codec.NewDescriptorCache()
	w := codec.NewBufferValueWriter(0)
	require.NoError(t, Encode(cache, w, &counter{Count: 3, Name: "abc"}))

	var got counter
	require.NoError(t, Decode(cache, codec.NewBufferValueReader(w.Bytes()), &got))
	assert.Equal(t, counter{Count: 3, Name: "abc"}, got)
}

func TestUnserializableMessage(t *testing.T) {
	cache := codec.NewDescriptorCache()

	assert.ErrorIs(t, CheckSerializable(cache, opaque{}), errors.ErrUnserializableType)
	assert.ErrorIs(t, Encode(cache, codec.NewBufferValueWriter(0), opaque{}), errors.ErrUnserializableType)
	assert.ErrorIs(t, Decode(cache, codec.NewBufferValueReader(nil), opaque{}), errors.ErrUnserializableType)
	assert.ErrorIs(t, Encode(cache, codec.NewBufferValueWriter(0), nil), errors.ErrInvalidArgument)

	assert.NoError(t, CheckSerializable(cache, &ping{}))
	assert.NoError(t, CheckSerializable(cache, &counter{}))
}
