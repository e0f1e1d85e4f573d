package probe

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgray/tempest/pkg/codec"
	"github.com/mgray/tempest/pkg/connection"
	"github.com/mgray/tempest/pkg/errors"
	"github.com/mgray/tempest/pkg/message"
	"github.com/mgray/tempest/pkg/registry"
)

type tally struct {
	Count int32
	Name  string
}

func (*tally) Type() message.ID { return 7 }

func (t *tally) Fields() []any { return []any{&t.Count, &t.Name} }

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry(codec.NewDescriptorCache())
	require.NoError(t, reg.Register(7, registry.New[tally]()))
	return reg
}

func TestFrameBytes(t *testing.T) {
	f := Frame{Type: 0x0102, Payload: []byte{9}}
	assert.Equal(t, []byte{0x02, 0x01, 1, 0, 0, 0, 9}, f.Bytes())
	assert.Equal(t, "type=258 len=1 payload=09", f.String())
}

func TestProbeReadsConnectionFrames(t *testing.T) {
	local, remote := net.Pipe()
	c, err := connection.Accept(local, newRegistry(t))
	require.NoError(t, err)
	defer c.Disconnect()
	p := New(remote)
	defer p.Close()

	require.NoError(t, c.Send(&tally{Count: 3, Name: "abc"}))
	require.NoError(t, c.Send(&tally{Count: 4, Name: ""}))

	f, err := p.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, message.ID(7), f.Type)
	assert.Equal(t, []byte{3, 0, 0, 0, 3, 0, 0, 0, 'a', 'b', 'c'}, f.Payload)

	f, err = p.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 0, 0, 0, 0, 0, 0, 0}, f.Payload)
}

func TestConnectionReassemblesProbeChunks(t *testing.T) {
	local, remote := net.Pipe()
	received := make(chan message.Message, 4)
	c, err := connection.Accept(local, newRegistry(t),
		connection.OnMessageOption(func(_ *connection.Connection, m message.Message) { received <- m }))
	require.NoError(t, err)
	defer c.Disconnect()
	p := New(remote)
	defer p.Close()

	payload := []byte{5, 0, 0, 0, 2, 0, 0, 0, 'h', 'i'}
	for _, size := range []int{1, 2, 5, 7, 100} {
		require.NoError(t, p.WriteChunked(Frame{Type: 7, Payload: payload}, size))
		select {
		case m := <-received:
			assert.Equal(t, &tally{Count: 5, Name: "hi"}, m, "chunk size %d", size)
		case <-time.After(5 * time.Second):
			t.Fatalf("chunk size %d: no message", size)
		}
	}

	assert.ErrorIs(t, p.WriteChunked(Frame{Type: 7}, 0), errors.ErrInvalidArgument)
}

func TestWriteFramePutsWireFormOnStream(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	p := New(local)
	defer p.Close()

	f := Frame{Type: 0x0102, Payload: []byte{0xaa, 0xbb, 0xcc}}
	go func() { _ = p.WriteFrame(f) }()

	got := make([]byte, headerLen+len(f.Payload))
	_, err := io.ReadFull(remote, got)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01, 0x03, 0, 0, 0, 0xaa, 0xbb, 0xcc}, got)
}

func TestReadFrameAfterClose(t *testing.T) {
	local, remote := net.Pipe()
	p := New(remote)
	require.NoError(t, local.Close())

	_, err := p.ReadFrame()
	assert.ErrorIs(t, err, errors.ErrTransport)
}
