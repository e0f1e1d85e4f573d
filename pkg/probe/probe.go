// Package probe reads and writes raw frames without going through a
// registry, for inspecting what a connection puts on the wire.
package probe

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"

	"github.com/smallnest/goframe"

	"github.com/mgray/tempest/pkg/errors"
	"github.com/mgray/tempest/pkg/message"
)

const (
	probeCaller = "Probe"

	headerLen = 6
)

// the type tag precedes the length field and is kept in the frame
var decoderConfig = goframe.DecoderConfig{
	ByteOrder:           binary.LittleEndian,
	LengthFieldOffset:   2,
	LengthFieldLength:   4,
	LengthAdjustment:    0,
	InitialBytesToStrip: 0,
}

// Frame is one undecoded frame.
type Frame struct {
	Type    message.ID
	Payload []byte
}

// Bytes renders f in wire form.
func (f Frame) Bytes() []byte {
	out := make([]byte, headerLen+len(f.Payload))
	binary.LittleEndian.PutUint16(out, uint16(f.Type))
	binary.LittleEndian.PutUint32(out[2:], uint32(len(f.Payload)))
	copy(out[headerLen:], f.Payload)
	return out
}

func (f Frame) String() string {
	return fmt.Sprintf("type=%d len=%d payload=%s", f.Type, len(f.Payload), hex.EncodeToString(f.Payload))
}

// Probe decodes with goframe but writes raw: goframe's encoder can only put
// the length in front of the frame, never behind a type tag.
type Probe struct {
	fc goframe.FrameConn
}

func New(conn net.Conn) *Probe {
	// The encoder config is required by the constructor and never used.
	return &Probe{fc: goframe.NewLengthFieldBasedFrameConn(goframe.EncoderConfig{}, decoderConfig, conn)}
}

// ReadFrame blocks for the next whole frame. The declared length is trusted,
// so only point a probe at peers you control.
func (p *Probe) ReadFrame() (Frame, error) {
	raw, err := p.fc.ReadFrame()
	if err != nil {
		return Frame{}, errors.Wrap(errors.KindTransport, err, "reading frame", probeCaller)
	}
	if len(raw) < headerLen {
		return Frame{}, errors.Newf(errors.KindCorruptFrame, probeCaller, "short frame of %d bytes", len(raw))
	}
	return Frame{
		Type:    message.ID(binary.LittleEndian.Uint16(raw)),
		Payload: raw[headerLen:],
	}, nil
}

// WriteFrame writes f's wire form in one piece, straight to the stream.
func (p *Probe) WriteFrame(f Frame) error {
	if _, err := p.fc.Conn().Write(f.Bytes()); err != nil {
		return errors.Wrap(errors.KindTransport, err, "writing frame", probeCaller)
	}
	return nil
}

// WriteChunked writes f split into pieces of at most size bytes, for
// exercising a reader's reassembly.
func (p *Probe) WriteChunked(f Frame, size int) error {
	if size <= 0 {
		return errors.Newf(errors.KindInvalidArgument, probeCaller, "chunk size %d", size)
	}
	data := f.Bytes()
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		if _, err := p.fc.Conn().Write(data[:n]); err != nil {
			return errors.Wrap(errors.KindTransport, err, "writing frame chunk", probeCaller)
		}
		data = data[n:]
	}
	return nil
}

func (p *Probe) Close() error {
	return p.fc.Close()
}
