package connection

import (
	"encoding/binary"
	"fmt"

	"github.com/mgray/tempest/pkg/codec"
	"github.com/mgray/tempest/pkg/errors"
	"github.com/mgray/tempest/pkg/message"
	"github.com/mgray/tempest/pkg/registry"
)

// HeaderLen is the size of the u16 type tag plus the u32 payload length.
const HeaderLen = 6

// EncodeFrame renders m as one wire frame:
//
//	[type u16 LE][payload length u32 LE][payload]
func EncodeFrame(cache *codec.DescriptorCache, m message.Message, maxPayload uint32) ([]byte, error) {
	if m == nil {
		return nil, errors.New(errors.KindInvalidArgument, "nil message", connectionCaller)
	}
	w := codec.NewBufferValueWriter(64)
	if err := w.WriteUint16(uint16(m.Type())); err != nil {
		return nil, err
	}
	if err := w.WriteUint32(0); err != nil {
		return nil, err
	}
	if err := message.Encode(cache, w, m); err != nil {
		return nil, err
	}

	frame := w.Bytes()
	payloadLen := len(frame) - HeaderLen
	if uint64(payloadLen) > uint64(maxPayload) {
		return nil, errors.Newf(errors.KindInvalidArgument, connectionCaller,
			"message type %d payload of %d bytes exceeds the %d byte frame limit", m.Type(), payloadLen, maxPayload)
	}
	binary.LittleEndian.PutUint32(frame[2:HeaderLen], uint32(payloadLen))
	return frame, nil
}

// DecodeFrame rebuilds the message carried by one frame. An unregistered tag
// yields UnknownMessageType; a payload that does not decode yields
// CorruptFrame.
func DecodeFrame(reg *registry.Registry, tag message.ID, payload []byte) (message.Message, error) {
	m, ok := reg.Create(tag)
	if !ok {
		return nil, errors.Newf(errors.KindUnknownMessageType, connectionCaller, "no message registered for type %d", tag)
	}
	if err := message.Decode(reg.Cache(), codec.NewBufferValueReader(payload), m); err != nil {
		return nil, errors.Wrap(errors.KindCorruptFrame, err, fmt.Sprintf("decoding payload of message type %d", tag), connectionCaller)
	}
	return m, nil
}
