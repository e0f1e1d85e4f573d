// Package message defines the typed unit exchanged over a connection and
// dispatches its payload to hand-written or generic encoding.
package message

import (
	"github.com/mgray/tempest/pkg/codec"
	"github.com/mgray/tempest/pkg/errors"
)

const messageCaller = "Message"

// ID tags a concrete message shape on the wire.
type ID uint16

type Message interface {
	Type() ID
}

// Serializer is implemented by messages that hand-write their payload.
type Serializer interface {
	Serialize(w codec.ValueWriter) error
}

// Deserializer is implemented by messages that hand-read their payload.
type Deserializer interface {
	Deserialize(r codec.ValueReader) error
}

// Encode writes m's payload. Messages implementing both Serializer and
// Deserializer write themselves; codec.Fielder messages go through cache.
func Encode(cache *codec.DescriptorCache, w codec.ValueWriter, m Message) error {
	if m == nil {
		return errors.New(errors.KindInvalidArgument, "nil message", messageCaller)
	}
	if s, ok := handWritten(m); ok {
		return s.Serialize(w)
	}
	if f, ok := m.(codec.Fielder); ok {
		return cache.WriteFields(w, f)
	}
	return unserializable(m)
}

// Decode fills m from its payload.
func Decode(cache *codec.DescriptorCache, r codec.ValueReader, m Message) error {
	if m == nil {
		return errors.New(errors.KindInvalidArgument, "nil message", messageCaller)
	}
	if d, ok := m.(Deserializer); ok {
		if _, ok := m.(Serializer); ok {
			return d.Deserialize(r)
		}
	}
	if f, ok := m.(codec.Fielder); ok {
		return cache.ReadFields(r, f)
	}
	return unserializable(m)
}

// CheckSerializable reports whether m can be encoded and decoded, building
// its descriptor when it relies on the generic codec.
func CheckSerializable(cache *codec.DescriptorCache, m Message) error {
	if m == nil {
		return errors.New(errors.KindInvalidArgument, "nil message", messageCaller)
	}
	if _, ok := handWritten(m); ok {
		return nil
	}
	if f, ok := m.(codec.Fielder); ok {
		_, err := cache.Descriptor(f)
		return err
	}
	return unserializable(m)
}

func handWritten(m Message) (Serializer, bool) {
	s, ok := m.(Serializer)
	if !ok {
		return nil, false
	}
	if _, ok := m.(Deserializer); !ok {
		return nil, false
	}
	return s, true
}

func unserializable(m Message) error {
	return errors.Newf(errors.KindUnserializableType, messageCaller,
		"message %T (type %d) neither writes its own payload nor implements codec.Fielder", m, m.Type())
}
