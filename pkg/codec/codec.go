// Package codec converts values to and from the linear little-endian
// encoding carried inside message payloads.
package codec

import (
	"time"
)

const codecCaller = "Codec"

// ValueWriter writes primitives to an underlying byte sink.
type ValueWriter interface {
	WriteBool(v bool) error
	WriteInt8(v int8) error
	WriteInt16(v int16) error
	WriteInt32(v int32) error
	WriteInt64(v int64) error
	WriteUint8(v uint8) error
	WriteUint16(v uint16) error
	WriteUint32(v uint32) error
	WriteUint64(v uint64) error
	WriteFloat32(v float32) error
	WriteFloat64(v float64) error
	// WriteString writes a u32 byte length followed by the UTF-8 bytes.
	WriteString(v string) error
	// WriteBytes writes a u32 length followed by the raw bytes.
	WriteBytes(v []byte) error
	WriteDate(v time.Time) error
}

// ValueReader reads primitives from an underlying byte source.
type ValueReader interface {
	ReadBool() (bool, error)
	ReadInt8() (int8, error)
	ReadInt16() (int16, error)
	ReadInt32() (int32, error)
	ReadInt64() (int64, error)
	ReadUint8() (uint8, error)
	ReadUint16() (uint16, error)
	ReadUint32() (uint32, error)
	ReadUint64() (uint64, error)
	ReadFloat32() (float32, error)
	ReadFloat64() (float64, error)
	ReadString() (string, error)
	ReadBytes() ([]byte, error)
	ReadDate() (time.Time, error)
	// Remaining is the number of unread bytes.
	Remaining() int
}
