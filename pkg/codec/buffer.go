package codec

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/mgray/tempest/pkg/errors"
)

var (
	errWriterClosed = errors.New(errors.KindInvalidArgument, "writer is nil or closed", codecCaller)
	errReaderClosed = errors.New(errors.KindInvalidArgument, "reader is nil or closed", codecCaller)
)

// BufferValueWriter is a ValueWriter over a growable byte slice.
type BufferValueWriter struct {
	buf    []byte
	closed bool
}

func NewBufferValueWriter(capacity int) *BufferValueWriter {
	if capacity < 0 {
		capacity = 0
	}
	return &BufferValueWriter{buf: make([]byte, 0, capacity)}
}

func (w *BufferValueWriter) check() error {
	if w == nil || w.closed {
		return errWriterClosed
	}
	return nil
}

// Bytes returns the written bytes. The slice aliases the writer's buffer
// until the next write.
func (w *BufferValueWriter) Bytes() []byte {
	if w == nil {
		return nil
	}
	return w.buf
}

func (w *BufferValueWriter) Len() int {
	if w == nil {
		return 0
	}
	return len(w.buf)
}

func (w *BufferValueWriter) Reset() {
	w.buf = w.buf[:0]
}

func (w *BufferValueWriter) Close() error {
	if err := w.check(); err != nil {
		return err
	}
	w.closed = true
	return nil
}

func (w *BufferValueWriter) WriteBool(v bool) error {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

func (w *BufferValueWriter) WriteInt8(v int8) error {
	return w.WriteUint8(uint8(v))
}

func (w *BufferValueWriter) WriteInt16(v int16) error {
	return w.WriteUint16(uint16(v))
}

func (w *BufferValueWriter) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

func (w *BufferValueWriter) WriteInt64(v int64) error {
	return w.WriteUint64(uint64(v))
}

func (w *BufferValueWriter) WriteUint8(v uint8) error {
	if err := w.check(); err != nil {
		return err
	}
	w.buf = append(w.buf, v)
	return nil
}

func (w *BufferValueWriter) WriteUint16(v uint16) error {
	if err := w.check(); err != nil {
		return err
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return nil
}

func (w *BufferValueWriter) WriteUint32(v uint32) error {
	if err := w.check(); err != nil {
		return err
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return nil
}

func (w *BufferValueWriter) WriteUint64(v uint64) error {
	if err := w.check(); err != nil {
		return err
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return nil
}

func (w *BufferValueWriter) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

func (w *BufferValueWriter) WriteFloat64(v float64) error {
	return w.WriteUint64(math.Float64bits(v))
}

func (w *BufferValueWriter) WriteString(v string) error {
	if err := w.writeLength(len(v)); err != nil {
		return err
	}
	w.buf = append(w.buf, v...)
	return nil
}

func (w *BufferValueWriter) WriteBytes(v []byte) error {
	if err := w.writeLength(len(v)); err != nil {
		return err
	}
	w.buf = append(w.buf, v...)
	return nil
}

func (w *BufferValueWriter) WriteDate(v time.Time) error {
	if err := w.check(); err != nil {
		return err
	}
	encoded, err := EncodeDate(v)
	if err != nil {
		return err
	}
	return w.WriteInt64(encoded)
}

func (w *BufferValueWriter) writeLength(n int) error {
	if uint64(n) > math.MaxUint32 {
		return errors.Newf(errors.KindInvalidArgument, codecCaller, "length %d does not fit a u32 prefix", n)
	}
	return w.WriteUint32(uint32(n))
}

// BufferValueReader is a ValueReader over a fixed byte slice.
type BufferValueReader struct {
	buf    []byte
	pos    int
	closed bool
}

func NewBufferValueReader(buf []byte) *BufferValueReader {
	return &BufferValueReader{buf: buf}
}

func (r *BufferValueReader) Close() error {
	if r == nil || r.closed {
		return errReaderClosed
	}
	r.closed = true
	return nil
}

func (r *BufferValueReader) Remaining() int {
	if r == nil || r.closed {
		return 0
	}
	return len(r.buf) - r.pos
}

// take returns the next n bytes and advances past them.
func (r *BufferValueReader) take(n int) ([]byte, error) {
	if r == nil || r.closed {
		return nil, errReaderClosed
	}
	if n < 0 || n > len(r.buf)-r.pos {
		return nil, errors.Newf(errors.KindCorruptFrame, codecCaller, "need %d bytes, %d remaining", n, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *BufferValueReader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.Newf(errors.KindCorruptFrame, codecCaller, "invalid bool byte %#x", v)
	}
}

func (r *BufferValueReader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *BufferValueReader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *BufferValueReader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *BufferValueReader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *BufferValueReader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *BufferValueReader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *BufferValueReader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *BufferValueReader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *BufferValueReader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *BufferValueReader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

func (r *BufferValueReader) ReadString() (string, error) {
	b, err := r.readPrefixed()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBytes returns a copy; the result never aliases the source buffer.
func (r *BufferValueReader) ReadBytes() ([]byte, error) {
	b, err := r.readPrefixed()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (r *BufferValueReader) ReadDate() (time.Time, error) {
	v, err := r.ReadInt64()
	if err != nil {
		return time.Time{}, err
	}
	return DecodeDate(v), nil
}

func (r *BufferValueReader) readPrefixed() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.Remaining()) {
		return nil, errors.Newf(errors.KindCorruptFrame, codecCaller, "length prefix %d exceeds %d remaining bytes", n, r.Remaining())
	}
	return r.take(int(n))
}
