package codec

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/mgray/tempest/pkg/errors"
)

// Fielder is implemented by pointer types whose values the object codec can
// serialize without hand-written code. Fields returns pointers to the value's
// fields, always in the same order and with the same pointer types.
type Fielder interface {
	Fields() []any
}

type fieldCodec struct {
	typ   reflect.Type
	write func(w ValueWriter, p any) error
	read  func(r ValueReader, p any) error
}

// Descriptor is the cached serialization plan for one Fielder type.
type Descriptor struct {
	typ    reflect.Type
	fields []fieldCodec
}

func (d *Descriptor) Type() reflect.Type {
	return d.typ
}

func (d *Descriptor) NumFields() int {
	return len(d.fields)
}

type cacheEntry struct {
	descriptor *Descriptor
	err        error
}

// DescriptorCache maps Fielder types to their descriptors. Entries are built
// on first use and never evicted; concurrent first uses of a type observe a
// single descriptor.
type DescriptorCache struct {
	entries sync.Map // reflect.Type -> *cacheEntry
}

func NewDescriptorCache() *DescriptorCache {
	return &DescriptorCache{}
}

var shared = NewDescriptorCache()

// Shared returns the process-wide cache.
func Shared() *DescriptorCache {
	return shared
}

// Len counts cached types, including types that failed to build.
func (c *DescriptorCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Descriptor returns the descriptor for v's type, building it on a miss.
func (c *DescriptorCache) Descriptor(v Fielder) (*Descriptor, error) {
	if v == nil {
		return nil, errors.New(errors.KindInvalidArgument, "nil value has no descriptor", codecCaller)
	}
	return c.descriptorFor(reflect.TypeOf(v), nil)
}

func (c *DescriptorCache) descriptorFor(t reflect.Type, building map[reflect.Type]bool) (*Descriptor, error) {
	if cached, ok := c.entries.Load(t); ok {
		entry := cached.(*cacheEntry)
		return entry.descriptor, entry.err
	}

	if building[t] {
		return nil, errors.Newf(errors.KindUnserializableType, codecCaller, "%s contains itself", t)
	}
	if building == nil {
		building = map[reflect.Type]bool{}
	}
	building[t] = true
	d, err := c.build(t, building)
	delete(building, t)

	actual, _ := c.entries.LoadOrStore(t, &cacheEntry{descriptor: d, err: err})
	entry := actual.(*cacheEntry)
	return entry.descriptor, entry.err
}

func (c *DescriptorCache) build(t reflect.Type, building map[reflect.Type]bool) (*Descriptor, error) {
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, errors.Newf(errors.KindUnserializableType, codecCaller, "%s is not a pointer to a struct", t)
	}

	sample, ok := reflect.New(t.Elem()).Interface().(Fielder)
	if !ok {
		return nil, errors.Newf(errors.KindUnserializableType, codecCaller, "%s does not implement Fielder", t)
	}

	ptrs := sample.Fields()
	d := &Descriptor{typ: t, fields: make([]fieldCodec, 0, len(ptrs))}
	for i, p := range ptrs {
		fc, err := c.fieldCodecFor(p, building)
		if err != nil {
			return nil, errors.Wrap(errors.KindUnserializableType, err, fmt.Sprintf("field %d of %s", i, t), codecCaller)
		}
		d.fields = append(d.fields, fc)
	}
	return d, nil
}

func (c *DescriptorCache) fieldCodecFor(p any, building map[reflect.Type]bool) (fieldCodec, error) {
	rv := reflect.ValueOf(p)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fieldCodec{}, errors.Newf(errors.KindUnserializableType, codecCaller, "field pointer %T is nil or not a pointer", p)
	}

	switch p.(type) {
	case *bool:
		return primitive(ValueWriter.WriteBool, ValueReader.ReadBool), nil
	case *int8:
		return primitive(ValueWriter.WriteInt8, ValueReader.ReadInt8), nil
	case *int16:
		return primitive(ValueWriter.WriteInt16, ValueReader.ReadInt16), nil
	case *int32:
		return primitive(ValueWriter.WriteInt32, ValueReader.ReadInt32), nil
	case *int64:
		return primitive(ValueWriter.WriteInt64, ValueReader.ReadInt64), nil
	case *int:
		return primitive(writeInt, readInt), nil
	case *uint8:
		return primitive(ValueWriter.WriteUint8, ValueReader.ReadUint8), nil
	case *uint16:
		return primitive(ValueWriter.WriteUint16, ValueReader.ReadUint16), nil
	case *uint32:
		return primitive(ValueWriter.WriteUint32, ValueReader.ReadUint32), nil
	case *uint64:
		return primitive(ValueWriter.WriteUint64, ValueReader.ReadUint64), nil
	case *uint:
		return primitive(writeUint, readUint), nil
	case *float32:
		return primitive(ValueWriter.WriteFloat32, ValueReader.ReadFloat32), nil
	case *float64:
		return primitive(ValueWriter.WriteFloat64, ValueReader.ReadFloat64), nil
	case *string:
		return primitive(ValueWriter.WriteString, ValueReader.ReadString), nil
	case *[]byte:
		return primitive(ValueWriter.WriteBytes, ValueReader.ReadBytes), nil
	case *time.Time:
		return primitive(ValueWriter.WriteDate, ValueReader.ReadDate), nil
	case *[]string:
		return primitive(writeStrings, readStrings), nil
	case Fielder:
		nested, err := c.descriptorFor(rv.Type(), building)
		if err != nil {
			return fieldCodec{}, err
		}
		return fieldCodec{
			typ: rv.Type(),
			write: func(w ValueWriter, p any) error {
				return writeFields(w, p.(Fielder), nested)
			},
			read: func(r ValueReader, p any) error {
				return readFields(r, p.(Fielder), nested)
			},
		}, nil
	}
	return fieldCodec{}, errors.Newf(errors.KindUnserializableType, codecCaller, "unsupported field type %T", p)
}

func primitive[T any](write func(ValueWriter, T) error, read func(ValueReader) (T, error)) fieldCodec {
	return fieldCodec{
		typ: reflect.TypeOf((*T)(nil)),
		write: func(w ValueWriter, p any) error {
			return write(w, *p.(*T))
		},
		read: func(r ValueReader, p any) error {
			v, err := read(r)
			if err != nil {
				return err
			}
			*p.(*T) = v
			return nil
		},
	}
}

func writeInt(w ValueWriter, v int) error {
	return w.WriteInt64(int64(v))
}

func readInt(r ValueReader) (int, error) {
	v, err := r.ReadInt64()
	return int(v), err
}

func writeUint(w ValueWriter, v uint) error {
	return w.WriteUint64(uint64(v))
}

func readUint(r ValueReader) (uint, error) {
	v, err := r.ReadUint64()
	return uint(v), err
}

func writeStrings(w ValueWriter, v []string) error {
	if err := w.WriteUint32(uint32(len(v))); err != nil {
		return err
	}
	for _, s := range v {
		if err := w.WriteString(s); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(r ValueReader) ([]string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	// every element costs at least its 4-byte prefix
	if uint64(n)*4 > uint64(r.Remaining()) {
		return nil, errors.Newf(errors.KindCorruptFrame, codecCaller, "%d strings cannot fit in %d bytes", n, r.Remaining())
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = r.ReadString(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// checkFields validates that ptrs still match the descriptor's plan.
func checkFields(ptrs []any, d *Descriptor) error {
	if len(ptrs) != len(d.fields) {
		return errors.Newf(errors.KindUnserializableType, codecCaller, "%s returned %d fields, descriptor has %d", d.typ, len(ptrs), len(d.fields))
	}
	for i, p := range ptrs {
		if reflect.TypeOf(p) != d.fields[i].typ || reflect.ValueOf(p).IsNil() {
			return errors.Newf(errors.KindUnserializableType, codecCaller, "field %d of %s changed type or is nil", i, d.typ)
		}
	}
	return nil
}

func writeFields(w ValueWriter, v Fielder, d *Descriptor) error {
	ptrs := v.Fields()
	if err := checkFields(ptrs, d); err != nil {
		return err
	}
	for i, p := range ptrs {
		if err := d.fields[i].write(w, p); err != nil {
			return err
		}
	}
	return nil
}

func readFields(r ValueReader, v Fielder, d *Descriptor) error {
	ptrs := v.Fields()
	if err := checkFields(ptrs, d); err != nil {
		return err
	}
	for i, p := range ptrs {
		if err := d.fields[i].read(r, p); err != nil {
			return err
		}
	}
	return nil
}

// WriteFields writes v's fields without a presence flag.
func (c *DescriptorCache) WriteFields(w ValueWriter, v Fielder) error {
	if w == nil {
		return errWriterClosed
	}
	if isNil(v) {
		return errors.New(errors.KindInvalidArgument, "cannot write fields of a nil value", codecCaller)
	}
	d, err := c.Descriptor(v)
	if err != nil {
		return err
	}
	return writeFields(w, v, d)
}

// ReadFields fills v's fields in place, without a presence flag.
func (c *DescriptorCache) ReadFields(r ValueReader, v Fielder) error {
	if r == nil {
		return errReaderClosed
	}
	if isNil(v) {
		return errors.New(errors.KindInvalidArgument, "cannot read fields into a nil value", codecCaller)
	}
	d, err := c.Descriptor(v)
	if err != nil {
		return err
	}
	return readFields(r, v, d)
}

// WriteObject writes a presence flag, then v's fields when v is not nil.
func (c *DescriptorCache) WriteObject(w ValueWriter, v Fielder) error {
	if w == nil {
		return errWriterClosed
	}
	if isNil(v) {
		return w.WriteBool(false)
	}
	d, err := c.Descriptor(v)
	if err != nil {
		return err
	}
	if err := w.WriteBool(true); err != nil {
		return err
	}
	return writeFields(w, v, d)
}

// ReadObject reads a value written by WriteObject. An absent value yields nil.
func ReadObject[T any, PT interface {
	*T
	Fielder
}](c *DescriptorCache, r ValueReader) (PT, error) {
	if r == nil {
		return nil, errReaderClosed
	}
	v := PT(new(T))
	d, err := c.Descriptor(v)
	if err != nil {
		return nil, err
	}
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	if err := readFields(r, v, d); err != nil {
		return nil, err
	}
	return v, nil
}

func isNil(v Fielder) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
