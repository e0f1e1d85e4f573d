package codec

import (
	"time"

	"github.com/mgray/tempest/pkg/errors"
)

// A date packs into one int64:
//
//	bits 63-62  kind: UTC, Local, fixed offset, or the zero time
//	bits 61-55  zone offset in quarter hours, two's complement
//	bits 54-0   Unix microseconds, two's complement
//
// Precision is one microsecond and the range is roughly the years 1400 to
// 2540. A named zone other than UTC or Local travels as its fixed offset.
const (
	dateUTC uint64 = iota
	dateLocal
	dateFixed
	dateZero

	offsetUnit  = 15 * 60
	offsetBits  = 7
	offsetMask  = 1<<offsetBits - 1
	microsBits  = 55
	microsMask  = 1<<microsBits - 1
	minOffset   = -(1 << (offsetBits - 1))
	maxOffset   = 1<<(offsetBits-1) - 1
	minMicros   = -(1 << (microsBits - 1))
	maxMicros   = 1<<(microsBits-1) - 1
	kindShift   = microsBits + offsetBits
	offsetShift = microsBits
)

// zeroDate is dateZero in the kind bits with everything else clear.
const zeroDate int64 = -1 << kindShift

var (
	minDate = time.UnixMicro(minMicros)
	maxDate = time.UnixMicro(maxMicros)
)

// EncodeDate packs t with its zone kind and offset. Anything finer than a
// microsecond is truncated.
func EncodeDate(t time.Time) (int64, error) {
	if t.IsZero() {
		return zeroDate, nil
	}
	if t.Before(minDate) || t.After(maxDate) {
		return 0, errors.Newf(errors.KindInvalidArgument, codecCaller, "date %s is outside the encodable range", t)
	}

	kind := dateFixed
	switch t.Location() {
	case time.UTC:
		kind = dateUTC
	case time.Local:
		kind = dateLocal
	}
	_, offset := t.Zone()
	if offset%offsetUnit != 0 || offset/offsetUnit < minOffset || offset/offsetUnit > maxOffset {
		return 0, errors.Newf(errors.KindInvalidArgument, codecCaller, "zone offset %ds of %s is not encodable", offset, t)
	}
	quarters := int64(offset / offsetUnit)

	v := kind<<kindShift |
		uint64(quarters)&offsetMask<<offsetShift |
		uint64(t.UnixMicro())&microsMask
	return int64(v), nil
}

func DecodeDate(v int64) time.Time {
	u := uint64(v)
	kind := u >> kindShift
	if kind == dateZero {
		return time.Time{}
	}
	quarters := int64(u >> offsetShift & offsetMask)
	if quarters > maxOffset {
		quarters -= 1 << offsetBits
	}
	micros := int64(u & microsMask)
	if micros > maxMicros {
		micros -= 1 << microsBits
	}

	t := time.UnixMicro(micros)
	switch kind {
	case dateUTC:
		return t.UTC()
	case dateLocal:
		return t.In(time.Local)
	}
	return t.In(time.FixedZone("", int(quarters)*offsetUnit))
}
