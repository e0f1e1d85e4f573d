package connection

import (
	"encoding/binary"

	"github.com/mgray/tempest/pkg/errors"
	"github.com/mgray/tempest/pkg/message"
)

const minReceiveBuffer = 64

// receiveBuffer accumulates stream bytes and cuts them into frames.
// Invariant: 0 <= rpos <= wpos <= len(buf).
type receiveBuffer struct {
	buf        []byte
	rpos, wpos int
	initial    int
	maxPayload uint32
}

func newReceiveBuffer(size int, maxPayload uint32) *receiveBuffer {
	if size < minReceiveBuffer {
		size = minReceiveBuffer
	}
	return &receiveBuffer{
		buf:        make([]byte, size),
		initial:    size,
		maxPayload: maxPayload,
	}
}

// writable returns the free space after the write cursor.
func (b *receiveBuffer) writable() []byte {
	if b.wpos == len(b.buf) {
		b.compact()
	}
	return b.buf[b.wpos:]
}

// advance moves the write cursor past n freshly received bytes.
func (b *receiveBuffer) advance(n int) {
	if n < 0 || b.wpos+n > len(b.buf) {
		panic("connection: receive buffer overrun")
	}
	b.wpos += n
}

func (b *receiveBuffer) buffered() int {
	return b.wpos - b.rpos
}

// next cuts the next complete frame. The payload aliases the buffer and is
// only valid until the next call to compact or writable.
func (b *receiveBuffer) next() (tag message.ID, payload []byte, ok bool, err error) {
	if b.buffered() < HeaderLen {
		return 0, nil, false, nil
	}
	head := b.buf[b.rpos : b.rpos+HeaderLen]
	tag = message.ID(binary.LittleEndian.Uint16(head))
	length := binary.LittleEndian.Uint32(head[2:])
	if length > b.maxPayload {
		return tag, nil, false, errors.Newf(errors.KindCorruptFrame, connectionCaller,
			"message type %d declares %d payload bytes, limit is %d", tag, length, b.maxPayload)
	}

	total := HeaderLen + int(length)
	if b.buffered() < total {
		b.reserve(total)
		return 0, nil, false, nil
	}
	payload = b.buf[b.rpos+HeaderLen : b.rpos+total]
	b.rpos += total
	return tag, payload, true, nil
}

// reserve grows the buffer so a frame of total bytes fits once compacted.
func (b *receiveBuffer) reserve(total int) {
	if total <= len(b.buf) {
		return
	}
	grown := make([]byte, total)
	b.wpos = copy(grown, b.buf[b.rpos:b.wpos])
	b.rpos = 0
	b.buf = grown
}

// compact moves the unconsumed tail to the front. An empty buffer that grew
// for a large frame drops back to its initial size.
func (b *receiveBuffer) compact() {
	if b.rpos == b.wpos {
		b.rpos, b.wpos = 0, 0
		if len(b.buf) > b.initial {
			b.buf = make([]byte, b.initial)
		}
		return
	}
	if b.rpos == 0 {
		return
	}
	b.wpos = copy(b.buf, b.buf[b.rpos:b.wpos])
	b.rpos = 0
}
