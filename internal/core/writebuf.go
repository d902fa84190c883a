package core

import "encoding/binary"

// Max capacity kept for the backing slice when Clear is called.
const maxCapacityWhenCleared = 16 * 1024

// WriteBuf is a growable buffer tracking a filled prefix, used to accumulate
// outbound PDUs across encode calls.
//
// Layout:
//
//	[          capacity                 ]
//	[ filled | unfilled |               ]
//	[    initialized    | uninitialized ]
type WriteBuf struct {
	inner  []byte
	filled int
}

// NewWriteBuf constructs an empty WriteBuf. The backing slice does not
// allocate until bytes are written.
func NewWriteBuf() *WriteBuf {
	return &WriteBuf{}
}

// NewWriteBufFrom constructs a WriteBuf reusing the given slice as backing
// storage. The filled region starts empty.
func NewWriteBufFrom(buffer []byte) *WriteBuf {
	return &WriteBuf{inner: buffer[:0]}
}

// Inner returns the backing slice; the WriteBuf stays usable.
func (b *WriteBuf) Inner() []byte {
	return b.inner
}

// FilledLen returns the length of the filled region.
func (b *WriteBuf) FilledLen() int {
	return b.filled
}

// Filled returns the filled portion of the buffer.
func (b *WriteBuf) Filled() []byte {
	return b.inner[:b.filled]
}

// FilledSince returns the filled bytes written after the given mark.
func (b *WriteBuf) FilledSince(mark int) []byte {
	return b.inner[mark:b.filled]
}

// initialize grows the initialized region so at least additional bytes follow
// the filled region.
func (b *WriteBuf) initialize(additional int) {
	need := b.filled + additional
	if len(b.inner) < need {
		if cap(b.inner) >= need {
			b.inner = b.inner[:need]
		} else {
			grown := make([]byte, need)
			copy(grown, b.inner)
			b.inner = grown
		}
	}
}

// UnfilledTo returns the first n bytes of the unfilled region, growing the
// buffer as necessary.
func (b *WriteBuf) UnfilledTo(n int) []byte {
	b.initialize(n)
	return b.inner[b.filled : b.filled+n]
}

// Unfilled returns the initialized unfilled region.
func (b *WriteBuf) Unfilled() []byte {
	return b.inner[b.filled:]
}

// Advance marks the next n bytes as filled.
func (b *WriteBuf) Advance(n int) {
	b.filled += n
}

// Clear empties the filled region. A backing slice that grew beyond the
// reclaim threshold is released.
func (b *WriteBuf) Clear() {
	if cap(b.inner) > maxCapacityWhenCleared {
		b.inner = nil
	} else {
		b.inner = b.inner[:0]
	}
	b.filled = 0
}

func (b *WriteBuf) WriteU8(v uint8) {
	b.UnfilledTo(1)[0] = v
	b.filled++
}

func (b *WriteBuf) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(b.UnfilledTo(2), v)
	b.filled += 2
}

func (b *WriteBuf) WriteU16BE(v uint16) {
	binary.BigEndian.PutUint16(b.UnfilledTo(2), v)
	b.filled += 2
}

func (b *WriteBuf) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(b.UnfilledTo(4), v)
	b.filled += 4
}

func (b *WriteBuf) WriteU32BE(v uint32) {
	binary.BigEndian.PutUint32(b.UnfilledTo(4), v)
	b.filled += 4
}

func (b *WriteBuf) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(b.UnfilledTo(8), v)
	b.filled += 8
}

func (b *WriteBuf) WriteU64BE(v uint64) {
	binary.BigEndian.PutUint64(b.UnfilledTo(8), v)
	b.filled += 8
}

func (b *WriteBuf) WriteSlice(s []byte) {
	copy(b.UnfilledTo(len(s)), s)
	b.filled += len(s)
}
