// Package core provides the byte-level substrate shared by every protocol
// layer: bounded cursors, the growable WriteBuf, the Encode/Decode contracts,
// PDU length hints, and the decode/encode error kinds.
package core

import "encoding/binary"

// ReadCursor is a non-owning view over a byte slice carrying a read position.
// Reads are unchecked; decode paths guard them with EnsureSize before reading.
// All multi-byte reads are little-endian unless the method name says BE.
type ReadCursor struct {
	src []byte
	pos int
}

// NewReadCursor creates a cursor over src positioned at the start.
func NewReadCursor(src []byte) *ReadCursor {
	return &ReadCursor{src: src}
}

// Len returns the number of unread bytes.
func (c *ReadCursor) Len() int {
	return len(c.src) - c.pos
}

// IsEmpty returns true if no unread bytes remain.
func (c *ReadCursor) IsEmpty() bool {
	return c.Len() == 0
}

// Pos returns the current read position.
func (c *ReadCursor) Pos() int {
	return c.pos
}

// Remaining returns the unread portion of the underlying slice.
func (c *ReadCursor) Remaining() []byte {
	return c.src[c.pos:]
}

// Advance moves the position forward by n bytes.
func (c *ReadCursor) Advance(n int) {
	c.pos += n
}

// Rewind moves the position backward by n bytes.
func (c *ReadCursor) Rewind(n int) {
	c.pos -= n
}

// ReadSlice returns the next n bytes and advances. The returned slice aliases
// the underlying buffer.
func (c *ReadCursor) ReadSlice(n int) []byte {
	s := c.src[c.pos : c.pos+n]
	c.pos += n
	return s
}

// PeekSlice returns the next n bytes without advancing.
func (c *ReadCursor) PeekSlice(n int) []byte {
	return c.src[c.pos : c.pos+n]
}

func (c *ReadCursor) ReadU8() uint8 {
	b := c.src[c.pos]
	c.pos++
	return b
}

func (c *ReadCursor) PeekU8() uint8 {
	return c.src[c.pos]
}

func (c *ReadCursor) ReadU16() uint16 {
	v := binary.LittleEndian.Uint16(c.src[c.pos:])
	c.pos += 2
	return v
}

func (c *ReadCursor) ReadU16BE() uint16 {
	v := binary.BigEndian.Uint16(c.src[c.pos:])
	c.pos += 2
	return v
}

func (c *ReadCursor) PeekU16() uint16 {
	return binary.LittleEndian.Uint16(c.src[c.pos:])
}

func (c *ReadCursor) PeekU16BE() uint16 {
	return binary.BigEndian.Uint16(c.src[c.pos:])
}

func (c *ReadCursor) ReadU32() uint32 {
	v := binary.LittleEndian.Uint32(c.src[c.pos:])
	c.pos += 4
	return v
}

func (c *ReadCursor) ReadU32BE() uint32 {
	v := binary.BigEndian.Uint32(c.src[c.pos:])
	c.pos += 4
	return v
}

func (c *ReadCursor) ReadU64() uint64 {
	v := binary.LittleEndian.Uint64(c.src[c.pos:])
	c.pos += 8
	return v
}

func (c *ReadCursor) ReadU64BE() uint64 {
	v := binary.BigEndian.Uint64(c.src[c.pos:])
	c.pos += 8
	return v
}

// WriteCursor is a non-owning view over a mutable byte slice carrying a write
// position. Writes are unchecked; encode paths guard them with EnsureWriteSize.
type WriteCursor struct {
	dst []byte
	pos int
}

// NewWriteCursor creates a cursor over dst positioned at the start.
func NewWriteCursor(dst []byte) *WriteCursor {
	return &WriteCursor{dst: dst}
}

// Len returns the number of writable bytes left.
func (c *WriteCursor) Len() int {
	return len(c.dst) - c.pos
}

// Pos returns the current write position.
func (c *WriteCursor) Pos() int {
	return c.pos
}

// Advance moves the position forward by n bytes, leaving them as-is.
func (c *WriteCursor) Advance(n int) {
	c.pos += n
}

// Rewind moves the position backward by n bytes.
func (c *WriteCursor) Rewind(n int) {
	c.pos -= n
}

func (c *WriteCursor) WriteU8(v uint8) {
	c.dst[c.pos] = v
	c.pos++
}

func (c *WriteCursor) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(c.dst[c.pos:], v)
	c.pos += 2
}

func (c *WriteCursor) WriteU16BE(v uint16) {
	binary.BigEndian.PutUint16(c.dst[c.pos:], v)
	c.pos += 2
}

func (c *WriteCursor) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(c.dst[c.pos:], v)
	c.pos += 4
}

func (c *WriteCursor) WriteU32BE(v uint32) {
	binary.BigEndian.PutUint32(c.dst[c.pos:], v)
	c.pos += 4
}

func (c *WriteCursor) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(c.dst[c.pos:], v)
	c.pos += 8
}

func (c *WriteCursor) WriteU64BE(v uint64) {
	binary.BigEndian.PutUint64(c.dst[c.pos:], v)
	c.pos += 8
}

func (c *WriteCursor) WriteSlice(s []byte) {
	copy(c.dst[c.pos:], s)
	c.pos += len(s)
}

// WritePadding writes n zero bytes.
func (c *WriteCursor) WritePadding(n int) {
	for i := 0; i < n; i++ {
		c.dst[c.pos+i] = 0
	}
	c.pos += n
}
