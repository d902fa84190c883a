// Package encoding implements the ASN.1 BER and PER primitives used by the
// MCS and GCC layers.
package encoding

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// BER identifier classes and tags.
const (
	ClassUniversal   uint8 = 0x00
	ClassApplication uint8 = 0x40
	ClassContext     uint8 = 0x80
	ClassPrivate     uint8 = 0xC0

	PCPrimitive uint8 = 0x00
	PCConstruct uint8 = 0x20

	TagMask uint8 = 0x1F

	TagBoolean     uint8 = 0x01
	TagInteger     uint8 = 0x02
	TagOctetString uint8 = 0x04
	TagEnumerated  uint8 = 0x0A
	TagSequence    uint8 = 0x10
)

// BER reading functions

func BerReadApplicationTag(src *core.ReadCursor) (uint8, error) {
	if err := core.EnsureSize("BerApplicationTag", src, 2); err != nil {
		return 0, err
	}

	identifier := src.ReadU8()
	if identifier != (ClassApplication|PCConstruct)|TagMask {
		return 0, core.InvalidField("BerApplicationTag", "identifier", "not an application tag")
	}

	tag := src.ReadU8()

	return tag, nil
}

func BerReadLength(src *core.ReadCursor) (int, error) {
	if err := core.EnsureSize("BerLength", src, 1); err != nil {
		return 0, err
	}

	size := src.ReadU8()

	if size&0x80 == 0 {
		return int(size), nil
	}

	switch size &^ 0x80 {
	case 1:
		if err := core.EnsureSize("BerLength", src, 1); err != nil {
			return 0, err
		}

		return int(src.ReadU8()), nil
	case 2:
		if err := core.EnsureSize("BerLength", src, 2); err != nil {
			return 0, err
		}

		return int(src.ReadU16BE()), nil
	default:
		return 0, core.InvalidField("BerLength", "length", "long form may be 1 or 2 octets")
	}
}

func berPC(pc bool) uint8 {
	if pc {
		return PCConstruct
	}
	return PCPrimitive
}

func BerReadUniversalTag(tag uint8, pc bool, src *core.ReadCursor) error {
	if err := core.EnsureSize("BerUniversalTag", src, 1); err != nil {
		return err
	}

	got := src.ReadU8()
	if got != (ClassUniversal|berPC(pc))|(TagMask&tag) {
		return core.InvalidField("BerUniversalTag", "tag", "unexpected universal tag")
	}

	return nil
}

func BerReadBoolean(src *core.ReadCursor) (bool, error) {
	if err := BerReadUniversalTag(TagBoolean, false, src); err != nil {
		return false, err
	}

	size, err := BerReadLength(src)
	if err != nil {
		return false, err
	}

	if size != 1 {
		return false, core.InvalidField("BerBoolean", "length", "expected 1 octet")
	}

	if err := core.EnsureSize("BerBoolean", src, 1); err != nil {
		return false, err
	}

	return src.ReadU8() != 0, nil
}

func BerReadEnumerated(src *core.ReadCursor) (uint8, error) {
	if err := BerReadUniversalTag(TagEnumerated, false, src); err != nil {
		return 0, err
	}

	length, err := BerReadLength(src)
	if err != nil {
		return 0, err
	}

	if length != 1 {
		return 0, core.InvalidField("BerEnumerated", "length", "expected 1 octet")
	}

	if err := core.EnsureSize("BerEnumerated", src, 1); err != nil {
		return 0, err
	}

	return src.ReadU8(), nil
}

func BerReadInteger(src *core.ReadCursor) (int, error) {
	if err := BerReadUniversalTag(TagInteger, false, src); err != nil {
		return 0, err
	}

	size, err := BerReadLength(src)
	if err != nil {
		return 0, err
	}

	if err := core.EnsureSize("BerInteger", src, size); err != nil {
		return 0, err
	}

	switch size {
	case 1:
		return int(src.ReadU8()), nil
	case 2:
		return int(src.ReadU16BE()), nil
	case 3:
		hi := int(src.ReadU8())
		lo := int(src.ReadU16BE())

		return hi<<16 + lo, nil
	case 4:
		return int(src.ReadU32BE()), nil
	default:
		return 0, core.InvalidField("BerInteger", "length", "integer may be 1 to 4 octets")
	}
}

func BerReadOctetString(src *core.ReadCursor) ([]byte, error) {
	if err := BerReadUniversalTag(TagOctetString, false, src); err != nil {
		return nil, err
	}

	size, err := BerReadLength(src)
	if err != nil {
		return nil, err
	}

	if err := core.EnsureSize("BerOctetString", src, size); err != nil {
		return nil, err
	}

	return src.ReadSlice(size), nil
}

// BER writing functions

func BerWriteBoolean(b bool, dst *core.WriteCursor) {
	v := uint8(0)
	if b {
		v = 0xFF
	}

	dst.WriteU8(TagBoolean)
	BerWriteLength(1, dst)
	dst.WriteU8(v)
}

func BerWriteInteger(n int, dst *core.WriteCursor) {
	dst.WriteU8(TagInteger)

	switch {
	case n <= 0xFF:
		BerWriteLength(1, dst)
		dst.WriteU8(uint8(n))
	case n <= 0xFFFF:
		BerWriteLength(2, dst)
		dst.WriteU16BE(uint16(n))
	default:
		BerWriteLength(4, dst)
		dst.WriteU32BE(uint32(n))
	}
}

func BerWriteOctetString(str []byte, dst *core.WriteCursor) {
	dst.WriteU8(TagOctetString)
	BerWriteLength(len(str), dst)
	dst.WriteSlice(str)
}

func BerWriteSequenceHeader(size int, dst *core.WriteCursor) {
	dst.WriteU8(0x30)
	BerWriteLength(size, dst)
}

func BerWriteApplicationTag(tag uint8, size int, dst *core.WriteCursor) {
	if tag > 30 {
		dst.WriteU8(0x7F) // leading octet for tag numbers >= 31
		dst.WriteU8(tag)
	} else {
		dst.WriteU8(tag)
	}

	BerWriteLength(size, dst)
}

func BerWriteLength(size int, dst *core.WriteCursor) {
	switch {
	case size > 0xFF:
		dst.WriteU8(0x82)
		dst.WriteU16BE(uint16(size))
	case size > 0x7F:
		dst.WriteU8(0x81)
		dst.WriteU8(uint8(size))
	default:
		dst.WriteU8(uint8(size))
	}
}

// Sizing helpers mirroring the writers, used by Encode.Size implementations.

func BerSizeLength(size int) int {
	switch {
	case size > 0xFF:
		return 3
	case size > 0x7F:
		return 2
	default:
		return 1
	}
}

func BerSizeInteger(n int) int {
	switch {
	case n <= 0xFF:
		return 3
	case n <= 0xFFFF:
		return 4
	default:
		return 6
	}
}

func BerSizeBoolean() int {
	return 3
}

func BerSizeOctetString(n int) int {
	return 1 + BerSizeLength(n) + n
}

func BerSizeApplicationTag(tag uint8, size int) int {
	if tag > 30 {
		return 2 + BerSizeLength(size)
	}
	return 1 + BerSizeLength(size)
}
