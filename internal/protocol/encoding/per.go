package encoding

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// PER reading functions

func PerReadChoice(src *core.ReadCursor) (uint8, error) {
	if err := core.EnsureSize("PerChoice", src, 1); err != nil {
		return 0, err
	}

	return src.ReadU8(), nil
}

func PerReadLength(src *core.ReadCursor) (int, error) {
	if err := core.EnsureSize("PerLength", src, 1); err != nil {
		return 0, err
	}

	octet := src.ReadU8()

	if octet&0x80 != 0x80 {
		return int(octet), nil
	}

	if err := core.EnsureSize("PerLength", src, 1); err != nil {
		return 0, err
	}

	return int(octet&^0x80)<<8 + int(src.ReadU8()), nil
}

func PerReadObjectIdentifier(oid [6]byte, src *core.ReadCursor) error {
	size, err := PerReadLength(src)
	if err != nil {
		return err
	}

	if size != 5 {
		return core.InvalidField("PerObjectIdentifier", "length", "expected 5 octets")
	}

	if err = core.EnsureSize("PerObjectIdentifier", src, 5); err != nil {
		return err
	}

	t12 := src.ReadU8()

	var got [6]byte
	got[0] = t12 >> 4
	got[1] = t12 & 0x0F

	for i := 2; i <= 5; i++ {
		got[i] = src.ReadU8()
	}

	if got != oid {
		return core.InvalidField("PerObjectIdentifier", "oid", "object identifier mismatch")
	}

	return nil
}

func PerReadInteger16(minimum uint16, src *core.ReadCursor) (uint16, error) {
	if err := core.EnsureSize("PerInteger16", src, 2); err != nil {
		return 0, err
	}

	return src.ReadU16BE() + minimum, nil
}

func PerReadInteger(src *core.ReadCursor) (int, error) {
	size, err := PerReadLength(src)
	if err != nil {
		return 0, err
	}

	if err = core.EnsureSize("PerInteger", src, size); err != nil {
		return 0, err
	}

	switch size {
	case 1:
		return int(src.ReadU8()), nil
	case 2:
		return int(src.ReadU16BE()), nil
	case 4:
		return int(src.ReadU32BE()), nil
	default:
		return 0, core.InvalidField("PerInteger", "length", "integer may be 1, 2 or 4 octets")
	}
}

func PerReadEnumerates(src *core.ReadCursor) (uint8, error) {
	if err := core.EnsureSize("PerEnumerates", src, 1); err != nil {
		return 0, err
	}

	return src.ReadU8(), nil
}

func PerReadNumberOfSet(src *core.ReadCursor) (uint8, error) {
	if err := core.EnsureSize("PerNumberOfSet", src, 1); err != nil {
		return 0, err
	}

	return src.ReadU8(), nil
}

func PerReadOctetStream(expected []byte, minValue int, src *core.ReadCursor) error {
	length, err := PerReadLength(src)
	if err != nil {
		return err
	}

	size := length + minValue
	if size != len(expected) {
		return core.InvalidField("PerOctetStream", "length", "octet stream size mismatch")
	}

	if err = core.EnsureSize("PerOctetStream", src, size); err != nil {
		return err
	}

	for i := 0; i < size; i++ {
		if src.ReadU8() != expected[i] {
			return core.InvalidField("PerOctetStream", "content", "octet stream content mismatch")
		}
	}

	return nil
}

// PER writing functions

func PerWriteChoice(choice uint8, dst *core.WriteCursor) {
	dst.WriteU8(choice)
}

func PerWriteObjectIdentifier(oid [6]byte, dst *core.WriteCursor) {
	PerWriteLength(5, dst)

	dst.WriteU8((oid[0] << 4) | (oid[1] & 0x0F))
	dst.WriteU8(oid[2])
	dst.WriteU8(oid[3])
	dst.WriteU8(oid[4])
	dst.WriteU8(oid[5])
}

func PerWriteLength(value uint16, dst *core.WriteCursor) {
	if value > 0x7F {
		dst.WriteU16BE(value | 0x8000)
		return
	}

	dst.WriteU8(uint8(value))
}

func PerSizeLength(value uint16) int {
	if value > 0x7F {
		return 2
	}
	return 1
}

func PerWriteSelection(selection uint8, dst *core.WriteCursor) {
	dst.WriteU8(selection)
}

func PerWriteNumericString(nStr string, minValue int, dst *core.WriteCursor) {
	length := len(nStr)
	mLength := minValue

	if length-minValue >= 0 {
		mLength = length - minValue
	}

	PerWriteLength(uint16(mLength), dst)

	for i := 0; i < length; i += 2 {
		c1 := nStr[i]
		c2 := byte(0x30)

		if i+1 < length {
			c2 = nStr[i+1]
		}

		c1 = (c1 - 0x30) % 10
		c2 = (c2 - 0x30) % 10

		dst.WriteU8((c1 << 4) | c2)
	}
}

func PerWritePadding(length int, dst *core.WriteCursor) {
	dst.WritePadding(length)
}

func PerWriteNumberOfSet(numberOfSet uint8, dst *core.WriteCursor) {
	dst.WriteU8(numberOfSet)
}

func PerWriteOctetStream(oStr []byte, minValue int, dst *core.WriteCursor) {
	length := len(oStr)
	mLength := minValue

	if length-minValue >= 0 {
		mLength = length - minValue
	}

	PerWriteLength(uint16(mLength), dst)
	dst.WriteSlice(oStr)
}

func PerWriteInteger(value int, dst *core.WriteCursor) {
	switch {
	case value <= 0xFF:
		PerWriteLength(1, dst)
		dst.WriteU8(uint8(value))
	case value <= 0xFFFF:
		PerWriteLength(2, dst)
		dst.WriteU16BE(uint16(value))
	default:
		PerWriteLength(4, dst)
		dst.WriteU32BE(uint32(value))
	}
}

func PerWriteInteger16(value, minimum uint16, dst *core.WriteCursor) {
	dst.WriteU16BE(value - minimum)
}

func PerWriteEnumerates(value uint8, dst *core.WriteCursor) {
	dst.WriteU8(value)
}
