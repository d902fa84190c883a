// Package fastpath implements the compact server-to-client update framing
// used once the connection is activated (MS-RDPBCGR 2.2.9.1.2).
package fastpath

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// Action bits in the first header byte.
const (
	ActionFastPath uint8 = 0x00
	ActionX224     uint8 = 0x03
)

// Header flags carried in the high bits of the first byte.
const (
	FlagSecureChecksum uint8 = 0x40
	FlagEncrypted      uint8 = 0x80
)

// Header is the fast-path update header: action/flags byte plus a 1- or
// 2-byte length covering the whole PDU.
type Header struct {
	Action uint8
	Flags  uint8
	Length uint16
}

// DecodeHeader reads a fast-path header from the cursor.
func DecodeHeader(src *core.ReadCursor) (Header, error) {
	if err := core.EnsureSize("FastPathHeader", src, 2); err != nil {
		return Header{}, err
	}

	first := src.ReadU8()

	h := Header{
		Action: first & 0x03,
		Flags:  first & 0xC0,
	}

	length1 := src.ReadU8()
	if length1&0x80 != 0 {
		if err := core.EnsureSize("FastPathHeader", src, 1); err != nil {
			return Header{}, err
		}

		h.Length = uint16(length1&0x7F)<<8 | uint16(src.ReadU8())
	} else {
		h.Length = uint16(length1)
	}

	return h, nil
}

type fastPathHint struct{}

// Hint probes a fast-path frame: one or two length bytes after the header
// byte give the total PDU length.
var Hint core.PduHint = fastPathHint{}

func (fastPathHint) FindSize(b []byte) (int, bool, bool, error) {
	if len(b) < 2 {
		return 0, false, false, nil
	}

	length1 := b[1]
	if length1&0x80 == 0 {
		return int(length1), true, true, nil
	}

	if len(b) < 3 {
		return 0, false, false, nil
	}

	return int(length1&0x7F)<<8 | int(b[2]), true, true, nil
}
