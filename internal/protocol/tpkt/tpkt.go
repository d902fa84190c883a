// Package tpkt implements the TPKT envelope (RFC 1006) framing ITU-T X.224
// traffic, and the length hints used to accumulate exactly one frame from a
// byte stream.
package tpkt

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

const (
	// Version is the only TPKT version in use.
	Version uint8 = 3

	// HeaderLength is the fixed TPKT header size.
	HeaderLength = 4
)

// Header represents the 4-byte TPKT envelope: version, reserved, big-endian
// total length including the header itself.
type Header struct {
	Length uint16
}

// NewHeader builds a header framing a payload of the given length.
func NewHeader(payloadLength int) Header {
	return Header{Length: uint16(payloadLength + HeaderLength)}
}

// PayloadLength returns the framed payload length.
func (h Header) PayloadLength() int {
	return int(h.Length) - HeaderLength
}

func (h Header) Name() string { return "TpktHeader" }

func (h Header) Size() int { return HeaderLength }

// Encode writes the envelope to the cursor.
func (h Header) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(h.Name(), dst, HeaderLength); err != nil {
		return err
	}

	dst.WriteU8(Version)
	dst.WriteU8(0) // reserved
	dst.WriteU16BE(h.Length)

	return nil
}

// DecodeHeader reads a TPKT envelope from the cursor.
func DecodeHeader(src *core.ReadCursor) (Header, error) {
	if err := core.EnsureSize("TpktHeader", src, HeaderLength); err != nil {
		return Header{}, err
	}

	version := src.ReadU8()
	if version != Version {
		return Header{}, core.UnsupportedVersion("TpktHeader", version)
	}

	src.ReadU8() // reserved

	length := src.ReadU16BE()
	if int(length) < HeaderLength {
		return Header{}, core.InvalidField("TpktHeader", "length", "shorter than the header itself")
	}

	return Header{Length: length}, nil
}

type tpktHint struct{}

// Hint probes a TPKT frame: 4 bytes determine the total length.
var Hint core.PduHint = tpktHint{}

func (tpktHint) FindSize(b []byte) (int, bool, bool, error) {
	if len(b) < HeaderLength {
		return 0, false, false, nil
	}

	if b[0] != Version {
		return 0, false, false, core.UnsupportedVersion("TpktHint", b[0])
	}

	length := int(b[2])<<8 | int(b[3])
	if length < HeaderLength {
		return 0, false, false, core.InvalidField("TpktHint", "length", "shorter than the header itself")
	}

	return length, true, true, nil
}
