// Package pdu implements the RDP PDUs exchanged on the I/O channel during
// and after the connection sequence: client info, licensing, capability
// exchange, and the finalization messages, as specified in MS-RDPBCGR.
package pdu

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// Type represents the PDU type field in share control headers
// (MS-RDPBCGR 2.2.8.1.1.1.1).
type Type uint16

const (
	// TypeDemandActive PDUTYPE_DEMANDACTIVEPDU
	TypeDemandActive Type = 0x1

	// TypeConfirmActive PDUTYPE_CONFIRMACTIVEPDU
	TypeConfirmActive Type = 0x3

	// TypeDeactivateAll PDUTYPE_DEACTIVATEALLPDU
	TypeDeactivateAll Type = 0x6

	// TypeData PDUTYPE_DATAPDU
	TypeData Type = 0x7
)

// Type2 represents the PDU type 2 field in share data headers
// (MS-RDPBCGR 2.2.8.1.1.1.2).
type Type2 uint8

const (
	// Type2Update PDUTYPE2_UPDATE
	Type2Update Type2 = 0x02

	// Type2Control PDUTYPE2_CONTROL
	Type2Control Type2 = 0x14

	// Type2Pointer PDUTYPE2_POINTER
	Type2Pointer Type2 = 0x1B

	// Type2Input PDUTYPE2_INPUT
	Type2Input Type2 = 0x1C

	// Type2Synchronize PDUTYPE2_SYNCHRONIZE
	Type2Synchronize Type2 = 0x1F

	// Type2SaveSessionInfo PDUTYPE2_SAVE_SESSION_INFO
	Type2SaveSessionInfo Type2 = 0x26

	// Type2Fontlist PDUTYPE2_FONTLIST
	Type2Fontlist Type2 = 0x27

	// Type2Fontmap PDUTYPE2_FONTMAP
	Type2Fontmap Type2 = 0x28

	// Type2ErrorInfo PDUTYPE2_SET_ERROR_INFO_PDU
	Type2ErrorInfo Type2 = 0x2F
)

const (
	shareControlHeaderLength = 6
	shareDataHeaderLength    = 18
)

// ShareControlHeader is the TS_SHARECONTROLHEADER structure.
type ShareControlHeader struct {
	TotalLength uint16
	PDUType     Type
	PDUSource   uint16
}

func (h *ShareControlHeader) encode(dst *core.WriteCursor) {
	dst.WriteU16(h.TotalLength)
	dst.WriteU16(uint16(h.PDUType) | 0x0010) // protocol version 1 in the high nibble
	dst.WriteU16(h.PDUSource)
}

func decodeShareControlHeader(src *core.ReadCursor) (ShareControlHeader, error) {
	if err := core.EnsureSize("ShareControlHeader", src, shareControlHeaderLength); err != nil {
		return ShareControlHeader{}, err
	}

	return ShareControlHeader{
		TotalLength: src.ReadU16(),
		PDUType:     Type(src.ReadU16() & 0x000F),
		PDUSource:   src.ReadU16(),
	}, nil
}

// ShareDataHeader is the TS_SHAREDATAHEADER structure.
type ShareDataHeader struct {
	ShareControlHeader ShareControlHeader
	ShareID            uint32
	StreamID           uint8
	UncompressedLength uint16
	PDUType2           Type2
	CompressedType     uint8
	CompressedLength   uint16
}

func newShareDataHeader(shareID uint32, pduSource uint16, pduType2 Type2) ShareDataHeader {
	return ShareDataHeader{
		ShareControlHeader: ShareControlHeader{PDUType: TypeData, PDUSource: pduSource},
		ShareID:            shareID,
		StreamID:           0x01, // STREAM_LOW
		PDUType2:           pduType2,
	}
}

func (h *ShareDataHeader) encode(dst *core.WriteCursor) {
	h.ShareControlHeader.encode(dst)
	dst.WriteU32(h.ShareID)
	dst.WriteU8(0) // padding
	dst.WriteU8(h.StreamID)
	dst.WriteU16(h.UncompressedLength)
	dst.WriteU8(uint8(h.PDUType2))
	dst.WriteU8(h.CompressedType)
	dst.WriteU16(h.CompressedLength)
}

func decodeShareDataHeader(src *core.ReadCursor, control ShareControlHeader) (ShareDataHeader, error) {
	if err := core.EnsureSize("ShareDataHeader", src, shareDataHeaderLength-shareControlHeaderLength); err != nil {
		return ShareDataHeader{}, err
	}

	h := ShareDataHeader{ShareControlHeader: control}

	h.ShareID = src.ReadU32()
	src.ReadU8() // padding
	h.StreamID = src.ReadU8()
	h.UncompressedLength = src.ReadU16()
	h.PDUType2 = Type2(src.ReadU8())
	h.CompressedType = src.ReadU8()
	h.CompressedLength = src.ReadU16()

	return h, nil
}

// Basic security header flags (TS_SECURITY_HEADER).
const (
	SecInfoPkt    uint16 = 0x0040
	SecLicensePkt uint16 = 0x0080
)

const basicSecurityHeaderLength = 4

func encodeBasicSecurityHeader(dst *core.WriteCursor, flags uint16) {
	dst.WriteU16(flags)
	dst.WriteU16(0) // flagsHi
}

func decodeBasicSecurityHeader(src *core.ReadCursor) (uint16, error) {
	if err := core.EnsureSize("BasicSecurityHeader", src, basicSecurityHeaderLength); err != nil {
		return 0, err
	}

	flags := src.ReadU16()
	src.ReadU16() // flagsHi

	return flags, nil
}
