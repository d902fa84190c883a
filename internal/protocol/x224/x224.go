// Package x224 implements the X.224 class 0 transport PDUs carried inside
// TPKT envelopes during the RDP connection sequence.
package x224

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
)

// TPDU codes (X.224 13.x).
const (
	CodeConnectionRequest uint8 = 0xE0 // CR
	CodeConnectionConfirm uint8 = 0xD0 // CC
	CodeDisconnectRequest uint8 = 0x80 // DR
	CodeData              uint8 = 0xF0 // DT
	CodeError             uint8 = 0x70 // ER
)

const (
	// EOT terminates a data TPDU header.
	EOT uint8 = 0x80

	// data TPDU header: LI + code + EOT
	dataHeaderLength = 3

	// non-data TPDU fixed part: LI + code + DST-REF + SRC-REF + class
	fixedHeaderLength = 7
)

// TpduHeader is the leading part of every TPDU: a length indicator counting
// the bytes that follow it, and a code byte.
type TpduHeader struct {
	LI   uint8
	Code uint8
}

// DecodeTpduHeader reads LI and the code byte.
func DecodeTpduHeader(src *core.ReadCursor) (TpduHeader, error) {
	if err := core.EnsureSize("TpduHeader", src, 2); err != nil {
		return TpduHeader{}, err
	}

	return TpduHeader{LI: src.ReadU8(), Code: src.ReadU8()}, nil
}

// DecodeDataFrame parses a TPKT + X.224 data TPDU envelope and leaves the
// cursor positioned at the user data.
func DecodeDataFrame(src *core.ReadCursor) error {
	header, err := tpkt.DecodeHeader(src)
	if err != nil {
		return err
	}

	if err := core.EnsureSize("X224Data", src, dataHeaderLength); err != nil {
		return err
	}

	tpdu, err := DecodeTpduHeader(src)
	if err != nil {
		return err
	}

	if int(tpdu.LI)+tpkt.HeaderLength+1 > int(header.Length) {
		return core.InvalidField("X224Data", "LI", "length indicator exceeds the TPKT length")
	}

	switch tpdu.Code {
	case CodeData:
		src.ReadU8() // EOT

		return nil
	case CodeDisconnectRequest:
		return core.Other("X224Data", "peer sent X.224 Disconnect Request")
	case CodeError:
		return core.Other("X224Data", "peer sent X.224 Error")
	default:
		return core.UnexpectedMessageType("X224Data", tpdu.Code)
	}
}

// DataFrame wraps an inner PDU in a TPKT + X.224 data TPDU envelope.
type DataFrame struct {
	Inner core.Encode
}

func (f DataFrame) Name() string { return "X224Data" }

func (f DataFrame) Size() int {
	return tpkt.HeaderLength + dataHeaderLength + f.Inner.Size()
}

func (f DataFrame) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(f.Name(), dst, f.Size()); err != nil {
		return err
	}

	if err := tpkt.NewHeader(dataHeaderLength + f.Inner.Size()).Encode(dst); err != nil {
		return err
	}

	dst.WriteU8(2) // LI: code + EOT
	dst.WriteU8(CodeData)
	dst.WriteU8(EOT)

	return f.Inner.Encode(dst)
}

// RawDataFrame wraps pre-encoded user data in a TPKT + X.224 data TPDU
// envelope.
type RawDataFrame struct {
	UserData []byte
}

func (f RawDataFrame) Name() string { return "X224Data" }

func (f RawDataFrame) Size() int {
	return tpkt.HeaderLength + dataHeaderLength + len(f.UserData)
}

func (f RawDataFrame) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(f.Name(), dst, f.Size()); err != nil {
		return err
	}

	if err := tpkt.NewHeader(dataHeaderLength + len(f.UserData)).Encode(dst); err != nil {
		return err
	}

	dst.WriteU8(2)
	dst.WriteU8(CodeData)
	dst.WriteU8(EOT)
	dst.WriteSlice(f.UserData)

	return nil
}
