// Package drdynvc implements the Dynamic Virtual Channel Protocol
// (MS-RDPEDYC): the compact PDU encoding and the client dispatcher that
// multiplexes dynamic channels over the "drdynvc" static channel.
package drdynvc

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// Command IDs (MS-RDPEDYC 2.2.1).
const (
	CmdCreate       uint8 = 0x01 // DYNVC_CREATE_REQ / _RSP
	CmdDataFirst    uint8 = 0x02 // DYNVC_DATA_FIRST
	CmdData         uint8 = 0x03 // DYNVC_DATA
	CmdClose        uint8 = 0x04 // DYNVC_CLOSE
	CmdCapability   uint8 = 0x05 // DYNVC_CAPS_VERSION
	CmdDataFirstCmp uint8 = 0x06 // DYNVC_DATA_FIRST_COMPRESSED (v3)
	CmdDataCmp      uint8 = 0x07 // DYNVC_DATA_COMPRESSED (v3)
	CmdSoftSyncReq  uint8 = 0x08 // DYNVC_SOFT_SYNC_REQUEST (v3)
	CmdSoftSyncResp uint8 = 0x09 // DYNVC_SOFT_SYNC_RESPONSE (v3)
)

// Capability versions.
const (
	CapsVersion1 uint16 = 0x0001
	CapsVersion2 uint16 = 0x0002
	CapsVersion3 uint16 = 0x0003
)

// Creation status codes (DYNVC_CREATE_RSP CreationStatus).
const (
	StatusOK         uint32 = 0x00000000
	StatusNoListener uint32 = 0xC0000001
)

// Header is the shared first byte: cmd:4 | sp:2 | cbId:2. It must be decoded
// before any length field so the width of the remaining header is known.
type Header struct {
	Cmd  uint8
	Sp   uint8
	CbID uint8
}

func (h Header) encode() uint8 {
	return (h.CbID & 0x03) | ((h.Sp & 0x03) << 2) | ((h.Cmd & 0x0F) << 4)
}

func decodeHeader(b uint8) Header {
	return Header{
		CbID: b & 0x03,
		Sp:   (b >> 2) & 0x03,
		Cmd:  (b >> 4) & 0x0F,
	}
}

// field widths encoded by cbId / sp
func fieldSize(code uint8) int {
	switch code {
	case 0:
		return 1
	case 1:
		return 2
	default:
		return 4
	}
}

func readVarField(src *core.ReadCursor, ctx string, code uint8) (uint32, error) {
	size := fieldSize(code)

	if err := core.EnsureSize(ctx, src, size); err != nil {
		return 0, err
	}

	switch size {
	case 1:
		return uint32(src.ReadU8()), nil
	case 2:
		return uint32(src.ReadU16()), nil
	default:
		return src.ReadU32(), nil
	}
}

// Encoders always pick the u32 width for channel-id and length fields.
const fullWidth uint8 = 2

// CapsPdu is a DYNVC_CAPS request from the server (MS-RDPEDYC 2.2.1.1).
type CapsPdu struct {
	Version uint16
}

func decodeCapsPdu(src *core.ReadCursor) (*CapsPdu, error) {
	if err := core.EnsureSize("DynvcCaps", src, 3); err != nil {
		return nil, err
	}

	src.ReadU8() // pad

	p := &CapsPdu{Version: src.ReadU16()}

	switch p.Version {
	case CapsVersion1, CapsVersion2:
	case CapsVersion3:
		// priority charges
		if err := core.EnsureSize("DynvcCaps", src, 8); err != nil {
			return nil, err
		}

		src.Advance(8)
	default:
		return nil, core.UnsupportedVersion("DynvcCaps", uint8(p.Version))
	}

	return p, nil
}

// CapabilitiesResponsePdu answers a capability request (MS-RDPEDYC 2.2.1.2).
type CapabilitiesResponsePdu struct {
	Version uint16
}

func (p *CapabilitiesResponsePdu) Name() string { return "DynvcCapsResponse" }

func (p *CapabilitiesResponsePdu) Size() int { return 4 }

func (p *CapabilitiesResponsePdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	dst.WriteU8(Header{Cmd: CmdCapability}.encode())
	dst.WriteU8(0) // pad
	dst.WriteU16(p.Version)

	return nil
}

// CreateRequestPdu is DYNVC_CREATE_REQ (MS-RDPEDYC 2.2.2.1).
type CreateRequestPdu struct {
	ChannelID   uint32
	ChannelName string
}

func (p *CreateRequestPdu) Name() string { return "DynvcCreateRequest" }

func (p *CreateRequestPdu) Size() int {
	return 1 + 4 + len(p.ChannelName) + 1
}

func (p *CreateRequestPdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	dst.WriteU8(Header{Cmd: CmdCreate, CbID: fullWidth}.encode())
	dst.WriteU32(p.ChannelID)
	dst.WriteSlice([]byte(p.ChannelName))
	dst.WriteU8(0)

	return nil
}

func decodeCreateRequestPdu(src *core.ReadCursor, header Header) (*CreateRequestPdu, error) {
	channelID, err := readVarField(src, "DynvcCreateRequest", header.CbID)
	if err != nil {
		return nil, err
	}

	raw := src.ReadSlice(src.Len())

	end := 0
	for end < len(raw) && raw[end] != 0 {
		end++
	}

	if end == len(raw) {
		return nil, core.InvalidField("DynvcCreateRequest", "ChannelName", "missing NUL terminator")
	}

	return &CreateRequestPdu{ChannelID: channelID, ChannelName: string(raw[:end])}, nil
}

// CreateResponsePdu is DYNVC_CREATE_RSP (MS-RDPEDYC 2.2.2.2).
type CreateResponsePdu struct {
	ChannelID      uint32
	CreationStatus uint32
}

func (p *CreateResponsePdu) Name() string { return "DynvcCreateResponse" }

func (p *CreateResponsePdu) Size() int { return 1 + 4 + 4 }

func (p *CreateResponsePdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	dst.WriteU8(Header{Cmd: CmdCreate, CbID: fullWidth}.encode())
	dst.WriteU32(p.ChannelID)
	dst.WriteU32(p.CreationStatus)

	return nil
}

// DataFirstPdu is DYNVC_DATA_FIRST (MS-RDPEDYC 2.2.3.1).
type DataFirstPdu struct {
	ChannelID   uint32
	TotalLength uint32
	Data        []byte
}

func (p *DataFirstPdu) Name() string { return "DynvcDataFirst" }

func (p *DataFirstPdu) Size() int { return 1 + 4 + 4 + len(p.Data) }

func (p *DataFirstPdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	dst.WriteU8(Header{Cmd: CmdDataFirst, Sp: fullWidth, CbID: fullWidth}.encode())
	dst.WriteU32(p.ChannelID)
	dst.WriteU32(p.TotalLength)
	dst.WriteSlice(p.Data)

	return nil
}

func decodeDataFirstPdu(src *core.ReadCursor, header Header) (*DataFirstPdu, error) {
	channelID, err := readVarField(src, "DynvcDataFirst", header.CbID)
	if err != nil {
		return nil, err
	}

	totalLength, err := readVarField(src, "DynvcDataFirst", header.Sp)
	if err != nil {
		return nil, err
	}

	return &DataFirstPdu{
		ChannelID:   channelID,
		TotalLength: totalLength,
		Data:        src.ReadSlice(src.Len()),
	}, nil
}

// DataPdu is DYNVC_DATA (MS-RDPEDYC 2.2.3.2).
type DataPdu struct {
	ChannelID uint32
	Data      []byte
}

func (p *DataPdu) Name() string { return "DynvcData" }

func (p *DataPdu) Size() int { return 1 + 4 + len(p.Data) }

func (p *DataPdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	dst.WriteU8(Header{Cmd: CmdData, CbID: fullWidth}.encode())
	dst.WriteU32(p.ChannelID)
	dst.WriteSlice(p.Data)

	return nil
}

func decodeDataPdu(src *core.ReadCursor, header Header) (*DataPdu, error) {
	channelID, err := readVarField(src, "DynvcData", header.CbID)
	if err != nil {
		return nil, err
	}

	return &DataPdu{ChannelID: channelID, Data: src.ReadSlice(src.Len())}, nil
}

// ClosePdu is DYNVC_CLOSE (MS-RDPEDYC 2.2.4).
type ClosePdu struct {
	ChannelID uint32
}

func (p *ClosePdu) Name() string { return "DynvcClose" }

func (p *ClosePdu) Size() int { return 1 + 4 }

func (p *ClosePdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	dst.WriteU8(Header{Cmd: CmdClose, CbID: fullWidth}.encode())
	dst.WriteU32(p.ChannelID)

	return nil
}

func decodeClosePdu(src *core.ReadCursor, header Header) (*ClosePdu, error) {
	channelID, err := readVarField(src, "DynvcClose", header.CbID)
	if err != nil {
		return nil, err
	}

	return &ClosePdu{ChannelID: channelID}, nil
}

// SoftSyncResponsePdu is DYNVC_SOFT_SYNC_RESPONSE (MS-RDPEDYC 2.2.5.2),
// declining the transport switch.
type SoftSyncResponsePdu struct{}

func (p *SoftSyncResponsePdu) Name() string { return "DynvcSoftSyncResponse" }

func (p *SoftSyncResponsePdu) Size() int { return 1 + 1 + 4 }

func (p *SoftSyncResponsePdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	dst.WriteU8(Header{Cmd: CmdSoftSyncResp}.encode())
	dst.WriteU8(0) // pad
	dst.WriteU32(0) // numberOfTunnels

	return nil
}

// ServerPdu is a decoded server-to-client DRDYNVC message: exactly one field
// is non-nil.
type ServerPdu struct {
	Caps      *CapsPdu
	Create    *CreateRequestPdu
	DataFirst *DataFirstPdu
	Data      *DataPdu
	Close     *ClosePdu
	SoftSync  bool
}

// DecodeServerPdu parses one server DRDYNVC message.
func DecodeServerPdu(src *core.ReadCursor) (*ServerPdu, error) {
	if err := core.EnsureSize("DynvcHeader", src, 1); err != nil {
		return nil, err
	}

	header := decodeHeader(src.ReadU8())

	pdu := &ServerPdu{}

	var err error

	switch header.Cmd {
	case CmdCapability:
		pdu.Caps, err = decodeCapsPdu(src)
	case CmdCreate:
		pdu.Create, err = decodeCreateRequestPdu(src, header)
	case CmdDataFirst:
		pdu.DataFirst, err = decodeDataFirstPdu(src, header)
	case CmdData:
		pdu.Data, err = decodeDataPdu(src, header)
	case CmdClose:
		pdu.Close, err = decodeClosePdu(src, header)
	case CmdSoftSyncReq:
		pdu.SoftSync = true
		src.Advance(src.Len())
	default:
		return nil, core.UnexpectedMessageType("DynvcHeader", header.Cmd)
	}

	if err != nil {
		return nil, err
	}

	return pdu, nil
}
