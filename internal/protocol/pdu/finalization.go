package pdu

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// ControlAction represents the action field in a Control PDU
// (MS-RDPBCGR 2.2.1.15).
type ControlAction uint16

const (
	// ControlActionRequestControl CTRLACTION_REQUEST_CONTROL
	ControlActionRequestControl ControlAction = 0x0001

	// ControlActionGrantedControl CTRLACTION_GRANTED_CONTROL
	ControlActionGrantedControl ControlAction = 0x0002

	// ControlActionDetach CTRLACTION_DETACH
	ControlActionDetach ControlAction = 0x0003

	// ControlActionCooperate CTRLACTION_COOPERATE
	ControlActionCooperate ControlAction = 0x0004
)

// ServerChannelID is the MCS id the server answers share PDUs from.
const ServerChannelID uint16 = 0x03EA

// SynchronizePdu is the TS_SYNCHRONIZE_PDU (MS-RDPBCGR 2.2.1.14).
type SynchronizePdu struct {
	ShareID    uint32
	PDUSource  uint16
	TargetUser uint16
}

func (p *SynchronizePdu) Name() string { return "Synchronize" }

func (p *SynchronizePdu) Size() int { return shareDataHeaderLength + 4 }

func (p *SynchronizePdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	header := newShareDataHeader(p.ShareID, p.PDUSource, Type2Synchronize)
	header.ShareControlHeader.TotalLength = uint16(p.Size())
	header.UncompressedLength = uint16(p.Size() - shareControlHeaderLength - 8)
	header.encode(dst)

	dst.WriteU16(1) // messageType: SYNCMSGTYPE_SYNC
	dst.WriteU16(p.TargetUser)

	return nil
}

// ControlPdu is the TS_CONTROL_PDU (MS-RDPBCGR 2.2.1.15).
type ControlPdu struct {
	ShareID   uint32
	PDUSource uint16
	Action    ControlAction
	GrantID   uint16
	ControlID uint32
}

func (p *ControlPdu) Name() string { return "Control" }

func (p *ControlPdu) Size() int { return shareDataHeaderLength + 8 }

func (p *ControlPdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	header := newShareDataHeader(p.ShareID, p.PDUSource, Type2Control)
	header.ShareControlHeader.TotalLength = uint16(p.Size())
	header.UncompressedLength = uint16(p.Size() - shareControlHeaderLength - 8)
	header.encode(dst)

	dst.WriteU16(uint16(p.Action))
	dst.WriteU16(p.GrantID)
	dst.WriteU32(p.ControlID)

	return nil
}

// FontListPdu is the TS_FONT_LIST_PDU (MS-RDPBCGR 2.2.1.18).
type FontListPdu struct {
	ShareID   uint32
	PDUSource uint16
}

func (p *FontListPdu) Name() string { return "FontList" }

func (p *FontListPdu) Size() int { return shareDataHeaderLength + 8 }

func (p *FontListPdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	header := newShareDataHeader(p.ShareID, p.PDUSource, Type2Fontlist)
	header.ShareControlHeader.TotalLength = uint16(p.Size())
	header.UncompressedLength = uint16(p.Size() - shareControlHeaderLength - 8)
	header.encode(dst)

	dst.WriteU16(0)      // numberFonts
	dst.WriteU16(0)      // totalNumFonts
	dst.WriteU16(0x0003) // listFlags: FONTLIST_FIRST | FONTLIST_LAST
	dst.WriteU16(0x0032) // entrySize

	return nil
}

// FontMapPdu is the TS_FONT_MAP_PDU (MS-RDPBCGR 2.2.1.22).
type FontMapPdu struct {
	ShareID   uint32
	PDUSource uint16
}

func (p *FontMapPdu) Name() string { return "FontMap" }

func (p *FontMapPdu) Size() int { return shareDataHeaderLength + 8 }

func (p *FontMapPdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	header := newShareDataHeader(p.ShareID, p.PDUSource, Type2Fontmap)
	header.ShareControlHeader.TotalLength = uint16(p.Size())
	header.UncompressedLength = uint16(p.Size() - shareControlHeaderLength - 8)
	header.encode(dst)

	dst.WriteU16(0)      // numberEntries
	dst.WriteU16(0)      // totalNumEntries
	dst.WriteU16(0x0003) // mapFlags: FONTMAP_FIRST | FONTMAP_LAST
	dst.WriteU16(0x0004) // entrySize

	return nil
}

// ShareDataMessage is a decoded share data PDU: the header plus the fields of
// the variant the finalization and session loops care about.
type ShareDataMessage struct {
	Header ShareDataHeader

	// Control fields, valid when Header.PDUType2 == Type2Control.
	ControlAction ControlAction

	// ErrorInfo field, valid when Header.PDUType2 == Type2ErrorInfo.
	ErrorInfo uint32

	// Raw payload after the share data header.
	Payload []byte
}

// ShareMessage is a decoded share control PDU.
type ShareMessage struct {
	Control ShareControlHeader

	// Data is set when Control.PDUType == TypeData.
	Data *ShareDataMessage

	// DemandActive is set when Control.PDUType == TypeDemandActive.
	DemandActive *DemandActive

	// DeactivateAll is set when Control.PDUType == TypeDeactivateAll.
	DeactivateAll bool
}

// DecodeShareMessage parses a share control PDU from the I/O channel.
func DecodeShareMessage(src *core.ReadCursor) (*ShareMessage, error) {
	control, err := decodeShareControlHeader(src)
	if err != nil {
		return nil, err
	}

	msg := &ShareMessage{Control: control}

	switch control.PDUType {
	case TypeData:
		header, err := decodeShareDataHeader(src, control)
		if err != nil {
			return nil, err
		}

		data := &ShareDataMessage{Header: header, Payload: src.ReadSlice(src.Len())}

		body := core.NewReadCursor(data.Payload)

		switch header.PDUType2 {
		case Type2Control:
			if err := core.EnsureSize("Control", body, 8); err != nil {
				return nil, err
			}

			data.ControlAction = ControlAction(body.ReadU16())
		case Type2ErrorInfo:
			if err := core.EnsureSize("SetErrorInfo", body, 4); err != nil {
				return nil, err
			}

			data.ErrorInfo = body.ReadU32()
		}

		msg.Data = data
	case TypeDemandActive:
		demand, err := decodeDemandActive(src, control)
		if err != nil {
			return nil, err
		}

		msg.DemandActive = demand
	case TypeConfirmActive:
		confirm, err := decodeConfirmActiveBody(src)
		if err != nil {
			return nil, err
		}

		msg.DemandActive = confirm
	case TypeDeactivateAll:
		msg.DeactivateAll = true
	default:
		return nil, core.UnexpectedMessageType("ShareControlHeader", uint8(control.PDUType))
	}

	return msg, nil
}
