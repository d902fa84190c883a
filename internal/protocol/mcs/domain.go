// Package mcs implements the Multipoint Communication Service (T.125)
// protocol layer for RDP connections as specified in MS-RDPBCGR.
package mcs

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/encoding"
)

// Domain MCS PDU choice values (T.125 DomainMCSPDU).
const (
	choiceErectDomainRequest          uint8 = 1
	choiceDisconnectProviderUltimatum uint8 = 8
	choiceAttachUserRequest           uint8 = 10
	choiceAttachUserConfirm           uint8 = 11
	choiceChannelJoinRequest          uint8 = 14
	choiceChannelJoinConfirm          uint8 = 15
	choiceSendDataRequest             uint8 = 25
	choiceSendDataIndication          uint8 = 26
)

// base for MCS user ids in PER encoding
const userIDBase uint16 = 1001

// Result codes for confirm PDUs.
const (
	RTSuccessful uint8 = iota
	RTDomainMerging
	RTDomainNotHierarchical
	RTNoSuchChannel
	RTNoSuchDomain
	RTNoSuchUser
	RTNotAdmitted
	RTOtherUserID
	RTParametersUnacceptable
	RTTokenNotAvailable
	RTTokenNotPossessed
	RTTooManyChannels
	RTTooManyTokens
	RTTooManyUsers
	RTUnspecifiedFailure
	RTUserRejected
)

// Disconnect reasons.
const (
	RNDomainDisconnected uint8 = iota
	RNProviderInitiated
	RNTokenPurged
	RNUserRequested
	RNChannelPurged
)

// ErectDomainPdu is the MCS Erect Domain Request.
type ErectDomainPdu struct {
	SubHeight   int
	SubInterval int
}

func (p *ErectDomainPdu) Name() string { return "ErectDomainRequest" }

func (p *ErectDomainPdu) Size() int {
	return 1 + perSizeInteger(p.SubHeight) + perSizeInteger(p.SubInterval)
}

func (p *ErectDomainPdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	encoding.PerWriteChoice(choiceErectDomainRequest<<2, dst)
	encoding.PerWriteInteger(p.SubHeight, dst)
	encoding.PerWriteInteger(p.SubInterval, dst)

	return nil
}

func perSizeInteger(v int) int {
	switch {
	case v <= 0xFF:
		return 2
	case v <= 0xFFFF:
		return 3
	default:
		return 5
	}
}

// AttachUserRequest is the MCS Attach User Request.
type AttachUserRequest struct{}

func (p *AttachUserRequest) Name() string { return "AttachUserRequest" }

func (p *AttachUserRequest) Size() int { return 1 }

func (p *AttachUserRequest) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, 1); err != nil {
		return err
	}

	encoding.PerWriteChoice(choiceAttachUserRequest<<2, dst)

	return nil
}

// AttachUserConfirm is the MCS Attach User Confirm carrying the assigned
// user channel id.
type AttachUserConfirm struct {
	Result      uint8
	InitiatorID uint16
}

func (p *AttachUserConfirm) Name() string { return "AttachUserConfirm" }

func (p *AttachUserConfirm) Size() int { return 4 }

func (p *AttachUserConfirm) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	// choice with the initiator-present option bit set
	encoding.PerWriteChoice(choiceAttachUserConfirm<<2|0x02, dst)
	encoding.PerWriteEnumerates(p.Result, dst)
	encoding.PerWriteInteger16(p.InitiatorID, userIDBase, dst)

	return nil
}

// ChannelJoinRequest is the MCS Channel Join Request.
type ChannelJoinRequest struct {
	InitiatorID uint16
	ChannelID   uint16
}

func (p *ChannelJoinRequest) Name() string { return "ChannelJoinRequest" }

func (p *ChannelJoinRequest) Size() int { return 5 }

func (p *ChannelJoinRequest) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	encoding.PerWriteChoice(choiceChannelJoinRequest<<2, dst)
	encoding.PerWriteInteger16(p.InitiatorID, userIDBase, dst)
	encoding.PerWriteInteger16(p.ChannelID, 0, dst)

	return nil
}

// ChannelJoinConfirm is the MCS Channel Join Confirm.
type ChannelJoinConfirm struct {
	Result             uint8
	InitiatorID        uint16
	RequestedChannelID uint16
	ChannelID          uint16
}

func (p *ChannelJoinConfirm) Name() string { return "ChannelJoinConfirm" }

func (p *ChannelJoinConfirm) Size() int { return 8 }

func (p *ChannelJoinConfirm) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	// choice with the channel-id option bit set
	encoding.PerWriteChoice(choiceChannelJoinConfirm<<2|0x02, dst)
	encoding.PerWriteEnumerates(p.Result, dst)
	encoding.PerWriteInteger16(p.InitiatorID, userIDBase, dst)
	encoding.PerWriteInteger16(p.RequestedChannelID, 0, dst)
	encoding.PerWriteInteger16(p.ChannelID, 0, dst)

	return nil
}

// DisconnectProviderUltimatum tears the domain down.
type DisconnectProviderUltimatum struct {
	Reason uint8
}

func (p *DisconnectProviderUltimatum) Name() string { return "DisconnectProviderUltimatum" }

func (p *DisconnectProviderUltimatum) Size() int { return 2 }

func (p *DisconnectProviderUltimatum) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	// the 3-bit reason straddles the choice octet
	encoding.PerWriteChoice(choiceDisconnectProviderUltimatum<<2|(p.Reason>>1), dst)
	dst.WriteU8((p.Reason & 0x01) << 7)

	return nil
}

// SendDataRequest is a client data-domain PDU addressed to one channel.
type SendDataRequest struct {
	InitiatorID uint16
	ChannelID   uint16
	UserData    []byte
}

func (p *SendDataRequest) Name() string { return "SendDataRequest" }

func (p *SendDataRequest) Size() int {
	return 1 + 2 + 2 + 1 + int(encoding.PerSizeLength(uint16(len(p.UserData)))) + len(p.UserData)
}

func (p *SendDataRequest) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	encoding.PerWriteChoice(choiceSendDataRequest<<2, dst)
	encoding.PerWriteInteger16(p.InitiatorID, userIDBase, dst)
	encoding.PerWriteInteger16(p.ChannelID, 0, dst)
	dst.WriteU8(0x70) // dataPriority high, segmentation begin+end
	encoding.PerWriteLength(uint16(len(p.UserData)), dst)
	dst.WriteSlice(p.UserData)

	return nil
}

// SendDataIndication is a server data-domain PDU addressed to one channel.
type SendDataIndication struct {
	InitiatorID uint16
	ChannelID   uint16
	UserData    []byte
}

func (p *SendDataIndication) Name() string { return "SendDataIndication" }

func (p *SendDataIndication) Size() int {
	return 1 + 2 + 2 + 1 + int(encoding.PerSizeLength(uint16(len(p.UserData)))) + len(p.UserData)
}

func (p *SendDataIndication) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	encoding.PerWriteChoice(choiceSendDataIndication<<2, dst)
	encoding.PerWriteInteger16(p.InitiatorID, userIDBase, dst)
	encoding.PerWriteInteger16(p.ChannelID, 0, dst)
	dst.WriteU8(0x70)
	encoding.PerWriteLength(uint16(len(p.UserData)), dst)
	dst.WriteSlice(p.UserData)

	return nil
}

// Message is a decoded domain MCS PDU: exactly one field is non-nil.
type Message struct {
	ErectDomain        *ErectDomainPdu
	AttachUserRequest  *AttachUserRequest
	AttachUserConfirm  *AttachUserConfirm
	ChannelJoinRequest *ChannelJoinRequest
	ChannelJoinConfirm *ChannelJoinConfirm
	SendDataRequest    *SendDataRequest
	SendDataIndication *SendDataIndication
	Disconnect         *DisconnectProviderUltimatum
}

// DecodeMessage decodes a domain MCS PDU from the cursor.
func DecodeMessage(src *core.ReadCursor) (*Message, error) {
	choice, err := encoding.PerReadChoice(src)
	if err != nil {
		return nil, err
	}

	msg := &Message{}

	switch choice >> 2 {
	case choiceErectDomainRequest:
		pdu := &ErectDomainPdu{}

		if pdu.SubHeight, err = encoding.PerReadInteger(src); err != nil {
			return nil, err
		}

		if pdu.SubInterval, err = encoding.PerReadInteger(src); err != nil {
			return nil, err
		}

		msg.ErectDomain = pdu
	case choiceAttachUserRequest:
		msg.AttachUserRequest = &AttachUserRequest{}
	case choiceAttachUserConfirm:
		pdu := &AttachUserConfirm{}

		if pdu.Result, err = encoding.PerReadEnumerates(src); err != nil {
			return nil, err
		}

		if choice&0x02 != 0 {
			if pdu.InitiatorID, err = encoding.PerReadInteger16(userIDBase, src); err != nil {
				return nil, err
			}
		}

		msg.AttachUserConfirm = pdu
	case choiceChannelJoinRequest:
		pdu := &ChannelJoinRequest{}

		if pdu.InitiatorID, err = encoding.PerReadInteger16(userIDBase, src); err != nil {
			return nil, err
		}

		if pdu.ChannelID, err = encoding.PerReadInteger16(0, src); err != nil {
			return nil, err
		}

		msg.ChannelJoinRequest = pdu
	case choiceChannelJoinConfirm:
		pdu := &ChannelJoinConfirm{}

		if pdu.Result, err = encoding.PerReadEnumerates(src); err != nil {
			return nil, err
		}

		if pdu.InitiatorID, err = encoding.PerReadInteger16(userIDBase, src); err != nil {
			return nil, err
		}

		if pdu.RequestedChannelID, err = encoding.PerReadInteger16(0, src); err != nil {
			return nil, err
		}

		if choice&0x02 != 0 {
			if pdu.ChannelID, err = encoding.PerReadInteger16(0, src); err != nil {
				return nil, err
			}
		}

		msg.ChannelJoinConfirm = pdu
	case choiceSendDataRequest:
		pdu := &SendDataRequest{}

		if pdu.InitiatorID, pdu.ChannelID, pdu.UserData, err = decodeSendData(src); err != nil {
			return nil, err
		}

		msg.SendDataRequest = pdu
	case choiceSendDataIndication:
		pdu := &SendDataIndication{}

		if pdu.InitiatorID, pdu.ChannelID, pdu.UserData, err = decodeSendData(src); err != nil {
			return nil, err
		}

		msg.SendDataIndication = pdu
	case choiceDisconnectProviderUltimatum:
		pdu := &DisconnectProviderUltimatum{}

		if err = core.EnsureSize(pdu.Name(), src, 1); err != nil {
			return nil, err
		}

		pdu.Reason = (choice&0x03)<<1 | src.ReadU8()>>7

		msg.Disconnect = pdu
	default:
		return nil, core.UnexpectedMessageType("McsMessage", choice)
	}

	return msg, nil
}

func decodeSendData(src *core.ReadCursor) (initiator, channel uint16, data []byte, err error) {
	if initiator, err = encoding.PerReadInteger16(userIDBase, src); err != nil {
		return 0, 0, nil, err
	}

	if channel, err = encoding.PerReadInteger16(0, src); err != nil {
		return 0, 0, nil, err
	}

	if err = core.EnsureSize("SendData", src, 1); err != nil {
		return 0, 0, nil, err
	}

	src.ReadU8() // dataPriority + segmentation

	length, err := encoding.PerReadLength(src)
	if err != nil {
		return 0, 0, nil, err
	}

	if err = core.EnsureSize("SendData", src, length); err != nil {
		return 0, 0, nil, err
	}

	return initiator, channel, src.ReadSlice(length), nil
}
