package pdu

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// License preamble message types (MS-RDPELE 2.2.2).
const (
	LicenseTypeRequest                   uint8 = 0x01
	LicenseTypePlatformChallenge         uint8 = 0x02
	LicenseTypeNewLicense                uint8 = 0x03
	LicenseTypeUpgradeLicense            uint8 = 0x04
	LicenseTypeLicenseInfo               uint8 = 0x12
	LicenseTypeNewLicenseRequest         uint8 = 0x13
	LicenseTypePlatformChallengeResponse uint8 = 0x15
	LicenseTypeErrorAlert                uint8 = 0xFF
)

// License error codes (LICENSE_ERROR_MESSAGE dwErrorCode).
const (
	LicenseStatusValidClient uint32 = 0x00000007
)

// License state transitions (LICENSE_ERROR_MESSAGE dwStateTransition).
const (
	LicenseStateTotalAbort    uint32 = 0x00000001
	LicenseStateNoTransition  uint32 = 0x00000002
	LicenseStateResetPhase    uint32 = 0x00000003
	LicenseStateResendLastPdu uint32 = 0x00000004
)

const (
	licensePreambleLength      = 4
	licensePreambleVersion     = 0x03 // PREAMBLE_VERSION_3_0
	licensePreambleVersionMask = 0x0F
)

// LicensePreamble is the LICENSE_PREAMBLE common to every licensing PDU.
type LicensePreamble struct {
	MsgType uint8
	Flags   uint8
	MsgSize uint16
}

// LicenseMessage is a decoded licensing PDU carried under SEC_LICENSE_PKT.
type LicenseMessage struct {
	Preamble LicensePreamble

	// ErrorAlert fields, valid when Preamble.MsgType == LicenseTypeErrorAlert.
	ErrorCode       uint32
	StateTransition uint32

	// Body is the raw message after the preamble for other variants.
	Body []byte
}

// IsInformational reports whether an error alert advances the connection
// sequence rather than failing it.
func (m *LicenseMessage) IsInformational() bool {
	return m.Preamble.MsgType == LicenseTypeErrorAlert &&
		m.ErrorCode == LicenseStatusValidClient &&
		m.StateTransition == LicenseStateNoTransition
}

// DecodeLicenseMessage parses a licensing PDU including its basic security
// header (client side).
func DecodeLicenseMessage(src *core.ReadCursor) (*LicenseMessage, error) {
	flags, err := decodeBasicSecurityHeader(src)
	if err != nil {
		return nil, err
	}

	if flags&SecLicensePkt == 0 {
		return nil, core.InvalidField("LicensePdu", "flags", "missing SEC_LICENSE_PKT")
	}

	if err = core.EnsureSize("LicensePdu", src, licensePreambleLength); err != nil {
		return nil, err
	}

	msg := &LicenseMessage{}

	msg.Preamble.MsgType = src.ReadU8()
	msg.Preamble.Flags = src.ReadU8()
	msg.Preamble.MsgSize = src.ReadU16()

	switch msg.Preamble.MsgType {
	case LicenseTypeErrorAlert:
		if err = core.EnsureSize("LicenseErrorAlert", src, 8); err != nil {
			return nil, err
		}

		msg.ErrorCode = src.ReadU32()
		msg.StateTransition = src.ReadU32()
		// trailing error blob ignored
		src.Advance(src.Len())
	case LicenseTypeRequest, LicenseTypePlatformChallenge,
		LicenseTypeNewLicense, LicenseTypeUpgradeLicense:
		msg.Body = src.ReadSlice(src.Len())
	default:
		return nil, core.UnexpectedMessageType("LicensePdu", msg.Preamble.MsgType)
	}

	return msg, nil
}

// ServerLicenseError is the licensing PDU an acceptor emits to approve the
// client without a license exchange: ERROR_ALERT with STATUS_VALID_CLIENT.
type ServerLicenseError struct{}

func (p *ServerLicenseError) Name() string { return "ServerLicenseError" }

func (p *ServerLicenseError) Size() int {
	return basicSecurityHeaderLength + licensePreambleLength + 8 + 4
}

func (p *ServerLicenseError) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	encodeBasicSecurityHeader(dst, SecLicensePkt)

	dst.WriteU8(LicenseTypeErrorAlert)
	dst.WriteU8(licensePreambleVersion)
	dst.WriteU16(uint16(licensePreambleLength + 8 + 4))

	dst.WriteU32(LicenseStatusValidClient)
	dst.WriteU32(LicenseStateNoTransition)
	dst.WriteU16(0x0004) // wBlobType: BB_ERROR_BLOB
	dst.WriteU16(0)      // wBlobLen

	return nil
}
