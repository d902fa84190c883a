package x224

import (
	"strings"

	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
)

// NegotiationType represents the type field in RDP negotiation structures
// (MS-RDPBCGR 2.2.1.1).
type NegotiationType uint8

const (
	// NegotiationTypeRequest TYPE_RDP_NEG_REQ
	NegotiationTypeRequest NegotiationType = 0x01

	// NegotiationTypeResponse TYPE_RDP_NEG_RSP
	NegotiationTypeResponse NegotiationType = 0x02

	// NegotiationTypeFailure TYPE_RDP_NEG_FAILURE
	NegotiationTypeFailure NegotiationType = 0x03
)

// NegotiationProtocol is the security-protocol bitmask exchanged during
// connection initiation.
type NegotiationProtocol uint32

const (
	// ProtocolRDP PROTOCOL_RDP (standard RDP security)
	ProtocolRDP NegotiationProtocol = 0x00000000

	// ProtocolSSL PROTOCOL_SSL
	ProtocolSSL NegotiationProtocol = 0x00000001

	// ProtocolHybrid PROTOCOL_HYBRID (CredSSP)
	ProtocolHybrid NegotiationProtocol = 0x00000002

	// ProtocolRDSTLS PROTOCOL_RDSTLS
	ProtocolRDSTLS NegotiationProtocol = 0x00000004

	// ProtocolHybridEx PROTOCOL_HYBRID_EX (CredSSP + Early User Auth)
	ProtocolHybridEx NegotiationProtocol = 0x00000008
)

// IsRDP returns true if the protocol is standard RDP security.
func (p NegotiationProtocol) IsRDP() bool {
	return p == ProtocolRDP
}

// IsSSL returns true if the protocol is TLS security.
func (p NegotiationProtocol) IsSSL() bool {
	return p == ProtocolSSL
}

// IsHybrid returns true if the protocol is CredSSP.
func (p NegotiationProtocol) IsHybrid() bool {
	return p == ProtocolHybrid
}

// IsHybridEx returns true if the protocol is CredSSP with Early User Auth.
func (p NegotiationProtocol) IsHybridEx() bool {
	return p == ProtocolHybridEx
}

// RequiresSecurityUpgrade returns true if the protocol needs a TLS handshake
// before the connection sequence continues.
func (p NegotiationProtocol) RequiresSecurityUpgrade() bool {
	return p.IsSSL() || p.IsHybrid() || p.IsHybridEx()
}

// RequiresCredssp returns true if the protocol carries a CredSSP phase.
func (p NegotiationProtocol) RequiresCredssp() bool {
	return p.IsHybrid() || p.IsHybridEx()
}

// NegotiationRequestFlag holds RDP_NEG_REQ flags.
type NegotiationRequestFlag uint8

const (
	// NegReqFlagRestrictedAdminModeRequired RESTRICTED_ADMIN_MODE_REQUIRED
	NegReqFlagRestrictedAdminModeRequired NegotiationRequestFlag = 0x01

	// NegReqFlagRedirectedAuthenticationModeRequired REDIRECTED_AUTHENTICATION_MODE_REQUIRED
	NegReqFlagRedirectedAuthenticationModeRequired NegotiationRequestFlag = 0x02

	// NegReqFlagCorrelationInfoPresent CORRELATION_INFO_PRESENT
	NegReqFlagCorrelationInfoPresent NegotiationRequestFlag = 0x08
)

// NegotiationResponseFlag holds RDP_NEG_RSP flags.
type NegotiationResponseFlag uint8

const (
	// NegRespFlagECDBSupported EXTENDED_CLIENT_DATA_SUPPORTED
	NegRespFlagECDBSupported NegotiationResponseFlag = 0x01

	// NegRespFlagGFXSupported DYNVC_GFX_PROTOCOL_SUPPORTED
	NegRespFlagGFXSupported NegotiationResponseFlag = 0x02

	// NegRespFlagAdminModeSupported RESTRICTED_ADMIN_MODE_SUPPORTED
	NegRespFlagAdminModeSupported NegotiationResponseFlag = 0x08

	// NegRespFlagAuthModeSupported REDIRECTED_AUTHENTICATION_MODE_SUPPORTED
	NegRespFlagAuthModeSupported NegotiationResponseFlag = 0x10
)

// NegotiationFailureCode RDP_NEG_FAILURE failureCode.
type NegotiationFailureCode uint32

const (
	// FailureCodeSSLRequired SSL_REQUIRED_BY_SERVER
	FailureCodeSSLRequired NegotiationFailureCode = 0x00000001

	// FailureCodeSSLNotAllowed SSL_NOT_ALLOWED_BY_SERVER
	FailureCodeSSLNotAllowed NegotiationFailureCode = 0x00000002

	// FailureCodeSSLCertNotOnServer SSL_CERT_NOT_ON_SERVER
	FailureCodeSSLCertNotOnServer NegotiationFailureCode = 0x00000003

	// FailureCodeInconsistentFlags INCONSISTENT_FLAGS
	FailureCodeInconsistentFlags NegotiationFailureCode = 0x00000004

	// FailureCodeHybridRequired HYBRID_REQUIRED_BY_SERVER
	FailureCodeHybridRequired NegotiationFailureCode = 0x00000005

	// FailureCodeSSLWithUserAuthRequired SSL_WITH_USER_AUTH_REQUIRED_BY_SERVER
	FailureCodeSSLWithUserAuthRequired NegotiationFailureCode = 0x00000006
)

var failureCodeNames = map[NegotiationFailureCode]string{
	FailureCodeSSLRequired:             "SSL_REQUIRED_BY_SERVER",
	FailureCodeSSLNotAllowed:           "SSL_NOT_ALLOWED_BY_SERVER",
	FailureCodeSSLCertNotOnServer:      "SSL_CERT_NOT_ON_SERVER",
	FailureCodeInconsistentFlags:       "INCONSISTENT_FLAGS",
	FailureCodeHybridRequired:          "HYBRID_REQUIRED_BY_SERVER",
	FailureCodeSSLWithUserAuthRequired: "SSL_WITH_USER_AUTH_REQUIRED_BY_SERVER",
}

// String returns the protocol constant name of the failure code.
func (c NegotiationFailureCode) String() string {
	if name, ok := failureCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

const (
	negotiationStructLength = 8
	cookiePrefix            = "Cookie: mstshash="
	crlf                    = "\r\n"
)

// ConnectionRequest is the client X.224 Connection Request PDU carrying an
// optional routing token or cookie and the RDP Negotiation Request
// (MS-RDPBCGR 2.2.1.1). Encode produces the full TPKT + CR TPDU frame.
type ConnectionRequest struct {
	RoutingToken       string
	Cookie             string
	Flags              NegotiationRequestFlag
	RequestedProtocols NegotiationProtocol
}

func (r *ConnectionRequest) Name() string { return "ConnectionRequest" }

func (r *ConnectionRequest) variablePartLength() int {
	n := 0
	if r.RoutingToken != "" {
		n += len(strings.Trim(r.RoutingToken, crlf)) + len(crlf)
	} else if r.Cookie != "" {
		n += len(cookiePrefix) + len(strings.Trim(r.Cookie, crlf)) + len(crlf)
	}

	return n + negotiationStructLength
}

func (r *ConnectionRequest) Size() int {
	return tpkt.HeaderLength + fixedHeaderLength + r.variablePartLength()
}

func (r *ConnectionRequest) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(r.Name(), dst, r.Size()); err != nil {
		return err
	}

	variable := r.variablePartLength()

	if err := tpkt.NewHeader(fixedHeaderLength + variable).Encode(dst); err != nil {
		return err
	}

	dst.WriteU8(uint8(fixedHeaderLength - 1 + variable)) // LI
	dst.WriteU8(CodeConnectionRequest)
	dst.WriteU16BE(0) // DST-REF
	dst.WriteU16BE(0) // SRC-REF
	dst.WriteU8(0)    // class 0

	if r.RoutingToken != "" {
		dst.WriteSlice([]byte(strings.Trim(r.RoutingToken, crlf) + crlf))
	} else if r.Cookie != "" {
		dst.WriteSlice([]byte(cookiePrefix + strings.Trim(r.Cookie, crlf) + crlf))
	}

	dst.WriteU8(uint8(NegotiationTypeRequest))
	dst.WriteU8(uint8(r.Flags))
	dst.WriteU16(negotiationStructLength)
	dst.WriteU32(uint32(r.RequestedProtocols))

	return nil
}

// DecodeConnectionRequest parses a full TPKT + CR TPDU frame (acceptor side).
func DecodeConnectionRequest(src *core.ReadCursor) (*ConnectionRequest, error) {
	tpktHeader, err := tpkt.DecodeHeader(src)
	if err != nil {
		return nil, err
	}

	tpdu, err := DecodeTpduHeader(src)
	if err != nil {
		return nil, err
	}

	if tpdu.Code != CodeConnectionRequest {
		return nil, core.UnexpectedMessageType("ConnectionRequest", tpdu.Code)
	}

	if int(tpdu.LI)+tpkt.HeaderLength+1 > int(tpktHeader.Length) {
		return nil, core.InvalidField("ConnectionRequest", "LI", "length indicator exceeds the TPKT length")
	}

	if err = core.EnsureSize("ConnectionRequest", src, 5); err != nil {
		return nil, err
	}

	src.ReadU16BE() // DST-REF
	src.ReadU16BE() // SRC-REF
	src.ReadU8()    // class

	req := &ConnectionRequest{}

	variable := int(tpdu.LI) - (fixedHeaderLength - 1)
	if err = core.EnsureSize("ConnectionRequest", src, variable); err != nil {
		return nil, err
	}

	rest := src.ReadSlice(variable)

	// Optional routing token or cookie line terminated by CR+LF.
	if idx := strings.Index(string(rest), crlf); idx >= 0 {
		line := string(rest[:idx])
		if strings.HasPrefix(line, cookiePrefix) {
			req.Cookie = strings.TrimPrefix(line, cookiePrefix)
		} else {
			req.RoutingToken = line
		}
		rest = rest[idx+len(crlf):]
	}

	if len(rest) == 0 {
		return req, nil
	}

	if len(rest) < negotiationStructLength {
		return nil, core.NotEnoughBytes("ConnectionRequest", len(rest), negotiationStructLength)
	}

	if NegotiationType(rest[0]) != NegotiationTypeRequest {
		return nil, core.UnexpectedMessageType("ConnectionRequest", rest[0])
	}

	req.Flags = NegotiationRequestFlag(rest[1])
	req.RequestedProtocols = NegotiationProtocol(uint32(rest[4]) | uint32(rest[5])<<8 | uint32(rest[6])<<16 | uint32(rest[7])<<24)

	return req, nil
}

// ConnectionConfirm is the server X.224 Connection Confirm PDU carrying the
// RDP Negotiation Response or Failure (MS-RDPBCGR 2.2.1.2). Encode produces
// the full TPKT + CC TPDU frame.
type ConnectionConfirm struct {
	Type  NegotiationType
	Flags NegotiationResponseFlag
	data  uint32
}

// NewConnectionConfirmResponse builds a CC selecting a protocol.
func NewConnectionConfirmResponse(flags NegotiationResponseFlag, protocol NegotiationProtocol) *ConnectionConfirm {
	return &ConnectionConfirm{Type: NegotiationTypeResponse, Flags: flags, data: uint32(protocol)}
}

// NewConnectionConfirmFailure builds a CC refusing the connection.
func NewConnectionConfirmFailure(code NegotiationFailureCode) *ConnectionConfirm {
	return &ConnectionConfirm{Type: NegotiationTypeFailure, data: uint32(code)}
}

// SelectedProtocol returns the protocol picked by the server.
func (c *ConnectionConfirm) SelectedProtocol() NegotiationProtocol {
	return NegotiationProtocol(c.data)
}

// FailureCode returns the failure code carried by a failure response.
func (c *ConnectionConfirm) FailureCode() NegotiationFailureCode {
	return NegotiationFailureCode(c.data)
}

func (c *ConnectionConfirm) Name() string { return "ConnectionConfirm" }

func (c *ConnectionConfirm) Size() int {
	return tpkt.HeaderLength + fixedHeaderLength + negotiationStructLength
}

func (c *ConnectionConfirm) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(c.Name(), dst, c.Size()); err != nil {
		return err
	}

	if err := tpkt.NewHeader(fixedHeaderLength + negotiationStructLength).Encode(dst); err != nil {
		return err
	}

	dst.WriteU8(uint8(fixedHeaderLength - 1 + negotiationStructLength)) // LI
	dst.WriteU8(CodeConnectionConfirm)
	dst.WriteU16BE(0) // DST-REF
	dst.WriteU16BE(0) // SRC-REF
	dst.WriteU8(0)    // class 0

	dst.WriteU8(uint8(c.Type))
	dst.WriteU8(uint8(c.Flags))
	dst.WriteU16(negotiationStructLength)
	dst.WriteU32(c.data)

	return nil
}

// DecodeConnectionConfirm parses a full TPKT + CC TPDU frame (client side).
func DecodeConnectionConfirm(src *core.ReadCursor) (*ConnectionConfirm, error) {
	tpktHeader, err := tpkt.DecodeHeader(src)
	if err != nil {
		return nil, err
	}

	tpdu, err := DecodeTpduHeader(src)
	if err != nil {
		return nil, err
	}

	if tpdu.Code != CodeConnectionConfirm {
		return nil, core.UnexpectedMessageType("ConnectionConfirm", tpdu.Code)
	}

	if int(tpdu.LI)+tpkt.HeaderLength+1 > int(tpktHeader.Length) {
		return nil, core.InvalidField("ConnectionConfirm", "LI", "length indicator exceeds the TPKT length")
	}

	if err = core.EnsureSize("ConnectionConfirm", src, 5+negotiationStructLength); err != nil {
		return nil, err
	}

	src.ReadU16BE() // DST-REF
	src.ReadU16BE() // SRC-REF
	src.ReadU8()    // class

	confirm := &ConnectionConfirm{}

	confirm.Type = NegotiationType(src.ReadU8())
	confirm.Flags = NegotiationResponseFlag(src.ReadU8())
	src.ReadU16() // length, always 8
	confirm.data = src.ReadU32()

	return confirm, nil
}
