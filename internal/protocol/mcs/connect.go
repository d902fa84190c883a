package mcs

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/encoding"
)

// BER application tags for the connect PDUs (T.125 11.1, 11.2).
const (
	tagConnectInitial  uint8 = 101
	tagConnectResponse uint8 = 102
)

// DomainParameters negotiate the shape of the MCS domain.
type DomainParameters struct {
	MaxChannelIDs   int
	MaxUserIDs      int
	MaxTokenIDs     int
	NumPriorities   int
	MinThroughput   int
	MaxHeight       int
	MaxMCSPDUSize   int
	ProtocolVersion int
}

// DefaultTargetParameters are the target domain parameters every RDP client
// sends.
func DefaultTargetParameters() DomainParameters {
	return DomainParameters{
		MaxChannelIDs:   34,
		MaxUserIDs:      2,
		MaxTokenIDs:     0,
		NumPriorities:   1,
		MinThroughput:   0,
		MaxHeight:       1,
		MaxMCSPDUSize:   65535,
		ProtocolVersion: 2,
	}
}

// DefaultMinimumParameters are the minimum acceptable domain parameters.
func DefaultMinimumParameters() DomainParameters {
	return DomainParameters{
		MaxChannelIDs:   1,
		MaxUserIDs:      1,
		MaxTokenIDs:     1,
		NumPriorities:   1,
		MinThroughput:   0,
		MaxHeight:       1,
		MaxMCSPDUSize:   1056,
		ProtocolVersion: 2,
	}
}

// DefaultMaximumParameters are the maximum acceptable domain parameters.
func DefaultMaximumParameters() DomainParameters {
	return DomainParameters{
		MaxChannelIDs:   65535,
		MaxUserIDs:      64535,
		MaxTokenIDs:     65535,
		NumPriorities:   1,
		MinThroughput:   0,
		MaxHeight:       1,
		MaxMCSPDUSize:   65535,
		ProtocolVersion: 2,
	}
}

func (p DomainParameters) contentSize() int {
	return encoding.BerSizeInteger(p.MaxChannelIDs) +
		encoding.BerSizeInteger(p.MaxUserIDs) +
		encoding.BerSizeInteger(p.MaxTokenIDs) +
		encoding.BerSizeInteger(p.NumPriorities) +
		encoding.BerSizeInteger(p.MinThroughput) +
		encoding.BerSizeInteger(p.MaxHeight) +
		encoding.BerSizeInteger(p.MaxMCSPDUSize) +
		encoding.BerSizeInteger(p.ProtocolVersion)
}

func (p DomainParameters) size() int {
	content := p.contentSize()
	return 1 + encoding.BerSizeLength(content) + content
}

func (p DomainParameters) encode(dst *core.WriteCursor) {
	encoding.BerWriteSequenceHeader(p.contentSize(), dst)
	encoding.BerWriteInteger(p.MaxChannelIDs, dst)
	encoding.BerWriteInteger(p.MaxUserIDs, dst)
	encoding.BerWriteInteger(p.MaxTokenIDs, dst)
	encoding.BerWriteInteger(p.NumPriorities, dst)
	encoding.BerWriteInteger(p.MinThroughput, dst)
	encoding.BerWriteInteger(p.MaxHeight, dst)
	encoding.BerWriteInteger(p.MaxMCSPDUSize, dst)
	encoding.BerWriteInteger(p.ProtocolVersion, dst)
}

func decodeDomainParameters(src *core.ReadCursor) (DomainParameters, error) {
	var p DomainParameters

	if err := encoding.BerReadUniversalTag(encoding.TagSequence, true, src); err != nil {
		return p, err
	}

	if _, err := encoding.BerReadLength(src); err != nil {
		return p, err
	}

	var err error

	if p.MaxChannelIDs, err = encoding.BerReadInteger(src); err != nil {
		return p, err
	}

	if p.MaxUserIDs, err = encoding.BerReadInteger(src); err != nil {
		return p, err
	}

	if p.MaxTokenIDs, err = encoding.BerReadInteger(src); err != nil {
		return p, err
	}

	if p.NumPriorities, err = encoding.BerReadInteger(src); err != nil {
		return p, err
	}

	if p.MinThroughput, err = encoding.BerReadInteger(src); err != nil {
		return p, err
	}

	if p.MaxHeight, err = encoding.BerReadInteger(src); err != nil {
		return p, err
	}

	if p.MaxMCSPDUSize, err = encoding.BerReadInteger(src); err != nil {
		return p, err
	}

	if p.ProtocolVersion, err = encoding.BerReadInteger(src); err != nil {
		return p, err
	}

	return p, nil
}

// ConnectInitial is the MCS Connect-Initial PDU wrapping the GCC
// Conference-Create Request in its user data.
type ConnectInitial struct {
	CallingDomainSelector []byte
	CalledDomainSelector  []byte
	UpwardFlag            bool
	Target                DomainParameters
	Minimum               DomainParameters
	Maximum               DomainParameters
	UserData              []byte
}

// NewConnectInitial builds a Connect-Initial with the standard selectors and
// domain parameters around the given GCC payload.
func NewConnectInitial(gccPayload []byte) *ConnectInitial {
	return &ConnectInitial{
		CallingDomainSelector: []byte{0x01},
		CalledDomainSelector:  []byte{0x01},
		UpwardFlag:            true,
		Target:                DefaultTargetParameters(),
		Minimum:               DefaultMinimumParameters(),
		Maximum:               DefaultMaximumParameters(),
		UserData:              gccPayload,
	}
}

func (p *ConnectInitial) Name() string { return "ConnectInitial" }

func (p *ConnectInitial) contentSize() int {
	return encoding.BerSizeOctetString(len(p.CallingDomainSelector)) +
		encoding.BerSizeOctetString(len(p.CalledDomainSelector)) +
		encoding.BerSizeBoolean() +
		p.Target.size() +
		p.Minimum.size() +
		p.Maximum.size() +
		encoding.BerSizeOctetString(len(p.UserData))
}

func (p *ConnectInitial) Size() int {
	content := p.contentSize()
	return encoding.BerSizeApplicationTag(tagConnectInitial, content) + content
}

func (p *ConnectInitial) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	encoding.BerWriteApplicationTag(tagConnectInitial, p.contentSize(), dst)
	encoding.BerWriteOctetString(p.CallingDomainSelector, dst)
	encoding.BerWriteOctetString(p.CalledDomainSelector, dst)
	encoding.BerWriteBoolean(p.UpwardFlag, dst)
	p.Target.encode(dst)
	p.Minimum.encode(dst)
	p.Maximum.encode(dst)
	encoding.BerWriteOctetString(p.UserData, dst)

	return nil
}

// DecodeConnectInitial parses a Connect-Initial PDU (acceptor side).
func DecodeConnectInitial(src *core.ReadCursor) (*ConnectInitial, error) {
	tag, err := encoding.BerReadApplicationTag(src)
	if err != nil {
		return nil, err
	}

	if tag != tagConnectInitial {
		return nil, core.UnexpectedMessageType("ConnectInitial", tag)
	}

	if _, err = encoding.BerReadLength(src); err != nil {
		return nil, err
	}

	p := &ConnectInitial{}

	if p.CallingDomainSelector, err = encoding.BerReadOctetString(src); err != nil {
		return nil, err
	}

	if p.CalledDomainSelector, err = encoding.BerReadOctetString(src); err != nil {
		return nil, err
	}

	if p.UpwardFlag, err = encoding.BerReadBoolean(src); err != nil {
		return nil, err
	}

	if p.Target, err = decodeDomainParameters(src); err != nil {
		return nil, err
	}

	if p.Minimum, err = decodeDomainParameters(src); err != nil {
		return nil, err
	}

	if p.Maximum, err = decodeDomainParameters(src); err != nil {
		return nil, err
	}

	if p.UserData, err = encoding.BerReadOctetString(src); err != nil {
		return nil, err
	}

	return p, nil
}

// ConnectResponse is the MCS Connect-Response PDU wrapping the GCC
// Conference-Create Response.
type ConnectResponse struct {
	Result          uint8
	CalledConnectID int
	DomainParams    DomainParameters
	UserData        []byte
}

// NewConnectResponse builds a successful Connect-Response around the given
// GCC payload.
func NewConnectResponse(gccPayload []byte) *ConnectResponse {
	return &ConnectResponse{
		Result:       0,
		DomainParams: DefaultTargetParameters(),
		UserData:     gccPayload,
	}
}

func (p *ConnectResponse) Name() string { return "ConnectResponse" }

func (p *ConnectResponse) contentSize() int {
	return 3 + // enumerated result
		encoding.BerSizeInteger(p.CalledConnectID) +
		p.DomainParams.size() +
		encoding.BerSizeOctetString(len(p.UserData))
}

func (p *ConnectResponse) Size() int {
	content := p.contentSize()
	return encoding.BerSizeApplicationTag(tagConnectResponse, content) + content
}

func (p *ConnectResponse) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	encoding.BerWriteApplicationTag(tagConnectResponse, p.contentSize(), dst)

	dst.WriteU8(encoding.TagEnumerated)
	encoding.BerWriteLength(1, dst)
	dst.WriteU8(p.Result)

	encoding.BerWriteInteger(p.CalledConnectID, dst)
	p.DomainParams.encode(dst)
	encoding.BerWriteOctetString(p.UserData, dst)

	return nil
}

// DecodeConnectResponse parses a Connect-Response PDU (client side).
func DecodeConnectResponse(src *core.ReadCursor) (*ConnectResponse, error) {
	tag, err := encoding.BerReadApplicationTag(src)
	if err != nil {
		return nil, err
	}

	if tag != tagConnectResponse {
		return nil, core.UnexpectedMessageType("ConnectResponse", tag)
	}

	if _, err = encoding.BerReadLength(src); err != nil {
		return nil, err
	}

	p := &ConnectResponse{}

	if p.Result, err = encoding.BerReadEnumerated(src); err != nil {
		return nil, err
	}

	if p.Result != RTSuccessful {
		return nil, core.InvalidField("ConnectResponse", "result", "MCS connect refused by the peer")
	}

	if p.CalledConnectID, err = encoding.BerReadInteger(src); err != nil {
		return nil, err
	}

	if p.DomainParams, err = decodeDomainParameters(src); err != nil {
		return nil, err
	}

	if p.UserData, err = encoding.BerReadOctetString(src); err != nil {
		return nil, err
	}

	return p, nil
}
