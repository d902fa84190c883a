// Package acceptor implements the server side of the RDP connection
// sequence: the mirror-image state machine of the client connector,
// including channel-join arbitration and the acceptor CredSSP phase.
package acceptor

import (
	"github.com/rcarmo/rdp-core/internal/connector"
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
)

// channelConnectionState enumerates the server-side channel-connection
// sub-machine.
type channelConnectionState int

const (
	channelConnConsumed channelConnectionState = iota
	channelConnWaitErectDomain
	channelConnWaitAttachUser
	channelConnSendAttachUserConfirm
	channelConnWaitChannelJoinRequest
	channelConnSendChannelJoinConfirm
	channelConnAllJoined
)

var channelConnectionStateNames = map[channelConnectionState]string{
	channelConnConsumed:               "Consumed",
	channelConnWaitErectDomain:        "WaitErectDomainRequest",
	channelConnWaitAttachUser:         "WaitAttachUserRequest",
	channelConnSendAttachUserConfirm:  "SendAttachUserConfirm",
	channelConnWaitChannelJoinRequest: "WaitChannelJoinRequest",
	channelConnSendChannelJoinConfirm: "SendChannelJoinConfirm",
	channelConnAllJoined:              "AllJoined",
}

func (s channelConnectionState) Name() string {
	return channelConnectionStateNames[s]
}

func (s channelConnectionState) IsTerminal() bool {
	return s == channelConnAllJoined
}

// ChannelConnectionSequence is the erect-domain → attach-user →
// channel-joins sub-machine, arbitrating the joins the client may request.
type ChannelConnectionSequence struct {
	state         channelConnectionState
	userChannelID uint16

	// remaining is the set of channel ids still expected to be joined; nil
	// when the join phase is skipped.
	remaining map[uint16]struct{}

	// pendingJoin is the id to confirm in SendChannelJoinConfirm.
	pendingJoin uint16
}

// NewChannelConnectionSequence builds the sub-machine expecting joins for
// the user channel, the I/O channel, and every negotiated static channel,
// in arbitrary client-chosen order.
func NewChannelConnectionSequence(userChannelID, ioChannelID uint16, otherChannels []uint16) *ChannelConnectionSequence {
	remaining := map[uint16]struct{}{
		userChannelID: {},
		ioChannelID:   {},
	}

	for _, id := range otherChannels {
		remaining[id] = struct{}{}
	}

	return &ChannelConnectionSequence{
		state:         channelConnWaitErectDomain,
		userChannelID: userChannelID,
		remaining:     remaining,
	}
}

// SkipChannelJoin builds the variant that omits the join phase entirely;
// used when the client advertised the corresponding early capability.
func SkipChannelJoin(userChannelID uint16) *ChannelConnectionSequence {
	return &ChannelConnectionSequence{
		state:         channelConnWaitErectDomain,
		userChannelID: userChannelID,
	}
}

// IsDone reports completion of the sub-sequence.
func (s *ChannelConnectionSequence) IsDone() bool {
	return s.state.IsTerminal()
}

func (s *ChannelConnectionSequence) State() connector.State {
	return s.state
}

func (s *ChannelConnectionSequence) NextPduHint() core.PduHint {
	switch s.state {
	case channelConnWaitErectDomain, channelConnWaitAttachUser, channelConnWaitChannelJoinRequest:
		return tpkt.Hint
	default:
		return nil
	}
}

func (s *ChannelConnectionSequence) StepNoInput(output *core.WriteBuf) (connector.Written, error) {
	return s.Step(nil, output)
}

func (s *ChannelConnectionSequence) Step(input []byte, output *core.WriteBuf) (connector.Written, error) {
	switch s.state {
	case channelConnWaitErectDomain:
		msg, err := decodeMcsFrame(input)
		if err != nil {
			s.state = channelConnConsumed
			return connector.WrittenNothing(), connector.CustomErr("ErectDomainRequest", err)
		}

		// content beyond decoding success is ignored
		if msg.ErectDomain == nil {
			s.state = channelConnConsumed
			return connector.WrittenNothing(), connector.ReasonErr("ErectDomainRequest", "unexpected PDU while waiting for MCS Erect Domain Request")
		}

		s.state = channelConnWaitAttachUser

		return connector.WrittenNothing(), nil
	case channelConnWaitAttachUser:
		msg, err := decodeMcsFrame(input)
		if err != nil {
			s.state = channelConnConsumed
			return connector.WrittenNothing(), connector.CustomErr("AttachUserRequest", err)
		}

		if msg.AttachUserRequest == nil {
			s.state = channelConnConsumed
			return connector.WrittenNothing(), connector.ReasonErr("AttachUserRequest", "unexpected PDU while waiting for MCS Attach User Request")
		}

		s.state = channelConnSendAttachUserConfirm

		return connector.WrittenNothing(), nil
	case channelConnSendAttachUserConfirm:
		confirm := &mcs.AttachUserConfirm{
			Result:      mcs.RTSuccessful,
			InitiatorID: s.userChannelID,
		}

		n, err := core.EncodeBuf(x224.DataFrame{Inner: confirm}, output)
		if err != nil {
			s.state = channelConnConsumed
			return connector.WrittenNothing(), connector.CustomErr("AttachUserConfirm", err)
		}

		if s.remaining == nil {
			s.state = channelConnAllJoined
		} else {
			s.state = channelConnWaitChannelJoinRequest
		}

		return connector.WrittenSize("AttachUserConfirm", n)
	case channelConnWaitChannelJoinRequest:
		msg, err := decodeMcsFrame(input)
		if err != nil {
			s.state = channelConnConsumed
			return connector.WrittenNothing(), connector.CustomErr("ChannelJoinRequest", err)
		}

		if msg.ChannelJoinRequest == nil {
			s.state = channelConnConsumed
			return connector.WrittenNothing(), connector.ReasonErr("ChannelJoinRequest", "unexpected PDU while waiting for MCS Channel Join Request")
		}

		requested := msg.ChannelJoinRequest.ChannelID

		if _, expected := s.remaining[requested]; !expected {
			s.state = channelConnConsumed
			return connector.WrittenNothing(), connector.ReasonErr("ChannelJoinConfirm",
				"unexpected channel_id in MCS Channel Join Request: got %d", requested)
		}

		delete(s.remaining, requested)

		s.pendingJoin = requested
		s.state = channelConnSendChannelJoinConfirm

		return connector.WrittenNothing(), nil
	case channelConnSendChannelJoinConfirm:
		confirm := &mcs.ChannelJoinConfirm{
			Result:             mcs.RTSuccessful,
			InitiatorID:        s.userChannelID,
			RequestedChannelID: s.pendingJoin,
			ChannelID:          s.pendingJoin,
		}

		n, err := core.EncodeBuf(x224.DataFrame{Inner: confirm}, output)
		if err != nil {
			s.state = channelConnConsumed
			return connector.WrittenNothing(), connector.CustomErr("ChannelJoinConfirm", err)
		}

		if len(s.remaining) == 0 {
			s.state = channelConnAllJoined
		} else {
			s.state = channelConnWaitChannelJoinRequest
		}

		return connector.WrittenSize("ChannelJoinConfirm", n)
	default:
		return connector.WrittenNothing(), connector.GeneralErr("ChannelConnection")
	}
}

// decodeMcsFrame strips the TPKT + X.224 data envelope and decodes the
// domain MCS PDU inside.
func decodeMcsFrame(input []byte) (*mcs.Message, error) {
	src := core.NewReadCursor(input)

	if err := x224.DecodeDataFrame(src); err != nil {
		return nil, err
	}

	msg, err := mcs.DecodeMessage(src)
	if err != nil {
		return nil, err
	}

	if msg.Disconnect != nil {
		return nil, core.Other("McsMessage", "peer sent Disconnect Provider Ultimatum")
	}

	return msg, nil
}
