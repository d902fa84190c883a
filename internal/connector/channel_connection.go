package connector

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
)

// channelConnectionState enumerates the client-side channel-connection
// sub-machine.
type channelConnectionState int

const (
	channelConnConsumed channelConnectionState = iota
	channelConnSendErectDomain
	channelConnSendAttachUser
	channelConnWaitAttachConfirm
	channelConnSendJoinRequest
	channelConnWaitJoinConfirm
	channelConnAllJoined
)

var channelConnectionStateNames = map[channelConnectionState]string{
	channelConnConsumed:          "Consumed",
	channelConnSendErectDomain:   "SendErectDomainRequest",
	channelConnSendAttachUser:    "SendAttachUserRequest",
	channelConnWaitAttachConfirm: "WaitAttachUserConfirm",
	channelConnSendJoinRequest:   "SendChannelJoinRequest",
	channelConnWaitJoinConfirm:   "WaitChannelJoinConfirm",
	channelConnAllJoined:         "AllJoined",
}

func (s channelConnectionState) Name() string {
	return channelConnectionStateNames[s]
}

func (s channelConnectionState) IsTerminal() bool {
	return s == channelConnAllJoined
}

// ChannelConnectionSequence is the client side of the erect-domain →
// attach-user → channel-join sub-machine.
type ChannelConnectionSequence struct {
	state         channelConnectionState
	ioChannelID   uint16
	userChannelID uint16
	joinQueue     []uint16
	joinIndex     int
	skipJoin      bool
}

// NewChannelConnectionSequence builds the sub-machine; channelIDs are the
// negotiated static channel ids joined after the user and I/O channels.
func NewChannelConnectionSequence(ioChannelID uint16, channelIDs []uint16, skipJoin bool) *ChannelConnectionSequence {
	return &ChannelConnectionSequence{
		state:       channelConnSendErectDomain,
		ioChannelID: ioChannelID,
		joinQueue:   channelIDs,
		skipJoin:    skipJoin,
	}
}

// UserChannelID returns the id assigned by the Attach User Confirm.
func (s *ChannelConnectionSequence) UserChannelID() uint16 {
	return s.userChannelID
}

func (s *ChannelConnectionSequence) State() State {
	return s.state
}

func (s *ChannelConnectionSequence) NextPduHint() core.PduHint {
	switch s.state {
	case channelConnWaitAttachConfirm, channelConnWaitJoinConfirm:
		return tpkt.Hint
	default:
		return nil
	}
}

func (s *ChannelConnectionSequence) StepNoInput(output *core.WriteBuf) (Written, error) {
	return s.Step(nil, output)
}

func (s *ChannelConnectionSequence) Step(input []byte, output *core.WriteBuf) (Written, error) {
	switch s.state {
	case channelConnSendErectDomain:
		n, err := core.EncodeBuf(x224.DataFrame{Inner: &mcs.ErectDomainPdu{}}, output)
		if err != nil {
			s.state = channelConnConsumed
			return WrittenNothing(), CustomErr("ErectDomainRequest", err)
		}

		s.state = channelConnSendAttachUser

		return WrittenSize("ErectDomainRequest", n)
	case channelConnSendAttachUser:
		n, err := core.EncodeBuf(x224.DataFrame{Inner: &mcs.AttachUserRequest{}}, output)
		if err != nil {
			s.state = channelConnConsumed
			return WrittenNothing(), CustomErr("AttachUserRequest", err)
		}

		s.state = channelConnWaitAttachConfirm

		return WrittenSize("AttachUserRequest", n)
	case channelConnWaitAttachConfirm:
		msg, err := decodeMcsFrame(input)
		if err != nil {
			s.state = channelConnConsumed
			return WrittenNothing(), CustomErr("AttachUserConfirm", err)
		}

		if msg.AttachUserConfirm == nil {
			s.state = channelConnConsumed
			return WrittenNothing(), ReasonErr("AttachUserConfirm", "unexpected PDU while waiting for MCS Attach User Confirm")
		}

		if msg.AttachUserConfirm.Result != mcs.RTSuccessful {
			s.state = channelConnConsumed
			return WrittenNothing(), ReasonErr("AttachUserConfirm", "MCS Attach User refused: result %d", msg.AttachUserConfirm.Result)
		}

		s.userChannelID = msg.AttachUserConfirm.InitiatorID

		if s.skipJoin {
			s.state = channelConnAllJoined
			return WrittenNothing(), nil
		}

		// the user channel and the I/O channel are joined ahead of the
		// negotiated static channels
		s.joinQueue = append([]uint16{s.userChannelID, s.ioChannelID}, s.joinQueue...)
		s.joinIndex = 0
		s.state = channelConnSendJoinRequest

		return WrittenNothing(), nil
	case channelConnSendJoinRequest:
		join := &mcs.ChannelJoinRequest{
			InitiatorID: s.userChannelID,
			ChannelID:   s.joinQueue[s.joinIndex],
		}

		n, err := core.EncodeBuf(x224.DataFrame{Inner: join}, output)
		if err != nil {
			s.state = channelConnConsumed
			return WrittenNothing(), CustomErr("ChannelJoinRequest", err)
		}

		s.state = channelConnWaitJoinConfirm

		return WrittenSize("ChannelJoinRequest", n)
	case channelConnWaitJoinConfirm:
		msg, err := decodeMcsFrame(input)
		if err != nil {
			s.state = channelConnConsumed
			return WrittenNothing(), CustomErr("ChannelJoinConfirm", err)
		}

		if msg.ChannelJoinConfirm == nil {
			s.state = channelConnConsumed
			return WrittenNothing(), ReasonErr("ChannelJoinConfirm", "unexpected PDU while waiting for MCS Channel Join Confirm")
		}

		confirm := msg.ChannelJoinConfirm

		if confirm.Result != mcs.RTSuccessful {
			s.state = channelConnConsumed
			return WrittenNothing(), ReasonErr("ChannelJoinConfirm", "MCS Channel Join refused: result %d", confirm.Result)
		}

		if confirm.RequestedChannelID != s.joinQueue[s.joinIndex] {
			s.state = channelConnConsumed
			return WrittenNothing(), ReasonErr("ChannelJoinConfirm",
				"confirm for channel %d while waiting for channel %d",
				confirm.RequestedChannelID, s.joinQueue[s.joinIndex])
		}

		s.joinIndex++
		if s.joinIndex == len(s.joinQueue) {
			s.state = channelConnAllJoined
		} else {
			s.state = channelConnSendJoinRequest
		}

		return WrittenNothing(), nil
	default:
		return WrittenNothing(), GeneralErr("ChannelConnection")
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
