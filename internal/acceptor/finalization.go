package acceptor

import (
	"github.com/rcarmo/rdp-core/internal/connector"
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
)

// finalizationState enumerates the server finalization sub-machine: the four
// client PDUs, then the mirrored replies in one burst.
type finalizationState int

const (
	finalizationConsumed finalizationState = iota
	finalizationWaitSynchronize
	finalizationWaitControlCooperate
	finalizationWaitRequestControl
	finalizationWaitFontList
	finalizationSendReplies
	finalizationFinished
)

var finalizationStateNames = map[finalizationState]string{
	finalizationConsumed:             "Consumed",
	finalizationWaitSynchronize:      "WaitSynchronize",
	finalizationWaitControlCooperate: "WaitControlCooperate",
	finalizationWaitRequestControl:   "WaitRequestControl",
	finalizationWaitFontList:         "WaitFontList",
	finalizationSendReplies:          "SendFinalizationReplies",
	finalizationFinished:             "Finished",
}

func (s finalizationState) Name() string {
	return finalizationStateNames[s]
}

func (s finalizationState) IsTerminal() bool {
	return s == finalizationFinished
}

// FinalizationSequence is the acceptor side of the finalization dance:
// Synchronize → Control (Cooperate) → Control (Request) → FontList from the
// client, answered with Synchronize → Control (Cooperate) → Control
// (Granted) → FontMap.
type FinalizationSequence struct {
	state         finalizationState
	shareID       uint32
	userChannelID uint16
	ioChannelID   uint16
}

// NewFinalizationSequence builds the sub-machine for the given share.
func NewFinalizationSequence(shareID uint32, userChannelID, ioChannelID uint16) *FinalizationSequence {
	return &FinalizationSequence{
		state:         finalizationWaitSynchronize,
		shareID:       shareID,
		userChannelID: userChannelID,
		ioChannelID:   ioChannelID,
	}
}

func (s *FinalizationSequence) State() connector.State {
	return s.state
}

func (s *FinalizationSequence) NextPduHint() core.PduHint {
	switch s.state {
	case finalizationWaitSynchronize, finalizationWaitControlCooperate,
		finalizationWaitRequestControl, finalizationWaitFontList:
		return tpkt.Hint
	default:
		return nil
	}
}

func (s *FinalizationSequence) StepNoInput(output *core.WriteBuf) (connector.Written, error) {
	return s.Step(nil, output)
}

func (s *FinalizationSequence) Step(input []byte, output *core.WriteBuf) (connector.Written, error) {
	switch s.state {
	case finalizationWaitSynchronize:
		return s.wait("Synchronize", input, func(data *pdu.ShareDataMessage) bool {
			return data.Header.PDUType2 == pdu.Type2Synchronize
		}, finalizationWaitControlCooperate)
	case finalizationWaitControlCooperate:
		return s.wait("ControlCooperate", input, func(data *pdu.ShareDataMessage) bool {
			return data.Header.PDUType2 == pdu.Type2Control &&
				data.ControlAction == pdu.ControlActionCooperate
		}, finalizationWaitRequestControl)
	case finalizationWaitRequestControl:
		return s.wait("RequestControl", input, func(data *pdu.ShareDataMessage) bool {
			return data.Header.PDUType2 == pdu.Type2Control &&
				data.ControlAction == pdu.ControlActionRequestControl
		}, finalizationWaitFontList)
	case finalizationWaitFontList:
		written, err := s.wait("FontList", input, func(data *pdu.ShareDataMessage) bool {
			return data.Header.PDUType2 == pdu.Type2Fontlist
		}, finalizationSendReplies)
		if err != nil {
			return written, err
		}

		// the replies are the next output boundary
		return written, nil
	case finalizationSendReplies:
		replies := []core.Encode{
			&pdu.SynchronizePdu{ShareID: s.shareID, PDUSource: pdu.ServerChannelID, TargetUser: s.userChannelID},
			&pdu.ControlPdu{ShareID: s.shareID, PDUSource: pdu.ServerChannelID, Action: pdu.ControlActionCooperate},
			&pdu.ControlPdu{
				ShareID:   s.shareID,
				PDUSource: pdu.ServerChannelID,
				Action:    pdu.ControlActionGrantedControl,
				GrantID:   s.userChannelID,
				ControlID: uint32(pdu.ServerChannelID),
			},
			&pdu.FontMapPdu{ShareID: s.shareID, PDUSource: pdu.ServerChannelID},
		}

		total := 0

		for _, reply := range replies {
			userData, err := core.EncodeVec(reply)
			if err != nil {
				s.state = finalizationConsumed
				return connector.WrittenNothing(), connector.CustomErr("ConnectionFinalization", err)
			}

			indication := &mcs.SendDataIndication{
				InitiatorID: s.userChannelID,
				ChannelID:   s.ioChannelID,
				UserData:    userData,
			}

			n, err := core.EncodeBuf(x224.DataFrame{Inner: indication}, output)
			if err != nil {
				s.state = finalizationConsumed
				return connector.WrittenNothing(), connector.CustomErr("ConnectionFinalization", err)
			}

			total += n
		}

		s.state = finalizationFinished

		return connector.WrittenSize("ConnectionFinalization", total)
	default:
		return connector.WrittenNothing(), connector.GeneralErr("ConnectionFinalization")
	}
}

func (s *FinalizationSequence) wait(ctx string, input []byte, match func(*pdu.ShareDataMessage) bool, next finalizationState) (connector.Written, error) {
	msg, err := decodeMcsFrame(input)
	if err != nil {
		s.state = finalizationConsumed
		return connector.WrittenNothing(), connector.CustomErr(ctx, err)
	}

	if msg.SendDataRequest == nil {
		s.state = finalizationConsumed
		return connector.WrittenNothing(), connector.ReasonErr(ctx, "unexpected PDU while waiting for a share data PDU")
	}

	share, err := pdu.DecodeShareMessage(core.NewReadCursor(msg.SendDataRequest.UserData))
	if err != nil {
		s.state = finalizationConsumed
		return connector.WrittenNothing(), connector.CustomErr(ctx, err)
	}

	if share.Data == nil || !match(share.Data) {
		s.state = finalizationConsumed
		return connector.WrittenNothing(), connector.ReasonErr(ctx, "unexpected PDU during finalization")
	}

	s.state = next

	return connector.WrittenNothing(), nil
}
