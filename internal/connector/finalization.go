package connector

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
)

// finalizationState enumerates the client finalization sub-machine: the
// four client PDUs followed by the server's mirrored replies.
type finalizationState int

const (
	finalizationConsumed finalizationState = iota
	finalizationSendSynchronize
	finalizationSendControlCooperate
	finalizationSendRequestControl
	finalizationSendFontList
	finalizationWaitSynchronize
	finalizationWaitControlCooperate
	finalizationWaitGrantedControl
	finalizationWaitFontMap
	finalizationFinished
)

var finalizationStateNames = map[finalizationState]string{
	finalizationConsumed:             "Consumed",
	finalizationSendSynchronize:      "SendSynchronize",
	finalizationSendControlCooperate: "SendControlCooperate",
	finalizationSendRequestControl:   "SendRequestControl",
	finalizationSendFontList:         "SendFontList",
	finalizationWaitSynchronize:      "WaitSynchronize",
	finalizationWaitControlCooperate: "WaitControlCooperate",
	finalizationWaitGrantedControl:   "WaitGrantedControl",
	finalizationWaitFontMap:          "WaitFontMap",
	finalizationFinished:             "Finished",
}

func (s finalizationState) Name() string {
	return finalizationStateNames[s]
}

func (s finalizationState) IsTerminal() bool {
	return s == finalizationFinished
}

// FinalizationSequence is the client-initiated Synchronize → Control
// (Cooperate) → Control (Request) → FontList walk and the wait for the
// server's mirrored replies. It is re-run on every deactivation and
// reactivation during the session.
type FinalizationSequence struct {
	state         finalizationState
	shareID       uint32
	userChannelID uint16
	ioChannelID   uint16
}

// NewFinalizationSequence builds the sub-machine for the given share.
func NewFinalizationSequence(shareID uint32, userChannelID, ioChannelID uint16) *FinalizationSequence {
	return &FinalizationSequence{
		state:         finalizationSendSynchronize,
		shareID:       shareID,
		userChannelID: userChannelID,
		ioChannelID:   ioChannelID,
	}
}

func (s *FinalizationSequence) State() State {
	return s.state
}

func (s *FinalizationSequence) NextPduHint() core.PduHint {
	switch s.state {
	case finalizationWaitSynchronize, finalizationWaitControlCooperate,
		finalizationWaitGrantedControl, finalizationWaitFontMap:
		return tpkt.Hint
	default:
		return nil
	}
}

func (s *FinalizationSequence) StepNoInput(output *core.WriteBuf) (Written, error) {
	return s.Step(nil, output)
}

func (s *FinalizationSequence) Step(input []byte, output *core.WriteBuf) (Written, error) {
	switch s.state {
	case finalizationSendSynchronize:
		sync := &pdu.SynchronizePdu{
			ShareID:    s.shareID,
			PDUSource:  s.userChannelID,
			TargetUser: pdu.ServerChannelID,
		}

		return s.send("Synchronize", sync, output, finalizationSendControlCooperate)
	case finalizationSendControlCooperate:
		control := &pdu.ControlPdu{
			ShareID:   s.shareID,
			PDUSource: s.userChannelID,
			Action:    pdu.ControlActionCooperate,
		}

		return s.send("ControlCooperate", control, output, finalizationSendRequestControl)
	case finalizationSendRequestControl:
		control := &pdu.ControlPdu{
			ShareID:   s.shareID,
			PDUSource: s.userChannelID,
			Action:    pdu.ControlActionRequestControl,
		}

		return s.send("RequestControl", control, output, finalizationSendFontList)
	case finalizationSendFontList:
		fontList := &pdu.FontListPdu{ShareID: s.shareID, PDUSource: s.userChannelID}

		return s.send("FontList", fontList, output, finalizationWaitSynchronize)
	case finalizationWaitSynchronize:
		return s.wait("Synchronize", input, func(data *pdu.ShareDataMessage) (bool, error) {
			return data.Header.PDUType2 == pdu.Type2Synchronize, nil
		}, finalizationWaitControlCooperate)
	case finalizationWaitControlCooperate:
		return s.wait("ControlCooperate", input, func(data *pdu.ShareDataMessage) (bool, error) {
			return data.Header.PDUType2 == pdu.Type2Control &&
				data.ControlAction == pdu.ControlActionCooperate, nil
		}, finalizationWaitGrantedControl)
	case finalizationWaitGrantedControl:
		return s.wait("GrantedControl", input, func(data *pdu.ShareDataMessage) (bool, error) {
			return data.Header.PDUType2 == pdu.Type2Control &&
				data.ControlAction == pdu.ControlActionGrantedControl, nil
		}, finalizationWaitFontMap)
	case finalizationWaitFontMap:
		return s.wait("FontMap", input, func(data *pdu.ShareDataMessage) (bool, error) {
			return data.Header.PDUType2 == pdu.Type2Fontmap, nil
		}, finalizationFinished)
	default:
		return WrittenNothing(), GeneralErr("ConnectionFinalization")
	}
}

func (s *FinalizationSequence) send(ctx string, inner core.Encode, output *core.WriteBuf, next finalizationState) (Written, error) {
	userData, err := core.EncodeVec(inner)
	if err != nil {
		s.state = finalizationConsumed
		return WrittenNothing(), CustomErr(ctx, err)
	}

	request := &mcs.SendDataRequest{
		InitiatorID: s.userChannelID,
		ChannelID:   s.ioChannelID,
		UserData:    userData,
	}

	n, err := core.EncodeBuf(x224.DataFrame{Inner: request}, output)
	if err != nil {
		s.state = finalizationConsumed
		return WrittenNothing(), CustomErr(ctx, err)
	}

	s.state = next

	return WrittenSize(ctx, n)
}

func (s *FinalizationSequence) wait(ctx string, input []byte, match func(*pdu.ShareDataMessage) (bool, error), next finalizationState) (Written, error) {
	msg, err := decodeMcsFrame(input)
	if err != nil {
		s.state = finalizationConsumed
		return WrittenNothing(), CustomErr(ctx, err)
	}

	if msg.SendDataIndication == nil {
		s.state = finalizationConsumed
		return WrittenNothing(), ReasonErr(ctx, "unexpected PDU while waiting for a share data PDU")
	}

	share, err := pdu.DecodeShareMessage(core.NewReadCursor(msg.SendDataIndication.UserData))
	if err != nil {
		s.state = finalizationConsumed
		return WrittenNothing(), CustomErr(ctx, err)
	}

	if share.Data == nil {
		s.state = finalizationConsumed
		return WrittenNothing(), ReasonErr(ctx, "unexpected share control PDU during finalization")
	}

	// informational PDUs interleaved with the finalization replies
	switch share.Data.Header.PDUType2 {
	case pdu.Type2SaveSessionInfo:
		return WrittenNothing(), nil
	case pdu.Type2ErrorInfo:
		if share.Data.ErrorInfo == 0 {
			return WrittenNothing(), nil
		}

		s.state = finalizationConsumed

		return WrittenNothing(), ReasonErr(ctx, "server error info 0x%08X", share.Data.ErrorInfo)
	}

	ok, err := match(share.Data)
	if err != nil {
		s.state = finalizationConsumed
		return WrittenNothing(), err
	}

	if !ok {
		s.state = finalizationConsumed
		return WrittenNothing(), ReasonErr(ctx, "unexpected share data PDU type 0x%02X", uint8(share.Data.Header.PDUType2))
	}

	s.state = next

	return WrittenNothing(), nil
}
