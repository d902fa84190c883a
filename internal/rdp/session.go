package rdp

import (
	"fmt"

	"github.com/rcarmo/rdp-core/internal/connector"
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/logging"
	"github.com/rcarmo/rdp-core/internal/protocol/fastpath"
	"github.com/rcarmo/rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
	"github.com/rcarmo/rdp-core/internal/svc"
)

// UpdateHandler receives the fast-path update frames of the active session.
type UpdateHandler func(header fastpath.Header, payload []byte) error

// StartChannels emits every registered channel's activation messages. Call
// once after Connect succeeded.
func (c *Client) StartChannels() error {
	set := c.connector.StaticChannels()

	for _, name := range set.ChannelNames() {
		id, ok := set.ChannelIDByName(name)
		if !ok {
			continue
		}

		messages, err := set.GetByName(name).Start()
		if err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}

		if len(messages) == 0 {
			continue
		}

		c.outBuf.Clear()

		n, err := svc.EncodeMessages(c.outBuf, c.result.UserChannelID, id, messages)
		if err != nil {
			return err
		}

		if n > 0 {
			if _, err := c.conn.Write(c.outBuf.Filled()[:n]); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}

	return nil
}

// Run drives the active session: fast-path updates go to the handler,
// channel traffic goes to the registered channel processors, and a server
// deactivation re-runs the finalization sub-sequence.
func (c *Client) Run(onUpdate UpdateHandler) error {
	for {
		frame, err := readFrame(c.buffReader, SessionHint, c.frame)
		if err != nil {
			return err
		}
		c.frame = frame

		if frame[0]&0x03 != fastpath.ActionX224 {
			if err := c.handleFastPath(frame, onUpdate); err != nil {
				return err
			}

			continue
		}

		if err := c.handleSlowPath(frame); err != nil {
			return err
		}
	}
}

func (c *Client) handleFastPath(frame []byte, onUpdate UpdateHandler) error {
	src := core.NewReadCursor(frame)

	header, err := fastpath.DecodeHeader(src)
	if err != nil {
		return err
	}

	if onUpdate == nil {
		return nil
	}

	return onUpdate(header, src.ReadSlice(src.Len()))
}

func (c *Client) handleSlowPath(frame []byte) error {
	src := core.NewReadCursor(frame)

	if err := x224.DecodeDataFrame(src); err != nil {
		return err
	}

	msg, err := mcs.DecodeMessage(src)
	if err != nil {
		return err
	}

	switch {
	case msg.Disconnect != nil:
		return fmt.Errorf("server disconnected (reason %d)", msg.Disconnect.Reason)
	case msg.SendDataIndication == nil:
		return nil
	}

	indication := msg.SendDataIndication

	if indication.ChannelID != c.result.IoChannelID {
		return c.ProcessChannelPayload(indication.ChannelID, indication.UserData)
	}

	share, err := pdu.DecodeShareMessage(core.NewReadCursor(indication.UserData))
	if err != nil {
		return err
	}

	switch {
	case share.DeactivateAll:
		return c.reactivate()
	case share.Data != nil && share.Data.Header.PDUType2 == pdu.Type2ErrorInfo && share.Data.ErrorInfo != 0:
		return fmt.Errorf("server error info 0x%08X", share.Data.ErrorInfo)
	default:
		return nil
	}
}

// reactivate waits for the next Demand Active and re-runs the capability
// exchange and finalization after a server deactivation.
func (c *Client) reactivate() error {
	logging.Info("session: deactivation, waiting for reactivation")

	for {
		frame, err := readFrame(c.buffReader, SessionHint, c.frame)
		if err != nil {
			return err
		}
		c.frame = frame

		if frame[0]&0x03 != fastpath.ActionX224 {
			continue
		}

		src := core.NewReadCursor(frame)

		if err := x224.DecodeDataFrame(src); err != nil {
			return err
		}

		msg, err := mcs.DecodeMessage(src)
		if err != nil {
			return err
		}

		if msg.SendDataIndication == nil {
			continue
		}

		share, err := pdu.DecodeShareMessage(core.NewReadCursor(msg.SendDataIndication.UserData))
		if err != nil {
			return err
		}

		if share.DemandActive == nil {
			continue
		}

		return c.replayActivation(share.DemandActive)
	}
}

func (c *Client) replayActivation(demand *pdu.DemandActive) error {
	confirm := &pdu.ConfirmActive{
		ShareID:   demand.ShareID,
		PDUSource: c.result.UserChannelID,
		CapabilitySets: pdu.ClientCapabilities(
			c.result.DesktopSize.Width,
			c.result.DesktopSize.Height,
			c.connector.Config.KeyboardLayout,
		),
	}

	userData, err := core.EncodeVec(confirm)
	if err != nil {
		return err
	}

	c.outBuf.Clear()

	request := &mcs.SendDataRequest{
		InitiatorID: c.result.UserChannelID,
		ChannelID:   c.result.IoChannelID,
		UserData:    userData,
	}

	n, err := core.EncodeBuf(x224.DataFrame{Inner: request}, c.outBuf)
	if err != nil {
		return err
	}

	if _, err := c.conn.Write(c.outBuf.Filled()[:n]); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	// the finalization dance runs again on every reactivation
	finalization := connector.NewFinalizationSequence(demand.ShareID, c.result.UserChannelID, c.result.IoChannelID)

	for !finalization.State().IsTerminal() {
		if err := c.singleStep(finalization); err != nil {
			return err
		}
	}

	return nil
}
