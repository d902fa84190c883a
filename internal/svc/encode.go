package svc

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
)

// EncodeMessages chunks each outbound message and wraps every chunk in an
// MCS Send Data Request inside a TPKT + X.224 envelope, appending the frames
// to buf. It returns the total bytes appended. The MCS reassembly of the
// emitted frames is exactly the concatenation of the handler output bytes in
// the order produced.
func EncodeMessages(buf *core.WriteBuf, initiatorID, channelID uint16, messages []Message) (int, error) {
	total := 0

	for _, msg := range messages {
		chunks, err := ChunkifyMessage(msg)
		if err != nil {
			return 0, err
		}

		for _, chunk := range chunks {
			request := &mcs.SendDataRequest{
				InitiatorID: initiatorID,
				ChannelID:   channelID,
				UserData:    chunk,
			}

			n, err := core.EncodeBuf(x224.DataFrame{Inner: request}, buf)
			if err != nil {
				return 0, err
			}

			total += n
		}
	}

	return total, nil
}

// EncodeIndications is the server-side counterpart of EncodeMessages,
// wrapping chunks in MCS Send Data Indications.
func EncodeIndications(buf *core.WriteBuf, initiatorID, channelID uint16, messages []Message) (int, error) {
	total := 0

	for _, msg := range messages {
		chunks, err := ChunkifyMessage(msg)
		if err != nil {
			return 0, err
		}

		for _, chunk := range chunks {
			indication := &mcs.SendDataIndication{
				InitiatorID: initiatorID,
				ChannelID:   channelID,
				UserData:    chunk,
			}

			n, err := core.EncodeBuf(x224.DataFrame{Inner: indication}, buf)
			if err != nil {
				return 0, err
			}

			total += n
		}
	}

	return total, nil
}
