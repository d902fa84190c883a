package drdynvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/svc"
)

type rawMessage struct {
	payload []byte
}

func (m *rawMessage) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(m.Name(), dst, m.Size()); err != nil {
		return err
	}

	dst.WriteSlice(m.payload)

	return nil
}

func (m *rawMessage) Name() string { return "RawMessage" }

func (m *rawMessage) Size() int { return len(m.payload) }

type recordingChannel struct {
	name     string
	start    [][]byte
	received [][]byte
}

func (c *recordingChannel) ChannelName() string { return c.name }

func (c *recordingChannel) Start() ([]core.Encode, error) {
	var out []core.Encode
	for _, payload := range c.start {
		out = append(out, &rawMessage{payload: payload})
	}
	return out, nil
}

func (c *recordingChannel) Process(payload []byte) ([]core.Encode, error) {
	copied := make([]byte, len(payload))
	copy(copied, payload)
	c.received = append(c.received, copied)

	return nil, nil
}

func encodePdu(t *testing.T, pdu core.Encode) []byte {
	t.Helper()

	encoded, err := core.EncodeVec(pdu)
	require.NoError(t, err)
	assert.Equal(t, pdu.Size(), len(encoded))

	return encoded
}

func svcPayload(t *testing.T, msg svc.Message) []byte {
	t.Helper()
	return encodePdu(t, msg.PDU)
}

func TestHeaderRoundTrip(t *testing.T) {
	header := Header{Cmd: CmdDataFirst, Sp: 2, CbID: 1}

	assert.Equal(t, header, decodeHeader(header.encode()))
}

func TestCapabilityHandshake(t *testing.T) {
	client := NewClient()

	caps := make([]byte, 4)
	w := core.NewWriteCursor(caps)
	w.WriteU8(Header{Cmd: CmdCapability}.encode())
	w.WriteU8(0)
	w.WriteU16(CapsVersion1)

	responses, err := client.Process(caps)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	response := svcPayload(t, responses[0])
	assert.Equal(t, Header{Cmd: CmdCapability}.encode(), response[0])
	assert.Equal(t, CapsVersion1, uint16(response[2])|uint16(response[3])<<8)
	assert.True(t, client.CapHandshakeDone())
}

func TestCreateWithoutListener(t *testing.T) {
	client := NewClient()
	client.capHandshakeDone = true

	create := encodePdu(t, &CreateRequestPdu{
		ChannelID:   0x0A,
		ChannelName: "Microsoft::Windows::RDS::Telemetry",
	})

	responses, err := client.Process(create)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	payload := svcPayload(t, responses[0])
	src := core.NewReadCursor(payload)

	header := decodeHeader(src.ReadU8())
	assert.Equal(t, CmdCreate, header.Cmd)
	assert.Equal(t, uint32(0x0A), src.ReadU32())
	assert.Equal(t, StatusNoListener, src.ReadU32())
}

func TestCreateAndFragmentedData(t *testing.T) {
	channel := &recordingChannel{name: "FreeRDP::Advanced::Input"}

	client := NewClient().WithDynamicChannel(channel)
	client.capHandshakeDone = true

	create := encodePdu(t, &CreateRequestPdu{ChannelID: 0x0B, ChannelName: channel.name})

	responses, err := client.Process(create)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	payload := svcPayload(t, responses[0])
	src := core.NewReadCursor(payload)
	src.ReadU8()
	assert.Equal(t, uint32(0x0B), src.ReadU32())
	assert.Equal(t, StatusOK, src.ReadU32())

	// a 64-byte payload split over DataFirst + Data
	full := make([]byte, 64)
	for i := range full {
		full[i] = byte(i)
	}

	first := encodePdu(t, &DataFirstPdu{ChannelID: 0x0B, TotalLength: 64, Data: full[:32]})

	responses, err = client.Process(first)
	require.NoError(t, err)
	assert.Empty(t, responses)
	assert.Empty(t, channel.received)

	data := encodePdu(t, &DataPdu{ChannelID: 0x0B, Data: full[32:]})

	responses, err = client.Process(data)
	require.NoError(t, err)
	assert.Empty(t, responses)

	// delivered exactly once, atomically
	require.Len(t, channel.received, 1)
	assert.Equal(t, full, channel.received[0])
}

func TestDataFirstCoveringWholePayload(t *testing.T) {
	channel := &recordingChannel{name: "echo"}

	client := NewClient().WithDynamicChannel(channel)
	client.capHandshakeDone = true

	_, err := client.Process(encodePdu(t, &CreateRequestPdu{ChannelID: 5, ChannelName: "echo"}))
	require.NoError(t, err)

	payload := []byte{1, 2, 3, 4}

	_, err = client.Process(encodePdu(t, &DataFirstPdu{ChannelID: 5, TotalLength: 4, Data: payload}))
	require.NoError(t, err)

	// no subsequent Data expected; delivered immediately
	require.Len(t, channel.received, 1)
	assert.Equal(t, payload, channel.received[0])
}

func TestDataWithoutDataFirstDeliversDirectly(t *testing.T) {
	channel := &recordingChannel{name: "echo"}

	client := NewClient().WithDynamicChannel(channel)
	client.capHandshakeDone = true

	_, err := client.Process(encodePdu(t, &CreateRequestPdu{ChannelID: 5, ChannelName: "echo"}))
	require.NoError(t, err)

	_, err = client.Process(encodePdu(t, &DataPdu{ChannelID: 5, Data: []byte{9, 9}}))
	require.NoError(t, err)

	require.Len(t, channel.received, 1)
	assert.Equal(t, []byte{9, 9}, channel.received[0])
}

func TestDataForUnknownChannelFails(t *testing.T) {
	client := NewClient()
	client.capHandshakeDone = true

	_, err := client.Process(encodePdu(t, &DataPdu{ChannelID: 99, Data: []byte{1}}))
	require.Error(t, err)
}

func TestDuplicateCreateFails(t *testing.T) {
	channel := &recordingChannel{name: "echo"}

	client := NewClient().WithDynamicChannel(channel)
	client.capHandshakeDone = true

	create := encodePdu(t, &CreateRequestPdu{ChannelID: 5, ChannelName: "echo"})

	_, err := client.Process(create)
	require.NoError(t, err)

	_, err = client.Process(create)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate create")
}

func TestReassemblyOverrunFails(t *testing.T) {
	channel := &recordingChannel{name: "echo"}

	client := NewClient().WithDynamicChannel(channel)
	client.capHandshakeDone = true

	_, err := client.Process(encodePdu(t, &CreateRequestPdu{ChannelID: 5, ChannelName: "echo"}))
	require.NoError(t, err)

	_, err = client.Process(encodePdu(t, &DataFirstPdu{ChannelID: 5, TotalLength: 8, Data: []byte{1, 2, 3, 4}}))
	require.NoError(t, err)

	_, err = client.Process(encodePdu(t, &DataPdu{ChannelID: 5, Data: []byte{5, 6, 7, 8, 9}}))
	require.Error(t, err)
}

func TestDataFirstAboveLimitFails(t *testing.T) {
	channel := &recordingChannel{name: "echo"}

	client := NewClient().WithDynamicChannel(channel)
	client.capHandshakeDone = true

	_, err := client.Process(encodePdu(t, &CreateRequestPdu{ChannelID: 5, ChannelName: "echo"}))
	require.NoError(t, err)

	_, err = client.Process(encodePdu(t, &DataFirstPdu{ChannelID: 5, TotalLength: maxReassemblyLength + 1}))
	require.Error(t, err)
}

func TestCloseUnbindsChannel(t *testing.T) {
	channel := &recordingChannel{name: "echo"}

	client := NewClient().WithDynamicChannel(channel)
	client.capHandshakeDone = true

	_, err := client.Process(encodePdu(t, &CreateRequestPdu{ChannelID: 5, ChannelName: "echo"}))
	require.NoError(t, err)

	responses, err := client.Process(encodePdu(t, &ClosePdu{ChannelID: 5}))
	require.NoError(t, err)
	require.Len(t, responses, 1)

	// data after close is data for an unknown channel
	_, err = client.Process(encodePdu(t, &DataPdu{ChannelID: 5, Data: []byte{1}}))
	require.Error(t, err)
}

func TestStartMessagesAfterCreate(t *testing.T) {
	channel := &recordingChannel{name: "echo", start: [][]byte{{0xCA, 0xFE}}}

	client := NewClient().WithDynamicChannel(channel)
	client.capHandshakeDone = true

	responses, err := client.Process(encodePdu(t, &CreateRequestPdu{ChannelID: 5, ChannelName: "echo"}))
	require.NoError(t, err)
	require.Len(t, responses, 2)

	payload := svcPayload(t, responses[1])
	src := core.NewReadCursor(payload)
	header := decodeHeader(src.ReadU8())

	assert.Equal(t, CmdData, header.Cmd)
	assert.Equal(t, uint32(5), src.ReadU32())
	assert.Equal(t, []byte{0xCA, 0xFE}, src.Remaining())
}

func TestEncodeMessagesFragmentsLargePayload(t *testing.T) {
	big := make([]byte, maxDataChunk*2)
	for i := range big {
		big[i] = byte(i)
	}

	messages, err := EncodeMessages(7, []core.Encode{&rawMessage{payload: big}})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(messages), 2)

	// reassemble: first is DataFirst with the full declared length
	firstPayload := svcPayload(t, messages[0])
	src := core.NewReadCursor(firstPayload)
	header := decodeHeader(src.ReadU8())
	require.Equal(t, CmdDataFirst, header.Cmd)

	first, err := decodeDataFirstPdu(src, header)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(big)), first.TotalLength)

	reassembled := append([]byte{}, first.Data...)

	for _, msg := range messages[1:] {
		payload := svcPayload(t, msg)
		src := core.NewReadCursor(payload)
		header := decodeHeader(src.ReadU8())
		require.Equal(t, CmdData, header.Cmd)

		data, err := decodeDataPdu(src, header)
		require.NoError(t, err)

		reassembled = append(reassembled, data.Data...)
	}

	assert.Equal(t, big, reassembled)
}
