package svc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/gcc"
)

type rawPdu struct {
	payload []byte
}

func (p *rawPdu) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	dst.WriteSlice(p.payload)

	return nil
}

func (p *rawPdu) Name() string { return "RawPdu" }

func (p *rawPdu) Size() int { return len(p.payload) }

type echoChannel struct {
	name     gcc.ChannelName
	received [][]byte
}

func (c *echoChannel) ChannelName() gcc.ChannelName { return c.name }

func (c *echoChannel) CompressionCondition() CompressionCondition { return CompressionNever }

func (c *echoChannel) Start() ([]Message, error) { return nil, nil }

func (c *echoChannel) IsDrdynvc() bool { return false }

func (c *echoChannel) Process(payload []byte) ([]Message, error) {
	copied := make([]byte, len(payload))
	copy(copied, payload)
	c.received = append(c.received, copied)

	return []Message{{PDU: &rawPdu{payload: copied}}}, nil
}

func TestStaticChannelSetIndices(t *testing.T) {
	set := NewStaticChannelSet()

	clip := &echoChannel{name: gcc.ChannelNameCliprdr}
	sound := &echoChannel{name: gcc.ChannelNameRdpsnd}

	set.Insert(clip)
	set.Insert(sound)

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []gcc.ChannelName{gcc.ChannelNameCliprdr, gcc.ChannelNameRdpsnd}, set.ChannelNames())

	// duplicate insert replaces, not duplicates
	set.Insert(&echoChannel{name: gcc.ChannelNameCliprdr})
	assert.Equal(t, 2, set.Len())

	set.AttachChannelID(gcc.ChannelNameCliprdr, 1004)
	set.AttachChannelID(gcc.ChannelNameRdpsnd, 1005)

	assert.NotNil(t, set.GetByID(1004))
	assert.Equal(t, gcc.ChannelNameRdpsnd, set.GetByID(1005).ChannelName())

	id, ok := set.ChannelIDByName(gcc.ChannelNameCliprdr)
	require.True(t, ok)
	assert.Equal(t, uint16(1004), id)

	assert.Equal(t, []uint16{1004, 1005}, set.ChannelIDs())
}

func TestChunkifySmallMessage(t *testing.T) {
	msg := Message{PDU: &rawPdu{payload: []byte{1, 2, 3}}, Flags: ChannelFlagShowProtocol}

	chunks, err := ChunkifyMessage(msg)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	src := core.NewReadCursor(chunks[0])
	header, err := decodeChannelPduHeader(src)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), header.Length)
	assert.Equal(t, ChannelFlagFirst|ChannelFlagLast|ChannelFlagShowProtocol, header.Flags)
	assert.Equal(t, []byte{1, 2, 3}, src.Remaining())
}

func TestChunkifyAndReassembleLargeMessage(t *testing.T) {
	payload := make([]byte, ChannelChunkLength*2+100)
	for i := range payload {
		payload[i] = byte(i)
	}

	chunks, err := ChunkifyMessage(Message{PDU: &rawPdu{payload: payload}})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	set := NewStaticChannelSet()
	echo := &echoChannel{name: gcc.ChannelNameCliprdr}
	set.Insert(echo)
	set.AttachChannelID(gcc.ChannelNameCliprdr, 1004)

	// the emitted chunks reassemble to exactly the original bytes
	var responses []Message
	for i, chunk := range chunks {
		out, err := set.ProcessPayload(1004, chunk)
		require.NoError(t, err)

		if i < len(chunks)-1 {
			assert.Nil(t, out)
		} else {
			responses = out
		}
	}

	require.Len(t, echo.received, 1)
	assert.Equal(t, payload, echo.received[0])
	require.Len(t, responses, 1)
}

func TestProcessPayloadUnknownChannel(t *testing.T) {
	set := NewStaticChannelSet()

	_, err := set.ProcessPayload(1099, []byte{0, 0, 0, 0, 0, 0, 0, 0})
	require.Error(t, err)
}

func TestProcessPayloadFragmentWithoutFirst(t *testing.T) {
	set := NewStaticChannelSet()
	set.Insert(&echoChannel{name: gcc.ChannelNameCliprdr})
	set.AttachChannelID(gcc.ChannelNameCliprdr, 1004)

	chunk := make([]byte, 12)
	w := core.NewWriteCursor(chunk)
	ChannelPduHeader{Length: 8, Flags: ChannelFlagLast}.encode(w)
	w.WriteU32(0)

	_, err := set.ProcessPayload(1004, chunk)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHANNEL_FLAG_FIRST")
}

func TestProcessPayloadOverrun(t *testing.T) {
	set := NewStaticChannelSet()
	set.Insert(&echoChannel{name: gcc.ChannelNameCliprdr})
	set.AttachChannelID(gcc.ChannelNameCliprdr, 1004)

	chunk := make([]byte, 8+4)
	w := core.NewWriteCursor(chunk)
	ChannelPduHeader{Length: 2, Flags: ChannelFlagFirst | ChannelFlagLast}.encode(w)
	w.WriteU32(0)

	_, err := set.ProcessPayload(1004, chunk)
	require.Error(t, err)
}

func TestEncodeMessagesWrapsInMcs(t *testing.T) {
	buf := core.NewWriteBuf()

	n, err := EncodeMessages(buf, 1007, 1004, []Message{
		{PDU: &rawPdu{payload: []byte{0xAA, 0xBB}}},
	})
	require.NoError(t, err)
	assert.Equal(t, n, buf.FilledLen())

	// TPKT + X.224 data framing around the MCS send data request
	frame := buf.Filled()
	assert.Equal(t, uint8(0x03), frame[0])
	assert.Equal(t, uint8(0xF0), frame[5])
}
