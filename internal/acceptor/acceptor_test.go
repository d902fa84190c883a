package acceptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/connector"
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/credssp"
	"github.com/rcarmo/rdp-core/internal/drdynvc"
	"github.com/rcarmo/rdp-core/internal/protocol/gcc"
	"github.com/rcarmo/rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/rdp-core/internal/protocol/pcb"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
	"github.com/rcarmo/rdp-core/internal/svc"
)

// loopChannel is a no-op static channel handler for the loopback handshake.
type loopChannel struct {
	name gcc.ChannelName
}

func (c *loopChannel) ChannelName() gcc.ChannelName { return c.name }

func (c *loopChannel) CompressionCondition() svc.CompressionCondition { return svc.CompressionNever }

func (c *loopChannel) Start() ([]svc.Message, error) { return nil, nil }

func (c *loopChannel) Process([]byte) ([]svc.Message, error) { return nil, nil }

func (c *loopChannel) IsDrdynvc() bool { return false }

func mcsFrame(t *testing.T, inner core.Encode) []byte {
	t.Helper()

	encoded, err := core.EncodeVec(x224.DataFrame{Inner: inner})
	require.NoError(t, err)

	return encoded
}

// feed drives the sub-machine with one inbound frame and collects any
// output produced by the follow-up no-input steps.
func feed(t *testing.T, seq *ChannelConnectionSequence, frame []byte, out *core.WriteBuf) int {
	t.Helper()

	out.Clear()

	require.NotNil(t, seq.NextPduHint())

	_, err := seq.Step(frame, out)
	require.NoError(t, err)

	total := 0

	for !seq.IsDone() && seq.NextPduHint() == nil {
		written, err := seq.StepNoInput(out)
		require.NoError(t, err)

		if n, ok := written.Size(); ok {
			total += n
		}
	}

	return total
}

func TestChannelJoinHappyPathArbitraryOrder(t *testing.T) {
	// user=1007, io=1003, cliprdr=1004, rdpsnd=1005, drdynvc=1006
	seq := NewChannelConnectionSequence(1007, 1003, []uint16{1004, 1005, 1006})
	out := core.NewWriteBuf()

	feed(t, seq, mcsFrame(t, &mcs.ErectDomainPdu{}), out)
	assert.Equal(t, "WaitAttachUserRequest", seq.State().Name())

	n := feed(t, seq, mcsFrame(t, &mcs.AttachUserRequest{}), out)
	assert.Greater(t, n, 0, "attach user confirm is sent")

	// the client picks an arbitrary join order
	for _, id := range []uint16{1006, 1003, 1007, 1004, 1005} {
		n = feed(t, seq, mcsFrame(t, &mcs.ChannelJoinRequest{InitiatorID: 1007, ChannelID: id}), out)
		require.Greater(t, n, 0, "join confirm for %d", id)

		// the confirm echoes the requested channel id
		src := core.NewReadCursor(out.Filled())
		require.NoError(t, x224.DecodeDataFrame(src))

		msg, err := mcs.DecodeMessage(src)
		require.NoError(t, err)
		require.NotNil(t, msg.ChannelJoinConfirm)
		assert.Equal(t, id, msg.ChannelJoinConfirm.ChannelID)
		assert.Equal(t, uint16(1007), msg.ChannelJoinConfirm.InitiatorID)
	}

	assert.True(t, seq.IsDone())
	assert.Equal(t, "AllJoined", seq.State().Name())
}

func TestChannelJoinRejectsUnknownChannel(t *testing.T) {
	seq := NewChannelConnectionSequence(1007, 1003, []uint16{1004, 1005, 1006})
	out := core.NewWriteBuf()

	feed(t, seq, mcsFrame(t, &mcs.ErectDomainPdu{}), out)
	feed(t, seq, mcsFrame(t, &mcs.AttachUserRequest{}), out)

	out.Clear()
	_, err := seq.Step(mcsFrame(t, &mcs.ChannelJoinRequest{InitiatorID: 1007, ChannelID: 1099}), out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected channel_id in MCS Channel Join Request")

	// no join confirm is emitted
	assert.Equal(t, 0, out.FilledLen())
	assert.Equal(t, "Consumed", seq.State().Name())
}

func TestChannelJoinDuplicateRejected(t *testing.T) {
	seq := NewChannelConnectionSequence(1007, 1003, []uint16{1004})
	out := core.NewWriteBuf()

	feed(t, seq, mcsFrame(t, &mcs.ErectDomainPdu{}), out)
	feed(t, seq, mcsFrame(t, &mcs.AttachUserRequest{}), out)
	feed(t, seq, mcsFrame(t, &mcs.ChannelJoinRequest{InitiatorID: 1007, ChannelID: 1004}), out)

	out.Clear()
	_, err := seq.Step(mcsFrame(t, &mcs.ChannelJoinRequest{InitiatorID: 1007, ChannelID: 1004}), out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected channel_id")
}

func TestSkipChannelJoin(t *testing.T) {
	seq := SkipChannelJoin(1007)
	out := core.NewWriteBuf()

	feed(t, seq, mcsFrame(t, &mcs.ErectDomainPdu{}), out)

	n := feed(t, seq, mcsFrame(t, &mcs.AttachUserRequest{}), out)
	assert.Greater(t, n, 0)

	assert.True(t, seq.IsDone())
}

func TestSelectProtocol(t *testing.T) {
	selected, failure := selectProtocol(x224.ProtocolSSL|x224.ProtocolHybrid, x224.ProtocolSSL|x224.ProtocolHybrid)
	assert.Equal(t, x224.ProtocolHybrid, selected)
	assert.Zero(t, failure)

	selected, failure = selectProtocol(x224.ProtocolSSL, x224.ProtocolSSL|x224.ProtocolHybrid)
	assert.Equal(t, x224.ProtocolSSL, selected)
	assert.Zero(t, failure)

	selected, failure = selectProtocol(x224.ProtocolRDP, x224.ProtocolRDP)
	assert.Equal(t, x224.ProtocolRDP, selected)
	assert.Zero(t, failure)

	_, failure = selectProtocol(x224.ProtocolSSL, x224.ProtocolHybrid)
	assert.Equal(t, x224.FailureCodeHybridRequired, failure)
}

// loopback wires a client connector and an acceptor together in memory and
// pumps frames between them until both sides are connected.
func TestLoopbackHandshakeRdpOnly(t *testing.T) {
	client := connector.NewClientConnector(connector.Config{
		Credentials:      credssp.Credentials{Username: "alice", Password: "hunter2", Domain: "CORP"},
		DesktopSize:      connector.DesktopSize{Width: 1920, Height: 1080},
		KeyboardLayout:   0x0409,
		ClientBuild:      3790,
		ClientName:       "looptest",
		SecurityProtocol: x224.ProtocolRDP,
	})

	client.WithStaticChannel(&loopChannel{name: gcc.ChannelNameCliprdr})
	client.WithStaticChannel(&loopChannel{name: gcc.ChannelNameRdpsnd})
	client.WithStaticChannel(drdynvc.NewClient())

	server := NewAcceptor(Config{
		DesktopSize:        connector.DesktopSize{Width: 1920, Height: 1080},
		SupportedProtocols: x224.ProtocolRDP,
	})

	toServer := pump{}
	toClient := pump{}

	out := core.NewWriteBuf()

	for iterations := 0; !(client.State().IsTerminal() && server.State().IsTerminal()); iterations++ {
		require.Less(t, iterations, 200, "handshake does not converge")

		progressed := false

		progressed = advance(t, client, &toClient, &toServer, out) || progressed
		progressed = advance(t, server, &toServer, &toClient, out) || progressed

		require.True(t, progressed, "deadlock between client %s and server %s",
			client.State().Name(), server.State().Name())
	}

	clientResult := client.Result()
	require.NotNil(t, clientResult)

	assert.Equal(t, connector.DesktopSize{Width: 1920, Height: 1080}, clientResult.DesktopSize)
	assert.Equal(t, uint16(1002), clientResult.UserChannelID)
	assert.Equal(t, uint16(1003), clientResult.IoChannelID)

	// the three requested channels got ids and bindings
	require.Len(t, clientResult.StaticChannels, 3)
	assert.Equal(t, gcc.ChannelNameCliprdr, clientResult.StaticChannels[1004])
	assert.Equal(t, gcc.ChannelNameRdpsnd, clientResult.StaticChannels[1005])
	assert.Equal(t, gcc.ChannelNameDrdynvc, clientResult.StaticChannels[1006])

	serverResult := server.Result()
	require.NotNil(t, serverResult)
	require.NotNil(t, serverResult.ClientInfo)

	assert.Equal(t, "alice", serverResult.ClientInfo.Username)
	assert.Equal(t, "CORP", serverResult.ClientInfo.Domain)
	require.NotNil(t, serverResult.ClientBlocks)
	assert.Equal(t, uint16(1920), serverResult.ClientBlocks.Core.DesktopWidth)
	assert.Equal(t, "looptest", serverResult.ClientBlocks.Core.ClientName)
	assert.Len(t, serverResult.StaticChannels, 3)
}

// pump queues whole frames between the two peers.
type pump struct {
	frames [][]byte
}

func (p *pump) push(b []byte) {
	for len(b) > 0 {
		size, _, ok, err := tpkt.Hint.FindSize(b)
		if err != nil || !ok || size > len(b) {
			// keep unsplittable bytes as one frame
			rest := make([]byte, len(b))
			copy(rest, b)
			p.frames = append(p.frames, rest)
			return
		}

		frame := make([]byte, size)
		copy(frame, b[:size])
		p.frames = append(p.frames, frame)

		b = b[size:]
	}
}

func (p *pump) pop() []byte {
	if len(p.frames) == 0 {
		return nil
	}

	frame := p.frames[0]
	p.frames = p.frames[1:]

	return frame
}

// advance runs one step of a sequence if it can make progress, moving its
// output into the peer's inbox.
func advance(t *testing.T, seq connector.Sequence, inbox, outbox *pump, out *core.WriteBuf) bool {
	t.Helper()

	if seq.State().IsTerminal() {
		return false
	}

	out.Clear()

	var (
		written connector.Written
		err     error
	)

	if hint := seq.NextPduHint(); hint != nil {
		frame := inbox.pop()
		if frame == nil {
			return false
		}

		written, err = seq.Step(frame, out)
	} else {
		written, err = seq.StepNoInput(out)
	}

	require.NoError(t, err, "state %s", seq.State().Name())

	if n, ok := written.Size(); ok {
		outbox.push(out.Filled()[:n])
	}

	return true
}

func TestAcceptorPreconnectionBlob(t *testing.T) {
	server := NewAcceptor(Config{
		DesktopSize:             connector.DesktopSize{Width: 1024, Height: 768},
		SupportedProtocols:      x224.ProtocolRDP,
		AcceptPreconnectionBlob: true,
	})

	blob := &pcb.PreconnectionBlob{Version: pcb.VersionV2, ID: 99, Payload: "target-vm"}

	encoded, err := core.EncodeVec(blob)
	require.NoError(t, err)

	// the hint sizes the PCB frame by its leading cbSize
	size, final, ok, err := server.NextPduHint().FindSize(encoded)
	require.NoError(t, err)
	require.True(t, ok && final)
	assert.Equal(t, len(encoded), size)

	out := core.NewWriteBuf()

	_, err = server.Step(encoded, out)
	require.NoError(t, err)

	// the acceptor stays in initiation, now expecting the CR
	assert.Equal(t, "ConnectionInitiationWaitRequest", server.State().Name())

	request, err := core.EncodeVec(&x224.ConnectionRequest{RequestedProtocols: x224.ProtocolRDP})
	require.NoError(t, err)

	out.Clear()
	written, err := server.Step(request, out)
	require.NoError(t, err)

	_, hasOutput := written.Size()
	assert.True(t, hasOutput, "connection confirm is sent")

	require.NotNil(t, server.pcb)
	assert.Equal(t, "target-vm", server.pcb.Payload)
}
