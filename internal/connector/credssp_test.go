package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/credssp"
)

// scriptedGenerator yields a fixed list of network requests, then completes
// with the given state.
type scriptedGenerator struct {
	requests  []*credssp.NetworkRequest
	state     *credssp.ClientState
	resumed   [][]byte
	nextIndex int
}

func (g *scriptedGenerator) Start() (credssp.Yield, error) {
	return g.yield()
}

func (g *scriptedGenerator) Resume(response []byte) (credssp.Yield, error) {
	g.resumed = append(g.resumed, response)
	return g.yield()
}

func (g *scriptedGenerator) yield() (credssp.Yield, error) {
	if g.nextIndex < len(g.requests) {
		req := g.requests[g.nextIndex]
		g.nextIndex++

		return credssp.Yield{NetworkRequest: req}, nil
	}

	return credssp.Yield{State: g.state}, nil
}

// scriptedEngine hands out one generator per ProcessTsRequest call.
type scriptedEngine struct {
	generators []*scriptedGenerator
	calls      int
	received   []*credssp.TsRequest
}

func (e *scriptedEngine) ProcessTsRequest(req *credssp.TsRequest) credssp.Generator {
	e.received = append(e.received, req)
	g := e.generators[e.calls]
	e.calls++
	return g
}

func drain(t *testing.T, g credssp.Generator, resolver func(*credssp.NetworkRequest) []byte) *credssp.ClientState {
	t.Helper()

	yield, err := g.Start()
	require.NoError(t, err)

	for yield.NetworkRequest != nil {
		yield, err = g.Resume(resolver(yield.NetworkRequest))
		require.NoError(t, err)
	}

	require.NotNil(t, yield.State)

	return yield.State
}

func TestCredsspSequenceWithKdcProxy(t *testing.T) {
	firstReply := &credssp.TsRequest{Version: 6, NegoTokens: [][]byte{{0x01}}}
	finalReply := &credssp.TsRequest{Version: 6, AuthInfo: []byte{0x02}}

	engine := &scriptedEngine{
		generators: []*scriptedGenerator{
			{
				// the first step resolves the KDC twice before replying
				requests: []*credssp.NetworkRequest{
					{Protocol: credssp.ProtocolHTTPS, URL: "https://kdc.example.com/KdcProxy", Data: []byte{0xA0}},
					{Protocol: credssp.ProtocolHTTPS, URL: "https://kdc.example.com/KdcProxy", Data: []byte{0xA1}},
				},
				state: &credssp.ClientState{ReplyNeeded: firstReply},
			},
			{
				state: &credssp.ClientState{ReplyNeeded: finalReply, Finished: true},
			},
		},
	}

	seq := NewCredsspSequence(engine)
	out := core.NewWriteBuf()

	var resolved []string
	resolver := func(req *credssp.NetworkRequest) []byte {
		resolved = append(resolved, req.URL)
		return []byte{0x4B} // canned KRB_AS_REP
	}

	// first step: client speaks first, two network round trips
	state := drain(t, seq.ProcessTsRequest(nil), resolver)

	written, err := seq.HandleProcessResult(state, out)
	require.NoError(t, err)

	n, ok := written.Size()
	require.True(t, ok)
	assert.Equal(t, "Ongoing", seq.State().Name())
	assert.Len(t, resolved, 2)
	assert.Equal(t, [][]byte{{0x4B}, {0x4B}}, engine.generators[0].resumed)

	// the emitted bytes are the encoded TsRequest, sized by the hint
	size, final, ok2, err := credssp.TsRequestHint.FindSize(out.Filled()[:n])
	require.NoError(t, err)
	assert.True(t, ok2 && final)
	assert.Equal(t, n, size)

	// server answer comes back in
	serverFrame, err := core.EncodeVec(&credssp.TsRequest{Version: 6, NegoTokens: [][]byte{{0x03}}})
	require.NoError(t, err)

	require.NotNil(t, seq.NextPduHint())

	req, err := seq.DecodeServerMessage(serverFrame)
	require.NoError(t, err)

	// second step finishes the exchange
	out.Clear()
	state = drain(t, seq.ProcessTsRequest(req), resolver)

	_, err = seq.HandleProcessResult(state, out)
	require.NoError(t, err)

	assert.True(t, seq.State().IsTerminal())
	assert.Equal(t, "Finished", seq.State().Name())
	assert.Nil(t, seq.NextPduHint())
	assert.Equal(t, 2, engine.calls)
}

func TestCredsspSequenceServerError(t *testing.T) {
	seq := NewCredsspSequence(&scriptedEngine{})

	frame, err := core.EncodeVec(&credssp.TsRequest{Version: 6, ErrorCode: 0xC000006D})
	require.NoError(t, err)

	_, err = seq.DecodeServerMessage(frame)
	require.Error(t, err)

	assert.Equal(t, "ServerError", seq.State().Name())
	assert.True(t, seq.State().IsTerminal())
}
