package gcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/core"
)

func TestChannelName(t *testing.T) {
	name := NewChannelName("cliprdr")

	assert.Equal(t, ChannelName{'c', 'l', 'i', 'p', 'r', 'd', 'r', 0}, name)
	assert.Equal(t, "cliprdr", name.String())

	// names longer than seven characters are truncated
	long := NewChannelName("verylongname")
	assert.Equal(t, "verylon", long.String())
	assert.Equal(t, byte(0), long[7])
}

func clientBlocksFixture() *ClientGccBlocks {
	return &ClientGccBlocks{
		Core: ClientCoreData{
			Version:                RdpVersion5Plus,
			DesktopWidth:           1920,
			DesktopHeight:          1080,
			KeyboardLayout:         0x0409,
			ClientBuild:            3790,
			ClientName:             "testbox",
			KeyboardType:           4,
			KeyboardFunctionKey:    12,
			HighColorDepth:         HighColor24BPP,
			SupportedColorDepths:   Support32BPP | Support24BPP,
			EarlyCapabilityFlags:   ECFSupportErrInfoPDU,
			ServerSelectedProtocol: 1,
			DesktopScaleFactor:     100,
			DeviceScaleFactor:      100,
		},
		Network: ClientNetworkData{
			Channels: []ChannelDef{
				{Name: ChannelNameCliprdr, Options: ChannelOptionInitialized},
				{Name: ChannelNameRdpsnd, Options: ChannelOptionInitialized},
				{Name: ChannelNameDrdynvc, Options: ChannelOptionInitialized | ChannelOptionCompressRdp},
			},
		},
	}
}

func TestClientGccBlocksRoundTrip(t *testing.T) {
	blocks := clientBlocksFixture()

	encoded := make([]byte, blocks.Size())
	_, err := core.EncodeBytes(blocks, encoded)
	require.NoError(t, err)

	decoded, err := DecodeClientGccBlocks(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Equal(t, blocks.Core.DesktopWidth, decoded.Core.DesktopWidth)
	assert.Equal(t, blocks.Core.DesktopHeight, decoded.Core.DesktopHeight)
	assert.Equal(t, blocks.Core.ClientName, decoded.Core.ClientName)
	assert.Equal(t, blocks.Core.KeyboardLayout, decoded.Core.KeyboardLayout)
	assert.Equal(t, blocks.Core.DesktopScaleFactor, decoded.Core.DesktopScaleFactor)

	require.Len(t, decoded.Network.Channels, 3)
	assert.Equal(t, ChannelNameCliprdr, decoded.Network.Channels[0].Name)
	assert.Equal(t, ChannelNameDrdynvc, decoded.Network.Channels[2].Name)
}

func TestConferenceCreateRequestRoundTrip(t *testing.T) {
	request := &ConferenceCreateRequest{Blocks: clientBlocksFixture()}

	encoded, err := core.EncodeVec(request)
	require.NoError(t, err)
	assert.Equal(t, request.Size(), len(encoded))

	decoded, err := DecodeConferenceCreateRequest(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Equal(t, request.Blocks.Core.DesktopWidth, decoded.Core.DesktopWidth)
	assert.Equal(t, request.Blocks.ChannelNames(), decoded.ChannelNames())
}

func TestConferenceCreateResponseRoundTrip(t *testing.T) {
	blocks := &ServerGccBlocks{
		Core: ServerCoreData{
			Version:                  RdpVersion5Plus,
			ClientRequestedProtocols: 3,
		},
		Network: ServerNetworkData{
			MCSChannelID:   1003,
			ChannelIDArray: []uint16{1004, 1005, 1006},
		},
	}

	response := &ConferenceCreateResponse{Blocks: blocks}

	encoded, err := core.EncodeVec(response)
	require.NoError(t, err)
	assert.Equal(t, response.Size(), len(encoded))

	decoded, err := DecodeConferenceCreateResponse(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Equal(t, uint16(1003), decoded.Network.MCSChannelID)
	assert.Equal(t, []uint16{1004, 1005, 1006}, decoded.Network.ChannelIDArray)
	assert.Equal(t, blocks.Core.ClientRequestedProtocols, decoded.Core.ClientRequestedProtocols)
}

func TestServerNetworkDataPadsOddChannelCount(t *testing.T) {
	data := &ServerNetworkData{MCSChannelID: 1003, ChannelIDArray: []uint16{1004}}

	assert.Equal(t, 12, data.Size())

	encoded := make([]byte, data.Size())
	_, err := core.EncodeBytes(data, encoded)
	require.NoError(t, err)
}

func TestSkipChannelJoinFlag(t *testing.T) {
	coreData := &ClientCoreData{EarlyCapabilityFlags: ECFSupportSkipChannelJoin}

	assert.True(t, coreData.SupportsSkipChannelJoin())
	assert.False(t, (&ClientCoreData{}).SupportsSkipChannelJoin())
}
