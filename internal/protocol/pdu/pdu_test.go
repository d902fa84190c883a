package pdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/core"
)

func TestClientInfoRoundTrip(t *testing.T) {
	info := NewClientInfo("CORP", "alice", "hunter2")
	info.PerformanceFlags = PerfDisableWallpaper
	info.AutoReconnectCookie = []byte{0x01, 0x02, 0x03}

	encoded, err := core.EncodeVec(info)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), len(encoded))

	decoded, err := DecodeClientInfo(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Equal(t, "CORP", decoded.Domain)
	assert.Equal(t, "alice", decoded.Username)
	assert.Equal(t, "hunter2", decoded.Password)
	assert.Equal(t, PerfDisableWallpaper, decoded.PerformanceFlags)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, decoded.AutoReconnectCookie)
}

func TestClientInfoEmptyDomain(t *testing.T) {
	info := NewClientInfo("", "bob", "")

	encoded, err := core.EncodeVec(info)
	require.NoError(t, err)

	decoded, err := DecodeClientInfo(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Empty(t, decoded.Domain)
	assert.Equal(t, "bob", decoded.Username)
}

func TestServerLicenseErrorRoundTrip(t *testing.T) {
	serverError := &ServerLicenseError{}

	encoded, err := core.EncodeVec(serverError)
	require.NoError(t, err)
	assert.Equal(t, serverError.Size(), len(encoded))

	decoded, err := DecodeLicenseMessage(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Equal(t, LicenseTypeErrorAlert, decoded.Preamble.MsgType)
	assert.Equal(t, LicenseStatusValidClient, decoded.ErrorCode)
	assert.Equal(t, LicenseStateNoTransition, decoded.StateTransition)
	assert.True(t, decoded.IsInformational())
}

func TestLicenseErrorAlertFatal(t *testing.T) {
	// an error alert with a non-informational status must not advance
	body := make([]byte, 20)
	w := core.NewWriteCursor(body)

	w.WriteU16(SecLicensePkt)
	w.WriteU16(0)
	w.WriteU8(LicenseTypeErrorAlert)
	w.WriteU8(0x03)
	w.WriteU16(16)
	w.WriteU32(0x00000001) // ERR_INVALID_SERVER_CERTIFICATE
	w.WriteU32(LicenseStateTotalAbort)
	w.WriteU32(0)

	decoded, err := DecodeLicenseMessage(core.NewReadCursor(body))
	require.NoError(t, err)

	assert.False(t, decoded.IsInformational())
}

func TestDecodeLicenseMessageRejectsMissingFlag(t *testing.T) {
	body := []byte{0x00, 0x00, 0x00, 0x00, 0xFF, 0x03, 0x04, 0x00}

	_, err := DecodeLicenseMessage(core.NewReadCursor(body))
	require.Error(t, err)
}

func TestCapabilitySizeLaw(t *testing.T) {
	sets := ClientCapabilities(1920, 1080, 0x0409)

	require.Len(t, sets, 15)

	expected := map[CapabilitySetType]int{
		CapsTypeGeneral:         24,
		CapsTypeBitmap:          28,
		CapsTypeOrder:           88,
		CapsTypeBitmapCacheRev2: 40,
		CapsTypePointer:         10,
		CapsTypeInput:           88,
		CapsTypeGlyphCache:      52,
		CapsTypeVirtualChannel:  12,
	}

	for _, set := range sets {
		if want, ok := expected[set.Type]; ok {
			assert.Equal(t, want, set.size(), "capability 0x%02X", uint16(set.Type))
		}
	}
}

func TestDemandActiveRoundTrip(t *testing.T) {
	demand := &DemandActive{
		ShareID:        0x00010001,
		PDUSource:      ServerChannelID,
		CapabilitySets: ServerCapabilities(1920, 1080),
	}

	encoded, err := core.EncodeVec(demand)
	require.NoError(t, err)
	assert.Equal(t, demand.Size(), len(encoded))

	msg, err := DecodeShareMessage(core.NewReadCursor(encoded))
	require.NoError(t, err)

	require.NotNil(t, msg.DemandActive)
	assert.Equal(t, demand.ShareID, msg.DemandActive.ShareID)
	assert.Len(t, msg.DemandActive.CapabilitySets, len(demand.CapabilitySets))

	bitmap := msg.DemandActive.FindCapability(CapsTypeBitmap)
	require.NotNil(t, bitmap)

	body := core.NewReadCursor(bitmap.Data)
	body.Advance(8)
	assert.Equal(t, uint16(1920), body.ReadU16())
	assert.Equal(t, uint16(1080), body.ReadU16())
}

func TestConfirmActiveRoundTrip(t *testing.T) {
	confirm := &ConfirmActive{
		ShareID:        0x00010001,
		PDUSource:      1007,
		CapabilitySets: ClientCapabilities(1280, 720, 0x0409),
	}

	encoded, err := core.EncodeVec(confirm)
	require.NoError(t, err)
	assert.Equal(t, confirm.Size(), len(encoded))

	msg, err := DecodeShareMessage(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Equal(t, TypeConfirmActive, msg.Control.PDUType)
	require.NotNil(t, msg.DemandActive)
	assert.Equal(t, uint16(0x03EA), msg.DemandActive.OriginatorID)
	assert.Len(t, msg.DemandActive.CapabilitySets, len(confirm.CapabilitySets))
}

func TestFinalizationPduRoundTrips(t *testing.T) {
	sync := &SynchronizePdu{ShareID: 7, PDUSource: 1007, TargetUser: ServerChannelID}

	encoded, err := core.EncodeVec(sync)
	require.NoError(t, err)
	assert.Equal(t, sync.Size(), len(encoded))

	msg, err := DecodeShareMessage(core.NewReadCursor(encoded))
	require.NoError(t, err)
	require.NotNil(t, msg.Data)
	assert.Equal(t, Type2Synchronize, msg.Data.Header.PDUType2)

	control := &ControlPdu{ShareID: 7, PDUSource: 1007, Action: ControlActionCooperate}

	encoded, err = core.EncodeVec(control)
	require.NoError(t, err)

	msg, err = DecodeShareMessage(core.NewReadCursor(encoded))
	require.NoError(t, err)
	require.NotNil(t, msg.Data)
	assert.Equal(t, Type2Control, msg.Data.Header.PDUType2)
	assert.Equal(t, ControlActionCooperate, msg.Data.ControlAction)

	fontList := &FontListPdu{ShareID: 7, PDUSource: 1007}

	encoded, err = core.EncodeVec(fontList)
	require.NoError(t, err)

	msg, err = DecodeShareMessage(core.NewReadCursor(encoded))
	require.NoError(t, err)
	require.NotNil(t, msg.Data)
	assert.Equal(t, Type2Fontlist, msg.Data.Header.PDUType2)

	fontMap := &FontMapPdu{ShareID: 7, PDUSource: ServerChannelID}

	encoded, err = core.EncodeVec(fontMap)
	require.NoError(t, err)

	msg, err = DecodeShareMessage(core.NewReadCursor(encoded))
	require.NoError(t, err)
	require.NotNil(t, msg.Data)
	assert.Equal(t, Type2Fontmap, msg.Data.Header.PDUType2)
}

func TestDecodeShareMessageErrorInfo(t *testing.T) {
	body := make([]byte, shareDataHeaderLength+4)
	w := core.NewWriteCursor(body)

	header := newShareDataHeader(9, ServerChannelID, Type2ErrorInfo)
	header.ShareControlHeader.TotalLength = uint16(len(body))
	header.encode(w)
	w.WriteU32(0x000010CC)

	msg, err := DecodeShareMessage(core.NewReadCursor(body))
	require.NoError(t, err)

	require.NotNil(t, msg.Data)
	assert.Equal(t, uint32(0x000010CC), msg.Data.ErrorInfo)
}
