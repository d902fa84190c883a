package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/credssp"
	"github.com/rcarmo/rdp-core/internal/protocol/gcc"
	"github.com/rcarmo/rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
)

func testConfig() Config {
	return Config{
		Credentials: credssp.Credentials{Username: "alice", Password: "hunter2"},
		DesktopSize: DesktopSize{Width: 1920, Height: 1080},
		DesktopScaleFactor: 100,
		KeyboardLayout:     0x0409,
		ClientBuild:        3790,
		ClientName:         "testbox",
		SecurityProtocol:   x224.ProtocolRDP,
	}
}

func mcsFrame(t *testing.T, inner core.Encode) []byte {
	t.Helper()

	encoded, err := core.EncodeVec(x224.DataFrame{Inner: inner})
	require.NoError(t, err)

	return encoded
}

func indicationFrame(t *testing.T, inner core.Encode) []byte {
	t.Helper()

	userData, err := core.EncodeVec(inner)
	require.NoError(t, err)

	return mcsFrame(t, &mcs.SendDataIndication{
		InitiatorID: 1002,
		ChannelID:   1003,
		UserData:    userData,
	})
}

func stepInput(t *testing.T, seq Sequence, input []byte, out *core.WriteBuf) Written {
	t.Helper()

	out.Clear()

	require.NotNil(t, seq.NextPduHint(), "state %s expects input", seq.State().Name())

	written, err := seq.Step(input, out)
	require.NoError(t, err, "state %s", seq.State().Name())

	return written
}

func stepNoInput(t *testing.T, seq Sequence, out *core.WriteBuf) Written {
	t.Helper()

	out.Clear()

	require.Nil(t, seq.NextPduHint(), "state %s expects no input", seq.State().Name())

	written, err := seq.StepNoInput(out)
	require.NoError(t, err, "state %s", seq.State().Name())

	return written
}

func serverGccResponse(t *testing.T, channelIDs []uint16) []byte {
	t.Helper()

	blocks := &gcc.ServerGccBlocks{
		Core: gcc.ServerCoreData{Version: gcc.RdpVersion5Plus},
		Network: gcc.ServerNetworkData{
			MCSChannelID:   1003,
			ChannelIDArray: channelIDs,
		},
	}

	payload, err := core.EncodeVec(&gcc.ConferenceCreateResponse{Blocks: blocks})
	require.NoError(t, err)

	return mcsFrame(t, mcs.NewConnectResponse(payload))
}

// walkToLicensing drives a fresh RDP-only connector through initiation,
// basic settings, channel connection, and secure settings.
func walkToLicensing(t *testing.T, c *ClientConnector, out *core.WriteBuf) {
	t.Helper()

	// connection request out
	written := stepNoInput(t, c, out)
	_, ok := written.Size()
	assert.True(t, ok)
	assert.Equal(t, "ConnectionInitiationWaitConfirm", c.State().Name())

	// confirm selecting RDP: straight to basic settings, no TLS, no CredSSP
	confirm, err := core.EncodeVec(x224.NewConnectionConfirmResponse(0, x224.ProtocolRDP))
	require.NoError(t, err)

	stepInput(t, c, confirm, out)
	assert.Equal(t, "EnhancedSecurityUpgrade", c.State().Name())
	assert.False(t, c.ShouldPerformSecurityUpgrade())

	written = stepNoInput(t, c, out)
	_, ok = written.Size()
	assert.True(t, ok, "connect initial is sent")
	assert.False(t, c.ShouldPerformCredssp())
	assert.Equal(t, "BasicSettingsExchange", c.State().Name())

	stepInput(t, c, serverGccResponse(t, nil), out)
	assert.Equal(t, "ChannelConnection", c.State().Name())

	// erect domain + attach user out
	stepNoInput(t, c, out)
	stepNoInput(t, c, out)

	// attach confirm assigns the user channel
	stepInput(t, c, mcsFrame(t, &mcs.AttachUserConfirm{Result: mcs.RTSuccessful, InitiatorID: 1002}), out)

	// join user channel, then io channel
	for _, id := range []uint16{1002, 1003} {
		stepNoInput(t, c, out)
		stepInput(t, c, mcsFrame(t, &mcs.ChannelJoinConfirm{
			Result:             mcs.RTSuccessful,
			InitiatorID:        1002,
			RequestedChannelID: id,
			ChannelID:          id,
		}), out)
	}

	assert.Equal(t, "SecureSettingsExchange", c.State().Name())

	// client info out
	written = stepNoInput(t, c, out)
	_, ok = written.Size()
	assert.True(t, ok)

	// auto detection is skipped
	stepNoInput(t, c, out)
	assert.Equal(t, "Licensing", c.State().Name())
}

func TestClientConnectorFullWalkRdpOnly(t *testing.T) {
	c := NewClientConnector(testConfig())
	out := core.NewWriteBuf()

	walkToLicensing(t, c, out)

	// informational license error alert advances
	stepInput(t, c, indicationFrame(t, &pdu.ServerLicenseError{}), out)
	assert.Equal(t, "MultitransportBootstrapping", c.State().Name())

	stepNoInput(t, c, out)
	assert.Equal(t, "CapabilitiesExchange", c.State().Name())

	demand := &pdu.DemandActive{
		ShareID:        0x00010001,
		PDUSource:      pdu.ServerChannelID,
		CapabilitySets: pdu.ServerCapabilities(1920, 1080),
	}

	written := stepInput(t, c, indicationFrame(t, demand), out)
	_, ok := written.Size()
	assert.True(t, ok, "confirm active is sent")
	assert.Equal(t, "ConnectionFinalization", c.State().Name())

	// client finalization PDUs out
	for i := 0; i < 4; i++ {
		written = stepNoInput(t, c, out)
		_, ok = written.Size()
		assert.True(t, ok)
	}

	// server replies
	stepInput(t, c, indicationFrame(t, &pdu.SynchronizePdu{ShareID: 0x00010001, PDUSource: pdu.ServerChannelID, TargetUser: 1002}), out)
	stepInput(t, c, indicationFrame(t, &pdu.ControlPdu{ShareID: 0x00010001, PDUSource: pdu.ServerChannelID, Action: pdu.ControlActionCooperate}), out)
	stepInput(t, c, indicationFrame(t, &pdu.ControlPdu{ShareID: 0x00010001, PDUSource: pdu.ServerChannelID, Action: pdu.ControlActionGrantedControl}), out)
	stepInput(t, c, indicationFrame(t, &pdu.FontMapPdu{ShareID: 0x00010001, PDUSource: pdu.ServerChannelID}), out)

	require.True(t, c.State().IsTerminal())
	assert.Equal(t, "Connected", c.State().Name())

	result := c.Result()
	require.NotNil(t, result)
	assert.Equal(t, DesktopSize{Width: 1920, Height: 1080}, result.DesktopSize)
	assert.Equal(t, uint16(1002), result.UserChannelID)
	assert.Equal(t, uint16(1003), result.IoChannelID)
}

func TestClientConnectorNegotiationFailure(t *testing.T) {
	c := NewClientConnector(testConfig())
	out := core.NewWriteBuf()

	stepNoInput(t, c, out)

	failure, err := core.EncodeVec(x224.NewConnectionConfirmFailure(x224.FailureCodeHybridRequired))
	require.NoError(t, err)

	out.Clear()
	_, err = c.Step(failure, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HYBRID_REQUIRED_BY_SERVER")
	assert.Equal(t, "Consumed", c.State().Name())
}

func TestClientConnectorAcceptsDowngrade(t *testing.T) {
	cfg := testConfig()
	cfg.SecurityProtocol = x224.ProtocolSSL | x224.ProtocolHybrid

	c := NewClientConnector(cfg)
	out := core.NewWriteBuf()

	stepNoInput(t, c, out)

	// server downgrades to plain TLS: accepted, no CredSSP phase
	confirm, err := core.EncodeVec(x224.NewConnectionConfirmResponse(0, x224.ProtocolSSL))
	require.NoError(t, err)

	stepInput(t, c, confirm, out)

	assert.Equal(t, x224.ProtocolSSL, c.SelectedProtocol())
	assert.True(t, c.ShouldPerformSecurityUpgrade())

	c.MarkSecurityUpgradeAsDone()

	written := stepNoInput(t, c, out)
	_, ok := written.Size()
	assert.True(t, ok, "connect initial follows the TLS upgrade directly")
	assert.Equal(t, "BasicSettingsExchange", c.State().Name())
}

func TestClientConnectorHybridFlagSequence(t *testing.T) {
	cfg := testConfig()
	cfg.SecurityProtocol = x224.ProtocolSSL | x224.ProtocolHybrid

	c := NewClientConnector(cfg)
	out := core.NewWriteBuf()

	stepNoInput(t, c, out)

	confirm, err := core.EncodeVec(x224.NewConnectionConfirmResponse(0, x224.ProtocolHybrid))
	require.NoError(t, err)

	stepInput(t, c, confirm, out)

	require.True(t, c.ShouldPerformSecurityUpgrade())
	assert.False(t, c.ShouldPerformCredssp())

	c.MarkSecurityUpgradeAsDone()

	stepNoInput(t, c, out)
	require.True(t, c.ShouldPerformCredssp())
	assert.Equal(t, "Credssp", c.State().Name())

	c.MarkCredsspAsDone()
	assert.False(t, c.ShouldPerformCredssp())

	written := stepNoInput(t, c, out)
	_, ok := written.Size()
	assert.True(t, ok)
	assert.Equal(t, "BasicSettingsExchange", c.State().Name())
}

func TestClientConnectorHybridExEarlyAuth(t *testing.T) {
	cfg := testConfig()
	cfg.SecurityProtocol = x224.ProtocolHybrid | x224.ProtocolHybridEx

	c := NewClientConnector(cfg)
	out := core.NewWriteBuf()

	stepNoInput(t, c, out)

	confirm, err := core.EncodeVec(x224.NewConnectionConfirmResponse(0, x224.ProtocolHybridEx))
	require.NoError(t, err)

	stepInput(t, c, confirm, out)
	c.MarkSecurityUpgradeAsDone()
	stepNoInput(t, c, out)
	c.MarkCredsspAsDone()

	// HYBRID_EX consumes the early user authorization result
	require.Equal(t, credssp.EarlyUserAuthResultHint, c.NextPduHint())

	written := stepInput(t, c, []byte{0x00, 0x00, 0x00, 0x00}, out)
	_, ok := written.Size()
	assert.True(t, ok)
	assert.Equal(t, "BasicSettingsExchange", c.State().Name())
}

func TestClientConnectorHybridExAccessDenied(t *testing.T) {
	cfg := testConfig()
	cfg.SecurityProtocol = x224.ProtocolHybridEx

	c := NewClientConnector(cfg)
	out := core.NewWriteBuf()

	stepNoInput(t, c, out)

	confirm, err := core.EncodeVec(x224.NewConnectionConfirmResponse(0, x224.ProtocolHybridEx))
	require.NoError(t, err)

	stepInput(t, c, confirm, out)
	c.MarkSecurityUpgradeAsDone()
	stepNoInput(t, c, out)
	c.MarkCredsspAsDone()

	out.Clear()
	_, err = c.Step([]byte{0x05, 0x00, 0x00, 0x00}, out)
	require.Error(t, err)

	var connErr *Error
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, KindAccessDenied, connErr.Kind)
}

func TestClientConnectorLicensingFatalAlert(t *testing.T) {
	c := NewClientConnector(testConfig())
	out := core.NewWriteBuf()

	walkToLicensing(t, c, out)

	body := make([]byte, 20)
	w := core.NewWriteCursor(body)
	w.WriteU16(pdu.SecLicensePkt)
	w.WriteU16(0)
	w.WriteU8(pdu.LicenseTypeErrorAlert)
	w.WriteU8(0x03)
	w.WriteU16(16)
	w.WriteU32(0x00000004) // ERR_INVALID_CLIENT
	w.WriteU32(pdu.LicenseStateTotalAbort)
	w.WriteU32(0)

	frame := mcsFrame(t, &mcs.SendDataIndication{InitiatorID: 1002, ChannelID: 1003, UserData: body})

	out.Clear()
	_, err := c.Step(frame, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "license error")
}

func TestChannelJoinUnexpectedConfirm(t *testing.T) {
	seq := NewChannelConnectionSequence(1003, []uint16{1004}, false)
	out := core.NewWriteBuf()

	stepNoInput(t, seq, out) // erect domain
	stepNoInput(t, seq, out) // attach user

	stepInput(t, seq, mcsFrame(t, &mcs.AttachUserConfirm{Result: mcs.RTSuccessful, InitiatorID: 1007}), out)

	stepNoInput(t, seq, out) // join request for the user channel

	out.Clear()
	_, err := seq.Step(mcsFrame(t, &mcs.ChannelJoinConfirm{
		Result:             mcs.RTSuccessful,
		InitiatorID:        1007,
		RequestedChannelID: 1099,
		ChannelID:          1099,
	}), out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiting for channel")
}

func TestWrittenRejectsZero(t *testing.T) {
	_, err := WrittenSize("Test", 0)
	require.Error(t, err)

	w, err := WrittenSize("Test", 5)
	require.NoError(t, err)

	n, ok := w.Size()
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	_, ok = WrittenNothing().Size()
	assert.False(t, ok)
}
