package connector

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/credssp"
	"github.com/rcarmo/rdp-core/internal/logging"
	"github.com/rcarmo/rdp-core/internal/protocol/gcc"
	"github.com/rcarmo/rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
	"github.com/rcarmo/rdp-core/internal/svc"
)

// DesktopSize is the requested desktop geometry.
type DesktopSize struct {
	Width  uint16
	Height uint16
}

// Config carries everything the client connector needs to drive a handshake.
type Config struct {
	Credentials        credssp.Credentials
	DesktopSize        DesktopSize
	DesktopScaleFactor uint32

	KeyboardLayout      uint32
	KeyboardType        uint32
	KeyboardSubType     uint32
	KeyboardFunctionKey uint32

	ClientBuild uint32
	ClientName  string

	// SecurityProtocol is the bitmask offered in the X.224 Connection
	// Request.
	SecurityProtocol x224.NegotiationProtocol

	AutoLogon           bool
	EnableAudioPlayback bool
	RedirectClipboard   bool
	PerformanceFlags    uint32
	AutoReconnectCookie []byte

	Kerberos *credssp.KerberosConfig

	NoServerPointer          bool
	PointerSoftwareRendering bool
}

// clientState is the closed state union of the client connector.
type clientState int

const (
	stateConsumed clientState = iota
	stateInitiationSendRequest
	stateInitiationWaitConfirm
	stateEnhancedSecurityUpgrade
	stateCredssp
	stateBasicSettingsWaitResponse
	stateChannelConnection
	stateSecureSettingsExchange
	stateConnectTimeAutoDetection
	stateLicensing
	stateMultitransportBootstrapping
	stateCapabilitiesExchange
	stateConnectionFinalization
	stateConnected
)

var clientStateNames = map[clientState]string{
	stateConsumed:                    "Consumed",
	stateInitiationSendRequest:       "ConnectionInitiationSendRequest",
	stateInitiationWaitConfirm:       "ConnectionInitiationWaitConfirm",
	stateEnhancedSecurityUpgrade:     "EnhancedSecurityUpgrade",
	stateCredssp:                     "Credssp",
	stateBasicSettingsWaitResponse:   "BasicSettingsExchange",
	stateChannelConnection:           "ChannelConnection",
	stateSecureSettingsExchange:      "SecureSettingsExchange",
	stateConnectTimeAutoDetection:    "ConnectTimeAutoDetection",
	stateLicensing:                   "Licensing",
	stateMultitransportBootstrapping: "MultitransportBootstrapping",
	stateCapabilitiesExchange:        "CapabilitiesExchange",
	stateConnectionFinalization:      "ConnectionFinalization",
	stateConnected:                   "Connected",
}

func (s clientState) Name() string {
	return clientStateNames[s]
}

func (s clientState) IsTerminal() bool {
	return s == stateConnected
}

// ClientConnector drives the client side of the RDP connection sequence. It
// is sans-I/O: the driver shuttles frames in and out and performs the TLS
// and CredSSP work the connector flags for it.
type ClientConnector struct {
	Config Config

	serverAddr     string
	staticChannels *svc.StaticChannelSet

	state            clientState
	selectedProtocol x224.NegotiationProtocol

	shouldUpgrade    bool
	credsspRequested bool
	earlyAuthPending bool

	ioChannelID uint16
	channelIDs  []uint16

	channelConnection *ChannelConnectionSequence
	finalization      *FinalizationSequence

	result *ConnectionResult
}

// NewClientConnector builds a connector in its initial state.
func NewClientConnector(config Config) *ClientConnector {
	return &ClientConnector{
		Config:         config,
		staticChannels: svc.NewStaticChannelSet(),
		state:          stateInitiationSendRequest,
	}
}

// WithServerAddr records the server address for diagnostics and the client
// info address field.
func (c *ClientConnector) WithServerAddr(addr string) *ClientConnector {
	c.serverAddr = addr
	return c
}

// WithStaticChannel registers a static virtual channel handler; its name is
// announced in the GCC network block.
func (c *ClientConnector) WithStaticChannel(p svc.Processor) *ClientConnector {
	c.staticChannels.Insert(p)
	return c
}

// StaticChannels exposes the channel registry, for the session after
// Connected.
func (c *ClientConnector) StaticChannels() *svc.StaticChannelSet {
	return c.staticChannels
}

// SelectedProtocol returns the protocol the server picked in the CC.
func (c *ClientConnector) SelectedProtocol() x224.NegotiationProtocol {
	return c.selectedProtocol
}

// ShouldPerformSecurityUpgrade is true when the connector waits for the
// driver to run the TLS handshake.
func (c *ClientConnector) ShouldPerformSecurityUpgrade() bool {
	return c.shouldUpgrade
}

// MarkSecurityUpgradeAsDone clears the security-upgrade request after the
// driver finished the TLS handshake.
func (c *ClientConnector) MarkSecurityUpgradeAsDone() {
	c.shouldUpgrade = false
}

// ShouldPerformCredssp is true when the connector waits for the driver to
// run the CredSSP sub-sequence.
func (c *ClientConnector) ShouldPerformCredssp() bool {
	return c.credsspRequested
}

// MarkCredsspAsDone clears the CredSSP request after the driver completed
// the exchange.
func (c *ClientConnector) MarkCredsspAsDone() {
	c.credsspRequested = false

	if c.selectedProtocol.IsHybridEx() {
		c.earlyAuthPending = true
	}
}

// Result returns the connection result once the connector is Connected.
func (c *ClientConnector) Result() *ConnectionResult {
	return c.result
}

func (c *ClientConnector) State() State {
	return c.state
}

func (c *ClientConnector) NextPduHint() core.PduHint {
	switch c.state {
	case stateInitiationWaitConfirm, stateBasicSettingsWaitResponse,
		stateLicensing, stateCapabilitiesExchange:
		return tpkt.Hint
	case stateCredssp:
		if !c.credsspRequested && c.earlyAuthPending {
			return credssp.EarlyUserAuthResultHint
		}
		return nil
	case stateChannelConnection:
		return c.channelConnection.NextPduHint()
	case stateConnectionFinalization:
		return c.finalization.NextPduHint()
	default:
		return nil
	}
}

func (c *ClientConnector) StepNoInput(output *core.WriteBuf) (Written, error) {
	return c.Step(nil, output)
}

func (c *ClientConnector) Step(input []byte, output *core.WriteBuf) (Written, error) {
	written, err := c.step(input, output)
	if err != nil {
		c.state = stateConsumed
	}
	return written, err
}

func (c *ClientConnector) step(input []byte, output *core.WriteBuf) (Written, error) {
	switch c.state {
	case stateInitiationSendRequest:
		request := &x224.ConnectionRequest{
			Cookie:             c.Config.Credentials.Username,
			RequestedProtocols: c.Config.SecurityProtocol,
		}

		logging.Debug("connector: send connection request, protocols=0x%X", uint32(request.RequestedProtocols))

		n, err := core.EncodeBuf(request, output)
		if err != nil {
			return WrittenNothing(), CustomErr("ConnectionRequest", err)
		}

		c.state = stateInitiationWaitConfirm

		return WrittenSize("ConnectionRequest", n)
	case stateInitiationWaitConfirm:
		confirm, err := x224.DecodeConnectionConfirm(core.NewReadCursor(input))
		if err != nil {
			return WrittenNothing(), CustomErr("ConnectionConfirm", err)
		}

		if confirm.Type == x224.NegotiationTypeFailure {
			return WrittenNothing(), ReasonErr("ConnectionConfirm",
				"negotiation failure: %s", confirm.FailureCode().String())
		}

		if confirm.Type != x224.NegotiationTypeResponse {
			return WrittenNothing(), ReasonErr("ConnectionConfirm", "unexpected negotiation type")
		}

		// a downgrade below the requested set is accepted; the security
		// fields of later phases adjust to the selection
		c.selectedProtocol = confirm.SelectedProtocol()

		logging.Debug("connector: server selected protocol 0x%X", uint32(c.selectedProtocol))

		if c.selectedProtocol.RequiresSecurityUpgrade() {
			c.shouldUpgrade = true
		}

		c.state = stateEnhancedSecurityUpgrade

		return WrittenNothing(), nil
	case stateEnhancedSecurityUpgrade:
		if c.shouldUpgrade {
			// the driver performs the TLS handshake out of band and calls
			// MarkSecurityUpgradeAsDone
			return WrittenNothing(), nil
		}

		if c.selectedProtocol.RequiresCredssp() {
			c.credsspRequested = true
			c.state = stateCredssp

			return WrittenNothing(), nil
		}

		return c.sendConnectInitial(output)
	case stateCredssp:
		if c.credsspRequested {
			// the driver runs the CredSSP sub-sequence and calls
			// MarkCredsspAsDone
			return WrittenNothing(), nil
		}

		if c.earlyAuthPending {
			result, err := credssp.DecodeEarlyUserAuthResult(core.NewReadCursor(input))
			if err != nil {
				return WrittenNothing(), CustomErr("EarlyUserAuthResult", err)
			}

			if result != credssp.AuthorizationSuccess {
				return WrittenNothing(), AccessDeniedErr("EarlyUserAuthResult")
			}

			c.earlyAuthPending = false
		}

		return c.sendConnectInitial(output)
	case stateBasicSettingsWaitResponse:
		src := core.NewReadCursor(input)

		if err := x224.DecodeDataFrame(src); err != nil {
			return WrittenNothing(), CustomErr("ConnectResponse", err)
		}

		response, err := mcs.DecodeConnectResponse(src)
		if err != nil {
			return WrittenNothing(), CustomErr("ConnectResponse", err)
		}

		blocks, err := gcc.DecodeConferenceCreateResponse(core.NewReadCursor(response.UserData))
		if err != nil {
			return WrittenNothing(), CustomErr("ConnectResponse", err)
		}

		c.ioChannelID = blocks.Network.MCSChannelID
		c.channelIDs = blocks.Network.ChannelIDArray

		// the id array answers the requested channels in order
		for i, name := range c.staticChannels.ChannelNames() {
			if i < len(blocks.Network.ChannelIDArray) {
				c.staticChannels.AttachChannelID(name, blocks.Network.ChannelIDArray[i])
			}
		}

		logging.Debug("connector: io channel %d, %d static channels", c.ioChannelID, len(c.channelIDs))

		c.channelConnection = NewChannelConnectionSequence(c.ioChannelID, c.channelIDs, false)
		c.state = stateChannelConnection

		return WrittenNothing(), nil
	case stateChannelConnection:
		written, err := c.channelConnection.Step(input, output)
		if err != nil {
			return WrittenNothing(), err
		}

		if c.channelConnection.State().IsTerminal() {
			c.state = stateSecureSettingsExchange
		}

		return written, nil
	case stateSecureSettingsExchange:
		info := pdu.NewClientInfo(
			c.Config.Credentials.Domain,
			c.Config.Credentials.Username,
			c.Config.Credentials.Password,
		)

		if c.Config.AutoLogon {
			info.Flags |= pdu.InfoFlagAutologon
		}

		info.PerformanceFlags = c.Config.PerformanceFlags
		info.AutoReconnectCookie = c.Config.AutoReconnectCookie

		if c.serverAddr != "" {
			info.ClientAddress = c.serverAddr
		}

		userData, err := core.EncodeVec(info)
		if err != nil {
			return WrittenNothing(), CustomErr("ClientInfoPdu", err)
		}

		request := &mcs.SendDataRequest{
			InitiatorID: c.channelConnection.UserChannelID(),
			ChannelID:   c.ioChannelID,
			UserData:    userData,
		}

		n, err := core.EncodeBuf(x224.DataFrame{Inner: request}, output)
		if err != nil {
			return WrittenNothing(), CustomErr("ClientInfoPdu", err)
		}

		c.state = stateConnectTimeAutoDetection

		return WrittenSize("ClientInfoPdu", n)
	case stateConnectTimeAutoDetection:
		// not advertised, nothing to negotiate
		c.state = stateLicensing

		return WrittenNothing(), nil
	case stateLicensing:
		msg, err := decodeMcsFrame(input)
		if err != nil {
			return WrittenNothing(), CustomErr("Licensing", err)
		}

		if msg.SendDataIndication == nil {
			return WrittenNothing(), ReasonErr("Licensing", "unexpected PDU while waiting for a license PDU")
		}

		license, err := pdu.DecodeLicenseMessage(core.NewReadCursor(msg.SendDataIndication.UserData))
		if err != nil {
			return WrittenNothing(), CustomErr("Licensing", err)
		}

		switch license.Preamble.MsgType {
		case pdu.LicenseTypeErrorAlert:
			if !license.IsInformational() {
				return WrittenNothing(), ReasonErr("Licensing",
					"license error 0x%08X, state transition 0x%08X",
					license.ErrorCode, license.StateTransition)
			}
		case pdu.LicenseTypeNewLicense, pdu.LicenseTypeUpgradeLicense:
			// license accepted
		default:
			return WrittenNothing(), ReasonErr("Licensing",
				"server-side license exchange is not supported (message type 0x%02X)",
				license.Preamble.MsgType)
		}

		c.state = stateMultitransportBootstrapping

		return WrittenNothing(), nil
	case stateMultitransportBootstrapping:
		// not advertised, the server will not initiate it
		c.state = stateCapabilitiesExchange

		return WrittenNothing(), nil
	case stateCapabilitiesExchange:
		msg, err := decodeMcsFrame(input)
		if err != nil {
			return WrittenNothing(), CustomErr("CapabilitiesExchange", err)
		}

		if msg.SendDataIndication == nil {
			return WrittenNothing(), ReasonErr("CapabilitiesExchange", "unexpected PDU while waiting for Server Demand Active")
		}

		share, err := pdu.DecodeShareMessage(core.NewReadCursor(msg.SendDataIndication.UserData))
		if err != nil {
			return WrittenNothing(), CustomErr("CapabilitiesExchange", err)
		}

		if share.DemandActive == nil {
			return WrittenNothing(), ReasonErr("CapabilitiesExchange", "unexpected PDU while waiting for Server Demand Active")
		}

		demand := share.DemandActive

		confirm := &pdu.ConfirmActive{
			ShareID:   demand.ShareID,
			PDUSource: c.channelConnection.UserChannelID(),
			CapabilitySets: pdu.ClientCapabilities(
				c.Config.DesktopSize.Width,
				c.Config.DesktopSize.Height,
				c.Config.KeyboardLayout,
			),
		}

		userData, err := core.EncodeVec(confirm)
		if err != nil {
			return WrittenNothing(), CustomErr("ClientConfirmActive", err)
		}

		request := &mcs.SendDataRequest{
			InitiatorID: c.channelConnection.UserChannelID(),
			ChannelID:   c.ioChannelID,
			UserData:    userData,
		}

		n, err := core.EncodeBuf(x224.DataFrame{Inner: request}, output)
		if err != nil {
			return WrittenNothing(), CustomErr("ClientConfirmActive", err)
		}

		c.buildResult(demand)

		c.finalization = NewFinalizationSequence(
			demand.ShareID,
			c.channelConnection.UserChannelID(),
			c.ioChannelID,
		)
		c.state = stateConnectionFinalization

		return WrittenSize("ClientConfirmActive", n)
	case stateConnectionFinalization:
		written, err := c.finalization.Step(input, output)
		if err != nil {
			return WrittenNothing(), err
		}

		if c.finalization.State().IsTerminal() {
			c.state = stateConnected

			logging.Info("connector: connected, desktop %dx%d",
				c.result.DesktopSize.Width, c.result.DesktopSize.Height)
		}

		return written, nil
	case stateConnected:
		return WrittenNothing(), ReasonErr("Connected", "the connection sequence is already done")
	default:
		return WrittenNothing(), GeneralErr("ClientConnector")
	}
}

func (c *ClientConnector) sendConnectInitial(output *core.WriteBuf) (Written, error) {
	blocks := &gcc.ClientGccBlocks{
		Core: gcc.ClientCoreData{
			Version:                gcc.RdpVersion5Plus,
			DesktopWidth:           c.Config.DesktopSize.Width,
			DesktopHeight:          c.Config.DesktopSize.Height,
			KeyboardLayout:         c.Config.KeyboardLayout,
			ClientBuild:            c.Config.ClientBuild,
			ClientName:             c.Config.ClientName,
			KeyboardType:           c.Config.KeyboardType,
			KeyboardSubType:        c.Config.KeyboardSubType,
			KeyboardFunctionKey:    c.Config.KeyboardFunctionKey,
			HighColorDepth:         gcc.HighColor24BPP,
			SupportedColorDepths:   gcc.Support32BPP | gcc.Support24BPP | gcc.Support16BPP,
			EarlyCapabilityFlags:   gcc.ECFSupportErrInfoPDU | gcc.ECFWant32BPPSession,
			ServerSelectedProtocol: uint32(c.selectedProtocol),
			DesktopScaleFactor:     c.Config.DesktopScaleFactor,
			DeviceScaleFactor:      100,
		},
	}

	for _, name := range c.staticChannels.ChannelNames() {
		blocks.Network.Channels = append(blocks.Network.Channels, gcc.ChannelDef{
			Name:    name,
			Options: gcc.ChannelOptionInitialized | gcc.ChannelOptionEncryptRdp,
		})
	}

	conference := &gcc.ConferenceCreateRequest{Blocks: blocks}

	gccPayload, err := core.EncodeVec(conference)
	if err != nil {
		return WrittenNothing(), CustomErr("ConnectInitial", err)
	}

	initial := mcs.NewConnectInitial(gccPayload)

	n, err := core.EncodeBuf(x224.DataFrame{Inner: initial}, output)
	if err != nil {
		return WrittenNothing(), CustomErr("ConnectInitial", err)
	}

	c.state = stateBasicSettingsWaitResponse

	return WrittenSize("ConnectInitial", n)
}

func (c *ClientConnector) buildResult(demand *pdu.DemandActive) {
	result := &ConnectionResult{
		DesktopSize:              c.Config.DesktopSize,
		IoChannelID:              c.ioChannelID,
		UserChannelID:            c.channelConnection.UserChannelID(),
		StaticChannels:           c.staticChannels.Bindings(),
		CapabilitySets:           demand.CapabilitySets,
		ShareID:                  demand.ShareID,
		SelectedProtocol:         c.selectedProtocol,
		NoServerPointer:          c.Config.NoServerPointer,
		PointerSoftwareRendering: c.Config.PointerSoftwareRendering,
	}

	// the server's bitmap capability is authoritative for the session size
	if bitmap := demand.FindCapability(pdu.CapsTypeBitmap); bitmap != nil && len(bitmap.Data) >= 12 {
		body := core.NewReadCursor(bitmap.Data)
		body.Advance(8)
		result.DesktopSize = DesktopSize{Width: body.ReadU16(), Height: body.ReadU16()}
	}

	c.result = result
}
