package acceptor

import (
	"github.com/rcarmo/rdp-core/internal/connector"
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/credssp"
	"github.com/rcarmo/rdp-core/internal/logging"
	"github.com/rcarmo/rdp-core/internal/protocol/gcc"
	"github.com/rcarmo/rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/rdp-core/internal/protocol/pcb"
	"github.com/rcarmo/rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
)

// Channel id assignment: the server allocates ids from 1001 upward; the I/O
// channel id is the conventional 1003.
const (
	defaultUserChannelID uint16 = 1002
	defaultIoChannelID   uint16 = 1003
	firstSvcChannelID    uint16 = 1004
)

// CredentialsProxy supplies auth data for a given username during the
// acceptor-side CredSSP exchange.
type CredentialsProxy interface {
	CredentialsByUser(username string) (credssp.Credentials, error)
}

// Engine is the acceptor-side security engine: one call handles one inbound
// TsRequest and produces the response, reporting completion.
type Engine interface {
	ProcessTsRequest(req *credssp.TsRequest) (resp *credssp.TsRequest, finished bool, err error)
}

// Config carries the acceptor's negotiation surface.
type Config struct {
	DesktopSize connector.DesktopSize

	// SupportedProtocols is the set the acceptor is willing to select from.
	SupportedProtocols x224.NegotiationProtocol

	// Engine and Credentials drive the CredSSP phase when a hybrid protocol
	// is selected.
	Engine      Engine
	Credentials CredentialsProxy

	// AcceptPreconnectionBlob tolerates a PCB before the X.224 exchange.
	AcceptPreconnectionBlob bool
}

// acceptorState is the closed state union of the acceptor.
type acceptorState int

const (
	acceptConsumed acceptorState = iota
	acceptInitiationWaitRequest
	acceptSecurityUpgrade
	acceptCredssp
	acceptBasicSettingsWaitInitial
	acceptChannelConnection
	acceptSecureSettingsExchange
	acceptLicensing
	acceptCapabilitiesSendDemand
	acceptCapabilitiesWaitConfirm
	acceptConnectionFinalization
	acceptConnected
)

var acceptorStateNames = map[acceptorState]string{
	acceptConsumed:                 "Consumed",
	acceptInitiationWaitRequest:    "ConnectionInitiationWaitRequest",
	acceptSecurityUpgrade:          "EnhancedSecurityUpgrade",
	acceptCredssp:                  "Credssp",
	acceptBasicSettingsWaitInitial: "BasicSettingsExchange",
	acceptChannelConnection:        "ChannelConnection",
	acceptSecureSettingsExchange:   "SecureSettingsExchange",
	acceptLicensing:                "Licensing",
	acceptCapabilitiesSendDemand:   "CapabilitiesExchange",
	acceptCapabilitiesWaitConfirm:  "CapabilitiesExchange",
	acceptConnectionFinalization:   "ConnectionFinalization",
	acceptConnected:                "Connected",
}

func (s acceptorState) Name() string {
	return acceptorStateNames[s]
}

func (s acceptorState) IsTerminal() bool {
	return s == acceptConnected
}

// Result is what the acceptor surrenders once the sequence completes.
type Result struct {
	ClientInfo     *pdu.ClientInfo
	ClientBlocks   *gcc.ClientGccBlocks
	UserChannelID  uint16
	IoChannelID    uint16
	StaticChannels map[uint16]gcc.ChannelName
	ShareID        uint32
	Preconnection  *pcb.PreconnectionBlob
	ClientCaps     []pdu.CapabilitySet
}

// Acceptor drives the server side of the RDP connection sequence.
type Acceptor struct {
	Config Config

	state            acceptorState
	selectedProtocol x224.NegotiationProtocol
	shouldUpgrade    bool
	credsspRequested bool
	credsspFinished  bool

	clientBlocks  *gcc.ClientGccBlocks
	userChannelID uint16
	ioChannelID   uint16
	channelIDs    []uint16
	channelNames  map[uint16]gcc.ChannelName

	channelConnection *ChannelConnectionSequence
	finalization      *FinalizationSequence

	shareID uint32

	result *Result
	pcb    *pcb.PreconnectionBlob
}

// NewAcceptor builds an acceptor in its initial state.
func NewAcceptor(config Config) *Acceptor {
	return &Acceptor{
		Config:       config,
		state:        acceptInitiationWaitRequest,
		shareID:      0x00010001,
		channelNames: make(map[uint16]gcc.ChannelName),
	}
}

// ShouldPerformSecurityUpgrade is true when the acceptor waits for the
// driver to run the server-side TLS handshake.
func (a *Acceptor) ShouldPerformSecurityUpgrade() bool {
	return a.shouldUpgrade
}

// MarkSecurityUpgradeAsDone clears the security-upgrade request.
func (a *Acceptor) MarkSecurityUpgradeAsDone() {
	a.shouldUpgrade = false
}

// SelectedProtocol returns the protocol picked in the CC.
func (a *Acceptor) SelectedProtocol() x224.NegotiationProtocol {
	return a.selectedProtocol
}

// Result returns the acceptor result once Connected.
func (a *Acceptor) Result() *Result {
	return a.result
}

func (a *Acceptor) State() connector.State {
	return a.state
}

type initialHint struct {
	acceptPcb bool
}

// FindSize frames either the X.224 CR (TPKT) or, when tolerated, a leading
// preconnection blob identified by its non-TPKT first byte.
func (h initialHint) FindSize(b []byte) (int, bool, bool, error) {
	if len(b) < 1 {
		return 0, false, false, nil
	}

	if b[0] == 0x03 || !h.acceptPcb {
		return tpkt.Hint.FindSize(b)
	}

	// PCB: cbSize is the little-endian first dword
	if len(b) < 4 {
		return 0, false, false, nil
	}

	size := int(b[0]) | int(b[1])<<8 | int(b[2])<<16 | int(b[3])<<24
	if size < 16 {
		return 0, false, false, core.InvalidField("PreconnectionBlob", "cbSize", "advertised size too small for the fixed part")
	}

	return size, true, true, nil
}

func (a *Acceptor) NextPduHint() core.PduHint {
	switch a.state {
	case acceptInitiationWaitRequest:
		return initialHint{acceptPcb: a.Config.AcceptPreconnectionBlob && a.pcb == nil}
	case acceptCredssp:
		if a.credsspRequested && !a.credsspFinished {
			return credssp.TsRequestHint
		}
		return nil
	case acceptBasicSettingsWaitInitial, acceptSecureSettingsExchange, acceptCapabilitiesWaitConfirm:
		return tpkt.Hint
	case acceptChannelConnection:
		return a.channelConnection.NextPduHint()
	case acceptConnectionFinalization:
		return a.finalization.NextPduHint()
	default:
		return nil
	}
}

func (a *Acceptor) StepNoInput(output *core.WriteBuf) (connector.Written, error) {
	return a.Step(nil, output)
}

func (a *Acceptor) Step(input []byte, output *core.WriteBuf) (connector.Written, error) {
	written, err := a.step(input, output)
	if err != nil {
		a.state = acceptConsumed
	}
	return written, err
}

func (a *Acceptor) step(input []byte, output *core.WriteBuf) (connector.Written, error) {
	switch a.state {
	case acceptInitiationWaitRequest:
		if a.Config.AcceptPreconnectionBlob && a.pcb == nil && len(input) > 0 && input[0] != 0x03 {
			blob, err := pcb.Decode(core.NewReadCursor(input))
			if err != nil {
				return connector.WrittenNothing(), connector.CustomErr("PreconnectionBlob", err)
			}

			// forwarded to the embedder through the result
			a.pcb = blob

			return connector.WrittenNothing(), nil
		}

		request, err := x224.DecodeConnectionRequest(core.NewReadCursor(input))
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ConnectionRequest", err)
		}

		selected, failure := selectProtocol(request.RequestedProtocols, a.Config.SupportedProtocols)
		if failure != 0 {
			confirm := x224.NewConnectionConfirmFailure(failure)

			if _, err := core.EncodeBuf(confirm, output); err != nil {
				return connector.WrittenNothing(), connector.CustomErr("ConnectionConfirm", err)
			}

			return connector.WrittenNothing(), connector.ReasonErr("ConnectionConfirm",
				"no protocol in common with the client (offered 0x%X)", uint32(request.RequestedProtocols))
		}

		a.selectedProtocol = selected

		logging.Debug("acceptor: selected protocol 0x%X", uint32(selected))

		confirm := x224.NewConnectionConfirmResponse(0, selected)

		n, err := core.EncodeBuf(confirm, output)
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ConnectionConfirm", err)
		}

		if selected.RequiresSecurityUpgrade() {
			a.shouldUpgrade = true
		}

		a.state = acceptSecurityUpgrade

		return connector.WrittenSize("ConnectionConfirm", n)
	case acceptSecurityUpgrade:
		if a.shouldUpgrade {
			// the driver performs the TLS accept out of band
			return connector.WrittenNothing(), nil
		}

		if a.selectedProtocol.RequiresCredssp() {
			a.credsspRequested = true
			a.state = acceptCredssp

			return connector.WrittenNothing(), nil
		}

		a.state = acceptBasicSettingsWaitInitial

		return connector.WrittenNothing(), nil
	case acceptCredssp:
		if !a.credsspRequested {
			a.state = acceptBasicSettingsWaitInitial
			return connector.WrittenNothing(), nil
		}

		if a.Config.Engine == nil {
			return connector.WrittenNothing(), connector.ReasonErr("Credssp", "no security engine configured")
		}

		req, err := credssp.DecodeTsRequest(core.NewReadCursor(input))
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("TsRequest", err)
		}

		resp, finished, err := a.Config.Engine.ProcessTsRequest(req)
		if err != nil {
			return connector.WrittenNothing(), connector.CredsspErr("Credssp", err)
		}

		written := connector.WrittenNothing()

		if resp != nil {
			n, err := core.EncodeBuf(resp, output)
			if err != nil {
				return connector.WrittenNothing(), connector.CustomErr("TsRequest", err)
			}

			written, err = connector.WrittenSize("TsRequest", n)
			if err != nil {
				return connector.WrittenNothing(), err
			}
		}

		if finished {
			a.credsspFinished = true
			a.credsspRequested = false

			if a.selectedProtocol.IsHybridEx() {
				credssp.EncodeEarlyUserAuthResult(output, credssp.AuthorizationSuccess)

				total := output.FilledLen()
				written, err = connector.WrittenSize("EarlyUserAuthResult", total)
				if err != nil {
					return connector.WrittenNothing(), err
				}
			}

			a.state = acceptBasicSettingsWaitInitial
		}

		return written, nil
	case acceptBasicSettingsWaitInitial:
		src := core.NewReadCursor(input)

		if err := x224.DecodeDataFrame(src); err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ConnectInitial", err)
		}

		initial, err := mcs.DecodeConnectInitial(src)
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ConnectInitial", err)
		}

		blocks, err := gcc.DecodeConferenceCreateRequest(core.NewReadCursor(initial.UserData))
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ConnectInitial", err)
		}

		a.clientBlocks = blocks
		a.userChannelID = defaultUserChannelID
		a.ioChannelID = defaultIoChannelID

		// assign an id per requested channel, honouring the request order
		a.channelIDs = a.channelIDs[:0]
		for i, def := range blocks.Network.Channels {
			id := firstSvcChannelID + uint16(i)
			a.channelIDs = append(a.channelIDs, id)
			a.channelNames[id] = def.Name
		}

		serverBlocks := &gcc.ServerGccBlocks{
			Core: gcc.ServerCoreData{
				Version:                  gcc.RdpVersion5Plus,
				ClientRequestedProtocols: uint32(a.selectedProtocol),
			},
			Network: gcc.ServerNetworkData{
				MCSChannelID:   a.ioChannelID,
				ChannelIDArray: a.channelIDs,
			},
		}

		gccPayload, err := core.EncodeVec(&gcc.ConferenceCreateResponse{Blocks: serverBlocks})
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ConnectResponse", err)
		}

		response := mcs.NewConnectResponse(gccPayload)

		n, err := core.EncodeBuf(x224.DataFrame{Inner: response}, output)
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ConnectResponse", err)
		}

		if blocks.Core.SupportsSkipChannelJoin() {
			a.channelConnection = SkipChannelJoin(a.userChannelID)
		} else {
			a.channelConnection = NewChannelConnectionSequence(a.userChannelID, a.ioChannelID, a.channelIDs)
		}

		a.state = acceptChannelConnection

		return connector.WrittenSize("ConnectResponse", n)
	case acceptChannelConnection:
		written, err := a.channelConnection.Step(input, output)
		if err != nil {
			return connector.WrittenNothing(), err
		}

		if a.channelConnection.IsDone() {
			a.state = acceptSecureSettingsExchange
		}

		return written, nil
	case acceptSecureSettingsExchange:
		msg, err := decodeMcsFrame(input)
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ClientInfoPdu", err)
		}

		if msg.SendDataRequest == nil {
			return connector.WrittenNothing(), connector.ReasonErr("ClientInfoPdu", "unexpected PDU while waiting for the Client Info PDU")
		}

		info, err := pdu.DecodeClientInfo(core.NewReadCursor(msg.SendDataRequest.UserData))
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ClientInfoPdu", err)
		}

		a.result = &Result{ClientInfo: info}

		a.state = acceptLicensing

		return connector.WrittenNothing(), nil
	case acceptLicensing:
		userData, err := core.EncodeVec(&pdu.ServerLicenseError{})
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("Licensing", err)
		}

		indication := &mcs.SendDataIndication{
			InitiatorID: a.userChannelID,
			ChannelID:   a.ioChannelID,
			UserData:    userData,
		}

		n, err := core.EncodeBuf(x224.DataFrame{Inner: indication}, output)
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("Licensing", err)
		}

		a.state = acceptCapabilitiesSendDemand

		return connector.WrittenSize("Licensing", n)
	case acceptCapabilitiesSendDemand:
		demand := &pdu.DemandActive{
			ShareID:   a.shareID,
			PDUSource: pdu.ServerChannelID,
			CapabilitySets: pdu.ServerCapabilities(
				a.Config.DesktopSize.Width,
				a.Config.DesktopSize.Height,
			),
		}

		userData, err := core.EncodeVec(demand)
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ServerDemandActive", err)
		}

		indication := &mcs.SendDataIndication{
			InitiatorID: a.userChannelID,
			ChannelID:   a.ioChannelID,
			UserData:    userData,
		}

		n, err := core.EncodeBuf(x224.DataFrame{Inner: indication}, output)
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ServerDemandActive", err)
		}

		a.state = acceptCapabilitiesWaitConfirm

		return connector.WrittenSize("ServerDemandActive", n)
	case acceptCapabilitiesWaitConfirm:
		msg, err := decodeMcsFrame(input)
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ClientConfirmActive", err)
		}

		if msg.SendDataRequest == nil {
			return connector.WrittenNothing(), connector.ReasonErr("ClientConfirmActive", "unexpected PDU while waiting for Client Confirm Active")
		}

		share, err := pdu.DecodeShareMessage(core.NewReadCursor(msg.SendDataRequest.UserData))
		if err != nil {
			return connector.WrittenNothing(), connector.CustomErr("ClientConfirmActive", err)
		}

		if share.Control.PDUType != pdu.TypeConfirmActive || share.DemandActive == nil {
			return connector.WrittenNothing(), connector.ReasonErr("ClientConfirmActive", "unexpected PDU while waiting for Client Confirm Active")
		}

		a.result.ClientCaps = share.DemandActive.CapabilitySets

		a.finalization = NewFinalizationSequence(a.shareID, a.userChannelID, a.ioChannelID)
		a.state = acceptConnectionFinalization

		return connector.WrittenNothing(), nil
	case acceptConnectionFinalization:
		written, err := a.finalization.Step(input, output)
		if err != nil {
			return connector.WrittenNothing(), err
		}

		if a.finalization.State().IsTerminal() {
			a.fillResult()
			a.state = acceptConnected

			logging.Info("acceptor: connected, user channel %d", a.userChannelID)
		}

		return written, nil
	case acceptConnected:
		return connector.WrittenNothing(), connector.ReasonErr("Connected", "the connection sequence is already done")
	default:
		return connector.WrittenNothing(), connector.GeneralErr("Acceptor")
	}
}

func (a *Acceptor) fillResult() {
	if a.result == nil {
		a.result = &Result{}
	}

	a.result.ClientBlocks = a.clientBlocks
	a.result.UserChannelID = a.userChannelID
	a.result.IoChannelID = a.ioChannelID
	a.result.ShareID = a.shareID
	a.result.Preconnection = a.pcb

	bindings := make(map[uint16]gcc.ChannelName, len(a.channelNames))
	for id, name := range a.channelNames {
		bindings[id] = name
	}
	a.result.StaticChannels = bindings
}

// selectProtocol validates the intersection of offered and supported
// protocols and picks the strongest one, or returns a failure code.
func selectProtocol(offered, supported x224.NegotiationProtocol) (x224.NegotiationProtocol, x224.NegotiationFailureCode) {
	common := offered & supported

	switch {
	case common&x224.ProtocolHybridEx != 0:
		return x224.ProtocolHybridEx, 0
	case common&x224.ProtocolHybrid != 0:
		return x224.ProtocolHybrid, 0
	case common&x224.ProtocolSSL != 0:
		return x224.ProtocolSSL, 0
	case supported&(x224.ProtocolHybrid|x224.ProtocolHybridEx) != 0 && supported&x224.ProtocolSSL == 0:
		return 0, x224.FailureCodeHybridRequired
	default:
		// standard RDP security is the shared floor
		return x224.ProtocolRDP, 0
	}
}
