package connector

import (
	"github.com/rcarmo/rdp-core/internal/protocol/gcc"
	"github.com/rcarmo/rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
)

// ConnectionResult is what the connector surrenders to the session driver
// once the state machine reaches Connected.
type ConnectionResult struct {
	DesktopSize   DesktopSize
	UserChannelID uint16
	IoChannelID   uint16

	// StaticChannels maps the joined MCS channel ids to their names.
	StaticChannels map[uint16]gcc.ChannelName

	// CapabilitySets is the server's capability digest from Demand Active.
	CapabilitySets []pdu.CapabilitySet

	ShareID          uint32
	SelectedProtocol x224.NegotiationProtocol

	NoServerPointer          bool
	PointerSoftwareRendering bool
}
