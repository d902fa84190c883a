package gcc

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/encoding"
)

// User-data block header types.
const (
	TypeCSCore     uint16 = 0xC001
	TypeCSSecurity uint16 = 0xC002
	TypeCSNet      uint16 = 0xC003
	TypeCSCluster  uint16 = 0xC004

	TypeSCCore     uint16 = 0x0C01
	TypeSCSecurity uint16 = 0x0C02
	TypeSCNet      uint16 = 0x0C03
)

const userDataHeaderLength = 4

// RdpVersion5Plus is the RDP 5.0+ version number advertised in core data.
const RdpVersion5Plus uint32 = 0x00080004

// earlyCapabilityFlags (TS_UD_CS_CORE)
const (
	ECFSupportErrInfoPDU       uint16 = 0x0001
	ECFWant32BPPSession        uint16 = 0x0002
	ECFSupportStatusInfoPDU    uint16 = 0x0004
	ECFStrongAsymmetricKeys    uint16 = 0x0008
	ECFValidConnectionType     uint16 = 0x0020
	ECFSupportMonitorLayoutPDU uint16 = 0x0040
	ECFSupportNetCharAutodetec uint16 = 0x0080
	ECFSupportDynvcGFXProtocol uint16 = 0x0100
	ECFSupportDynamicTimeZone  uint16 = 0x0200
	ECFSupportHeartbeatPDU     uint16 = 0x0400
	ECFSupportSkipChannelJoin  uint16 = 0x4000
)

// HighColorDepth values.
const (
	HighColor15BPP uint16 = 0x000F
	HighColor16BPP uint16 = 0x0010
	HighColor24BPP uint16 = 0x0018
)

// SupportedColorDepths flags.
const (
	Support24BPP uint16 = 0x0001
	Support16BPP uint16 = 0x0002
	Support15BPP uint16 = 0x0004
	Support32BPP uint16 = 0x0008
)

// ClientCoreData is the TS_UD_CS_CORE block (MS-RDPBCGR 2.2.1.3.2) with the
// optional extended fields through DeviceScaleFactor.
type ClientCoreData struct {
	Version                uint32
	DesktopWidth           uint16
	DesktopHeight          uint16
	KeyboardLayout         uint32
	ClientBuild            uint32
	ClientName             string
	KeyboardType           uint32
	KeyboardSubType        uint32
	KeyboardFunctionKey    uint32
	HighColorDepth         uint16
	SupportedColorDepths   uint16
	EarlyCapabilityFlags   uint16
	ServerSelectedProtocol uint32
	DesktopScaleFactor     uint32
	DeviceScaleFactor      uint32
}

const clientCoreDataLength = 234

func (d *ClientCoreData) Name() string { return "ClientCoreData" }

func (d *ClientCoreData) Size() int { return clientCoreDataLength }

func (d *ClientCoreData) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(d.Name(), dst, d.Size()); err != nil {
		return err
	}

	dst.WriteU16(TypeCSCore)
	dst.WriteU16(clientCoreDataLength)

	dst.WriteU32(d.Version)
	dst.WriteU16(d.DesktopWidth)
	dst.WriteU16(d.DesktopHeight)
	dst.WriteU16(0xCA01) // colorDepth RNS_UD_COLOR_8BPP (superseded by HighColorDepth)
	dst.WriteU16(0xAA03) // SASSequence RNS_UD_SAS_DEL
	dst.WriteU32(d.KeyboardLayout)
	dst.WriteU32(d.ClientBuild)
	writeFixedUtf16(dst, d.ClientName, 32)
	dst.WriteU32(d.KeyboardType)
	dst.WriteU32(d.KeyboardSubType)
	dst.WriteU32(d.KeyboardFunctionKey)
	dst.WritePadding(64)  // imeFileName
	dst.WriteU16(0xCA03)  // postBeta2ColorDepth RNS_UD_COLOR_16BPP_565
	dst.WriteU16(0x0001)  // clientProductId
	dst.WriteU32(0)       // serialNumber
	dst.WriteU16(d.HighColorDepth)
	dst.WriteU16(d.SupportedColorDepths)
	dst.WriteU16(d.EarlyCapabilityFlags)
	dst.WritePadding(64) // clientDigProductId
	dst.WriteU8(0)       // connectionType
	dst.WriteU8(0)       // pad1octet
	dst.WriteU32(d.ServerSelectedProtocol)
	dst.WriteU32(physicalMillimeters(d.DesktopWidth))
	dst.WriteU32(physicalMillimeters(d.DesktopHeight))
	dst.WriteU16(0) // ORIENTATION_LANDSCAPE
	dst.WriteU32(d.DesktopScaleFactor)
	dst.WriteU32(d.DeviceScaleFactor)

	return nil
}

// physical dimensions in millimeters assuming a 96 DPI monitor
func physicalMillimeters(pixels uint16) uint32 {
	return uint32(float64(pixels) * 25.4 / 96.0)
}

func writeFixedUtf16(dst *core.WriteCursor, s string, byteLen int) {
	encoded := encoding.EncodeUtf16LE(s)
	if len(encoded) > byteLen-2 {
		encoded = encoded[:byteLen-2]
	}

	dst.WriteSlice(encoded)
	dst.WritePadding(byteLen - len(encoded))
}

func decodeClientCoreData(src *core.ReadCursor, blockLen int) (*ClientCoreData, error) {
	if err := core.EnsureSize("ClientCoreData", src, blockLen); err != nil {
		return nil, err
	}

	body := core.NewReadCursor(src.ReadSlice(blockLen))

	if err := core.EnsureSize("ClientCoreData", body, 128); err != nil {
		return nil, err
	}

	d := &ClientCoreData{}

	d.Version = body.ReadU32()
	d.DesktopWidth = body.ReadU16()
	d.DesktopHeight = body.ReadU16()
	body.ReadU16() // colorDepth
	body.ReadU16() // SASSequence
	d.KeyboardLayout = body.ReadU32()
	d.ClientBuild = body.ReadU32()
	d.ClientName = encoding.DecodeUtf16LE(body.ReadSlice(32))
	d.KeyboardType = body.ReadU32()
	d.KeyboardSubType = body.ReadU32()
	d.KeyboardFunctionKey = body.ReadU32()
	body.ReadSlice(64) // imeFileName

	// Everything past this point is optional.
	if body.Len() >= 2 {
		body.ReadU16() // postBeta2ColorDepth
	}
	if body.Len() >= 2 {
		body.ReadU16() // clientProductId
	}
	if body.Len() >= 4 {
		body.ReadU32() // serialNumber
	}
	if body.Len() >= 2 {
		d.HighColorDepth = body.ReadU16()
	}
	if body.Len() >= 2 {
		d.SupportedColorDepths = body.ReadU16()
	}
	if body.Len() >= 2 {
		d.EarlyCapabilityFlags = body.ReadU16()
	}
	if body.Len() >= 64 {
		body.ReadSlice(64) // clientDigProductId
	}
	if body.Len() >= 2 {
		body.ReadU8() // connectionType
		body.ReadU8() // pad1octet
	}
	if body.Len() >= 4 {
		d.ServerSelectedProtocol = body.ReadU32()
	}
	if body.Len() >= 10 {
		body.ReadU32() // desktopPhysicalWidth
		body.ReadU32() // desktopPhysicalHeight
		body.ReadU16() // desktopOrientation
	}
	if body.Len() >= 4 {
		d.DesktopScaleFactor = body.ReadU32()
	}
	if body.Len() >= 4 {
		d.DeviceScaleFactor = body.ReadU32()
	}

	return d, nil
}

// SupportsSkipChannelJoin reports whether the client advertised the
// skip-channel-join early capability.
func (d *ClientCoreData) SupportsSkipChannelJoin() bool {
	return d.EarlyCapabilityFlags&ECFSupportSkipChannelJoin != 0
}

// ClientSecurityData is the TS_UD_CS_SEC block (MS-RDPBCGR 2.2.1.3.3). Both
// fields stay zero under enhanced RDP security.
type ClientSecurityData struct {
	EncryptionMethods    uint32
	ExtEncryptionMethods uint32
}

const clientSecurityDataLength = 12

func (d *ClientSecurityData) Name() string { return "ClientSecurityData" }

func (d *ClientSecurityData) Size() int { return clientSecurityDataLength }

func (d *ClientSecurityData) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(d.Name(), dst, d.Size()); err != nil {
		return err
	}

	dst.WriteU16(TypeCSSecurity)
	dst.WriteU16(clientSecurityDataLength)
	dst.WriteU32(d.EncryptionMethods)
	dst.WriteU32(d.ExtEncryptionMethods)

	return nil
}

func decodeClientSecurityData(src *core.ReadCursor, blockLen int) (*ClientSecurityData, error) {
	if err := core.EnsureSize("ClientSecurityData", src, blockLen); err != nil {
		return nil, err
	}

	body := core.NewReadCursor(src.ReadSlice(blockLen))

	if err := core.EnsureSize("ClientSecurityData", body, 8); err != nil {
		return nil, err
	}

	return &ClientSecurityData{
		EncryptionMethods:    body.ReadU32(),
		ExtEncryptionMethods: body.ReadU32(),
	}, nil
}

// ChannelDef declares one static virtual channel requested by the client
// (CHANNEL_DEF, MS-RDPBCGR 2.2.1.3.4.1).
type ChannelDef struct {
	Name    ChannelName
	Options uint32
}

// ClientNetworkData is the TS_UD_CS_NET block listing requested static
// channels.
type ClientNetworkData struct {
	Channels []ChannelDef
}

func (d *ClientNetworkData) Name() string { return "ClientNetworkData" }

func (d *ClientNetworkData) Size() int {
	return userDataHeaderLength + 4 + len(d.Channels)*12
}

func (d *ClientNetworkData) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(d.Name(), dst, d.Size()); err != nil {
		return err
	}

	dst.WriteU16(TypeCSNet)
	dst.WriteU16(uint16(d.Size()))
	dst.WriteU32(uint32(len(d.Channels)))

	for _, ch := range d.Channels {
		dst.WriteSlice(ch.Name[:])
		dst.WriteU32(ch.Options)
	}

	return nil
}

func decodeClientNetworkData(src *core.ReadCursor, blockLen int) (*ClientNetworkData, error) {
	if err := core.EnsureSize("ClientNetworkData", src, blockLen); err != nil {
		return nil, err
	}

	body := core.NewReadCursor(src.ReadSlice(blockLen))

	if err := core.EnsureSize("ClientNetworkData", body, 4); err != nil {
		return nil, err
	}

	count := int(body.ReadU32())

	if err := core.EnsureSize("ClientNetworkData", body, count*12); err != nil {
		return nil, err
	}

	d := &ClientNetworkData{}

	for i := 0; i < count; i++ {
		var def ChannelDef
		copy(def.Name[:], body.ReadSlice(8))
		def.Options = body.ReadU32()
		d.Channels = append(d.Channels, def)
	}

	return d, nil
}

// ClientClusterData is the TS_UD_CS_CLUSTER block (MS-RDPBCGR 2.2.1.3.5).
type ClientClusterData struct {
	Flags               uint32
	RedirectedSessionID uint32
}

const clientClusterDataLength = 12

func (d *ClientClusterData) Name() string { return "ClientClusterData" }

func (d *ClientClusterData) Size() int { return clientClusterDataLength }

func (d *ClientClusterData) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(d.Name(), dst, d.Size()); err != nil {
		return err
	}

	dst.WriteU16(TypeCSCluster)
	dst.WriteU16(clientClusterDataLength)
	dst.WriteU32(d.Flags)
	dst.WriteU32(d.RedirectedSessionID)

	return nil
}

// ClientGccBlocks aggregates the client user-data blocks carried inside the
// Conference-Create Request.
type ClientGccBlocks struct {
	Core     ClientCoreData
	Security ClientSecurityData
	Network  ClientNetworkData
	Cluster  *ClientClusterData
}

func (b *ClientGccBlocks) Name() string { return "ClientGccBlocks" }

func (b *ClientGccBlocks) Size() int {
	size := b.Core.Size() + b.Security.Size() + b.Network.Size()
	if b.Cluster != nil {
		size += b.Cluster.Size()
	}
	return size
}

func (b *ClientGccBlocks) Encode(dst *core.WriteCursor) error {
	if err := b.Core.Encode(dst); err != nil {
		return err
	}

	if err := b.Security.Encode(dst); err != nil {
		return err
	}

	if err := b.Network.Encode(dst); err != nil {
		return err
	}

	if b.Cluster != nil {
		return b.Cluster.Encode(dst)
	}

	return nil
}

// ChannelNames returns the static channel names in request order.
func (b *ClientGccBlocks) ChannelNames() []ChannelName {
	names := make([]ChannelName, 0, len(b.Network.Channels))
	for _, ch := range b.Network.Channels {
		names = append(names, ch.Name)
	}
	return names
}

// DecodeClientGccBlocks parses the concatenated client user-data blocks.
func DecodeClientGccBlocks(src *core.ReadCursor) (*ClientGccBlocks, error) {
	blocks := &ClientGccBlocks{}
	seenCore := false

	for !src.IsEmpty() {
		if err := core.EnsureSize("ClientGccBlocks", src, userDataHeaderLength); err != nil {
			return nil, err
		}

		blockType := src.ReadU16()
		blockLen := int(src.ReadU16())

		if blockLen < userDataHeaderLength {
			return nil, core.InvalidField("ClientGccBlocks", "length", "user data block shorter than its header")
		}

		bodyLen := blockLen - userDataHeaderLength

		switch blockType {
		case TypeCSCore:
			coreData, err := decodeClientCoreData(src, bodyLen)
			if err != nil {
				return nil, err
			}

			blocks.Core = *coreData
			seenCore = true
		case TypeCSSecurity:
			secData, err := decodeClientSecurityData(src, bodyLen)
			if err != nil {
				return nil, err
			}

			blocks.Security = *secData
		case TypeCSNet:
			netData, err := decodeClientNetworkData(src, bodyLen)
			if err != nil {
				return nil, err
			}

			blocks.Network = *netData
		default:
			// monitor, message-channel, multitransport and cluster blocks
			// carry nothing the acceptor needs
			if err := core.EnsureSize("ClientGccBlocks", src, bodyLen); err != nil {
				return nil, err
			}

			src.Advance(bodyLen)
		}
	}

	if !seenCore {
		return nil, core.InvalidField("ClientGccBlocks", "core", "missing client core data block")
	}

	return blocks, nil
}
