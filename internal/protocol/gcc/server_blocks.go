package gcc

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// Server early capability flags (TS_UD_SC_CORE).
const (
	SCFEdgeActionsSupported   uint32 = 0x00000001
	SCFDynamicDSTSupported    uint32 = 0x00000002
	SCFSkipChannelJoinSupport uint32 = 0x00000008
)

// ServerCoreData is the TS_UD_SC_CORE block (MS-RDPBCGR 2.2.1.4.2).
type ServerCoreData struct {
	Version                  uint32
	ClientRequestedProtocols uint32
	EarlyCapabilityFlags     uint32
}

const serverCoreDataLength = 16

func (d *ServerCoreData) Name() string { return "ServerCoreData" }

func (d *ServerCoreData) Size() int { return serverCoreDataLength }

func (d *ServerCoreData) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(d.Name(), dst, d.Size()); err != nil {
		return err
	}

	dst.WriteU16(TypeSCCore)
	dst.WriteU16(serverCoreDataLength)
	dst.WriteU32(d.Version)
	dst.WriteU32(d.ClientRequestedProtocols)
	dst.WriteU32(d.EarlyCapabilityFlags)

	return nil
}

func decodeServerCoreData(src *core.ReadCursor, blockLen int) (*ServerCoreData, error) {
	if err := core.EnsureSize("ServerCoreData", src, blockLen); err != nil {
		return nil, err
	}

	body := core.NewReadCursor(src.ReadSlice(blockLen))

	if err := core.EnsureSize("ServerCoreData", body, 4); err != nil {
		return nil, err
	}

	d := &ServerCoreData{Version: body.ReadU32()}

	if body.Len() >= 4 {
		d.ClientRequestedProtocols = body.ReadU32()
	}

	if body.Len() >= 4 {
		d.EarlyCapabilityFlags = body.ReadU32()
	}

	return d, nil
}

// ServerSecurityData is the TS_UD_SC_SEC1 block. Both fields stay zero under
// enhanced RDP security.
type ServerSecurityData struct {
	EncryptionMethod uint32
	EncryptionLevel  uint32
}

const serverSecurityDataLength = 12

func (d *ServerSecurityData) Name() string { return "ServerSecurityData" }

func (d *ServerSecurityData) Size() int { return serverSecurityDataLength }

func (d *ServerSecurityData) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(d.Name(), dst, d.Size()); err != nil {
		return err
	}

	dst.WriteU16(TypeSCSecurity)
	dst.WriteU16(serverSecurityDataLength)
	dst.WriteU32(d.EncryptionMethod)
	dst.WriteU32(d.EncryptionLevel)

	return nil
}

func decodeServerSecurityData(src *core.ReadCursor, blockLen int) (*ServerSecurityData, error) {
	if err := core.EnsureSize("ServerSecurityData", src, blockLen); err != nil {
		return nil, err
	}

	body := core.NewReadCursor(src.ReadSlice(blockLen))

	if err := core.EnsureSize("ServerSecurityData", body, 8); err != nil {
		return nil, err
	}

	return &ServerSecurityData{
		EncryptionMethod: body.ReadU32(),
		EncryptionLevel:  body.ReadU32(),
	}, nil
}

// ServerNetworkData is the TS_UD_SC_NET block assigning the I/O channel id
// and one id per requested static channel, in request order.
type ServerNetworkData struct {
	MCSChannelID   uint16
	ChannelIDArray []uint16
}

func (d *ServerNetworkData) Name() string { return "ServerNetworkData" }

func (d *ServerNetworkData) Size() int {
	size := userDataHeaderLength + 4 + len(d.ChannelIDArray)*2
	if len(d.ChannelIDArray)%2 != 0 {
		size += 2 // pad to a 4-byte boundary
	}
	return size
}

func (d *ServerNetworkData) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(d.Name(), dst, d.Size()); err != nil {
		return err
	}

	dst.WriteU16(TypeSCNet)
	dst.WriteU16(uint16(d.Size()))
	dst.WriteU16(d.MCSChannelID)
	dst.WriteU16(uint16(len(d.ChannelIDArray)))

	for _, id := range d.ChannelIDArray {
		dst.WriteU16(id)
	}

	if len(d.ChannelIDArray)%2 != 0 {
		dst.WritePadding(2)
	}

	return nil
}

func decodeServerNetworkData(src *core.ReadCursor, blockLen int) (*ServerNetworkData, error) {
	if err := core.EnsureSize("ServerNetworkData", src, blockLen); err != nil {
		return nil, err
	}

	body := core.NewReadCursor(src.ReadSlice(blockLen))

	if err := core.EnsureSize("ServerNetworkData", body, 4); err != nil {
		return nil, err
	}

	d := &ServerNetworkData{MCSChannelID: body.ReadU16()}

	count := int(body.ReadU16())

	if err := core.EnsureSize("ServerNetworkData", body, count*2); err != nil {
		return nil, err
	}

	for i := 0; i < count; i++ {
		d.ChannelIDArray = append(d.ChannelIDArray, body.ReadU16())
	}

	return d, nil
}

// ServerGccBlocks aggregates the server user-data blocks carried inside the
// Conference-Create Response.
type ServerGccBlocks struct {
	Core     ServerCoreData
	Security ServerSecurityData
	Network  ServerNetworkData
}

func (b *ServerGccBlocks) Name() string { return "ServerGccBlocks" }

func (b *ServerGccBlocks) Size() int {
	return b.Core.Size() + b.Security.Size() + b.Network.Size()
}

func (b *ServerGccBlocks) Encode(dst *core.WriteCursor) error {
	if err := b.Core.Encode(dst); err != nil {
		return err
	}

	if err := b.Security.Encode(dst); err != nil {
		return err
	}

	return b.Network.Encode(dst)
}

// DecodeServerGccBlocks parses the concatenated server user-data blocks.
func DecodeServerGccBlocks(src *core.ReadCursor) (*ServerGccBlocks, error) {
	blocks := &ServerGccBlocks{}
	seenNet := false

	for !src.IsEmpty() {
		if err := core.EnsureSize("ServerGccBlocks", src, userDataHeaderLength); err != nil {
			return nil, err
		}

		blockType := src.ReadU16()
		blockLen := int(src.ReadU16())

		if blockLen < userDataHeaderLength {
			return nil, core.InvalidField("ServerGccBlocks", "length", "user data block shorter than its header")
		}

		bodyLen := blockLen - userDataHeaderLength

		switch blockType {
		case TypeSCCore:
			coreData, err := decodeServerCoreData(src, bodyLen)
			if err != nil {
				return nil, err
			}

			blocks.Core = *coreData
		case TypeSCSecurity:
			secData, err := decodeServerSecurityData(src, bodyLen)
			if err != nil {
				return nil, err
			}

			blocks.Security = *secData
		case TypeSCNet:
			netData, err := decodeServerNetworkData(src, bodyLen)
			if err != nil {
				return nil, err
			}

			blocks.Network = *netData
			seenNet = true
		default:
			// message-channel and multitransport blocks are ignored
			if err := core.EnsureSize("ServerGccBlocks", src, bodyLen); err != nil {
				return nil, err
			}

			src.Advance(bodyLen)
		}
	}

	if !seenNet {
		return nil, core.InvalidField("ServerGccBlocks", "network", "missing server network data block")
	}

	return blocks, nil
}
