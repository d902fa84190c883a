// Package gcc implements Generic Conference Control (T.124) structures used
// in the RDP connection sequence as specified in MS-RDPBCGR.
package gcc

// ChannelName is a fixed 8-byte ASCII static-channel identifier, NUL padded
// (for example "drdynvc\x00" or "cliprdr\x00").
type ChannelName [8]byte

// NewChannelName builds a channel name from a string, truncating to seven
// characters and padding with NULs.
func NewChannelName(s string) ChannelName {
	var name ChannelName
	copy(name[:7], s)
	return name
}

// String returns the name with trailing NULs removed.
func (n ChannelName) String() string {
	end := len(n)
	for end > 0 && n[end-1] == 0 {
		end--
	}
	return string(n[:end])
}

// Well-known static channel names.
var (
	ChannelNameDrdynvc = NewChannelName("drdynvc")
	ChannelNameCliprdr = NewChannelName("cliprdr")
	ChannelNameRdpsnd  = NewChannelName("rdpsnd")
	ChannelNameRdpdr   = NewChannelName("rdpdr")
)

// Channel option flags (CHANNEL_DEF options).
const (
	ChannelOptionInitialized   uint32 = 0x80000000
	ChannelOptionEncryptRdp    uint32 = 0x40000000
	ChannelOptionCompressRdp   uint32 = 0x00800000
	ChannelOptionShowProtocol  uint32 = 0x00100000
	ChannelOptionPriorityHigh  uint32 = 0x08000000
	ChannelOptionPriorityMedum uint32 = 0x04000000
	ChannelOptionPriorityLow   uint32 = 0x02000000
)
