package pdu

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/encoding"
)

// Info packet flags (TS_INFO_PACKET, MS-RDPBCGR 2.2.1.11.1.1).
const (
	InfoFlagMouse            uint32 = 0x00000001
	InfoFlagDisableCtrlAltDel uint32 = 0x00000002
	InfoFlagAutologon        uint32 = 0x00000008
	InfoFlagUnicode          uint32 = 0x00000010
	InfoFlagMaximizeShell    uint32 = 0x00000020
	InfoFlagLogonNotify      uint32 = 0x00000040
	InfoFlagEnableWindowsKey uint32 = 0x00000100
	InfoFlagRail             uint32 = 0x00008000
)

// Performance flags (TS_EXTENDED_INFO_PACKET performanceFlags).
const (
	PerfDisableWallpaper   uint32 = 0x00000001
	PerfDisableFullWindowDrag uint32 = 0x00000002
	PerfDisableMenuAnimations uint32 = 0x00000004
	PerfDisableTheming     uint32 = 0x00000008
	PerfEnableFontSmoothing uint32 = 0x00000080
)

const clientTimeZoneLength = 172

// ClientInfo is the TS_INFO_PACKET with its extended info, carried in the
// Client Info PDU on the I/O channel.
type ClientInfo struct {
	Flags            uint32
	Domain           string
	Username         string
	Password         string
	AlternateShell   string
	WorkingDir       string
	ClientAddress    string
	ClientDir        string
	PerformanceFlags uint32

	// AutoReconnectCookie is the opaque ARC_CS_PRIVATE_PACKET blob, if any.
	AutoReconnectCookie []byte
}

// NewClientInfo builds a client info packet with the flags every client
// sends.
func NewClientInfo(domain, username, password string) *ClientInfo {
	return &ClientInfo{
		Flags: InfoFlagMouse | InfoFlagUnicode | InfoFlagDisableCtrlAltDel |
			InfoFlagMaximizeShell | InfoFlagLogonNotify | InfoFlagEnableWindowsKey,
		Domain:           domain,
		Username:         username,
		Password:         password,
		ClientAddress:    "0.0.0.0",
		ClientDir:        "C:\\Windows\\System32\\mstscax.dll",
		PerformanceFlags: PerfDisableWallpaper | PerfDisableMenuAnimations,
	}
}

func (p *ClientInfo) Name() string { return "ClientInfoPdu" }

func utf16FieldSize(s string) int {
	return encoding.Utf16LESize(s)
}

func (p *ClientInfo) Size() int {
	size := basicSecurityHeaderLength +
		4 + 4 + // codePage, flags
		5*2 + // cb fields
		utf16FieldSize(p.Domain) + 2 +
		utf16FieldSize(p.Username) + 2 +
		utf16FieldSize(p.Password) + 2 +
		utf16FieldSize(p.AlternateShell) + 2 +
		utf16FieldSize(p.WorkingDir) + 2

	// extended info
	size += 2 + 2 + utf16FieldSize(p.ClientAddress) + 2 +
		2 + utf16FieldSize(p.ClientDir) + 2 +
		clientTimeZoneLength +
		4 + // clientSessionId
		4 + // performanceFlags
		2 + len(p.AutoReconnectCookie)

	return size
}

func (p *ClientInfo) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	encodeBasicSecurityHeader(dst, SecInfoPkt)

	dst.WriteU32(0) // codePage
	dst.WriteU32(p.Flags | InfoFlagUnicode)

	dst.WriteU16(uint16(utf16FieldSize(p.Domain)))
	dst.WriteU16(uint16(utf16FieldSize(p.Username)))
	dst.WriteU16(uint16(utf16FieldSize(p.Password)))
	dst.WriteU16(uint16(utf16FieldSize(p.AlternateShell)))
	dst.WriteU16(uint16(utf16FieldSize(p.WorkingDir)))

	writeUtf16WithTerminator(dst, p.Domain)
	writeUtf16WithTerminator(dst, p.Username)
	writeUtf16WithTerminator(dst, p.Password)
	writeUtf16WithTerminator(dst, p.AlternateShell)
	writeUtf16WithTerminator(dst, p.WorkingDir)

	dst.WriteU16(0x0002) // clientAddressFamily: AF_INET
	dst.WriteU16(uint16(utf16FieldSize(p.ClientAddress) + 2))
	writeUtf16WithTerminator(dst, p.ClientAddress)
	dst.WriteU16(uint16(utf16FieldSize(p.ClientDir) + 2))
	writeUtf16WithTerminator(dst, p.ClientDir)
	dst.WritePadding(clientTimeZoneLength)
	dst.WriteU32(0) // clientSessionId
	dst.WriteU32(p.PerformanceFlags)
	dst.WriteU16(uint16(len(p.AutoReconnectCookie)))
	dst.WriteSlice(p.AutoReconnectCookie)

	return nil
}

func writeUtf16WithTerminator(dst *core.WriteCursor, s string) {
	dst.WriteSlice(encoding.EncodeUtf16LE(s))
	dst.WriteU16(0)
}

// DecodeClientInfo parses a Client Info PDU (acceptor side).
func DecodeClientInfo(src *core.ReadCursor) (*ClientInfo, error) {
	flags, err := decodeBasicSecurityHeader(src)
	if err != nil {
		return nil, err
	}

	if flags&SecInfoPkt == 0 {
		return nil, core.InvalidField("ClientInfoPdu", "flags", "missing SEC_INFO_PKT")
	}

	if err = core.EnsureSize("ClientInfoPdu", src, 18); err != nil {
		return nil, err
	}

	p := &ClientInfo{}

	src.ReadU32() // codePage
	p.Flags = src.ReadU32()

	cbDomain := int(src.ReadU16())
	cbUserName := int(src.ReadU16())
	cbPassword := int(src.ReadU16())
	cbAlternateShell := int(src.ReadU16())
	cbWorkingDir := int(src.ReadU16())

	stringsLen := cbDomain + cbUserName + cbPassword + cbAlternateShell + cbWorkingDir + 5*2
	if err = core.EnsureSize("ClientInfoPdu", src, stringsLen); err != nil {
		return nil, err
	}

	p.Domain = encoding.DecodeUtf16LE(src.ReadSlice(cbDomain + 2))
	p.Username = encoding.DecodeUtf16LE(src.ReadSlice(cbUserName + 2))
	p.Password = encoding.DecodeUtf16LE(src.ReadSlice(cbPassword + 2))
	p.AlternateShell = encoding.DecodeUtf16LE(src.ReadSlice(cbAlternateShell + 2))
	p.WorkingDir = encoding.DecodeUtf16LE(src.ReadSlice(cbWorkingDir + 2))

	// extended info is optional
	if src.Len() < 4 {
		return p, nil
	}

	src.ReadU16() // clientAddressFamily

	cbClientAddress := int(src.ReadU16())
	if err = core.EnsureSize("ClientInfoPdu", src, cbClientAddress+2); err != nil {
		return nil, err
	}

	p.ClientAddress = encoding.DecodeUtf16LE(src.ReadSlice(cbClientAddress))

	cbClientDir := int(src.ReadU16())
	if err = core.EnsureSize("ClientInfoPdu", src, cbClientDir); err != nil {
		return nil, err
	}

	p.ClientDir = encoding.DecodeUtf16LE(src.ReadSlice(cbClientDir))

	if src.Len() >= clientTimeZoneLength+8 {
		src.ReadSlice(clientTimeZoneLength)
		src.ReadU32() // clientSessionId
		p.PerformanceFlags = src.ReadU32()
	}

	if src.Len() >= 2 {
		cbCookie := int(src.ReadU16())
		if cbCookie > 0 && src.Len() >= cbCookie {
			p.AutoReconnectCookie = src.ReadSlice(cbCookie)
		}
	}

	return p, nil
}
