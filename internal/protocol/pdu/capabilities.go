package pdu

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// CapabilitySetType identifies a capability set (MS-RDPBCGR 2.2.7).
type CapabilitySetType uint16

const (
	CapsTypeGeneral              CapabilitySetType = 0x0001
	CapsTypeBitmap               CapabilitySetType = 0x0002
	CapsTypeOrder                CapabilitySetType = 0x0003
	CapsTypeBitmapCache          CapabilitySetType = 0x0004
	CapsTypeControl              CapabilitySetType = 0x0005
	CapsTypePointer              CapabilitySetType = 0x0008
	CapsTypeShare                CapabilitySetType = 0x0009
	CapsTypeColorCache           CapabilitySetType = 0x000A
	CapsTypeSound                CapabilitySetType = 0x000C
	CapsTypeInput                CapabilitySetType = 0x000D
	CapsTypeFont                 CapabilitySetType = 0x000E
	CapsTypeBrush                CapabilitySetType = 0x000F
	CapsTypeGlyphCache           CapabilitySetType = 0x0010
	CapsTypeOffscreenBitmapCache CapabilitySetType = 0x0011
	CapsTypeBitmapCacheRev2      CapabilitySetType = 0x0013
	CapsTypeVirtualChannel       CapabilitySetType = 0x0014
	CapsTypeMultifragmentUpdate  CapabilitySetType = 0x001A
	CapsTypeLargePointer         CapabilitySetType = 0x001B
	CapsTypeSurfaceCommands      CapabilitySetType = 0x001C
	CapsTypeBitmapCodecs         CapabilitySetType = 0x001D
	CapsTypeFrameAcknowledge     CapabilitySetType = 0x001E
)

const capsHeaderLength = 4

// CapabilitySet is one typed header plus its body bytes (the 4-byte header
// excluded).
type CapabilitySet struct {
	Type CapabilitySetType
	Data []byte
}

func (s CapabilitySet) size() int {
	return capsHeaderLength + len(s.Data)
}

func (s CapabilitySet) encode(dst *core.WriteCursor) {
	dst.WriteU16(uint16(s.Type))
	dst.WriteU16(uint16(s.size()))
	dst.WriteSlice(s.Data)
}

func decodeCapabilitySet(src *core.ReadCursor) (CapabilitySet, error) {
	if err := core.EnsureSize("CapabilitySet", src, capsHeaderLength); err != nil {
		return CapabilitySet{}, err
	}

	setType := CapabilitySetType(src.ReadU16())
	length := int(src.ReadU16())

	if length < capsHeaderLength {
		return CapabilitySet{}, core.InvalidField("CapabilitySet", "lengthCapability", "shorter than the capability header")
	}

	if err := core.EnsureSize("CapabilitySet", src, length-capsHeaderLength); err != nil {
		return CapabilitySet{}, err
	}

	return CapabilitySet{Type: setType, Data: src.ReadSlice(length - capsHeaderLength)}, nil
}

func body(n int) ([]byte, *core.WriteCursor) {
	data := make([]byte, n)
	return data, core.NewWriteCursor(data)
}

// NewGeneralCapability builds the General Capability Set with the default
// client values (MS-RDPBCGR 2.2.7.1.1).
func NewGeneralCapability() CapabilitySet {
	data, w := body(20)

	w.WriteU16(0x000A) // osMajorType: Windows platform
	w.WriteU16(0x0000) // osMinorType
	w.WriteU16(0x0200) // protocolVersion
	w.WriteU16(0)      // pad2octetsA
	w.WriteU16(0)      // compressionTypes
	// FASTPATH_OUTPUT_SUPPORTED | LONG_CREDENTIALS_SUPPORTED |
	// AUTORECONNECT_SUPPORTED | NO_BITMAP_COMPRESSION_HDR
	w.WriteU16(0x0001 | 0x0004 | 0x0008 | 0x0400)
	w.WriteU16(0) // updateCapabilityFlag
	w.WriteU16(0) // remoteUnshareFlag
	w.WriteU16(0) // compressionLevel
	w.WriteU8(1)  // refreshRectSupport
	w.WriteU8(1)  // suppressOutputSupport

	return CapabilitySet{Type: CapsTypeGeneral, Data: data}
}

// NewBitmapCapability builds the Bitmap Capability Set
// (MS-RDPBCGR 2.2.7.1.2).
func NewBitmapCapability(desktopWidth, desktopHeight uint16) CapabilitySet {
	data, w := body(24)

	w.WriteU16(0x0020) // preferredBitsPerPixel: 32
	w.WriteU16(1)      // receive1BitPerPixel
	w.WriteU16(1)      // receive4BitsPerPixel
	w.WriteU16(1)      // receive8BitsPerPixel
	w.WriteU16(desktopWidth)
	w.WriteU16(desktopHeight)
	w.WriteU16(0) // pad2octets
	w.WriteU16(1) // desktopResizeFlag
	w.WriteU16(1) // bitmapCompressionFlag
	w.WriteU8(0)  // highColorFlags
	w.WriteU8(0)  // drawingFlags
	w.WriteU16(1) // multipleRectangleSupport
	w.WriteU16(0) // pad2octetsB

	return CapabilitySet{Type: CapsTypeBitmap, Data: data}
}

// NewOrderCapability builds the Order Capability Set declaring no drawing
// order support (MS-RDPBCGR 2.2.7.1.3).
func NewOrderCapability() CapabilitySet {
	data, w := body(84)

	w.WritePadding(16)  // terminalDescriptor
	w.WritePadding(4)   // pad4octetsA
	w.WriteU16(1)       // desktopSaveXGranularity
	w.WriteU16(20)      // desktopSaveYGranularity
	w.WriteU16(0)       // pad2octetsA
	w.WriteU16(1)       // maximumOrderLevel: ORD_LEVEL_1_ORDERS
	w.WriteU16(0)       // numberFonts
	w.WriteU16(0x0022)  // orderFlags: NEGOTIATEORDERSUPPORT | ZEROBOUNDSDELTASSUPPORT
	w.WritePadding(32)  // orderSupport: none
	w.WriteU16(0)       // textFlags
	w.WriteU16(0)       // orderSupportExFlags
	w.WritePadding(4)   // pad4octetsB
	w.WriteU32(480 * 480) // desktopSaveSize
	w.WriteU16(0)       // pad2octetsC
	w.WriteU16(0)       // pad2octetsD
	w.WriteU16(0)       // textANSICodePage
	w.WriteU16(0)       // pad2octetsE

	return CapabilitySet{Type: CapsTypeOrder, Data: data}
}

// NewBitmapCacheRev2Capability builds the Revision 2 Bitmap Cache Capability
// Set (MS-RDPBCGR 2.2.7.1.4.2).
func NewBitmapCacheRev2Capability() CapabilitySet {
	data, w := body(36)

	w.WriteU16(0x0000) // cacheFlags
	w.WriteU8(0)       // pad2
	w.WriteU8(3)       // numCellCaches
	w.WriteU32(120)    // bitmapCache0CellInfo
	w.WriteU32(120)    // bitmapCache1CellInfo
	w.WriteU32(2553)   // bitmapCache2CellInfo
	w.WriteU32(0)      // bitmapCache3CellInfo
	w.WriteU32(0)      // bitmapCache4CellInfo
	w.WritePadding(12) // pad3

	return CapabilitySet{Type: CapsTypeBitmapCacheRev2, Data: data}
}

// NewPointerCapability builds the Pointer Capability Set
// (MS-RDPBCGR 2.2.7.1.5).
func NewPointerCapability() CapabilitySet {
	data, w := body(6)

	w.WriteU16(1)  // colorPointerFlag
	w.WriteU16(20) // colorPointerCacheSize
	w.WriteU16(20) // pointerCacheSize

	return CapabilitySet{Type: CapsTypePointer, Data: data}
}

// NewSoundCapability builds the Sound Capability Set (MS-RDPBCGR 2.2.7.1.11).
func NewSoundCapability() CapabilitySet {
	data, w := body(4)

	w.WriteU16(0x0001) // soundFlags: SOUND_BEEPS_FLAG
	w.WriteU16(0)      // pad2octetsA

	return CapabilitySet{Type: CapsTypeSound, Data: data}
}

// NewInputCapability builds the Input Capability Set
// (MS-RDPBCGR 2.2.7.1.6).
func NewInputCapability(keyboardLayout, keyboardType, keyboardSubType, keyboardFunctionKey uint32) CapabilitySet {
	data, w := body(84)

	// INPUT_FLAG_SCANCODES | INPUT_FLAG_MOUSEX | INPUT_FLAG_UNICODE |
	// INPUT_FLAG_FASTPATH_INPUT2
	w.WriteU16(0x0001 | 0x0004 | 0x0010 | 0x0020)
	w.WriteU16(0) // pad2octetsA
	w.WriteU32(keyboardLayout)
	w.WriteU32(keyboardType)
	w.WriteU32(keyboardSubType)
	w.WriteU32(keyboardFunctionKey)
	w.WritePadding(64) // imeFileName

	return CapabilitySet{Type: CapsTypeInput, Data: data}
}

// NewBrushCapability builds the Brush Capability Set (MS-RDPBCGR 2.2.7.1.7).
func NewBrushCapability() CapabilitySet {
	data, w := body(4)

	w.WriteU32(0) // brushSupportLevel: BRUSH_DEFAULT

	return CapabilitySet{Type: CapsTypeBrush, Data: data}
}

// NewGlyphCacheCapability builds the Glyph Cache Capability Set declaring no
// glyph support (MS-RDPBCGR 2.2.7.1.8).
func NewGlyphCacheCapability() CapabilitySet {
	data, w := body(48)

	w.WritePadding(40) // glyphCache entries
	w.WriteU32(0)      // fragCache
	w.WriteU16(0)      // glyphSupportLevel: GLYPH_SUPPORT_NONE
	w.WriteU16(0)      // pad2octets

	return CapabilitySet{Type: CapsTypeGlyphCache, Data: data}
}

// NewOffscreenBitmapCacheCapability builds the Offscreen Bitmap Cache
// Capability Set (MS-RDPBCGR 2.2.7.1.9).
func NewOffscreenBitmapCacheCapability() CapabilitySet {
	data, w := body(8)

	w.WriteU32(0) // offscreenSupportLevel
	w.WriteU16(0) // offscreenCacheSize
	w.WriteU16(0) // offscreenCacheEntries

	return CapabilitySet{Type: CapsTypeOffscreenBitmapCache, Data: data}
}

// NewVirtualChannelCapability builds the Virtual Channel Capability Set
// (MS-RDPBCGR 2.2.7.1.10).
func NewVirtualChannelCapability() CapabilitySet {
	data, w := body(8)

	w.WriteU32(0x00000001) // flags: VCCAPS_COMPR_SC
	w.WriteU32(1600)       // VCChunkSize
	return CapabilitySet{Type: CapsTypeVirtualChannel, Data: data}
}

// NewBitmapCodecsCapability builds an empty Bitmap Codecs Capability Set; the
// concrete codecs are the embedder's business (MS-RDPBCGR 2.2.7.2.10).
func NewBitmapCodecsCapability() CapabilitySet {
	data, w := body(1)

	w.WriteU8(0) // bitmapCodecCount

	return CapabilitySet{Type: CapsTypeBitmapCodecs, Data: data}
}

// NewMultifragmentUpdateCapability builds the Multifragment Update Capability
// Set (MS-RDPBCGR 2.2.7.2.6).
func NewMultifragmentUpdateCapability(maxRequestSize uint32) CapabilitySet {
	data, w := body(4)

	w.WriteU32(maxRequestSize)

	return CapabilitySet{Type: CapsTypeMultifragmentUpdate, Data: data}
}

// NewLargePointerCapability builds the Large Pointer Capability Set
// (MS-RDPBCGR 2.2.7.2.7).
func NewLargePointerCapability() CapabilitySet {
	data, w := body(2)

	w.WriteU16(0x0001 | 0x0002) // LARGE_POINTER_FLAG_96x96 | _384x384

	return CapabilitySet{Type: CapsTypeLargePointer, Data: data}
}

// NewFrameAcknowledgeCapability builds the Frame Acknowledge Capability Set
// (MS-RDPEGDI 2.2.1.3).
func NewFrameAcknowledgeCapability() CapabilitySet {
	data, w := body(4)

	w.WriteU32(2) // maxUnacknowledgedFrameCount

	return CapabilitySet{Type: CapsTypeFrameAcknowledge, Data: data}
}

// ClientCapabilities returns the curated capability-set list sent in the
// Client Confirm Active PDU.
func ClientCapabilities(desktopWidth, desktopHeight uint16, keyboardLayout uint32) []CapabilitySet {
	return []CapabilitySet{
		NewGeneralCapability(),
		NewBitmapCapability(desktopWidth, desktopHeight),
		NewOrderCapability(),
		NewBitmapCacheRev2Capability(),
		NewPointerCapability(),
		NewSoundCapability(),
		NewInputCapability(keyboardLayout, 0x04, 0, 12),
		NewBrushCapability(),
		NewGlyphCacheCapability(),
		NewOffscreenBitmapCacheCapability(),
		NewVirtualChannelCapability(),
		NewBitmapCodecsCapability(),
		NewMultifragmentUpdateCapability(8 * 1024 * 1024),
		NewLargePointerCapability(),
		NewFrameAcknowledgeCapability(),
	}
}

// ServerCapabilities returns the capability-set list an acceptor demands.
func ServerCapabilities(desktopWidth, desktopHeight uint16) []CapabilitySet {
	return []CapabilitySet{
		NewGeneralCapability(),
		NewBitmapCapability(desktopWidth, desktopHeight),
		NewOrderCapability(),
		NewPointerCapability(),
		NewInputCapability(0, 0, 0, 0),
		NewVirtualChannelCapability(),
		NewMultifragmentUpdateCapability(8 * 1024 * 1024),
	}
}

const sourceDescriptor = "RDP"

// DemandActive is the body shared by the Server Demand Active and Client
// Confirm Active PDUs (MS-RDPBCGR 2.2.1.13).
type DemandActive struct {
	ShareID        uint32
	PDUSource      uint16
	OriginatorID   uint16 // confirm active only
	CapabilitySets []CapabilitySet
}

func (p *DemandActive) combinedCapsLength() int {
	n := 4 // numberCapabilities + pad2octets
	for _, set := range p.CapabilitySets {
		n += set.size()
	}
	return n
}

// FindCapability returns the first capability set of the given type.
func (p *DemandActive) FindCapability(t CapabilitySetType) *CapabilitySet {
	for i := range p.CapabilitySets {
		if p.CapabilitySets[i].Type == t {
			return &p.CapabilitySets[i]
		}
	}
	return nil
}

func (p *DemandActive) Name() string { return "ServerDemandActive" }

func (p *DemandActive) Size() int {
	return shareControlHeaderLength + 4 + 2 + 2 + len(sourceDescriptor) + 1 + p.combinedCapsLength() + 4
}

// Encode writes the Server Demand Active PDU.
func (p *DemandActive) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	header := ShareControlHeader{
		TotalLength: uint16(p.Size()),
		PDUType:     TypeDemandActive,
		PDUSource:   p.PDUSource,
	}
	header.encode(dst)

	dst.WriteU32(p.ShareID)
	dst.WriteU16(uint16(len(sourceDescriptor) + 1))
	dst.WriteU16(uint16(p.combinedCapsLength()))
	dst.WriteSlice([]byte(sourceDescriptor))
	dst.WriteU8(0)
	dst.WriteU16(uint16(len(p.CapabilitySets)))
	dst.WriteU16(0) // pad2octets

	for _, set := range p.CapabilitySets {
		set.encode(dst)
	}

	dst.WriteU32(0) // sessionId

	return nil
}

func decodeDemandActive(src *core.ReadCursor, control ShareControlHeader) (*DemandActive, error) {
	if err := core.EnsureSize("ServerDemandActive", src, 8); err != nil {
		return nil, err
	}

	p := &DemandActive{PDUSource: control.PDUSource}

	p.ShareID = src.ReadU32()
	srcDescLen := int(src.ReadU16())
	src.ReadU16() // lengthCombinedCapabilities

	if err := core.EnsureSize("ServerDemandActive", src, srcDescLen+4); err != nil {
		return nil, err
	}

	src.ReadSlice(srcDescLen)

	count := int(src.ReadU16())
	src.ReadU16() // pad2octets

	for i := 0; i < count; i++ {
		set, err := decodeCapabilitySet(src)
		if err != nil {
			return nil, err
		}

		p.CapabilitySets = append(p.CapabilitySets, set)
	}

	// trailing sessionId, optional on the wire
	if src.Len() >= 4 {
		src.ReadU32()
	}

	return p, nil
}

// ConfirmActive is the Client Confirm Active PDU (MS-RDPBCGR 2.2.1.13.2).
type ConfirmActive struct {
	ShareID        uint32
	PDUSource      uint16
	CapabilitySets []CapabilitySet
}

func (p *ConfirmActive) combinedCapsLength() int {
	n := 4
	for _, set := range p.CapabilitySets {
		n += set.size()
	}
	return n
}

func (p *ConfirmActive) Name() string { return "ClientConfirmActive" }

func (p *ConfirmActive) Size() int {
	return shareControlHeaderLength + 4 + 2 + 2 + 2 + len(sourceDescriptor) + 1 + p.combinedCapsLength()
}

func (p *ConfirmActive) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	header := ShareControlHeader{
		TotalLength: uint16(p.Size()),
		PDUType:     TypeConfirmActive,
		PDUSource:   p.PDUSource,
	}
	header.encode(dst)

	dst.WriteU32(p.ShareID)
	dst.WriteU16(0x03EA) // originatorId: the server
	dst.WriteU16(uint16(len(sourceDescriptor) + 1))
	dst.WriteU16(uint16(p.combinedCapsLength()))
	dst.WriteSlice([]byte(sourceDescriptor))
	dst.WriteU8(0)
	dst.WriteU16(uint16(len(p.CapabilitySets)))
	dst.WriteU16(0)

	for _, set := range p.CapabilitySets {
		set.encode(dst)
	}

	return nil
}

func decodeConfirmActiveBody(src *core.ReadCursor) (*DemandActive, error) {
	if err := core.EnsureSize("ClientConfirmActive", src, 10); err != nil {
		return nil, err
	}

	p := &DemandActive{}

	p.ShareID = src.ReadU32()
	p.OriginatorID = src.ReadU16()
	srcDescLen := int(src.ReadU16())
	src.ReadU16() // lengthCombinedCapabilities

	if err := core.EnsureSize("ClientConfirmActive", src, srcDescLen+4); err != nil {
		return nil, err
	}

	src.ReadSlice(srcDescLen)

	count := int(src.ReadU16())
	src.ReadU16()

	for i := 0; i < count; i++ {
		set, err := decodeCapabilitySet(src)
		if err != nil {
			return nil, err
		}

		p.CapabilitySets = append(p.CapabilitySets, set)
	}

	return p, nil
}
