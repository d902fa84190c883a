// Package svc implements the static virtual channel layer: the CHANNEL_PDU
// framing (MS-RDPBCGR 2.2.6), the pluggable channel-handler registry, and
// the fragmentation both directions of the pipe require.
package svc

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/gcc"
)

// ChannelChunkLength is the maximum virtual-channel chunk size
// (CHANNEL_CHUNK_LENGTH).
const ChannelChunkLength = 1600

// ChannelFlags are the CHANNEL_PDU_HEADER flags.
type ChannelFlags uint32

const (
	// ChannelFlagFirst CHANNEL_FLAG_FIRST
	ChannelFlagFirst ChannelFlags = 0x00000001

	// ChannelFlagLast CHANNEL_FLAG_LAST
	ChannelFlagLast ChannelFlags = 0x00000002

	// ChannelFlagShowProtocol CHANNEL_FLAG_SHOW_PROTOCOL
	ChannelFlagShowProtocol ChannelFlags = 0x00000010

	// ChannelFlagSuspend CHANNEL_FLAG_SUSPEND
	ChannelFlagSuspend ChannelFlags = 0x00000020

	// ChannelFlagResume CHANNEL_FLAG_RESUME
	ChannelFlagResume ChannelFlags = 0x00000040

	// ChannelPacketCompressed CHANNEL_PACKET_COMPRESSED
	ChannelPacketCompressed ChannelFlags = 0x00200000
)

// CompressionCondition tells the pipeline when a channel's traffic may be
// bulk-compressed.
type CompressionCondition int

const (
	// CompressionNever disables compression for the channel.
	CompressionNever CompressionCondition = iota

	// CompressionWhenRdpDataIsCompressed compresses the channel whenever the
	// main RDP data stream is compressed.
	CompressionWhenRdpDataIsCompressed
)

// ChannelPduHeader frames every virtual-channel chunk: the total reassembled
// length and the fragmentation flags.
type ChannelPduHeader struct {
	Length uint32
	Flags  ChannelFlags
}

const channelPduHeaderLength = 8

func (h ChannelPduHeader) encode(dst *core.WriteCursor) {
	dst.WriteU32(h.Length)
	dst.WriteU32(uint32(h.Flags))
}

func decodeChannelPduHeader(src *core.ReadCursor) (ChannelPduHeader, error) {
	if err := core.EnsureSize("ChannelPduHeader", src, channelPduHeaderLength); err != nil {
		return ChannelPduHeader{}, err
	}

	return ChannelPduHeader{
		Length: src.ReadU32(),
		Flags:  ChannelFlags(src.ReadU32()),
	}, nil
}

// Message is one outbound channel message: an encodable PDU plus the flags
// to preserve on its fragments.
type Message struct {
	PDU   core.Encode
	Flags ChannelFlags
}

// Processor is a static virtual channel handler.
type Processor interface {
	// ChannelName returns the fixed 8-byte channel identifier.
	ChannelName() gcc.ChannelName

	// CompressionCondition declares when this channel's traffic may be
	// compressed by the pipeline.
	CompressionCondition() CompressionCondition

	// Start produces the messages emitted when the connection activates.
	Start() ([]Message, error)

	// Process handles one reassembled inbound payload and returns the
	// responses.
	Process(payload []byte) ([]Message, error)

	// IsDrdynvc is true only for the dynamic virtual channel gateway.
	IsDrdynvc() bool
}

// channelEntry pairs a handler with its inbound reassembly state.
type channelEntry struct {
	processor Processor
	assembler chunkAssembler
}

// StaticChannelSet is the insertion-ordered, duplicate-free registry of
// static channel handlers, indexed by name and, once the GCC exchange
// assigned them, by MCS channel id. Both indices always agree.
type StaticChannelSet struct {
	order    []gcc.ChannelName
	byName   map[gcc.ChannelName]*channelEntry
	idByName map[gcc.ChannelName]uint16
	nameByID map[uint16]gcc.ChannelName
}

// NewStaticChannelSet builds an empty registry.
func NewStaticChannelSet() *StaticChannelSet {
	return &StaticChannelSet{
		byName:   make(map[gcc.ChannelName]*channelEntry),
		idByName: make(map[gcc.ChannelName]uint16),
		nameByID: make(map[uint16]gcc.ChannelName),
	}
}

// Insert registers a handler, replacing any handler with the same name.
func (s *StaticChannelSet) Insert(p Processor) {
	name := p.ChannelName()

	if _, exists := s.byName[name]; !exists {
		s.order = append(s.order, name)
	}

	s.byName[name] = &channelEntry{processor: p}
}

// Len returns the number of registered handlers.
func (s *StaticChannelSet) Len() int {
	return len(s.order)
}

// ChannelNames returns the registered names in insertion order.
func (s *StaticChannelSet) ChannelNames() []gcc.ChannelName {
	names := make([]gcc.ChannelName, len(s.order))
	copy(names, s.order)
	return names
}

// GetByName returns the handler registered under the given name.
func (s *StaticChannelSet) GetByName(name gcc.ChannelName) Processor {
	if entry, ok := s.byName[name]; ok {
		return entry.processor
	}
	return nil
}

// GetByID returns the handler bound to the given MCS channel id.
func (s *StaticChannelSet) GetByID(id uint16) Processor {
	if name, ok := s.nameByID[id]; ok {
		return s.byName[name].processor
	}
	return nil
}

// AttachChannelID binds an MCS channel id to a registered channel name.
func (s *StaticChannelSet) AttachChannelID(name gcc.ChannelName, id uint16) {
	if _, ok := s.byName[name]; !ok {
		return
	}

	s.idByName[name] = id
	s.nameByID[id] = name
}

// ChannelIDByName returns the MCS channel id bound to a name.
func (s *StaticChannelSet) ChannelIDByName(name gcc.ChannelName) (uint16, bool) {
	id, ok := s.idByName[name]
	return id, ok
}

// ChannelIDs returns the bound MCS channel ids.
func (s *StaticChannelSet) ChannelIDs() []uint16 {
	ids := make([]uint16, 0, len(s.idByName))
	for _, name := range s.order {
		if id, ok := s.idByName[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Bindings returns the id→name table, for handing to the session after the
// connection sequence completes.
func (s *StaticChannelSet) Bindings() map[uint16]gcc.ChannelName {
	out := make(map[uint16]gcc.ChannelName, len(s.nameByID))
	for id, name := range s.nameByID {
		out[id] = name
	}
	return out
}

// DrdynvcChannelID returns the MCS id bound to the DVC gateway channel.
func (s *StaticChannelSet) DrdynvcChannelID() (uint16, bool) {
	for _, name := range s.order {
		if s.byName[name].processor.IsDrdynvc() {
			return s.ChannelIDByName(name)
		}
	}
	return 0, false
}

// chunkAssembler accumulates CHANNEL_PDU fragments until CHANNEL_FLAG_LAST.
type chunkAssembler struct {
	active bool
	total  uint32
	data   []byte
}

// ProcessPayload decodes one inbound CHANNEL_PDU addressed to the channel
// with the given id, reassembles fragments, and hands complete payloads to
// the handler. It returns the handler's response messages, nil while a
// fragment sequence is still open.
func (s *StaticChannelSet) ProcessPayload(id uint16, payload []byte) ([]Message, error) {
	name, ok := s.nameByID[id]
	if !ok {
		return nil, core.Other("StaticChannelSet", "payload addressed to an unknown static channel")
	}

	entry := s.byName[name]

	src := core.NewReadCursor(payload)

	header, err := decodeChannelPduHeader(src)
	if err != nil {
		return nil, err
	}

	data := src.ReadSlice(src.Len())

	if header.Flags&ChannelFlagFirst != 0 {
		entry.assembler = chunkAssembler{
			active: true,
			total:  header.Length,
			data:   make([]byte, 0, header.Length),
		}
	}

	if !entry.assembler.active {
		return nil, core.Other("StaticChannelSet", "channel fragment without CHANNEL_FLAG_FIRST")
	}

	entry.assembler.data = append(entry.assembler.data, data...)

	if uint32(len(entry.assembler.data)) > entry.assembler.total {
		return nil, core.Other("StaticChannelSet", "channel reassembly exceeds the declared length")
	}

	if header.Flags&ChannelFlagLast == 0 {
		return nil, nil
	}

	if uint32(len(entry.assembler.data)) != entry.assembler.total {
		return nil, core.Other("StaticChannelSet", "channel reassembly shorter than the declared length")
	}

	complete := entry.assembler.data
	entry.assembler = chunkAssembler{}

	return entry.processor.Process(complete)
}

// ChunkifyMessage encodes one outbound message and splits it into
// CHANNEL_PDU chunks of at most ChannelChunkLength data bytes. FIRST/LAST
// flags mark the reassembly boundaries; the message's own flags are
// preserved on every fragment.
func ChunkifyMessage(msg Message) ([][]byte, error) {
	encoded, err := core.EncodeVec(msg.PDU)
	if err != nil {
		return nil, err
	}

	total := uint32(len(encoded))

	var chunks [][]byte

	for offset := 0; offset < len(encoded) || offset == 0; {
		end := offset + ChannelChunkLength
		if end > len(encoded) {
			end = len(encoded)
		}

		flags := msg.Flags
		if offset == 0 {
			flags |= ChannelFlagFirst
		}
		if end == len(encoded) {
			flags |= ChannelFlagLast
		}

		chunk := make([]byte, channelPduHeaderLength+end-offset)
		w := core.NewWriteCursor(chunk)
		ChannelPduHeader{Length: total, Flags: flags}.encode(w)
		w.WriteSlice(encoded[offset:end])

		chunks = append(chunks, chunk)

		offset = end
		if offset == len(encoded) {
			break
		}
	}

	return chunks, nil
}
