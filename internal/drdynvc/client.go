package drdynvc

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/logging"
	"github.com/rcarmo/rdp-core/internal/protocol/gcc"
	"github.com/rcarmo/rdp-core/internal/svc"
)

// maxReassemblyLength bounds a DataFirst declared total before any
// allocation happens.
const maxReassemblyLength = 16 * 1024 * 1024

// Processor is a dynamic virtual channel handler.
type Processor interface {
	// ChannelName is the dynamic channel name the server creates, e.g.
	// "Microsoft::Windows::RDS::DisplayControl".
	ChannelName() string

	// Start produces the messages emitted right after the channel is
	// created.
	Start() ([]core.Encode, error)

	// Process handles one complete reassembled payload.
	Process(payload []byte) ([]core.Encode, error)
}

// dynamicChannel pairs a handler with its assigned id and reassembly state.
type dynamicChannel struct {
	processor Processor
	id        uint32
	bound     bool

	reassembling bool
	total        uint32
	buffer       []byte
}

// DynamicChannelSet indexes dynamic channels by name, and by id once a
// Create bound one. Both indices always agree.
type DynamicChannelSet struct {
	byName map[string]*dynamicChannel
	byID   map[uint32]*dynamicChannel
}

// NewDynamicChannelSet builds an empty set.
func NewDynamicChannelSet() *DynamicChannelSet {
	return &DynamicChannelSet{
		byName: make(map[string]*dynamicChannel),
		byID:   make(map[uint32]*dynamicChannel),
	}
}

// Insert registers a handler under its channel name.
func (s *DynamicChannelSet) Insert(p Processor) {
	s.byName[p.ChannelName()] = &dynamicChannel{processor: p}
}

// getByName returns the channel registered under name.
func (s *DynamicChannelSet) getByName(name string) *dynamicChannel {
	return s.byName[name]
}

// getByID returns the channel bound to id.
func (s *DynamicChannelSet) getByID(id uint32) *dynamicChannel {
	return s.byID[id]
}

// attachChannelID binds a channel id to a registered name.
func (s *DynamicChannelSet) attachChannelID(name string, id uint32) {
	channel := s.byName[name]
	if channel == nil {
		return
	}

	channel.id = id
	channel.bound = true
	s.byID[id] = channel
}

// removeByID unbinds the channel with the given id.
func (s *DynamicChannelSet) removeByID(id uint32) {
	channel := s.byID[id]
	if channel == nil {
		return
	}

	channel.bound = false
	channel.reassembling = false
	channel.buffer = nil
	delete(s.byID, id)
}

// Client is the DRDYNVC dispatcher, registered as a static virtual channel
// under the name "drdynvc".
type Client struct {
	channels         *DynamicChannelSet
	capHandshakeDone bool
}

// NewClient builds a dispatcher with no dynamic channels registered.
func NewClient() *Client {
	return &Client{channels: NewDynamicChannelSet()}
}

// WithDynamicChannel registers a dynamic channel handler.
func (c *Client) WithDynamicChannel(p Processor) *Client {
	c.channels.Insert(p)
	return c
}

// CapHandshakeDone reports whether the capability exchange completed.
func (c *Client) CapHandshakeDone() bool {
	return c.capHandshakeDone
}

func (c *Client) ChannelName() gcc.ChannelName {
	return gcc.ChannelNameDrdynvc
}

func (c *Client) CompressionCondition() svc.CompressionCondition {
	return svc.CompressionWhenRdpDataIsCompressed
}

func (c *Client) Start() ([]svc.Message, error) {
	return nil, nil
}

func (c *Client) IsDrdynvc() bool {
	return true
}

func (c *Client) Process(payload []byte) ([]svc.Message, error) {
	pdu, err := DecodeServerPdu(core.NewReadCursor(payload))
	if err != nil {
		return nil, err
	}

	switch {
	case pdu.Caps != nil:
		logging.Debug("drdynvc: capability request v%d", pdu.Caps.Version)

		return []svc.Message{c.capabilitiesResponse()}, nil
	case pdu.Create != nil:
		return c.handleCreate(pdu.Create)
	case pdu.DataFirst != nil:
		return c.handleDataFirst(pdu.DataFirst)
	case pdu.Data != nil:
		return c.handleData(pdu.Data)
	case pdu.Close != nil:
		logging.Debug("drdynvc: close channel %d", pdu.Close.ChannelID)

		c.channels.removeByID(pdu.Close.ChannelID)

		return []svc.Message{{PDU: &ClosePdu{ChannelID: pdu.Close.ChannelID}}}, nil
	case pdu.SoftSync:
		return []svc.Message{{PDU: &SoftSyncResponsePdu{}}}, nil
	default:
		return nil, core.Other("Drdynvc", "empty server PDU")
	}
}

func (c *Client) capabilitiesResponse() svc.Message {
	c.capHandshakeDone = true
	return svc.Message{PDU: &CapabilitiesResponsePdu{Version: CapsVersion1}}
}

func (c *Client) handleCreate(create *CreateRequestPdu) ([]svc.Message, error) {
	logging.Debug("drdynvc: create channel %d %q", create.ChannelID, create.ChannelName)

	var responses []svc.Message

	// a create before the capability exchange still deserves a caps response
	if !c.capHandshakeDone {
		responses = append(responses, c.capabilitiesResponse())
	}

	if existing := c.channels.getByID(create.ChannelID); existing != nil {
		return nil, core.Other("DynvcCreateRequest", "duplicate create for an already-bound channel id")
	}

	channel := c.channels.getByName(create.ChannelName)
	if channel == nil {
		responses = append(responses, svc.Message{PDU: &CreateResponsePdu{
			ChannelID:      create.ChannelID,
			CreationStatus: StatusNoListener,
		}})

		return responses, nil
	}

	c.channels.attachChannelID(create.ChannelName, create.ChannelID)

	responses = append(responses, svc.Message{PDU: &CreateResponsePdu{
		ChannelID:      create.ChannelID,
		CreationStatus: StatusOK,
	}})

	startMessages, err := channel.processor.Start()
	if err != nil {
		return nil, err
	}

	if len(startMessages) > 0 {
		encoded, err := EncodeMessages(create.ChannelID, startMessages)
		if err != nil {
			return nil, err
		}

		responses = append(responses, encoded...)
	}

	return responses, nil
}

func (c *Client) handleDataFirst(first *DataFirstPdu) ([]svc.Message, error) {
	channel := c.channels.getByID(first.ChannelID)
	if channel == nil {
		return nil, core.Other("DynvcDataFirst", "data for an unknown channel id")
	}

	if first.TotalLength > maxReassemblyLength {
		return nil, core.InvalidField("DynvcDataFirst", "Length", "declared total exceeds the reassembly limit")
	}

	if uint32(len(first.Data)) > first.TotalLength {
		return nil, core.InvalidField("DynvcDataFirst", "Length", "fragment larger than the declared total")
	}

	channel.reassembling = true
	channel.total = first.TotalLength
	channel.buffer = make([]byte, 0, first.TotalLength)
	channel.buffer = append(channel.buffer, first.Data...)

	// a DataFirst declaring exactly its payload completes immediately
	if uint32(len(channel.buffer)) == channel.total {
		return c.deliver(channel)
	}

	return nil, nil
}

func (c *Client) handleData(data *DataPdu) ([]svc.Message, error) {
	channel := c.channels.getByID(data.ChannelID)
	if channel == nil {
		return nil, core.Other("DynvcData", "data for an unknown channel id")
	}

	// without a DataFirst in progress, the payload is a complete message
	if !channel.reassembling {
		return c.process(channel, data.Data)
	}

	channel.buffer = append(channel.buffer, data.Data...)

	if uint32(len(channel.buffer)) > channel.total {
		return nil, core.Other("DynvcData", "reassembly exceeds the length declared by DataFirst")
	}

	if uint32(len(channel.buffer)) < channel.total {
		return nil, nil
	}

	return c.deliver(channel)
}

// deliver hands the completed reassembly buffer to the handler, exactly once.
func (c *Client) deliver(channel *dynamicChannel) ([]svc.Message, error) {
	complete := channel.buffer
	channel.reassembling = false
	channel.buffer = nil

	return c.process(channel, complete)
}

func (c *Client) process(channel *dynamicChannel, payload []byte) ([]svc.Message, error) {
	messages, err := channel.processor.Process(payload)
	if err != nil {
		return nil, err
	}

	return EncodeMessages(channel.id, messages)
}

// maximum DVC payload bytes per chunk, keeping each chunk within the static
// channel chunk ceiling after the u32-width DVC header
const (
	dataHeaderOverhead      = 1 + 4
	dataFirstHeaderOverhead = 1 + 4 + 4
	maxDataChunk            = svc.ChannelChunkLength - dataHeaderOverhead
	maxDataFirstChunk       = svc.ChannelChunkLength - dataFirstHeaderOverhead
)

// EncodeMessages encodes handler outputs as DVC Data PDUs, splitting with
// DataFirst/Data when a message exceeds the chunk ceiling, and wraps them as
// static channel messages.
func EncodeMessages(channelID uint32, messages []core.Encode) ([]svc.Message, error) {
	var out []svc.Message

	for _, msg := range messages {
		encoded, err := core.EncodeVec(msg)
		if err != nil {
			return nil, err
		}

		if len(encoded) <= maxDataChunk {
			out = append(out, svc.Message{PDU: &DataPdu{ChannelID: channelID, Data: encoded}})
			continue
		}

		first := &DataFirstPdu{
			ChannelID:   channelID,
			TotalLength: uint32(len(encoded)),
			Data:        encoded[:maxDataFirstChunk],
		}

		out = append(out, svc.Message{PDU: first})

		for offset := maxDataFirstChunk; offset < len(encoded); {
			end := offset + maxDataChunk
			if end > len(encoded) {
				end = len(encoded)
			}

			out = append(out, svc.Message{PDU: &DataPdu{ChannelID: channelID, Data: encoded[offset:end]}})

			offset = end
		}
	}

	return out, nil
}
