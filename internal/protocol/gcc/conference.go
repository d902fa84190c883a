package gcc

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/encoding"
)

var (
	t124OID   = [6]byte{0, 0, 20, 124, 0, 1}
	h221CSKey = []byte("Duca")
	h221SCKey = []byte("McDn")
)

// ConferenceCreateRequest wraps the client user-data blocks in the T.124
// Conference-Create Request envelope.
type ConferenceCreateRequest struct {
	Blocks *ClientGccBlocks
}

func (r *ConferenceCreateRequest) Name() string { return "ConferenceCreateRequest" }

func (r *ConferenceCreateRequest) Size() int {
	userData := r.Blocks.Size()
	inner := 14 + userData

	return 1 + // choice
		6 + // object identifier
		int(encoding.PerSizeLength(uint16(inner))) +
		1 + // choice
		1 + // selection
		2 + // numeric string "1"
		1 + // padding
		1 + // number of sets
		1 + // choice 0xC0
		5 + // h221 key "Duca"
		int(encoding.PerSizeLength(uint16(userData))) +
		userData
}

func (r *ConferenceCreateRequest) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(r.Name(), dst, r.Size()); err != nil {
		return err
	}

	userData := r.Blocks.Size()

	encoding.PerWriteChoice(0, dst)
	encoding.PerWriteObjectIdentifier(t124OID, dst)
	encoding.PerWriteLength(uint16(14+userData), dst)

	encoding.PerWriteChoice(0, dst)
	encoding.PerWriteSelection(0x08, dst)

	encoding.PerWriteNumericString("1", 1, dst)
	encoding.PerWritePadding(1, dst)
	encoding.PerWriteNumberOfSet(1, dst)
	encoding.PerWriteChoice(0xC0, dst)
	encoding.PerWriteOctetStream(h221CSKey, 4, dst)

	encoding.PerWriteLength(uint16(userData), dst)

	return r.Blocks.Encode(dst)
}

// DecodeConferenceCreateRequest unwraps the envelope and parses the client
// blocks (acceptor side).
func DecodeConferenceCreateRequest(src *core.ReadCursor) (*ClientGccBlocks, error) {
	if _, err := encoding.PerReadChoice(src); err != nil {
		return nil, err
	}

	if err := encoding.PerReadObjectIdentifier(t124OID, src); err != nil {
		return nil, err
	}

	if _, err := encoding.PerReadLength(src); err != nil {
		return nil, err
	}

	if _, err := encoding.PerReadChoice(src); err != nil {
		return nil, err
	}

	if err := core.EnsureSize("ConferenceCreateRequest", src, 6); err != nil {
		return nil, err
	}

	src.ReadU8() // selection
	src.ReadU8() // numeric string length
	src.ReadU8() // conference name "1"
	src.ReadU8() // padding
	src.ReadU8() // number of sets
	src.ReadU8() // choice 0xC0

	if err := encoding.PerReadOctetStream(h221CSKey, 4, src); err != nil {
		return nil, err
	}

	length, err := encoding.PerReadLength(src)
	if err != nil {
		return nil, err
	}

	if err = core.EnsureSize("ConferenceCreateRequest", src, length); err != nil {
		return nil, err
	}

	return DecodeClientGccBlocks(core.NewReadCursor(src.ReadSlice(length)))
}

// ConferenceCreateResponse wraps the server user-data blocks in the T.124
// Conference-Create Response envelope.
type ConferenceCreateResponse struct {
	Blocks *ServerGccBlocks
}

func (r *ConferenceCreateResponse) Name() string { return "ConferenceCreateResponse" }

func (r *ConferenceCreateResponse) Size() int {
	userData := r.Blocks.Size()
	inner := 14 + userData

	return 1 + // choice
		6 + // object identifier
		int(encoding.PerSizeLength(uint16(inner))) +
		1 + // choice
		2 + // node id
		2 + // tag integer
		1 + // result enumerated
		1 + // number of sets
		1 + // choice 0xC0
		5 + // h221 key "McDn"
		int(encoding.PerSizeLength(uint16(userData))) +
		userData
}

func (r *ConferenceCreateResponse) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(r.Name(), dst, r.Size()); err != nil {
		return err
	}

	userData := r.Blocks.Size()

	encoding.PerWriteChoice(0, dst)
	encoding.PerWriteObjectIdentifier(t124OID, dst)
	encoding.PerWriteLength(uint16(14+userData), dst)

	encoding.PerWriteChoice(0x14, dst)
	encoding.PerWriteInteger16(0x79F3, 1001, dst) // nodeID
	encoding.PerWriteInteger(1, dst)              // tag
	encoding.PerWriteEnumerates(0, dst)           // result: success
	encoding.PerWriteNumberOfSet(1, dst)
	encoding.PerWriteChoice(0xC0, dst)
	encoding.PerWriteOctetStream(h221SCKey, 4, dst)

	encoding.PerWriteLength(uint16(userData), dst)

	return r.Blocks.Encode(dst)
}

// DecodeConferenceCreateResponse unwraps the envelope and parses the server
// blocks (client side).
func DecodeConferenceCreateResponse(src *core.ReadCursor) (*ServerGccBlocks, error) {
	if _, err := encoding.PerReadChoice(src); err != nil {
		return nil, err
	}

	if err := encoding.PerReadObjectIdentifier(t124OID, src); err != nil {
		return nil, err
	}

	if _, err := encoding.PerReadLength(src); err != nil {
		return nil, err
	}

	if _, err := encoding.PerReadChoice(src); err != nil {
		return nil, err
	}

	if _, err := encoding.PerReadInteger16(1001, src); err != nil {
		return nil, err
	}

	if _, err := encoding.PerReadInteger(src); err != nil {
		return nil, err
	}

	if _, err := encoding.PerReadEnumerates(src); err != nil {
		return nil, err
	}

	if _, err := encoding.PerReadNumberOfSet(src); err != nil {
		return nil, err
	}

	if _, err := encoding.PerReadChoice(src); err != nil {
		return nil, err
	}

	if err := encoding.PerReadOctetStream(h221SCKey, 4, src); err != nil {
		return nil, err
	}

	length, err := encoding.PerReadLength(src)
	if err != nil {
		return nil, err
	}

	if err = core.EnsureSize("ConferenceCreateResponse", src, length); err != nil {
		return nil, err
	}

	return DecodeServerGccBlocks(core.NewReadCursor(src.ReadSlice(length)))
}
