// Package pcb implements the RDP Pre-Connection Blob (MS-RDPBCGR 2.2.17),
// the optional opening record gateways use to identify the routing target.
package pcb

import (
	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/encoding"
)

// Versions of the preconnection PDU.
const (
	VersionV1 uint32 = 0x1
	VersionV2 uint32 = 0x2
)

const fixedPartLength = 16

// PreconnectionBlob identifies the RDP source of a connection before the
// X.224 exchange begins. V2 adds a NUL-terminated UTF-16 payload string.
type PreconnectionBlob struct {
	Version uint32
	ID      uint32
	Payload string // V2 only
}

func (p *PreconnectionBlob) Name() string { return "PreconnectionBlob" }

func (p *PreconnectionBlob) Size() int {
	if p.Version == VersionV2 {
		return fixedPartLength + 2 + encoding.Utf16LESize(p.Payload) + 2
	}
	return fixedPartLength
}

func (p *PreconnectionBlob) Encode(dst *core.WriteCursor) error {
	if p.Payload != "" && p.Version == VersionV1 {
		return core.InvalidField(p.Name(), "version", "there is no string payload in version 1")
	}

	if err := core.EnsureWriteSize(p.Name(), dst, p.Size()); err != nil {
		return err
	}

	dst.WriteU32(uint32(p.Size())) // cbSize
	dst.WriteU32(0)                // flags
	dst.WriteU32(p.Version)
	dst.WriteU32(p.ID)

	if p.Version == VersionV2 {
		dst.WriteU16(uint16(encoding.Utf16LESize(p.Payload)/2 + 1)) // cchPCB incl. terminator
		dst.WriteSlice(encoding.EncodeUtf16LE(p.Payload))
		dst.WriteU16(0)
	}

	return nil
}

// Decode parses a preconnection blob.
func Decode(src *core.ReadCursor) (*PreconnectionBlob, error) {
	if err := core.EnsureSize("PreconnectionBlob", src, fixedPartLength); err != nil {
		return nil, err
	}

	cbSize := int(src.ReadU32())
	if cbSize < fixedPartLength {
		return nil, core.InvalidField("PreconnectionBlob", "cbSize", "advertised size too small for the fixed part")
	}

	src.ReadU32() // flags

	p := &PreconnectionBlob{
		Version: src.ReadU32(),
		ID:      src.ReadU32(),
	}

	remaining := cbSize - fixedPartLength

	if err := core.EnsureSize("PreconnectionBlob", src, remaining); err != nil {
		return nil, err
	}

	if remaining >= 2 {
		cch := int(src.ReadU16())
		cb := cch * 2

		if remaining-2 < cb {
			return nil, core.InvalidField("PreconnectionBlob", "cchPCB", "payload string bigger than advertised size")
		}

		p.Payload = encoding.DecodeUtf16LE(src.ReadSlice(cb))

		src.Advance(remaining - 2 - cb) // unused leftover
	}

	return p, nil
}
