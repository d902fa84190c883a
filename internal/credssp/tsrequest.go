// Package credssp implements the CredSSP TsRequest wire format (MS-CSSP) and
// the generator-shaped interface the connection sequence uses to drive an
// external security engine. The NTLM/Kerberos machinery itself lives behind
// that interface.
package credssp

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// DER context-specific constructed tags for the TSRequest fields.
const (
	tagVersion     uint8 = 0xA0
	tagNegoTokens  uint8 = 0xA1
	tagAuthInfo    uint8 = 0xA2
	tagPubKeyAuth  uint8 = 0xA3
	tagErrorCode   uint8 = 0xA4
	tagClientNonce uint8 = 0xA5

	tagSequence    uint8 = 0x30
	tagOctetString uint8 = 0x04
	tagInteger     uint8 = 0x02
)

// TsRequest is the top-level CredSSP message (MS-CSSP 2.2.1).
//
//	TSRequest ::= SEQUENCE {
//	   version     [0] INTEGER,
//	   negoTokens  [1] NegoData OPTIONAL,
//	   authInfo    [2] OCTET STRING OPTIONAL,
//	   pubKeyAuth  [3] OCTET STRING OPTIONAL,
//	   errorCode   [4] INTEGER OPTIONAL,
//	   clientNonce [5] OCTET STRING OPTIONAL,
//	}
type TsRequest struct {
	Version     int
	NegoTokens  [][]byte
	AuthInfo    []byte
	PubKeyAuth  []byte
	ErrorCode   uint32
	ClientNonce []byte
}

func derLengthSize(n int) int {
	switch {
	case n < 0x80:
		return 1
	case n <= 0xFF:
		return 2
	default:
		return 3
	}
}

func writeDerLength(dst *core.WriteCursor, n int) {
	switch {
	case n < 0x80:
		dst.WriteU8(uint8(n))
	case n <= 0xFF:
		dst.WriteU8(0x81)
		dst.WriteU8(uint8(n))
	default:
		dst.WriteU8(0x82)
		dst.WriteU16BE(uint16(n))
	}
}

func readDerLength(src *core.ReadCursor) (int, error) {
	if err := core.EnsureSize("DerLength", src, 1); err != nil {
		return 0, err
	}

	first := src.ReadU8()

	if first&0x80 == 0 {
		return int(first), nil
	}

	switch first &^ 0x80 {
	case 1:
		if err := core.EnsureSize("DerLength", src, 1); err != nil {
			return 0, err
		}

		return int(src.ReadU8()), nil
	case 2:
		if err := core.EnsureSize("DerLength", src, 2); err != nil {
			return 0, err
		}

		return int(src.ReadU16BE()), nil
	default:
		return 0, core.InvalidField("DerLength", "length", "length form longer than 2 octets")
	}
}

func derIntegerContentSize(v int) int {
	switch {
	case v < 0x80:
		return 1
	case v < 0x8000:
		return 2
	case v < 0x800000:
		return 3
	default:
		return 4
	}
}

func writeDerInteger(dst *core.WriteCursor, v int) {
	content := derIntegerContentSize(v)

	dst.WriteU8(tagInteger)
	dst.WriteU8(uint8(content))

	for i := content - 1; i >= 0; i-- {
		dst.WriteU8(uint8(v >> (8 * i)))
	}
}

func readDerInteger(src *core.ReadCursor) (int, error) {
	if err := core.EnsureSize("DerInteger", src, 1); err != nil {
		return 0, err
	}

	if tag := src.ReadU8(); tag != tagInteger {
		return 0, core.UnexpectedMessageType("DerInteger", tag)
	}

	length, err := readDerLength(src)
	if err != nil {
		return 0, err
	}

	if length < 1 || length > 4 {
		return 0, core.InvalidField("DerInteger", "length", "integer may be 1 to 4 octets")
	}

	if err = core.EnsureSize("DerInteger", src, length); err != nil {
		return 0, err
	}

	v := 0
	for i := 0; i < length; i++ {
		v = v<<8 | int(src.ReadU8())
	}

	return v, nil
}

// sizes of the nested structures, innermost first

func (r *TsRequest) versionFieldSize() int {
	inner := 2 + derIntegerContentSize(r.Version)
	return 1 + derLengthSize(inner) + inner
}

func wrapped(inner int) int {
	return 1 + derLengthSize(inner) + inner
}

func (r *TsRequest) negoTokensFieldSize() int {
	if len(r.NegoTokens) == 0 {
		return 0
	}

	seqOf := 0
	for _, token := range r.NegoTokens {
		octets := wrapped(len(token))  // OCTET STRING
		tagged := wrapped(octets)      // [0]
		entry := wrapped(tagged)       // SEQUENCE
		seqOf += entry
	}

	return wrapped(wrapped(seqOf)) // SEQUENCE OF inside [1]
}

func octetFieldSize(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	return wrapped(wrapped(len(b)))
}

func (r *TsRequest) contentSize() int {
	size := r.versionFieldSize() + r.negoTokensFieldSize() +
		octetFieldSize(r.AuthInfo) + octetFieldSize(r.PubKeyAuth) +
		octetFieldSize(r.ClientNonce)

	if r.ErrorCode != 0 {
		inner := 2 + derIntegerContentSize(int(r.ErrorCode))
		size += wrapped(inner)
	}

	return size
}

func (r *TsRequest) Name() string { return "TsRequest" }

func (r *TsRequest) Size() int {
	return wrapped(r.contentSize())
}

func (r *TsRequest) Encode(dst *core.WriteCursor) error {
	if err := core.EnsureWriteSize(r.Name(), dst, r.Size()); err != nil {
		return err
	}

	dst.WriteU8(tagSequence)
	writeDerLength(dst, r.contentSize())

	// version [0]
	dst.WriteU8(tagVersion)
	writeDerLength(dst, 2+derIntegerContentSize(r.Version))
	writeDerInteger(dst, r.Version)

	// negoTokens [1]
	if len(r.NegoTokens) > 0 {
		seqOf := 0
		for _, token := range r.NegoTokens {
			seqOf += wrapped(wrapped(wrapped(len(token))))
		}

		dst.WriteU8(tagNegoTokens)
		writeDerLength(dst, wrapped(seqOf))
		dst.WriteU8(tagSequence)
		writeDerLength(dst, seqOf)

		for _, token := range r.NegoTokens {
			dst.WriteU8(tagSequence)
			writeDerLength(dst, wrapped(wrapped(len(token))))
			dst.WriteU8(0xA0) // negoToken [0]
			writeDerLength(dst, wrapped(len(token)))
			dst.WriteU8(tagOctetString)
			writeDerLength(dst, len(token))
			dst.WriteSlice(token)
		}
	}

	writeTaggedOctets(dst, tagAuthInfo, r.AuthInfo)
	writeTaggedOctets(dst, tagPubKeyAuth, r.PubKeyAuth)

	// errorCode [4]
	if r.ErrorCode != 0 {
		dst.WriteU8(tagErrorCode)
		writeDerLength(dst, 2+derIntegerContentSize(int(r.ErrorCode)))
		writeDerInteger(dst, int(r.ErrorCode))
	}

	writeTaggedOctets(dst, tagClientNonce, r.ClientNonce)

	return nil
}

func writeTaggedOctets(dst *core.WriteCursor, tag uint8, b []byte) {
	if len(b) == 0 {
		return
	}

	dst.WriteU8(tag)
	writeDerLength(dst, wrapped(len(b)))
	dst.WriteU8(tagOctetString)
	writeDerLength(dst, len(b))
	dst.WriteSlice(b)
}

// DecodeTsRequest parses one TSRequest message.
func DecodeTsRequest(src *core.ReadCursor) (*TsRequest, error) {
	if err := core.EnsureSize("TsRequest", src, 2); err != nil {
		return nil, err
	}

	if tag := src.ReadU8(); tag != tagSequence {
		return nil, core.UnexpectedMessageType("TsRequest", tag)
	}

	contentLen, err := readDerLength(src)
	if err != nil {
		return nil, err
	}

	if err = core.EnsureSize("TsRequest", src, contentLen); err != nil {
		return nil, err
	}

	content := core.NewReadCursor(src.ReadSlice(contentLen))

	req := &TsRequest{}

	for !content.IsEmpty() {
		if err = core.EnsureSize("TsRequest", content, 1); err != nil {
			return nil, err
		}

		tag := content.ReadU8()

		length, err := readDerLength(content)
		if err != nil {
			return nil, err
		}

		if err = core.EnsureSize("TsRequest", content, length); err != nil {
			return nil, err
		}

		field := core.NewReadCursor(content.ReadSlice(length))

		switch tag {
		case tagVersion:
			if req.Version, err = readDerInteger(field); err != nil {
				return nil, err
			}
		case tagNegoTokens:
			if err = decodeNegoTokens(field, req); err != nil {
				return nil, err
			}
		case tagAuthInfo:
			if req.AuthInfo, err = readOctetString(field); err != nil {
				return nil, err
			}
		case tagPubKeyAuth:
			if req.PubKeyAuth, err = readOctetString(field); err != nil {
				return nil, err
			}
		case tagErrorCode:
			code, err := readDerInteger(field)
			if err != nil {
				return nil, err
			}

			req.ErrorCode = uint32(code)
		case tagClientNonce:
			if req.ClientNonce, err = readOctetString(field); err != nil {
				return nil, err
			}
		default:
			// unknown context tags are skipped for forward compatibility
		}
	}

	return req, nil
}

func readOctetString(src *core.ReadCursor) ([]byte, error) {
	if err := core.EnsureSize("DerOctetString", src, 1); err != nil {
		return nil, err
	}

	if tag := src.ReadU8(); tag != tagOctetString {
		return nil, core.UnexpectedMessageType("DerOctetString", tag)
	}

	length, err := readDerLength(src)
	if err != nil {
		return nil, err
	}

	if err = core.EnsureSize("DerOctetString", src, length); err != nil {
		return nil, err
	}

	return src.ReadSlice(length), nil
}

func decodeNegoTokens(src *core.ReadCursor, req *TsRequest) error {
	if err := core.EnsureSize("NegoTokens", src, 1); err != nil {
		return err
	}

	if tag := src.ReadU8(); tag != tagSequence {
		return core.UnexpectedMessageType("NegoTokens", tag)
	}

	seqLen, err := readDerLength(src)
	if err != nil {
		return err
	}

	if err = core.EnsureSize("NegoTokens", src, seqLen); err != nil {
		return err
	}

	seq := core.NewReadCursor(src.ReadSlice(seqLen))

	for !seq.IsEmpty() {
		if err = core.EnsureSize("NegoTokens", seq, 1); err != nil {
			return err
		}

		if tag := seq.ReadU8(); tag != tagSequence {
			return core.UnexpectedMessageType("NegoTokens", tag)
		}

		entryLen, err := readDerLength(seq)
		if err != nil {
			return err
		}

		if err = core.EnsureSize("NegoTokens", seq, entryLen); err != nil {
			return err
		}

		entry := core.NewReadCursor(seq.ReadSlice(entryLen))

		if err = core.EnsureSize("NegoTokens", entry, 1); err != nil {
			return err
		}

		if tag := entry.ReadU8(); tag != 0xA0 {
			return core.UnexpectedMessageType("NegoTokens", tag)
		}

		if _, err = readDerLength(entry); err != nil {
			return err
		}

		token, err := readOctetString(entry)
		if err != nil {
			return err
		}

		req.NegoTokens = append(req.NegoTokens, token)
	}

	return nil
}

type tsRequestHint struct{}

// TsRequestHint probes a TsRequest frame by scanning the outer DER length.
var TsRequestHint core.PduHint = tsRequestHint{}

func (tsRequestHint) FindSize(b []byte) (int, bool, bool, error) {
	if len(b) < 2 {
		return 0, false, false, nil
	}

	if b[0] != tagSequence {
		return 0, false, false, core.UnexpectedMessageType("TsRequestHint", b[0])
	}

	first := b[1]

	if first&0x80 == 0 {
		return 2 + int(first), true, true, nil
	}

	switch first &^ 0x80 {
	case 1:
		if len(b) < 3 {
			// three bytes are needed to keep learning the length
			return 3, false, true, nil
		}

		return 3 + int(b[2]), true, true, nil
	case 2:
		if len(b) < 4 {
			return 4, false, true, nil
		}

		return 4 + int(b[2])<<8 + int(b[3]), true, true, nil
	default:
		return 0, false, false, core.InvalidField("TsRequestHint", "length", "length form longer than 2 octets")
	}
}
