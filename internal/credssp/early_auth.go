package credssp

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// Early User Authorization Result values (MS-RDPBCGR 2.2.10.2).
const (
	AuthorizationSuccess      uint32 = 0x00000000
	AuthorizationAccessDenied uint32 = 0x00000005
)

const earlyUserAuthResultLength = 4

type earlyUserAuthResultHint struct{}

// EarlyUserAuthResultHint frames the fixed 4-byte Early User Authorization
// Result PDU that follows a HYBRID_EX CredSSP exchange.
var EarlyUserAuthResultHint core.PduHint = earlyUserAuthResultHint{}

func (earlyUserAuthResultHint) FindSize(b []byte) (int, bool, bool, error) {
	if len(b) < earlyUserAuthResultLength {
		return 0, false, false, nil
	}
	return earlyUserAuthResultLength, true, true, nil
}

// DecodeEarlyUserAuthResult reads the authorization result value.
func DecodeEarlyUserAuthResult(src *core.ReadCursor) (uint32, error) {
	if err := core.EnsureSize("EarlyUserAuthResult", src, earlyUserAuthResultLength); err != nil {
		return 0, err
	}

	return src.ReadU32(), nil
}

// EncodeEarlyUserAuthResult writes the authorization result PDU (acceptor
// side).
func EncodeEarlyUserAuthResult(buf *core.WriteBuf, result uint32) {
	buf.WriteU32(result)
}
