package credssp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/core"
)

func TestTsRequestRoundTripNegoTokens(t *testing.T) {
	req := &TsRequest{
		Version:    6,
		NegoTokens: [][]byte{{0x4E, 0x54, 0x4C, 0x4D}},
	}

	encoded, err := core.EncodeVec(req)
	require.NoError(t, err)
	assert.Equal(t, req.Size(), len(encoded))

	decoded, err := DecodeTsRequest(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Equal(t, 6, decoded.Version)
	require.Len(t, decoded.NegoTokens, 1)
	assert.Equal(t, []byte{0x4E, 0x54, 0x4C, 0x4D}, decoded.NegoTokens[0])
}

func TestTsRequestRoundTripAllFields(t *testing.T) {
	req := &TsRequest{
		Version:     6,
		NegoTokens:  [][]byte{make([]byte, 300)},
		PubKeyAuth:  []byte{0x01, 0x02},
		ClientNonce: make([]byte, 32),
	}

	encoded, err := core.EncodeVec(req)
	require.NoError(t, err)
	assert.Equal(t, req.Size(), len(encoded))

	decoded, err := DecodeTsRequest(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Len(t, decoded.NegoTokens[0], 300)
	assert.Equal(t, req.PubKeyAuth, decoded.PubKeyAuth)
	assert.Len(t, decoded.ClientNonce, 32)
}

func TestTsRequestErrorCode(t *testing.T) {
	req := &TsRequest{Version: 6, ErrorCode: 0xC000006D}

	encoded, err := core.EncodeVec(req)
	require.NoError(t, err)

	decoded, err := DecodeTsRequest(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Equal(t, uint32(0xC000006D), decoded.ErrorCode)
}

func TestTsRequestHintShortForm(t *testing.T) {
	size, final, ok, err := TsRequestHint.FindSize([]byte{0x30, 0x10})
	require.NoError(t, err)

	assert.True(t, ok)
	assert.True(t, final)
	assert.Equal(t, 0x12, size)
}

func TestTsRequestHintLongFormNeedsMoreBytes(t *testing.T) {
	// a two-byte length form needs four bytes before it can decide
	size, final, ok, err := TsRequestHint.FindSize([]byte{0x30, 0x82})
	require.NoError(t, err)

	assert.True(t, ok)
	assert.False(t, final)
	assert.Equal(t, 4, size)

	size, final, ok, err = TsRequestHint.FindSize([]byte{0x30, 0x82, 0x01, 0x00})
	require.NoError(t, err)

	assert.True(t, ok)
	assert.True(t, final)
	assert.Equal(t, 4+0x100, size)
}

func TestTsRequestHintMatchesEncoding(t *testing.T) {
	req := &TsRequest{Version: 2, NegoTokens: [][]byte{make([]byte, 200)}}

	encoded, err := core.EncodeVec(req)
	require.NoError(t, err)

	size, final, ok, err := TsRequestHint.FindSize(encoded)
	require.NoError(t, err)

	assert.True(t, ok)
	assert.True(t, final)
	assert.Equal(t, len(encoded), size)
}

func TestTsRequestHintRejectsBadTag(t *testing.T) {
	_, _, _, err := TsRequestHint.FindSize([]byte{0x31, 0x05})

	require.Error(t, err)
}

func TestEarlyUserAuthResult(t *testing.T) {
	buf := core.NewWriteBuf()

	EncodeEarlyUserAuthResult(buf, AuthorizationAccessDenied)

	size, final, ok, err := EarlyUserAuthResultHint.FindSize(buf.Filled())
	require.NoError(t, err)
	assert.True(t, ok && final)
	assert.Equal(t, 4, size)

	result, err := DecodeEarlyUserAuthResult(core.NewReadCursor(buf.Filled()))
	require.NoError(t, err)
	assert.Equal(t, AuthorizationAccessDenied, result)
}
