package tpkt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/core"
)

func TestHeaderRoundTrip(t *testing.T) {
	header := NewHeader(15)

	encoded, err := core.EncodeVec(header)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x03, 0x00, 0x00, 0x13}, encoded)

	decoded, err := DecodeHeader(core.NewReadCursor(encoded))
	require.NoError(t, err)

	assert.Equal(t, header, decoded)
	assert.Equal(t, 15, decoded.PayloadLength())
}

func TestDecodeHeaderRejectsVersion(t *testing.T) {
	_, err := DecodeHeader(core.NewReadCursor([]byte{0x04, 0x00, 0x00, 0x08}))

	var unsupported *core.UnsupportedVersionError
	require.ErrorAs(t, err, &unsupported)
}

func TestHintNeedsFourBytes(t *testing.T) {
	_, _, ok, err := Hint.FindSize([]byte{0x03, 0x00, 0x00})
	require.NoError(t, err)

	assert.False(t, ok)
}

func TestHintFindsLength(t *testing.T) {
	size, final, ok, err := Hint.FindSize([]byte{0x03, 0x00, 0x01, 0x02})
	require.NoError(t, err)

	assert.True(t, ok)
	assert.True(t, final)
	assert.Equal(t, 0x0102, size)

	// appending bytes cannot change the answer
	size2, _, _, err := Hint.FindSize([]byte{0x03, 0x00, 0x01, 0x02, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, size, size2)
}

func TestHintRejectsBadVersion(t *testing.T) {
	_, _, _, err := Hint.FindSize([]byte{0x42, 0x00, 0x00, 0x08})

	require.Error(t, err)
}

func TestHintRejectsTruncatedLength(t *testing.T) {
	_, _, _, err := Hint.FindSize([]byte{0x03, 0x00, 0x00, 0x02})

	require.Error(t, err)
}
