package rdp

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/credssp"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
)

func TestReadFrameTpkt(t *testing.T) {
	frame := []byte{0x03, 0x00, 0x00, 0x08, 0xAA, 0xBB, 0xCC, 0xDD}
	trailing := []byte{0x03, 0x00}

	reader := bufio.NewReader(bytes.NewReader(append(append([]byte{}, frame...), trailing...)))

	got, err := readFrame(reader, tpkt.Hint, nil)
	require.NoError(t, err)

	assert.Equal(t, frame, got)

	// the trailing bytes of the next frame stay in the reader
	rest := make([]byte, 2)
	_, err = reader.Read(rest)
	require.NoError(t, err)
	assert.Equal(t, trailing, rest)
}

func TestReadFrameGrowsThroughNonFinalHints(t *testing.T) {
	// a TsRequest with a two-byte DER length forces a non-final hint first
	payload := make([]byte, 0x180)
	frame := append([]byte{0x30, 0x82, 0x01, 0x80}, payload...)

	reader := bufio.NewReader(bytes.NewReader(frame))

	got, err := readFrame(reader, credssp.TsRequestHint, nil)
	require.NoError(t, err)

	assert.Equal(t, len(frame), len(got))
}

func TestReadFrameShortStream(t *testing.T) {
	reader := bufio.NewReader(bytes.NewReader([]byte{0x03, 0x00, 0x00}))

	_, err := readFrame(reader, tpkt.Hint, nil)
	require.Error(t, err)
}

func TestSessionHintDispatch(t *testing.T) {
	// TPKT framing for slow path
	size, final, ok, err := SessionHint.FindSize([]byte{0x03, 0x00, 0x00, 0x10})
	require.NoError(t, err)
	assert.True(t, ok && final)
	assert.Equal(t, 0x10, size)

	// fast-path update with a one-byte length
	size, final, ok, err = SessionHint.FindSize([]byte{0x00, 0x0A})
	require.NoError(t, err)
	assert.True(t, ok && final)
	assert.Equal(t, 0x0A, size)

	// fast-path update with a two-byte length
	size, final, ok, err = SessionHint.FindSize([]byte{0x00, 0x81, 0x40})
	require.NoError(t, err)
	assert.True(t, ok && final)
	assert.Equal(t, 0x140, size)

	// not enough to decide
	_, _, ok, err = SessionHint.FindSize([]byte{0x00})
	require.NoError(t, err)
	assert.False(t, ok)
}
