package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-core/internal/core"
)

func TestBerLengthRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 0x7F, 0x80, 0xFF, 0x100, 0xFFFF} {
		buf := make([]byte, 3)
		w := core.NewWriteCursor(buf)

		BerWriteLength(size, w)

		assert.Equal(t, BerSizeLength(size), w.Pos())

		decoded, err := BerReadLength(core.NewReadCursor(buf[:w.Pos()]))
		require.NoError(t, err)
		assert.Equal(t, size, decoded)
	}
}

func TestBerIntegerRoundTrip(t *testing.T) {
	for _, value := range []int{0, 0xFF, 0x100, 0xFFFF, 0x10000, 0x7FFFFFFF} {
		buf := make([]byte, 8)
		w := core.NewWriteCursor(buf)

		BerWriteInteger(value, w)

		assert.Equal(t, BerSizeInteger(value), w.Pos())

		decoded, err := BerReadInteger(core.NewReadCursor(buf[:w.Pos()]))
		require.NoError(t, err)
		assert.Equal(t, value, decoded)
	}
}

func TestBerBooleanRoundTrip(t *testing.T) {
	for _, value := range []bool{true, false} {
		buf := make([]byte, 3)
		w := core.NewWriteCursor(buf)

		BerWriteBoolean(value, w)

		decoded, err := BerReadBoolean(core.NewReadCursor(buf))
		require.NoError(t, err)
		assert.Equal(t, value, decoded)
	}
}

func TestBerOctetStringRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}

	buf := make([]byte, BerSizeOctetString(len(payload)))
	w := core.NewWriteCursor(buf)

	BerWriteOctetString(payload, w)

	decoded, err := BerReadOctetString(core.NewReadCursor(buf))
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestBerApplicationTagRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	w := core.NewWriteCursor(buf)

	BerWriteApplicationTag(101, 0x123, w)

	src := core.NewReadCursor(buf[:w.Pos()])

	tag, err := BerReadApplicationTag(src)
	require.NoError(t, err)
	assert.Equal(t, uint8(101), tag)

	length, err := BerReadLength(src)
	require.NoError(t, err)
	assert.Equal(t, 0x123, length)
}

func TestPerLengthRoundTrip(t *testing.T) {
	for _, size := range []uint16{0, 0x7F, 0x80, 0x1234, 0x7FFF} {
		buf := make([]byte, 2)
		w := core.NewWriteCursor(buf)

		PerWriteLength(size, w)

		assert.Equal(t, PerSizeLength(size), w.Pos())

		decoded, err := PerReadLength(core.NewReadCursor(buf[:w.Pos()]))
		require.NoError(t, err)
		assert.Equal(t, int(size), decoded)
	}
}

func TestPerInteger16RoundTrip(t *testing.T) {
	buf := make([]byte, 2)
	w := core.NewWriteCursor(buf)

	PerWriteInteger16(1007, 1001, w)

	decoded, err := PerReadInteger16(1001, core.NewReadCursor(buf))
	require.NoError(t, err)
	assert.Equal(t, uint16(1007), decoded)
}

func TestPerIntegerRoundTrip(t *testing.T) {
	for _, value := range []int{0, 0xFF, 0x100, 0xFFFF, 0x10000} {
		buf := make([]byte, 5)
		w := core.NewWriteCursor(buf)

		PerWriteInteger(value, w)

		decoded, err := PerReadInteger(core.NewReadCursor(buf[:w.Pos()]))
		require.NoError(t, err)
		assert.Equal(t, value, decoded)
	}
}

func TestPerObjectIdentifierRoundTrip(t *testing.T) {
	oid := [6]byte{0, 0, 20, 124, 0, 1}

	buf := make([]byte, 6)
	w := core.NewWriteCursor(buf)

	PerWriteObjectIdentifier(oid, w)

	require.NoError(t, PerReadObjectIdentifier(oid, core.NewReadCursor(buf)))
}

func TestPerObjectIdentifierMismatch(t *testing.T) {
	oid := [6]byte{0, 0, 20, 124, 0, 1}

	buf := make([]byte, 6)
	w := core.NewWriteCursor(buf)

	PerWriteObjectIdentifier(oid, w)

	other := [6]byte{0, 0, 20, 124, 0, 2}
	require.Error(t, PerReadObjectIdentifier(other, core.NewReadCursor(buf)))
}

func TestPerOctetStreamRoundTrip(t *testing.T) {
	key := []byte("Duca")

	buf := make([]byte, 5)
	w := core.NewWriteCursor(buf)

	PerWriteOctetStream(key, 4, w)

	require.NoError(t, PerReadOctetStream(key, 4, core.NewReadCursor(buf)))
}

func TestUtf16RoundTrip(t *testing.T) {
	for _, s := range []string{"", "user", "Ünïcödé", "内部"} {
		encoded := EncodeUtf16LE(s)

		assert.Equal(t, Utf16LESize(s), len(encoded))
		assert.Equal(t, s, DecodeUtf16LE(encoded))
	}
}

func TestUtf16DecodeStopsAtNul(t *testing.T) {
	encoded := append(EncodeUtf16LE("abc"), 0x00, 0x00, 0x41, 0x00)

	assert.Equal(t, "abc", DecodeUtf16LE(encoded))
}
