package encoding

import (
	"unicode/utf16"
)

// EncodeUtf16LE converts a string to UTF-16 little-endian bytes without a
// terminator.
func EncodeUtf16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)

	for i, u := range units {
		out[i*2] = byte(u)
		out[i*2+1] = byte(u >> 8)
	}

	return out
}

// DecodeUtf16LE converts UTF-16 little-endian bytes to a string, stopping at
// the first NUL unit if one is present.
func DecodeUtf16LE(b []byte) string {
	units := make([]uint16, 0, len(b)/2)

	for i := 0; i+1 < len(b); i += 2 {
		u := uint16(b[i]) | uint16(b[i+1])<<8
		if u == 0 {
			break
		}
		units = append(units, u)
	}

	return string(utf16.Decode(units))
}

// Utf16LESize returns the encoded byte length of s without a terminator.
func Utf16LESize(s string) int {
	return len(utf16.Encode([]rune(s))) * 2
}
